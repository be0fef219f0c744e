// Package cli provides the command-line interface for the trade journal.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tradejournal/internal/audit"
	"tradejournal/internal/config"
	"tradejournal/internal/fees"
	"tradejournal/internal/importer"
	"tradejournal/internal/journal"
	"tradejournal/internal/logging"
	"tradejournal/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-01-01"
)

// commandTimeout bounds a single command. Imports get longer.
const (
	commandTimeout = 30 * time.Second
	importTimeout  = 10 * time.Minute
)

// App holds the application dependencies.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Store    store.JournalStore
	Journal  *journal.Coordinator
	Importer *importer.Importer
	Audit    *audit.Logger
	Format   *Formatter

	ready bool
}

// annotation set on commands that do not touch the database
const noStore = "no-store"

// NewRootCmd creates the root command for the CLI. Configuration, logging
// and the database are initialised lazily before the first subcommand runs.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{Logger: zerolog.Nop()})
}

func newRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "journal",
		Short: "Trade journal - turns broker fills into trades",
		Long: `Trade journal records broker executions and derives round-trip trades
from them. Every change to the execution ledger recomputes the affected
(broker, ticker) scope, so trades, P&L, fees, stops and targets always
reflect the full history.

Use 'journal <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/trade-journal)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addExecutionCommands(rootCmd, app)
	addTradeCommands(rootCmd, app)
	addAnnotationCommands(rootCmd, app)
	addImportCommands(rootCmd, app)

	return rootCmd
}

// init loads configuration and opens the journal on first use.
func (app *App) init(cmd *cobra.Command) error {
	if app.ready {
		return nil
	}

	if app.Config == nil {
		dir, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}
		app.Config = cfg
		app.Logger = logging.NewLoggerWithConfig(logging.LogConfig{
			Level:      cfg.Logging.Level,
			Console:    cfg.Logging.Console,
			File:       cfg.Logging.File,
			FilePath:   cfg.Logging.FilePath,
			MaxSize:    cfg.Logging.MaxSize,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAge,
		})
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		app.Logger = app.Logger.Level(zerolog.DebugLevel)
	}
	if app.Format == nil {
		f, err := NewFormatter(app.Config)
		if err != nil {
			return err
		}
		app.Format = f
	}

	if cmd.Annotations[noStore] == "" {
		if err := app.openJournal(newAppOutput(cmd, app)); err != nil {
			return err
		}
	}
	app.ready = true
	return nil
}

func (app *App) openJournal(output *Output) error {
	cfg := app.Config

	if app.Store == nil {
		if dir := filepath.Dir(cfg.Database.Path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		s, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return err
		}
		app.Store = s
		app.Logger.Debug().Str("path", cfg.Database.Path).Msg("SQLite store initialized")
	}

	if app.Audit == nil && cfg.Audit.Enabled {
		a, err := audit.NewLogger(audit.DefaultConfig(cfg.Audit.Dir))
		if err != nil {
			app.Logger.Warn().Err(err).Msg("Failed to initialize audit trail, continuing without it")
			if !output.IsJSON() {
				output.Warning("Audit trail disabled: %v", err)
			}
		} else {
			app.Audit = a
		}
	}

	if app.Journal == nil {
		registry, err := fees.NewRegistryFromConfig(cfg.Fees)
		if err != nil {
			return err
		}
		app.Journal = journal.NewCoordinator(app.Store,
			journal.WithArithmetic(cfg.ArithmeticContext()),
			journal.WithFees(registry),
			journal.WithAudit(app.Audit),
			journal.WithLogger(app.Logger),
		)
	}

	if app.Importer == nil {
		app.Importer = importer.New(app.Journal,
			importer.WithWorkers(cfg.Import.Workers),
			importer.WithMergeDuplicates(cfg.Import.MergeDuplicates),
			importer.WithReadOptions(importer.ReadOptions{DateFormat: cfg.Import.DateFormat}),
			importer.WithLogger(app.Logger),
		)
	}
	return nil
}

// Close releases the database and the audit trail.
func (app *App) Close() error {
	var firstErr error
	if app.Audit != nil {
		if err := app.Audit.Close(); err != nil {
			firstErr = err
		}
		app.Audit = nil
	}
	if app.Store != nil {
		if err := app.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		app.Store = nil
	}
	app.Journal, app.Importer = nil, nil
	app.ready = false
	return firstErr
}

func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, timeout)
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{noStore: "true"},
		// version works without a config directory
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Trade Journal v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Configuration management",
		Long:        "View and validate the journal configuration.",
		Annotations: map[string]string{noStore: "true"},
	}

	cmd.AddCommand(&cobra.Command{
		Use:         "show",
		Short:       "Show current configuration",
		Annotations: map[string]string{noStore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Show configuration file path",
		Annotations: map[string]string{noStore: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			path := config.ConfigPath(app.Config.Dir)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": path})
			} else {
				output.Println(path)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "validate",
		Short:       "Validate configuration",
		Annotations: map[string]string{noStore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if _, err := fees.NewRegistryFromConfig(app.Config.Fees); err != nil {
				output.Error("Fee schedule invalid: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Database")
	output.Printf("  Path:            %s\n", cfg.Database.Path)
	output.Println()

	output.Bold("Arithmetic")
	output.Printf("  Scale:           %d\n", cfg.Arithmetic.Scale)
	output.Printf("  Rounding:        %s\n", cfg.Arithmetic.Rounding)
	output.Printf("  Display Places:  %d\n", cfg.Arithmetic.DisplayPlaces)
	output.Printf("  Display Rounding: %s\n", cfg.Arithmetic.DisplayRounding)
	output.Println()

	output.Bold("Import")
	output.Printf("  Workers:         %d\n", cfg.Import.Workers)
	output.Printf("  Merge Duplicates: %v\n", cfg.Import.MergeDuplicates)
	output.Printf("  Date Format:     %s\n", cfg.Import.DateFormat)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:           %s\n", cfg.Logging.Level)
	output.Printf("  File:            %s\n", cfg.Logging.FilePath)
	output.Printf("  Audit:           %v (%s)\n", cfg.Audit.Enabled, cfg.Audit.Dir)
	output.Println()

	output.Bold("Fees")
	if len(cfg.Fees) == 0 {
		output.Dim("  No fee schedules configured")
		return nil
	}
	table := NewTable(output, "Broker", "Per Fill", "Per Unit", "Percent", "Minimum")
	for broker, fc := range cfg.Fees {
		table.AddRow(broker, orDash(fc.PerFill), orDash(fc.PerUnit), orDash(fc.Percent), orDash(fc.Minimum))
	}
	table.Render()
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
