// Package audit records an append-only trail of journal mutations.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Execution events
	ExecutionInserted EventType = "EXECUTION_INSERTED"
	ExecutionEdited   EventType = "EXECUTION_EDITED"
	ExecutionDeleted  EventType = "EXECUTION_DELETED"
	ExecutionLocked   EventType = "EXECUTION_LOCKED"

	// Annotation events
	StopAdded       EventType = "STOP_ADDED"
	StopRemoved     EventType = "STOP_REMOVED"
	TargetAdded     EventType = "TARGET_ADDED"
	TargetRemoved   EventType = "TARGET_REMOVED"
	AnnotationPin   EventType = "ANNOTATION_PINNED"
	AnnotationUnpin EventType = "ANNOTATION_UNPINNED"

	// Maintenance events
	ScopeRecomputed EventType = "SCOPE_RECOMPUTED"
	BatchApplied    EventType = "BATCH_APPLIED"
)

// Event represents a single audit log entry.
type Event struct {
	Timestamp   time.Time              `json:"timestamp"`
	EventType   EventType              `json:"event_type"`
	SessionID   string                 `json:"session_id"`
	Broker      string                 `json:"broker,omitempty"`
	Ticker      string                 `json:"ticker,omitempty"`
	ExecutionID int64                  `json:"execution_id,omitempty"`
	TradeID     string                 `json:"trade_id,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Success     bool                   `json:"success"`
	ErrorMsg    string                 `json:"error,omitempty"`
}

// Config holds audit logger configuration.
type Config struct {
	Dir        string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultConfig returns the default audit configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:        dir,
		MaxSize:    50,
		MaxBackups: 30,
		MaxAge:     365,
		Compress:   true,
	}
}

// Logger writes audit events as JSON lines. A nil *Logger discards events.
type Logger struct {
	writer    *lumberjack.Logger
	mu        sync.Mutex
	sessionID string
}

// NewLogger creates a new audit logger writing to <dir>/audit.log.
func NewLogger(cfg Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	return &Logger{
		writer: &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, "audit.log"),
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		},
		sessionID: uuid.NewString(),
	}, nil
}

// Log appends an event.
func (l *Logger) Log(ctx context.Context, event Event) error {
	if l == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	event.Timestamp = time.Now().UTC()
	event.SessionID = l.sessionID

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}
	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// SessionID returns the identifier shared by all events of this logger.
func (l *Logger) SessionID() string {
	if l == nil {
		return ""
	}
	return l.sessionID
}

// Close closes the audit logger.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	return l.writer.Close()
}
