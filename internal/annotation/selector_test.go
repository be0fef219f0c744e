package annotation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradejournal/internal/models"
)

func stop(id int64, price string) models.TradeStop {
	return models.TradeStop{ID: id, Price: decimal.RequireFromString(price)}
}

func target(id int64, price string) models.TradeTarget {
	return models.TradeTarget{ID: id, Price: decimal.RequireFromString(price)}
}

func TestSelectPrimary_LongTrade(t *testing.T) {
	stops := []models.TradeStop{stop(1, "9"), stop(2, "8")}
	targets := []models.TradeTarget{target(3, "15"), target(4, "12")}

	stopID, targetID := SelectPrimary(models.TradeSideLong, stops, targets)
	require.NotNil(t, stopID)
	require.NotNil(t, targetID)
	assert.Equal(t, int64(2), *stopID, "lowest stop is the widest risk")
	assert.Equal(t, int64(4), *targetID, "lowest target is the nearest reward")
}

func TestSelectPrimary_ShortTrade(t *testing.T) {
	stops := []models.TradeStop{stop(1, "110"), stop(2, "115")}
	targets := []models.TradeTarget{target(3, "90"), target(4, "95")}

	stopID, targetID := SelectPrimary(models.TradeSideShort, stops, targets)
	assert.Equal(t, int64(2), *stopID)
	assert.Equal(t, int64(4), *targetID)
}

func TestSelectPrimary_TiesGoToLowestID(t *testing.T) {
	stops := []models.TradeStop{stop(7, "8"), stop(5, "8.00"), stop(6, "9")}
	stopID, targetID := SelectPrimary(models.TradeSideLong, stops, nil)
	assert.Equal(t, int64(5), *stopID)
	assert.Nil(t, targetID)
}

func TestSelectPrimary_Empty(t *testing.T) {
	stopID, targetID := SelectPrimary(models.TradeSideLong, nil, nil)
	assert.Nil(t, stopID)
	assert.Nil(t, targetID)
}

func TestSelectPrimary_PinnedWins(t *testing.T) {
	stops := []models.TradeStop{stop(1, "8"), stop(2, "9")}
	stops[1].Pinned = true
	targets := []models.TradeTarget{target(3, "12"), target(4, "15")}
	targets[1].Pinned = true

	stopID, targetID := SelectPrimary(models.TradeSideLong, stops, targets)
	assert.Equal(t, int64(2), *stopID)
	assert.Equal(t, int64(4), *targetID)
}

func TestApply(t *testing.T) {
	stops := []models.TradeStop{stop(1, "9"), stop(2, "8")}
	stops[0].IsPrimary = true
	targets := []models.TradeTarget{target(3, "15"), target(4, "12")}

	Apply(models.TradeSideLong, stops, targets)

	assert.False(t, stops[0].IsPrimary)
	assert.True(t, stops[1].IsPrimary)
	assert.False(t, targets[0].IsPrimary)
	assert.True(t, targets[1].IsPrimary)
}
