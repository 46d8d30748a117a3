package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	t.Parallel()

	date, err := parseDate("2026-09-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC), date)

	_, err = parseDate("09/01/2026")
	require.Error(t, err)
}

func TestParseDateDefaultsToTodayUTC(t *testing.T) {
	t.Parallel()

	date, err := parseDate("")
	require.NoError(t, err)

	now := time.Now().UTC()
	assert.Equal(t, time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), date)
	assert.Equal(t, time.UTC, date.Location())
}
