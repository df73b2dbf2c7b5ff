package database

import (
	"testing"
	"time"

	"docqa-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsDefaults(t *testing.T) {
	got := Options{DSN: "x", MaxOpenConns: 7}.withDefaults()

	assert.Equal(t, 7, got.MaxOpenConns)
	assert.Equal(t, 10, got.MaxIdleConns)
	assert.Equal(t, time.Hour, got.ConnMaxLifetime)
	assert.Equal(t, 200*time.Millisecond, got.SlowThreshold)
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open(Options{}, logger.NewNopLogger())
	require.Error(t, err)
}
