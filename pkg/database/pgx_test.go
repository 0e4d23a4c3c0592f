package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		User:            "classhub",
		Password:        "classhub_dev_password",
		Database:        "classhub_dev",
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		Timeout:         10 * time.Second,
	}
}

func TestNewPGXPool(t *testing.T) {
	// This test requires a running PostgreSQL instance
	pool, err := NewPGXPool(testConfig())
	if err != nil {
		t.Skipf("Skipping test: PostgreSQL not available: %v", err)
		return
	}
	defer pool.Close()

	ctx := context.Background()
	require.NoError(t, HealthCheck(ctx, pool))
	assert.GreaterOrEqual(t, int(pool.Config().MaxConns), 5)
}

func TestHealthCheckCancelledContext(t *testing.T) {
	pool, err := NewPGXPool(testConfig())
	if err != nil {
		t.Skipf("Skipping test: PostgreSQL not available: %v", err)
		return
	}
	defer pool.Close()

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, HealthCheck(cancelCtx, pool))
}
