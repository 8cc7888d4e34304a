package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/ouroboros-ledger/internal/config"
	"github.com/i5heu/ouroboros-ledger/internal/logging"
)

func TestRunInMemory(t *testing.T) {
	cfg := config.Default()
	cfg.InMemory = true
	require.NoError(t, run(context.Background(), cfg, 4, logging.Discard()))
}

func TestRunOnDisk(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.MinimumFreeGB = 0
	ctx := context.Background()
	require.NoError(t, run(ctx, cfg, 2, logging.Discard()))
	require.NoError(t, run(ctx, cfg, 2, logging.Discard()), "a second run reuses the data directory")
}

func TestRunNeedsTwoOwners(t *testing.T) {
	cfg := config.Default()
	cfg.InMemory = true
	assert.Error(t, run(context.Background(), cfg, 1, logging.Discard()))
}

func TestFlagsOverrideConfig(t *testing.T) {
	cfg := config.Default()
	cliFlags{dataDir: "/srv/ledger", inMemory: true, debug: true, metricsAddr: ":9100"}.apply(&cfg)
	assert.Equal(t, "/srv/ledger", cfg.DataDir)
	assert.True(t, cfg.InMemory)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
}

func TestDemoOwnersAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		o := demoOwner(i)
		assert.False(t, o.IsZero())
		assert.False(t, seen[o.String()])
		seen[o.String()] = true
	}
}
