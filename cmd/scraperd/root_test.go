package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/product-scraper/internal/config"
)

// Tests in this file swap the package-level loadConfig, so none run in parallel.

func withConfig(t *testing.T, cfg config.Config) {
	t.Helper()
	prev := loadConfig
	loadConfig = func(string) (config.Config, error) { return cfg, nil }
	t.Cleanup(func() { loadConfig = prev })
}

func TestMigrateRequiresDSN(t *testing.T) {
	withConfig(t, config.Config{Environment: "development", Logging: config.LoggingConfig{Level: "error"}})

	cmd := newRootCmd()
	cmd.SetArgs([]string{"migrate"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db.dsn is required")
}

func TestDiscoverRejectsUnsupportedSite(t *testing.T) {
	withConfig(t, config.Config{Environment: "development", Logging: config.LoggingConfig{Level: "error"}})

	cmd := newRootCmd()
	cmd.SetArgs([]string{"discover", "https://www.amazon.com/s?k=boots"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported site")
}

func TestDiscoverRequiresArgument(t *testing.T) {
	withConfig(t, config.Config{Environment: "development"})

	cmd := newRootCmd()
	cmd.SetArgs([]string{"discover"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	require.Error(t, cmd.ExecuteContext(context.Background()))
}

func TestResolveRuntimeMissing(t *testing.T) {
	_, err := resolveRuntime(context.Background())
	require.Error(t, err)
}
