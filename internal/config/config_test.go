package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/ferrule/dcmictl/internal/config"
	"codeberg.org/ferrule/dcmictl/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dcmictl.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
interval = 10
log_level = "debug"
telemetry = true
database = "/tmp/dcmictl-test.db"
simulate = true
`)
	t.Setenv("DCMICTL_CONFIG", path)

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Interval)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Telemetry)
	assert.Equal(t, "/tmp/dcmictl-test.db", cfg.TelemetryDB)
	assert.True(t, cfg.Simulate)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DCMICTL_CONFIG", "")

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultInterval, cfg.Interval)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.False(t, cfg.Telemetry)
	assert.False(t, cfg.Simulate)
}

func TestLoadInvalidFile(t *testing.T) {
	path := writeConfig(t, "this is not toml at all {{{")
	t.Setenv("DCMICTL_CONFIG", path)

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrReadConfig, errors.CodeOf(err))
}

func TestLoadInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `log_level = "shouty"`)
	t.Setenv("DCMICTL_CONFIG", path)

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidLogLevel, errors.CodeOf(err))
}

func TestLoadInvalidInterval(t *testing.T) {
	path := writeConfig(t, `interval = 0`)
	t.Setenv("DCMICTL_CONFIG", path)

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.Equal(t, config.ErrInvalidInterval, errors.CodeOf(err))
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `interval = 10`)
	t.Setenv("DCMICTL_CONFIG", path)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("interval", config.DefaultInterval, "")
	require.NoError(t, flags.Parse([]string{"--interval", "30"}))

	cfg, err := config.Load(flags)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Interval)
}

func TestDashedFlagBindsUnderscoredKey(t *testing.T) {
	t.Setenv("DCMICTL_CONFIG", "")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", config.DefaultLogLevel, "")
	require.NoError(t, flags.Parse([]string{"--log-level", "error"}))

	cfg, err := config.Load(flags)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}
