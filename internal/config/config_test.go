package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterFlagsAndApply(t *testing.T) {
	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.RegisterFlags(fs)

	require.NoError(t, fs.Parse([]string{"--addr=10.0.0.5", "--port=2000", "--cache-capacity=8"}))
	require.NoError(t, cfg.ApplyFlags())

	assert.Equal(t, "10.0.0.5", cfg.ControllerAddr)
	assert.Equal(t, uint16(2000), cfg.ControllerPort)
	assert.Equal(t, 8, cfg.CacheCapacity)
}

func TestValidateRejectsNonPositiveCacheCapacity(t *testing.T) {
	cfg := Default()
	cfg.CacheCapacity = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyAddress(t *testing.T) {
	cfg := Default()
	cfg.ControllerAddr = ""
	assert.Error(t, cfg.Validate())
}

func TestEnvOverridesApplyAfterFlags(t *testing.T) {
	t.Setenv("CARTFS_CACHE_CAPACITY", "32")

	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--cache-capacity=8"}))
	require.NoError(t, cfg.ApplyFlags())

	assert.Equal(t, 32, cfg.CacheCapacity)
}
