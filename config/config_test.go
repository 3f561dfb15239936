package config

import (
	"testing"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honnef.co/go/lantern/lantern"
)

func parseEnvironment(environ map[string]string) (Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: environ})
}

func TestDefaults(t *testing.T) {
	cfg, err := parseEnvironment(map[string]string{"HOME": "/root"})
	require.NoError(t, err)
	assert.False(t, cfg.TrustedRelay)
	assert.False(t, cfg.Debug)
	assert.Equal(t, 64, cfg.CacheSize)
	assert.Equal(t, lantern.DefaultSettings(), cfg.Settings())
}

func TestOverrides(t *testing.T) {
	cfg, err := parseEnvironment(map[string]string{
		"LANTERN_TRUSTED_RELAY":                     "true",
		"LANTERN_RTT_MS":                            "40",
		"LANTERN_THROUGHPUT_KBPS":                   "10240",
		"LANTERN_CPU_SLOWDOWN":                      "1",
		"LANTERN_OPTIMISTIC_MAX_CONNECTIONS":        "8",
		"LANTERN_PESSIMISTIC_COLD_RTTS":             "3",
		"LANTERN_PESSIMISTIC_THROUGHPUT_FLOOR_KBPS": "0",
		// Unprefixed variables are ignored.
		"RTT_MS": "1000",
	})
	require.NoError(t, err)
	assert.True(t, cfg.TrustedRelay)
	assert.Equal(t, lantern.Settings{
		RTT:                        40,
		Throughput:                 10240,
		CPUSlowdown:                1,
		OptimisticMaxConnections:   8,
		PessimisticColdRTTs:        3,
		PessimisticThroughputFloor: 0,
	}, cfg.Settings())
}

func TestInvalid(t *testing.T) {
	_, err := parseEnvironment(map[string]string{"LANTERN_RTT_MS": "fast"})
	assert.Error(t, err)

	_, err = parseEnvironment(map[string]string{
		"LANTERN_THROUGHPUT_KBPS": "0",
		"LANTERN_CACHE_SIZE":      "0",
	})
	assert.ErrorContains(t, err, "LANTERN_THROUGHPUT_KBPS must be positive")
	assert.ErrorContains(t, err, "LANTERN_CACHE_SIZE must be at least 1")
}

func TestParseProcessEnvironment(t *testing.T) {
	t.Setenv("LANTERN_DEBUG", "1")
	t.Setenv("LANTERN_CACHE_SIZE", "16")
	cfg, err := Parse()
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 16, cfg.CacheSize)
}
