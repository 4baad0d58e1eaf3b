package xfuse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyWithDefaults(t *testing.T) {
	t.Run("zero value gets defaults", func(t *testing.T) {
		p := Policy{}.withDefaults()
		assert.Equal(t, DefaultTimeout, p.Timeout)
		assert.Equal(t, DefaultErrorThresholdPercentage, p.ErrorThresholdPercentage)
		assert.Equal(t, int64(DefaultVolumeThreshold), p.VolumeThreshold)
		assert.Equal(t, DefaultResetTimeout, p.ResetTimeout)
		assert.Equal(t, DefaultWindowDuration, p.WindowDuration)
		assert.Equal(t, DefaultWindowBuckets, p.WindowBuckets)
		assert.Equal(t, DefaultCacheSize, p.CacheSize)
	})

	t.Run("explicit values preserved", func(t *testing.T) {
		p := Policy{Timeout: 2 * time.Second, VolumeThreshold: 4}.withDefaults()
		assert.Equal(t, 2*time.Second, p.Timeout)
		assert.Equal(t, int64(4), p.VolumeThreshold)
	})

	t.Run("no timeout sentinel preserved", func(t *testing.T) {
		p := Policy{Timeout: NoTimeout}.withDefaults()
		assert.Equal(t, NoTimeout, p.Timeout)
	})
}

func TestPolicyValidate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, DefaultPolicy().Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"timeout below sentinel", func(p *Policy) { p.Timeout = -2 }},
		{"threshold above 100", func(p *Policy) { p.ErrorThresholdPercentage = 101 }},
		{"negative threshold", func(p *Policy) { p.ErrorThresholdPercentage = -1 }},
		{"negative volume", func(p *Policy) { p.VolumeThreshold = -1 }},
		{"negative reset timeout", func(p *Policy) { p.ResetTimeout = -time.Second }},
		{"negative buckets", func(p *Policy) { p.WindowBuckets = -1 }},
		{"negative capacity", func(p *Policy) { p.Capacity = -1 }},
		{"negative cache ttl", func(p *Policy) { p.CacheTTL = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			err := p.Validate()
			assert.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("empty config valid", func(t *testing.T) {
		assert.NoError(t, Config{}.Validate())
	})

	t.Run("invalid per-name policy", func(t *testing.T) {
		cfg := Config{
			Breakers: map[string]Policy{
				"bad": {ErrorThresholdPercentage: 200},
			},
		}
		err := cfg.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidPolicy)
		assert.Contains(t, err.Error(), "bad")
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		data := []byte(`
default:
  timeout: 2s
  error_threshold_percentage: 40
  volume_threshold: 4
breakers:
  payment:
    timeout: 500ms
    capacity: 16
  "critical::inventory":
    reset_timeout: 5s
`)
		cfg, err := LoadConfig(data, FormatYAML)
		require.NoError(t, err)

		assert.Equal(t, 2*time.Second, cfg.Default.Timeout)
		assert.InDelta(t, 40.0, cfg.Default.ErrorThresholdPercentage, 1e-9)
		assert.Equal(t, int64(4), cfg.Default.VolumeThreshold)

		require.Contains(t, cfg.Breakers, "payment")
		assert.Equal(t, 500*time.Millisecond, cfg.Breakers["payment"].Timeout)
		assert.Equal(t, int64(16), cfg.Breakers["payment"].Capacity)

		require.Contains(t, cfg.Breakers, "critical::inventory")
		assert.Equal(t, 5*time.Second, cfg.Breakers["critical::inventory"].ResetTimeout)
	})

	t.Run("json", func(t *testing.T) {
		data := []byte(`{"default": {"timeout": "3s", "cache": true, "cache_ttl": "1m"}}`)
		cfg, err := LoadConfig(data, FormatJSON)
		require.NoError(t, err)

		assert.Equal(t, 3*time.Second, cfg.Default.Timeout)
		assert.True(t, cfg.Default.Cache)
		assert.Equal(t, time.Minute, cfg.Default.CacheTTL)
	})

	t.Run("empty data", func(t *testing.T) {
		cfg, err := LoadConfig(nil, FormatYAML)
		require.NoError(t, err)
		assert.Zero(t, cfg.Default.Timeout)
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := LoadConfig([]byte("{}"), Format("toml"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := LoadConfig([]byte(":\n  - ]["), FormatYAML)
		assert.ErrorIs(t, err, ErrConfigParse)
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		data := []byte(`{"default": {"error_threshold_percentage": 150}}`)
		_, err := LoadConfig(data, FormatJSON)
		assert.ErrorIs(t, err, ErrInvalidPolicy)
	})
}
