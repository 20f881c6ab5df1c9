package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireCredentials(t *testing.T) {
	ok := &Config{BinanceAPIKey: "key", BinanceAPISecret: "secret"}
	assert.NoError(t, ok.RequireCredentials())

	assert.Error(t, (&Config{}).RequireCredentials())
	assert.Error(t, (&Config{BinanceAPIKey: "key"}).RequireCredentials())
	assert.Error(t, (&Config{BinanceAPISecret: "secret"}).RequireCredentials())
}

func TestLoadSettingsMissingFileUsesDefaults(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestLoadSettingsCustomStrategyValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	data := []byte(`
strategy:
  rsi_period: 21
  custom:
    MAType: SMA
    FastMA: 5
pairs:
  - symbol: ETHUSDT
    quote_asset: USDT
    active: true
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 21, s.Strategy.RsiPeriod)
	assert.Equal(t, "SMA", s.Strategy.Custom["MAType"])
	assert.Equal(t, 5, s.Strategy.Custom["FastMA"])
	require.Len(t, s.Pairs, 1)
	assert.True(t, s.Pairs[0].Active)
}
