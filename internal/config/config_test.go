package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 4, cfg.CrawlWorkers)
	assert.Equal(t, 50, cfg.CrawlMaxPages)
	assert.Equal(t, 100, cfg.CrawlMaxQueue)
	assert.Equal(t, 30*time.Second, cfg.NavTimeout())
	assert.Equal(t, 48*time.Hour, cfg.RecentTTL())
	assert.Equal(t, 2*time.Minute, cfg.EnrichmentTimeout())
	assert.Equal(t, 3, cfg.RetryMaxRetries)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CRAWL_MAX_PAGES", "10")
	t.Setenv("NAV_TIMEOUT", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 10, cfg.CrawlMaxPages)
	assert.Equal(t, 5*time.Second, cfg.NavTimeout())
}

func TestTargetLocales(t *testing.T) {
	tests := []struct {
		name    string
		locales string
		want    []string
	}{
		{"empty", "", nil},
		{"single", "fr", []string{"fr"}},
		{"multiple with spaces", "fr, de ,es", []string{"fr", "de", "es"}},
		{"trailing comma", "fr,", []string{"fr"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Locales: tt.locales}
			assert.Equal(t, tt.want, cfg.TargetLocales())
		})
	}
}
