package model

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, 10, cfg.Server.PageSize)
	require.Equal(t, "993", cfg.Mail.Port)
	require.True(t, cfg.Mail.TLS)
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	original := defaultAppConfig()
	original.Server.BaseURL = "https://hub.example.org"
	original.Server.PageSize = 25
	original.Server.DeviceToken = "tok-1"
	original.Mail.Enabled = true
	original.Mail.Host = "imap.example.org"
	original.Mail.FromDomain = "hub.example.org"

	require.NoError(t, SaveConfig(path, original))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "https://hub.example.org", loaded.Server.BaseURL)
	require.Equal(t, 25, loaded.Server.PageSize)
	require.Equal(t, "tok-1", loaded.Server.DeviceToken)
	require.True(t, loaded.Mail.Enabled)
	require.Equal(t, "imap.example.org", loaded.Mail.Host)
	require.Equal(t, "hub.example.org", loaded.Mail.FromDomain)
}

func TestLoadConfigRejectsNonPositivePageSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := defaultAppConfig()
	cfg.Server.PageSize = -1
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 10, loaded.Server.PageSize)
}
