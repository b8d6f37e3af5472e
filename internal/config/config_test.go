package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"port": 8080, "jwt_secret": "s", "database": {"path": "/tmp/mdesk.db"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "info", cfg.LogConfig.Level)
	require.Equal(t, 300, cfg.Search.AdapterTimeoutMS)
	require.Equal(t, 60, cfg.Search.MaxQueryChars)
	require.Equal(t, 5, cfg.Search.TopN)
	require.Equal(t, 6, cfg.Search.HistoryTurns)
	require.Equal(t, 300, cfg.Search.ExcerptChars)
	require.Equal(t, 2, cfg.AI.Retries)
	require.Equal(t, 2000, cfg.AI.MaxInputChars)
	require.Equal(t, "*/5 * * * *", cfg.Extract.Cron)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing secret", body: `{"port": 1, "database": {"path": "x"}}`},
		{name: "missing port", body: `{"jwt_secret": "s", "database": {"path": "x"}}`},
		{name: "sqlite without path", body: `{"port": 1, "jwt_secret": "s"}`},
		{name: "postgres without dsn", body: `{"port": 1, "jwt_secret": "s", "database": {"driver": "postgres"}}`},
		{name: "unknown driver", body: `{"port": 1, "jwt_secret": "s", "database": {"driver": "mysql"}}`},
		{name: "provider without model", body: `{"port": 1, "jwt_secret": "s", "database": {"path": "x"}, "ai": {"providers": [{"name": "openai"}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}
