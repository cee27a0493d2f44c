package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 4, cfg.Crawler.Concurrency)
	require.Equal(t, 5, cfg.Retrieval.TopK)
	require.Equal(t, "memory", cfg.Index.Provider)
	require.Equal(t, "none", cfg.Storage.Provider)
	require.Equal(t, 10*time.Second, cfg.FetchTimeout())
	require.Equal(t, 500*time.Millisecond, cfg.PolitenessDelay())
	require.Equal(t, 5*time.Minute, cfg.JobTimeout())
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
crawler:
  user_agent: custom-bot/1.0
index:
  provider: postgres
  dsn: postgres://localhost/askmysite
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "custom-bot/1.0", cfg.Crawler.UserAgent)
	require.Equal(t, "postgres", cfg.Index.Provider)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	bad := base
	bad.Server.Port = 0
	require.Error(t, bad.Validate())

	bad = base
	bad.Index.Provider = "postgres"
	bad.Index.DSN = ""
	require.Error(t, bad.Validate())

	bad = base
	bad.Index.Provider = "cassandra"
	require.Error(t, bad.Validate())

	bad = base
	bad.Storage.Provider = "gcs"
	require.Error(t, bad.Validate())

	bad = base
	bad.Retrieval.TopK = 0
	require.Error(t, bad.Validate())
}
