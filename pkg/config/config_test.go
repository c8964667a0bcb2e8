package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  address: 127.0.0.1
  port: 9090
  db_path: /tmp/duochat-db
security:
  cors:
    allowed_origins: ["https://chat.example.com"]
  rate_limit:
    rps: 20
    burst: 40
  api_keys:
    backend: ["bk-1"]
    frontend: ["fk-1"]
limits:
  max_message_bytes: 32KB
  send_buffer: 128
retention:
  enabled: true
  cron: "0 3 * * *"
  period: 168h
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadParsesWrapperTypes(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9090", cfg.Addr())
	require.Equal(t, "/tmp/duochat-db", cfg.Server.DBPath)
	require.Equal(t, int64(32*1024), cfg.Limits.MaxMessageBytes.Int64())
	require.Equal(t, 128, cfg.Limits.SendBuffer)
	require.Equal(t, 168*time.Hour, cfg.Retention.Period.Duration())
	require.True(t, cfg.Retention.Enabled)
	require.Equal(t, []string{"bk-1"}, cfg.Security.APIKeys.Backend)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "retention:\n  period: soon\n"))
	require.Error(t, err)
}

func TestAddrDefaults(t *testing.T) {
	var cfg Config
	require.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestParseConfigEnvs(t *testing.T) {
	t.Setenv("DUOCHAT_ADDR", "10.0.0.1:7000")
	t.Setenv("DUOCHAT_DB_PATH", "/var/lib/duochat")
	t.Setenv("DUOCHAT_API_BACKEND_KEYS", "bk-1, bk-2")
	t.Setenv("DUOCHAT_RATE_RPS", "12.5")

	cfg, res := ParseConfigEnvs()
	require.True(t, res.EnvUsed)
	require.Equal(t, "10.0.0.1:7000", cfg.Addr())
	require.Equal(t, "/var/lib/duochat", cfg.Server.DBPath)
	require.Equal(t, 12.5, cfg.Security.RateLimit.RPS)
	require.Contains(t, res.BackendKeys, "bk-1")
	require.Contains(t, res.BackendKeys, "bk-2")
	// signing keys mirror backend keys
	require.Contains(t, res.SigningKeys, "bk-1")
}

func TestLoadEffectiveConfigPrecedence(t *testing.T) {
	fileCfg := &Config{}
	fileCfg.Server.Address = "file-host"
	fileCfg.Server.Port = 1111
	fileCfg.Server.DBPath = "/file/db"

	envCfg := &Config{}
	envCfg.Server.Address = "env-host"
	envCfg.Server.Port = 2222
	envCfg.Server.DBPath = "/env/db"

	// explicit --config wins and must exist
	eff, err := LoadEffectiveConfig(Flags{Config: "c.yaml", Set: map[string]bool{"config": true}}, fileCfg, true, envCfg, EnvResult{})
	require.NoError(t, err)
	require.Equal(t, "config", eff.Source)
	require.Equal(t, "/file/db", eff.DBPath)

	_, err = LoadEffectiveConfig(Flags{Config: "missing.yaml", Set: map[string]bool{"config": true}}, &Config{}, false, envCfg, EnvResult{})
	require.Error(t, err)

	// explicit addr/db flags beat file and env
	eff, err = LoadEffectiveConfig(Flags{Addr: ":9999", DB: "/flag/db", Set: map[string]bool{"addr": true, "db": true}}, fileCfg, true, envCfg, EnvResult{})
	require.NoError(t, err)
	require.Equal(t, "flags", eff.Source)
	require.Equal(t, ":9999", eff.Addr)
	require.Equal(t, "/flag/db", eff.DBPath)

	// present file beats env
	eff, err = LoadEffectiveConfig(Flags{Set: map[string]bool{}}, fileCfg, true, envCfg, EnvResult{EnvUsed: true})
	require.NoError(t, err)
	require.Equal(t, "config", eff.Source)

	// env is the fallback
	eff, err = LoadEffectiveConfig(Flags{Set: map[string]bool{}}, &Config{}, false, envCfg, EnvResult{EnvUsed: true})
	require.NoError(t, err)
	require.Equal(t, "env", eff.Source)
	require.Equal(t, "/env/db", eff.DBPath)
}

func TestRuntimeConfigCopies(t *testing.T) {
	SetRuntime(&RuntimeConfig{SigningKeys: map[string]struct{}{"k1": {}}})
	t.Cleanup(func() { SetRuntime(&RuntimeConfig{}) })

	keys := GetSigningKeys()
	require.Contains(t, keys, "k1")

	// mutating the copy must not affect the stored set
	delete(keys, "k1")
	require.Contains(t, GetSigningKeys(), "k1")
}
