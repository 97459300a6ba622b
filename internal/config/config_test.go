package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Port)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, "asgi", cfg.Presence.Prefix)
	assert.Equal(t, 300*time.Second, cfg.Presence.StaleWindow())
	assert.Equal(t, 100, cfg.Presence.Capacity)
	require.Len(t, cfg.Shards, 1)
	assert.Equal(t, "default", cfg.Shards[0].Name)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Shards[0].URL)
	assert.False(t, cfg.Archive.Enabled())
	assert.Equal(t, 24*time.Hour, cfg.Archive.Interval)
	assert.Contains(t, cfg.DSN, "tcp(127.0.0.1:3306)/presence")
}

func TestParseShards(t *testing.T) {
	cfg, err := Parse([]byte(`
env: production
redis:
  shards:
    - name: alpha
      url: redis://10.0.0.1:6379/1
    - host: 10.0.0.2
      password: secret
      db: 2
    - host: 10.0.0.3
      tls: true
`))
	require.NoError(t, err)

	assert.False(t, cfg.IsDev())
	require.Len(t, cfg.Shards, 3)
	assert.Equal(t, ShardRuntimeConfig{Name: "alpha", URL: "redis://10.0.0.1:6379/1"}, cfg.Shards[0])
	assert.Equal(t, "shard-1", cfg.Shards[1].Name)
	assert.Equal(t, "redis://:secret@10.0.0.2:6379/2", cfg.Shards[1].URL)
	assert.Equal(t, "rediss://10.0.0.3:6379/0", cfg.Shards[2].URL)
}

func TestParseRedisURLShorthand(t *testing.T) {
	cfg, err := Parse([]byte("redis_url: cache.internal:6380/3\n"))
	require.NoError(t, err)

	require.Len(t, cfg.Shards, 1)
	assert.Equal(t, "redis://cache.internal:6380/3", cfg.Shards[0].URL)
}

func TestParseDuplicateShardNames(t *testing.T) {
	_, err := Parse([]byte(`
redis:
  shards:
    - name: a
      host: one
    - name: a
      host: two
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate redis shard name")
}

func TestParsePresence(t *testing.T) {
	cfg, err := Parse([]byte(`
expired_user_activity: 60
presence:
  prefix: chat
  capacity: 64
`))
	require.NoError(t, err)
	assert.Equal(t, "chat", cfg.Presence.Prefix)
	assert.Equal(t, time.Minute, cfg.Presence.StaleWindow())
	assert.Equal(t, 64, cfg.Presence.Capacity)

	cfg, err = Parse([]byte("expired_user_activity: 60\npresence:\n  stale_after: 90\n"))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Presence.StaleWindow())

	_, err = Parse([]byte("presence:\n  stale_after: 0\n"))
	assert.Error(t, err)
}

func TestParseArchive(t *testing.T) {
	cfg, err := Parse([]byte(`
archive:
  bucket: presence-archive
  prefix: /snapshots/
  interval: 6h
  groups:
    - group: lobby
      rooms: [" red ", "", blue]
    - group: " "
`))
	require.NoError(t, err)

	assert.True(t, cfg.Archive.Enabled())
	assert.Equal(t, "snapshots", cfg.Archive.Prefix)
	assert.Equal(t, 6*time.Hour, cfg.Archive.Interval)
	assert.Equal(t, []ArchiveTarget{{Group: "lobby", Rooms: []string{"red", "blue"}}}, cfg.Archive.Targets)

	_, err = Parse([]byte("archive:\n  interval: soon\n"))
	assert.Error(t, err)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("not_a_key: true\n"))
	assert.Error(t, err)
}

func TestParseInvalidPort(t *testing.T) {
	_, err := Parse([]byte("port: 70000\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("port: 8080\njwt_secret: s3cr3t\npaths:\n  logs: var/log\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "s3cr3t", cfg.JWTSecret)
	wantDir, err := filepath.Abs(filepath.Join(dir, "var", "log"))
	require.NoError(t, err)
	assert.Equal(t, wantDir, cfg.LogDir())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestDatabaseDSNValue(t *testing.T) {
	dsn := DatabaseRuntimeConfig{
		Host:      "db.internal",
		Port:      3307,
		User:      "presence",
		Password:  "pw",
		Name:      "ledger",
		ParseTime: true,
		Loc:       "UTC",
		Params:    map[string]string{"timeout": "5s", " ": "dropped"},
	}.DSNValue()

	assert.True(t, strings.HasPrefix(dsn, "presence:pw@tcp(db.internal:3307)/ledger?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
	assert.Contains(t, dsn, "timeout=5s")
	assert.NotContains(t, dsn, "loc=")

	explicit := DatabaseRuntimeConfig{DSN: " user@tcp(x:1)/y "}.DSNValue()
	assert.Equal(t, "user@tcp(x:1)/y", explicit)
}
