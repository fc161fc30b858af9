package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"endpoint_addr_http":       "www.example:9000",
		"database_dsn":             "files.db",
		"secret_key":               "my_secret_key",
		"redis_addr":               "redis:6379",
		"s3_access_key":            "user",
		"s3_secret_key":            "password",
		"s3_region":                "region",
		"s3_base_endpoint":         "base_endpoint",
		"s3_bucket":                "bucket",
		"s3_guest_bucket":          "guest-bucket",
		"sign_validity_duration":   "10m",
		"guest_retention_duration": "336h",
		"sweep_interval":           "1h",
		"block_cooldown_duration":  "30m",
		"suspicion_threshold":      7,
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "www.example:9000", cfg.EndpointAddrHTTP)
		assert.Equal(t, "files.db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, "redis:6379", cfg.RedisAddr)
		assert.Equal(t, "user", cfg.S3AccessKey)
		assert.Equal(t, "password", cfg.S3SecretKey)
		assert.Equal(t, "region", cfg.S3Region)
		assert.Equal(t, "base_endpoint", cfg.S3BaseEndpoint)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, "guest-bucket", cfg.S3GuestBucket)
		assert.Equal(t, 10*time.Minute, cfg.SignValidityDuration)
		assert.Equal(t, 336*time.Hour, cfg.GuestRetentionDuration)
		assert.Equal(t, time.Hour, cfg.SweepInterval)
		assert.Equal(t, 30*time.Minute, cfg.BlockCooldownDuration)
		assert.Equal(t, 7, cfg.SuspicionThreshold)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{
			EndpointAddrHTTP:       "defaults:1234",
			DatabaseDSN:            "files.db",
			SecretKey:              "key",
			SignValidityDuration:   2 * time.Minute,
			GuestRetentionDuration: 3 * time.Hour,
		}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.EndpointAddrHTTP)
		assert.Equal(t, "files.db", cfg.DatabaseDSN)
		assert.Equal(t, "key", cfg.SecretKey)
		assert.Equal(t, 2*time.Minute, cfg.SignValidityDuration)
		assert.Equal(t, 3*time.Hour, cfg.GuestRetentionDuration)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
