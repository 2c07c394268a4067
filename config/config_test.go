package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.Equal(t, DriverFile, cfg.StorageDriver)
	assert.Zero(t, cfg.AssetSessionTTL)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestFromEnvValues(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"ADMIN_USERNAME":    "admin",
		"ADMIN_PASSWORD":    "s3cret",
		"BASE_URL":          "https://tags.example.com/",
		"PORT":              "8080",
		"STORAGE_DRIVER":    "SQLite",
		"ASSET_SESSION_TTL": "12h",
		"TRUSTED_PROXIES":   "10.0.0.0/8, ,172.16.0.0/12",
	}))
	require.NoError(t, err)
	assert.Equal(t, "https://tags.example.com", cfg.BaseURL)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.StorageDriver)
	assert.Equal(t, 12*time.Hour, cfg.AssetSessionTTL)
	assert.Equal(t, []string{"10.0.0.0/8", "172.16.0.0/12"}, cfg.TrustedProxies)
	require.NoError(t, cfg.Validate())
}

func TestFromEnvBadValues(t *testing.T) {
	_, err := FromEnv(envMap(map[string]string{"PORT": "abc"}))
	assert.Error(t, err)
	_, err = FromEnv(envMap(map[string]string{"ASSET_SESSION_TTL": "soon"}))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{AdminUsername: "a", AdminPassword: "b", Port: 3000, StorageDriver: DriverFile}

	t.Run("FillsBaseURL", func(t *testing.T) {
		c := valid
		require.NoError(t, c.Validate())
		assert.Equal(t, "http://localhost:3000", c.BaseURL)
	})
	t.Run("HTTPSWithTLS", func(t *testing.T) {
		c := valid
		c.TLSCert, c.TLSKey = "cert.pem", "key.pem"
		require.NoError(t, c.Validate())
		assert.Equal(t, "https://localhost:3000", c.BaseURL)
	})
	t.Run("MissingAdmin", func(t *testing.T) {
		c := valid
		c.AdminPassword = ""
		assert.Error(t, c.Validate())
	})
	t.Run("PostgresNeedsDSN", func(t *testing.T) {
		c := valid
		c.StorageDriver = DriverPostgres
		assert.Error(t, c.Validate())
		c.PostgresDSN = "postgres://localhost/assettag"
		assert.NoError(t, c.Validate())
	})
	t.Run("UnknownDriver", func(t *testing.T) {
		c := valid
		c.StorageDriver = "mongo"
		assert.Error(t, c.Validate())
	})
	t.Run("HalfTLS", func(t *testing.T) {
		c := valid
		c.TLSCert = "cert.pem"
		assert.Error(t, c.Validate())
	})
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DATA_DIR=/srv/assettag\nPORT=5000\n"), 0o600))

	// Registers a restore of DATA_DIR, then clears it so the file value applies.
	t.Setenv("DATA_DIR", "")
	require.NoError(t, os.Unsetenv("DATA_DIR"))
	t.Setenv("PORT", "4000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/assettag", cfg.DataDir)
	assert.Equal(t, 4000, cfg.Port, "environment wins over .env")
}

func TestLoadMissingFileIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
