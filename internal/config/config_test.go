package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("JWT_ALGORITHM", "HS256")
	t.Setenv("JWT_ACCESS_TTL", "30m")
	t.Setenv("JWT_REFRESH_TTL", "168h")
	t.Setenv("STORAGE_DRIVER", "memory")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "HS256", cfg.JWTAlgorithm)
	assert.Equal(t, 30*time.Minute, cfg.JWTAccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTRefreshTTL)
	assert.Equal(t, RefreshStoreSQL, cfg.RefreshStore)
	assert.Equal(t, "bcrypt", cfg.PasswordHasher)
	assert.Equal(t, "lax", cfg.CookieSameSite)
	assert.True(t, cfg.CookieSecure)
	assert.False(t, cfg.AuthRevokeAllOnReuse)
	assert.Empty(t, cfg.CORSOrigins)
	assert.Empty(t, cfg.TrustedProxies)
	assert.Equal(t, 100, cfg.RateLimitRPM)
	assert.Equal(t, 10, cfg.AuthRateLimitRPM)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_ALGORITHM", "hs512")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("JWT_REFRESH_TTL", "24h")
	t.Setenv("AUTH_REVOKE_ALL_ON_REUSE", "true")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("DB_MAX_CONNS", "25")
	t.Setenv("SERVER_TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "HS512", cfg.JWTAlgorithm)
	assert.Equal(t, 5*time.Minute, cfg.JWTAccessTTL)
	assert.Equal(t, 24*time.Hour, cfg.JWTRefreshTTL)
	assert.True(t, cfg.AuthRevokeAllOnReuse)
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, int32(25), cfg.DBMaxConns)

	proxies, err := cfg.TrustedProxyPrefixes()
	require.NoError(t, err)
	require.Len(t, proxies, 2)
	assert.Equal(t, "10.0.0.0/8", proxies[0].String())
	assert.Equal(t, "192.0.2.1/32", proxies[1].String())
}

func TestLoad_SigningSettingsAreRequired(t *testing.T) {
	for _, key := range []string{"JWT_SECRET", "JWT_ALGORITHM", "JWT_ACCESS_TTL", "JWT_REFRESH_TTL"} {
		t.Run(key, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(key, "")

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_ACCESS_TTL", "")

	path := filepath.Join(t.TempDir(), "auth.toml")
	content := `
[jwt]
secret = "file-secret-file-secret-file-secret"
access_ttl = "10m"

[cookie]
same_site = "strict"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "file-secret-file-secret-file-secret", cfg.JWTSecret)
	assert.Equal(t, 10*time.Minute, cfg.JWTAccessTTL)
	assert.Equal(t, "strict", cfg.CookieSameSite)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ServerPort:     "8080",
			RequestTimeout: time.Second,
			StorageDriver:  StorageDriverMemory,
			RefreshStore:   RefreshStoreSQL,
			JWTSecret:      testSecret,
			JWTAlgorithm:   "HS256",
			JWTAccessTTL:   time.Minute,
			JWTRefreshTTL:  time.Hour,
			PasswordHasher: "argon2id",
			CookieSameSite: "lax",
		}
	}

	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"missing secret":        func(c *Config) { c.JWTSecret = "" },
		"short secret":          func(c *Config) { c.JWTSecret = "short" },
		"unsupported algorithm": func(c *Config) { c.JWTAlgorithm = "RS256" },
		"zero access ttl":       func(c *Config) { c.JWTAccessTTL = 0 },
		"negative refresh ttl":  func(c *Config) { c.JWTRefreshTTL = -time.Hour },
		"refresh not longer":    func(c *Config) { c.JWTRefreshTTL = c.JWTAccessTTL },
		"postgres without url":  func(c *Config) { c.StorageDriver = StorageDriverPostgres },
		"unknown driver":        func(c *Config) { c.StorageDriver = "mongo" },
		"redis without url":     func(c *Config) { c.RefreshStore = RefreshStoreRedis },
		"unknown hasher":        func(c *Config) { c.PasswordHasher = "md5" },
		"same site none":        func(c *Config) { c.CookieSameSite = "none" },
		"half bootstrap admin":  func(c *Config) { c.BootstrapAdminEmail = "root@example.com" },
		"bad trusted proxy":     func(c *Config) { c.TrustedProxies = []string{"10.0.0.0/99"} },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
