package config

import (
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"
	StorageDriverMemory   = "memory"

	RefreshStoreSQL   = "sql"
	RefreshStoreRedis = "redis"

	minJWTSecretLength = 32
)

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration

	LogLevel  string
	LogFormat string

	StorageDriver string
	DatabaseURL   string
	DBMaxConns    int32
	DBMinConns    int32
	SQLitePath    string

	RefreshStore string
	RedisURL     string
	RedisPrefix  string

	JWTSecret     string
	JWTAlgorithm  string
	JWTAccessTTL  time.Duration
	JWTRefreshTTL time.Duration
	JWTIssuer     string

	PasswordHasher string
	BcryptCost     int

	AuthRevokeAllOnReuse     bool
	AuthTokenCleanupInterval time.Duration
	CookieSecure             bool
	CookieDomain             string
	CookieSameSite           string
	CORSOrigins              []string
	TrustedProxies           []string
	RateLimitRPM             int
	AuthRateLimitRPM         int
	BootstrapAdminEmail      string
	BootstrapAdminPassword   string
}

// Load reads .env, then environment variables and an optional config file named
// by CONFIG_FILE. Environment variables win over the file. Nested file keys map
// to env names by joining with underscores, so [jwt] secret is JWT_SECRET.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		ServerPort:              strings.TrimSpace(v.GetString("server.port")),
		ServerReadHeaderTimeout: v.GetDuration("server.read_header_timeout"),
		ServerWriteTimeout:      v.GetDuration("server.write_timeout"),
		ServerIdleTimeout:       v.GetDuration("server.idle_timeout"),
		RequestTimeout:          v.GetDuration("request.timeout"),

		LogLevel:  strings.ToLower(strings.TrimSpace(v.GetString("log.level"))),
		LogFormat: strings.ToLower(strings.TrimSpace(v.GetString("log.format"))),

		StorageDriver: strings.ToLower(strings.TrimSpace(v.GetString("storage.driver"))),
		DatabaseURL:   strings.TrimSpace(v.GetString("database.url")),
		DBMaxConns:    v.GetInt32("db.max_conns"),
		DBMinConns:    v.GetInt32("db.min_conns"),
		SQLitePath:    strings.TrimSpace(v.GetString("sqlite.path")),

		RefreshStore: strings.ToLower(strings.TrimSpace(v.GetString("refresh.store"))),
		RedisURL:     strings.TrimSpace(v.GetString("redis.url")),
		RedisPrefix:  strings.TrimSpace(v.GetString("redis.prefix")),

		JWTSecret:     strings.TrimSpace(v.GetString("jwt.secret")),
		JWTAlgorithm:  strings.ToUpper(strings.TrimSpace(v.GetString("jwt.algorithm"))),
		JWTAccessTTL:  v.GetDuration("jwt.access_ttl"),
		JWTRefreshTTL: v.GetDuration("jwt.refresh_ttl"),
		JWTIssuer:     strings.TrimSpace(v.GetString("jwt.issuer")),

		PasswordHasher: strings.ToLower(strings.TrimSpace(v.GetString("password.hasher"))),
		BcryptCost:     v.GetInt("bcrypt.cost"),

		AuthRevokeAllOnReuse:     v.GetBool("auth.revoke_all_on_reuse"),
		AuthTokenCleanupInterval: v.GetDuration("auth.token_cleanup_interval"),
		CookieSecure:             v.GetBool("cookie.secure"),
		CookieDomain:             strings.TrimSpace(v.GetString("cookie.domain")),
		CookieSameSite:           strings.ToLower(strings.TrimSpace(v.GetString("cookie.same_site"))),
		CORSOrigins:              stringList(v.GetStringSlice("cors.origins")),
		TrustedProxies:           stringList(v.GetStringSlice("server.trusted_proxies")),
		RateLimitRPM:             v.GetInt("rate_limit.rpm"),
		AuthRateLimitRPM:         v.GetInt("auth.rate_limit_rpm"),
		BootstrapAdminEmail:      strings.TrimSpace(v.GetString("bootstrap.admin_email")),
		BootstrapAdminPassword:   v.GetString("bootstrap.admin_password"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_header_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("request.timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "pretty")
	v.SetDefault("storage.driver", StorageDriverPostgres)
	v.SetDefault("database.url", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("sqlite.path", "./data/auth.db")
	v.SetDefault("refresh.store", RefreshStoreSQL)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.prefix", "auth")
	// jwt.secret, jwt.algorithm, jwt.access_ttl and jwt.refresh_ttl have no
	// defaults: the process refuses to start without them.
	v.SetDefault("jwt.issuer", "go-auth-service")
	v.SetDefault("password.hasher", "bcrypt")
	v.SetDefault("bcrypt.cost", 12)
	v.SetDefault("auth.revoke_all_on_reuse", false)
	v.SetDefault("auth.token_cleanup_interval", time.Hour)
	v.SetDefault("cookie.secure", true)
	v.SetDefault("cookie.domain", "")
	v.SetDefault("cookie.same_site", "lax")
	v.SetDefault("cors.origins", []string{})
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("rate_limit.rpm", 100)
	v.SetDefault("auth.rate_limit_rpm", 10)
	v.SetDefault("bootstrap.admin_email", "")
	v.SetDefault("bootstrap.admin_password", "")
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength)
	}

	switch c.JWTAlgorithm {
	case "":
		return fmt.Errorf("JWT_ALGORITHM is required")
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("JWT_ALGORITHM %q is not supported", c.JWTAlgorithm)
	}

	if c.JWTAccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL is required and must be a positive duration")
	}
	if c.JWTRefreshTTL <= 0 {
		return fmt.Errorf("JWT_REFRESH_TTL is required and must be a positive duration")
	}
	if c.JWTRefreshTTL <= c.JWTAccessTTL {
		return fmt.Errorf("JWT_REFRESH_TTL must be longer than JWT_ACCESS_TTL")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	switch c.StorageDriver {
	case StorageDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres storage driver")
		}
	case StorageDriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH cannot be empty")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER %q is not supported", c.StorageDriver)
	}

	switch c.RefreshStore {
	case RefreshStoreSQL:
	case RefreshStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis refresh store")
		}
	default:
		return fmt.Errorf("REFRESH_STORE %q is not supported", c.RefreshStore)
	}

	switch c.PasswordHasher {
	case "bcrypt", "argon2id":
	default:
		return fmt.Errorf("PASSWORD_HASHER %q is not supported", c.PasswordHasher)
	}

	switch c.CookieSameSite {
	case "lax", "strict", "none":
	default:
		return fmt.Errorf("COOKIE_SAME_SITE %q is not supported", c.CookieSameSite)
	}
	if c.CookieSameSite == "none" && !c.CookieSecure {
		return fmt.Errorf("COOKIE_SAME_SITE=none requires COOKIE_SECURE=true")
	}

	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}

	if (c.BootstrapAdminEmail == "") != (c.BootstrapAdminPassword == "") {
		return fmt.Errorf("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}

	return nil
}

// TrustedProxyPrefixes parses SERVER_TRUSTED_PROXIES. Entries may be a single
// address or a CIDR range.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, entry := range c.TrustedProxies {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("SERVER_TRUSTED_PROXIES entry %q is invalid: %w", entry, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("SERVER_TRUSTED_PROXIES entry %q is invalid: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return prefixes, nil
}

// stringList accepts both a list from a config file and a comma separated
// environment value.
func stringList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			out = append(out, trimmed)
		}
	}

	return out
}
