package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"go-auth-service/internal/config"
	"go-auth-service/internal/database"
	"go-auth-service/internal/repository"
	"go-auth-service/internal/repository/memory"
	"go-auth-service/internal/repository/redisstore"
	"go-auth-service/internal/repository/sqlite"
	"go-auth-service/internal/service"
)

// stores is the persistence selected by STORAGE_DRIVER and REFRESH_STORE.
type stores struct {
	users  service.UserStore
	tokens service.RefreshTokenStore
	audit  service.AuditStore
	checks map[string]service.Pinger
	closer []func()
}

func (s *stores) close() {
	for i := len(s.closer) - 1; i >= 0; i-- {
		s.closer[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{checks: map[string]service.Pinger{}}

	var err error
	switch cfg.StorageDriver {
	case config.StorageDriverPostgres:
		err = s.openPostgres(ctx, cfg)
	case config.StorageDriverSQLite:
		err = s.openSQLite(ctx, cfg)
	case config.StorageDriverMemory:
		s.openMemory()
	default:
		err = fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
	if err != nil {
		s.close()
		return nil, err
	}

	if cfg.RefreshStore == config.RefreshStoreRedis {
		slog.Info("connecting to Redis for refresh tokens")
		client, err := redisstore.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store := redisstore.NewStore(client, cfg.RedisPrefix, nil)
		s.tokens = store
		s.checks["redis"] = store
		s.closer = append(s.closer, func() { closeRedis(client) })
	}

	slog.Info("storage ready", "driver", cfg.StorageDriver, "refresh_store", cfg.RefreshStore)
	return s, nil
}

func (s *stores) openPostgres(ctx context.Context, cfg *config.Config) error {
	slog.Info("applying PostgreSQL migrations")
	if err := database.MigratePostgres(ctx, cfg.DatabaseURL); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	s.closer = append(s.closer, db.Close)

	s.users = repository.NewUserRepository(db.Pool)
	s.tokens = repository.NewTokenRepository(db.Pool)
	s.audit = repository.NewAuditRepository(db.Pool)
	s.checks["database"] = db
	return nil
}

func (s *stores) openSQLite(ctx context.Context, cfg *config.Config) error {
	slog.Info("opening SQLite database", "path", cfg.SQLitePath)
	db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	s.closer = append(s.closer, func() { closeSQL(db) })

	if err := database.MigrateSQLite(ctx, db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	users := sqlite.NewUserRepository(db)
	s.users = users
	s.tokens = sqlite.NewTokenRepository(db, nil)
	s.audit = sqlite.NewAuditRepository(db)
	s.checks["database"] = users
	return nil
}

func (s *stores) openMemory() {
	slog.Warn("using in-memory storage; all data is lost on restart")
	users := memory.NewUserStore()
	s.users = users
	s.tokens = memory.NewRefreshTokenStore(nil)
	s.audit = memory.NewAuditStore()
	s.checks["memory"] = users
}

func closeSQL(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Error("failed to close sqlite database", "error", err)
	}
}

func closeRedis(client *redis.Client) {
	if err := client.Close(); err != nil {
		slog.Error("failed to close redis client", "error", err)
	}
}
