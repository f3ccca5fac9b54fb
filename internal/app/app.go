package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-auth-service/internal/config"
	"go-auth-service/internal/event"
	"go-auth-service/internal/handler"
	"go-auth-service/internal/middleware"
	"go-auth-service/internal/router"
	"go-auth-service/internal/security"
	"go-auth-service/internal/service"
	"go-auth-service/internal/token"
)

// Version is overridden at build time with -ldflags "-X go-auth-service/internal/app.Version=...".
var Version = "dev"

const startupTimeout = 30 * time.Second

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	backend, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	bus := event.NewBus()
	authService, auditService, err := buildServices(cfg, backend, bus)
	if err != nil {
		backend.close()
		return nil, err
	}

	if cfg.BootstrapAdminEmail != "" {
		if err := authService.EnsureBootstrapAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
			backend.close()
			return nil, fmt.Errorf("failed to create bootstrap admin: %w", err)
		}
	}

	events, unsubscribe := bus.Subscribe()
	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	go auditService.Consume(backgroundCtx, events)
	go authService.StartCleanupTicker(backgroundCtx, cfg.AuthTokenCleanupInterval)

	authMiddleware := middleware.NewAuthMiddleware(authService)
	appRouter := router.New(cfg, authMiddleware, router.Handlers{
		Auth: handler.NewAuthHandler(authService, handler.CookieConfig{
			Secure:   cfg.CookieSecure,
			Domain:   cfg.CookieDomain,
			SameSite: handler.ParseSameSite(cfg.CookieSameSite),
		}),
		User:   handler.NewUserHandler(authService),
		Audit:  handler.NewAuditHandler(auditService),
		Health: handler.NewHealthHandler(Version, backend.checks),
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server: server,
		cleanupFuncs: []func(){
			func() {
				backgroundCancel()
			},
			func() {
				unsubscribe()
			},
			func() {
				backend.close()
			},
		},
	}, nil
}

func buildServices(cfg *config.Config, backend *stores, bus event.Bus) (*service.AuthService, *service.AuditService, error) {
	hasher, err := security.NewPasswordHasher(security.HasherConfig{
		Algorithm:  cfg.PasswordHasher,
		BcryptCost: cfg.BcryptCost,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize password hasher: %w", err)
	}

	codec, err := token.NewCodec(token.CodecConfig{
		Secret:    cfg.JWTSecret,
		Algorithm: cfg.JWTAlgorithm,
		Issuer:    cfg.JWTIssuer,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}

	authService := service.NewAuthService(backend.users, backend.tokens, hasher, codec, bus, service.AuthConfig{
		AccessTTL:        cfg.JWTAccessTTL,
		RefreshTTL:       cfg.JWTRefreshTTL,
		RevokeAllOnReuse: cfg.AuthRevokeAllOnReuse,
	})
	slog.Info("auth service ready",
		"password_hasher", hasher.Algorithm(),
		"jwt_algorithm", codec.Algorithm(),
		"revoke_all_on_reuse", cfg.AuthRevokeAllOnReuse,
	)

	return authService, service.NewAuditService(backend.audit), nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr, "version", Version)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}
