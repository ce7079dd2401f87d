package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"

	"github.com/odyssey-erp/odyssey-accounts/internal/auth"
	"github.com/odyssey-erp/odyssey-accounts/internal/observability"
	"github.com/odyssey-erp/odyssey-accounts/internal/platform/password"
	"github.com/odyssey-erp/odyssey-accounts/internal/platform/token"
	"github.com/odyssey-erp/odyssey-accounts/internal/users"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// detectTestMode reads the ODYSSEY_TEST_MODE flag once.
func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// Runtime owns every long-lived collaborator of the process. It is built
// once at start-up and torn down with Close.
type Runtime struct {
	Handler http.Handler
	Metrics *observability.Metrics
	store   *Store
}

// NewRuntime wires the store, hasher, token issuer, services and router.
func NewRuntime(ctx context.Context, cfg *Config, logger *slog.Logger) (*Runtime, error) {
	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}
	rt, err := newRuntime(cfg, logger, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	return rt, nil
}

func newRuntime(cfg *Config, logger *slog.Logger, store *Store) (*Runtime, error) {
	hasher, err := password.NewHasher(cfg.BcryptCost, cfg.HashWorkers)
	if err != nil {
		return nil, fmt.Errorf("app: password hasher: %w", err)
	}
	issuer, err := token.NewIssuer([]byte(cfg.TokenSecret), cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("app: token issuer: %w", err)
	}
	metrics := observability.NewMetrics()

	authService := auth.NewService(store.Repository, hasher, issuer, logger, metrics)
	authHandler := auth.NewHandler(logger, authService)

	usersService := users.NewService(store.Repository, hasher, logger)
	usersHandler := users.NewHandler(logger, usersService, authService.RequireBearer)

	handler := NewRouter(RouterParams{
		Logger:       logger,
		Config:       cfg,
		AuthHandler:  authHandler,
		UsersHandler: usersHandler,
		Metrics:      metrics,
		Ready:        func(r *http.Request) error { return store.Ping(r.Context()) },
	})

	logger.Info("runtime ready",
		slog.String("store", cfg.StoreDriver),
		slog.Int("bcrypt_cost", hasher.Cost()),
		slog.Duration("token_ttl", issuer.TTL()),
	)
	return &Runtime{Handler: handler, Metrics: metrics, store: store}, nil
}

// Close releases the store connection.
func (rt *Runtime) Close() {
	if rt != nil && rt.store != nil {
		rt.store.Close()
	}
}
