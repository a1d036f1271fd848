package app

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/llm-access-gate/config"
	"github.com/upb/llm-access-gate/internal/secrets"
	"github.com/upb/llm-access-gate/middleware"
	"github.com/upb/llm-access-gate/models"
	"github.com/upb/llm-access-gate/repositories"
	"github.com/upb/llm-access-gate/repositories/memory"
	"github.com/upb/llm-access-gate/repositories/postgres"
	"github.com/upb/llm-access-gate/services/resolver"
	"github.com/upb/llm-access-gate/services/tenantpolicy"
	"github.com/upb/llm-access-gate/services/usersecret"
	"go.uber.org/zap"
)

const (
	gateCacheSize = 1024
	gateCacheTTL  = 30 * time.Second
)

// Dependencies holds all application dependencies. This is the central
// wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Storage. DB and RepoFactory are nil on the memory backend; the
	// backend is chosen once here and never switched at runtime.
	DB          *postgres.DB
	RepoFactory *postgres.RepositoryFactory
	Repos       *repositories.Repositories

	// Crypto
	Cipher *secrets.Cipher

	// Services
	TenantPolicies *tenantpolicy.Service
	UserSecrets    *usersecret.Service
	Resolver       *resolver.Service
	SystemPolicy   resolver.SystemPolicyProvider

	// Auth
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initStorage(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := deps.initCrypto(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize secret cipher: %w", err)
	}

	if err := deps.initServices(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.AuthMiddleware = middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, logger)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initStorage selects and initializes the persistence backend
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) error {
	switch cfg.Storage.Backend {
	case config.StorageBackendPostgres:
		factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create repository factory: %w", err)
		}
		d.RepoFactory = factory
		d.DB = factory.GetDB()

		if err := d.DB.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		if err := d.DB.InitSchema(ctx); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}

		d.Repos = factory.NewRepositories()
		d.Logger.Info("database connection established",
			zap.String("connection", cfg.Database.LogString()))

	case config.StorageBackendMemory:
		d.Repos = memory.NewRepositories()
		d.Logger.Info("using in-memory storage backend")

	default:
		return fmt.Errorf("unknown storage backend: %q", cfg.Storage.Backend)
	}

	return nil
}

// initCrypto initializes the secret cipher from the configured passphrase
func (d *Dependencies) initCrypto(cfg *config.Config) error {
	cipher, err := secrets.NewCipher(cfg.Secrets.Passphrase, cfg.IsProduction(), d.Logger)
	if err != nil {
		return err
	}
	d.Cipher = cipher
	return nil
}

// initServices wires the policy, secret, and resolver services
func (d *Dependencies) initServices(cfg *config.Config) error {
	d.TenantPolicies = tenantpolicy.NewService(
		d.Repos.TenantPolicies,
		d.Repos.TenantSecrets,
		d.Cipher,
		d.Logger,
	)
	d.UserSecrets = usersecret.NewService(d.Repos.UserSecrets, d.Cipher, d.Logger)

	if cfg.SystemPolicy.Path != "" {
		provider, err := resolver.NewFilePolicyProvider(cfg.SystemPolicy.Path, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to load system policy: %w", err)
		}
		d.SystemPolicy = provider
		d.Logger.Info("system policy loaded",
			zap.String("path", cfg.SystemPolicy.Path))
	} else {
		// No document configured: the platform baseline is unrestricted
		// and tenant overrides do all the narrowing.
		d.SystemPolicy = resolver.NewStaticPolicyProvider(models.Policy{})
		d.Logger.Warn("no system policy configured, baseline is unrestricted")
	}

	cache := resolver.NewGateCache(gateCacheSize, gateCacheTTL)
	d.Resolver = resolver.NewService(d.SystemPolicy, d.TenantPolicies, d.UserSecrets, cache, d.Logger)

	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
