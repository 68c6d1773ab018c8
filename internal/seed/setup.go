package seed

import (
	"context"
	"io"
	"strings"

	"go.uber.org/zap"

	"flowseed/internal/apperr"
	"flowseed/internal/config"
	"flowseed/internal/fixtures"
	"flowseed/internal/identity"
	"flowseed/internal/store"
)

// NewFromConfig opens the configured database and builds an engine with the configured
// fixture source and identity resolver. Close releases what it opened.
func NewFromConfig(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	dialect, err := store.ParseDialect(cfg.Database.Type)
	if err != nil {
		return nil, err
	}
	src, err := FixtureSource(cfg.Fixtures)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(ctx, dialect, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	closers := []io.Closer{db}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}

	if cfg.Database.MigrateOnOpen {
		if err := store.ApplyMigrations(ctx, db); err != nil {
			closeAll()
			return nil, err
		}
	}

	opts := []Option{WithLogger(logger), WithFixtures(src)}
	if cfg.Auth.Domain != "" {
		cache, err := IdentityCache(cfg.Identity)
		if err != nil {
			closeAll()
			return nil, err
		}
		if closer, ok := cache.(io.Closer); ok {
			closers = append(closers, closer)
		}
		resolver, err := identity.NewResolver(identity.Options{
			Domain:       cfg.Auth.Domain,
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			Scope:        cfg.Auth.Scope,
		}, cache)
		if err != nil {
			closeAll()
			return nil, err
		}
		opts = append(opts, WithIdentityResolver(resolver))
	}

	e, err := New(db, cfg, opts...)
	if err != nil {
		closeAll()
		return nil, err
	}
	e.closers = closers
	logger.Debug("seed engine ready",
		zap.String("dialect", string(dialect)),
		zap.String("fixtures", cfg.Fixtures.Source),
		zap.Strings("credential_types", e.registry.CanonicalNames()),
	)
	return e, nil
}

// FixtureSource builds the template fixture source named by the configuration.
func FixtureSource(cfg config.FixturesConfig) (fixtures.Source, error) {
	switch strings.ToLower(cfg.Source) {
	case "", "embedded":
		return fixtures.NewEmbedded(), nil
	case "s3", "minio":
		src, err := fixtures.NewObjectStore(fixtures.ObjectStoreOptions{
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	case "git":
		src, err := fixtures.NewGit(cfg.RepoPath, cfg.Branch, cfg.Prefix)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return nil, apperr.Validation("unknown fixture source", []string{cfg.Source})
}

// IdentityCache builds the identity cache named by the configuration.
func IdentityCache(cfg config.IdentityConfig) (identity.Cache, error) {
	switch strings.ToLower(cfg.Cache) {
	case "", "memory":
		return identity.NewMemoryCache(cfg.TTL), nil
	case "redis":
		cache, err := identity.NewRedisCache(cfg.RedisURL, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return cache, nil
	}
	return nil, apperr.Validation("unknown identity cache", []string{cfg.Cache})
}
