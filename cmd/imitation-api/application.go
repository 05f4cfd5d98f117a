package main

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/imitation/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/cache"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/config"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/database"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/feed"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/flashcards"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/users"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const redisPingTimeout = 2 * time.Second

// application holds the wired services shared by every subcommand.
type application struct {
	config     config.AppConfig
	logger     *zap.Logger
	db         *gorm.DB
	redis      *redis.Client
	verifier   auth.Verifier
	users      *users.Service
	feed       *feed.Service
	flashcards *flashcards.Service
	metrics    *metrics.Registry
}

func newApplication() (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	app := &application{config: appConfig, logger: logger}
	if err := app.wire(); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *application) wire() error {
	db, err := database.Open(a.config, a.logger)
	if err != nil {
		return err
	}
	a.db = db

	verifier, err := newVerifier(a.config, a.logger)
	if err != nil {
		return err
	}
	a.verifier = verifier

	if a.config.MetricsEnabled {
		a.metrics = metrics.NewRegistry()
	}

	userService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}
	a.users = userService

	feedConfig := feed.ServiceConfig{
		Database: db,
		Authors:  userService,
		Clock:    time.Now,
		Logger:   a.logger,
	}
	if a.config.RedisAddress != "" {
		feedCache, err := a.newFeedCache()
		if err != nil {
			return err
		}
		feedConfig.Cache = feedCache
	}
	feedService, err := feed.NewService(feedConfig)
	if err != nil {
		return err
	}
	a.feed = feedService

	flashcardsConfig := flashcards.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   a.logger,
	}
	if a.metrics != nil {
		flashcardsConfig.Reviews = a.metrics
	}
	flashcardService, err := flashcards.NewService(flashcardsConfig)
	if err != nil {
		return err
	}
	a.flashcards = flashcardService
	return nil
}

func (a *application) newFeedCache() (*cache.FeedCache, error) {
	a.redis = redis.NewClient(&redis.Options{Addr: a.config.RedisAddress})

	pingCtx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := a.redis.Ping(pingCtx).Err(); err != nil {
		a.logger.Warn("redis unreachable, feed cache will miss until it recovers",
			zap.String("address", a.config.RedisAddress),
			zap.Error(err))
	}

	return cache.NewFeedCache(cache.FeedCacheConfig{
		Client: a.redis,
		TTL:    a.config.FeedCacheTTL,
		Logger: a.logger,
	})
}

// newVerifier prefers JWKS, then the shared secret, then unverified decoding.
func newVerifier(cfg config.AppConfig, logger *zap.Logger) (auth.Verifier, error) {
	switch {
	case cfg.JWKSURL != "":
		var issuers []string
		if cfg.JWTIssuer != "" {
			issuers = []string{cfg.JWTIssuer}
		}
		return auth.NewJWKSVerifier(auth.JWKSVerifierConfig{
			Audience:       cfg.JWTAudience,
			JWKSURL:        cfg.JWKSURL,
			AllowedIssuers: issuers,
			Logger:         logger,
		})
	case cfg.JWTSecret != "":
		return auth.NewSecretVerifier(auth.SecretVerifierConfig{
			SigningSecret: []byte(cfg.JWTSecret),
			Audience:      cfg.JWTAudience,
			Issuer:        cfg.JWTIssuer,
		})
	default:
		logger.Warn("token signatures are not verified; do not run this configuration in production")
		return auth.NewUnverifiedVerifier(), nil
	}
}

func (a *application) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = a.logger.Sync()
}
