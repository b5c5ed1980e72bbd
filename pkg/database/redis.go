package database

import (
	"context"

	"fuzzforge/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type RedisParams struct {
	fx.In

	Config *config.AppConfig
	Logger *zap.Logger
}

// NewRedisClient connects to redis for session status keys. Without a
// configured REDIS_URL the integration is off and the client is nil.
func NewRedisClient(p RedisParams) (*redis.Client, error) {
	if p.Config.RedisURL == "" {
		p.Logger.Debug("no redis configured, session status keys disabled")
		return nil, nil
	}

	options, err := redis.ParseURL(p.Config.RedisURL)
	if err != nil {
		p.Logger.Error("Failed to parse redis URL", zap.Error(err))
		return nil, err
	}
	client := redis.NewClient(options)

	// Test the connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		p.Logger.Error("Failed to create Redis client", zap.Error(err))
		return nil, err
	}

	p.Logger.Debug("Redis client created successfully")
	return client, nil
}
