package app

import (
	"context"
	"database/sql"

	"github.com/zealess/doj-backend/internal/config"
	"github.com/zealess/doj-backend/internal/db"
	"github.com/zealess/doj-backend/internal/logger"
	"github.com/zealess/doj-backend/internal/redis"

	_ "github.com/lib/pq"
)

type Infra struct {
	DB *db.DB
	// Redis is optional; without it the link flow runs without the
	// single-use state guard.
	Redis *redis.Client
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	sqlDB, err := sql.Open("postgres", cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := db.RunKeystoneMigration(ctx, sqlDB); err != nil {
		return nil, err
	}

	logger.Info("database ready", nil)

	infra := &Infra{
		DB: &db.DB{DB: sqlDB},
	}

	if cfg.RedisAddr != "" {
		redisClient, err := redis.New(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		infra.Redis = redisClient
		logger.Info("redis ready", nil)
	} else {
		logger.Warn("redis not configured, state replay guard disabled", nil)
	}

	return infra, nil
}
