package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/RezaEskandarii/recurfire/types/config"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

func openPostgresDB(pg config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", pg.ConnectionUrl)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if pg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pg.MaxOpenConns)
	}
	if pg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pg.MaxIdleConns)
	}
	return db, nil
}

func openRedis(ctx context.Context, rc config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Address,
		Password: rc.Password,
		DB:       rc.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", rc.Address, err)
	}
	return client, nil
}
