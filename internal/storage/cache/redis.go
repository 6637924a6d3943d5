// Package cache обертка над Redis: кэш объявлений, дедупликация
// уведомлений и канал событий заполненности.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rivve/boarding-house/internal/config"
)

// OccupancyChannel канал событий изменения заполненности объявлений.
const OccupancyChannel = "listings.occupancy"

type Cache struct {
	Db *redis.Client
}

func InitServer(ctx context.Context, cfg config.RedisConnection) (*Cache, error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Cache{Db: db}, nil
}

func (c *Cache) Close() error {
	return c.Db.Close()
}

func (c *Cache) Get(key string, result any) (bool, error) {
	const op = "cache.Get"
	val, err := c.Db.Get(context.Background(), key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	err = json.Unmarshal([]byte(val), result)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

func (c *Cache) Set(key string, value any, expiration time.Duration) error {
	const op = "cache.Set"
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return c.Db.Set(context.Background(), key, jsonData, expiration).Err()
}

func (c *Cache) Invalidate(key string) error {
	return c.Db.Del(context.Background(), key).Err()
}

// ClaimOnce атомарно занимает ключ на ttl.
// Возвращает true только для первого вызова в пределах окна.
func (c *Cache) ClaimOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	const op = "cache.ClaimOnce"
	ok, err := c.Db.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}

// Publish отправляет сообщение в канал в формате JSON.
func (c *Cache) Publish(ctx context.Context, channel string, msg any) error {
	const op = "cache.Publish"
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.Db.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Subscribe читает сообщения канала и передает их в handler до отмены ctx.
func (c *Cache) Subscribe(ctx context.Context, channel string, handler func([]byte)) error {
	const op = "cache.Subscribe"
	sub := c.Db.Subscribe(ctx, channel)
	defer func() { _ = sub.Close() }()

	// дожидаемся подтверждения подписки, чтобы не потерять первые сообщения
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handler([]byte(msg.Payload))
		}
	}
}
