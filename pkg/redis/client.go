// Package redis mirrors the latest device-reported alarm state into a Redis
// hash so local consumers (dashboards, other services on the box) can read
// it without an MQTT subscription. It caches state only; commands are never
// persisted here.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis connection used for state mirroring.
type Client struct {
	client *redis.Client
	ctx    context.Context
}

// New connects to Redis and verifies the connection with a ping.
func New(addr, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Client{client: client, ctx: ctx}, nil
}

// WriteAndPublishString writes one field of a state hash and announces the
// change on a channel named after the key.
func (c *Client) WriteAndPublishString(key, field, value string) error {
	pipe := c.client.Pipeline()
	pipe.HSet(c.ctx, key, field, value)
	pipe.Publish(c.ctx, key, fmt.Sprintf("%s:%s", field, value))
	_, err := pipe.Exec(c.ctx)
	return err
}

// WriteAndPublishInt is WriteAndPublishString for integer fields.
func (c *Client) WriteAndPublishInt(key, field string, value int) error {
	pipe := c.client.Pipeline()
	pipe.HSet(c.ctx, key, field, value)
	pipe.Publish(c.ctx, key, fmt.Sprintf("%s:%d", field, value))
	_, err := pipe.Exec(c.ctx)
	return err
}

// GetString reads one field of a state hash.
func (c *Client) GetString(key, field string) (string, error) {
	val, err := c.client.HGet(c.ctx, key, field).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("key %s field %s not found", key, field)
	}
	return val, err
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
