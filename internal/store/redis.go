// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	xglog "github.com/ManuGH/pushd/internal/log"
	"github.com/ManuGH/pushd/internal/protocol"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisPrefix = "pushd:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
}

// Redis is a Store backed by a Redis server.
//
// Layout per user: a JSON user record, a hash of channel keys, and per month
// a hash of message bodies with a sorted set indexing them by timestamp.
type Redis struct {
	client *redis.Client
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger := xglog.WithComponent("store")
	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to Redis store")
	return &Redis{client: client}, nil
}

func userKey(uaid uuid.UUID) string     { return redisPrefix + "user:" + uaid.String() }
func channelsKey(uaid uuid.UUID) string { return redisPrefix + "chans:" + uaid.String() }
func monthsKey(uaid uuid.UUID) string   { return redisPrefix + "months:" + uaid.String() }
func bodiesKey(uaid uuid.UUID, month string) string {
	return redisPrefix + "msgs:" + uaid.String() + ":" + month
}
func indexKey(uaid uuid.UUID, month string) string {
	return redisPrefix + "idx:" + uaid.String() + ":" + month
}

func (r *Redis) GetUser(ctx context.Context, uaid uuid.UUID) (User, error) {
	val, err := r.client.Get(ctx, userKey(uaid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	var u User
	if err := json.Unmarshal(val, &u); err != nil {
		return User{}, fmt.Errorf("decode user %s: %w", uaid, err)
	}
	return u, nil
}

func (r *Redis) PutUser(ctx context.Context, u User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, userKey(u.UAID), data, 0).Err()
}

func (r *Redis) DropUser(ctx context.Context, uaid uuid.UUID) error {
	months, err := r.client.SMembers(ctx, monthsKey(uaid)).Result()
	if err != nil {
		return err
	}
	keys := []string{userKey(uaid), channelsKey(uaid), monthsKey(uaid)}
	for _, m := range months {
		keys = append(keys, bodiesKey(uaid, m), indexKey(uaid, m))
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *Redis) AddChannel(ctx context.Context, uaid, channelID uuid.UUID, key string) error {
	return r.client.HSet(ctx, channelsKey(uaid), channelID.String(), key).Err()
}

func (r *Redis) RemoveChannel(ctx context.Context, uaid, channelID uuid.UUID) (bool, error) {
	n, err := r.client.HDel(ctx, channelsKey(uaid), channelID.String()).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) ChannelKey(ctx context.Context, uaid, channelID uuid.UUID) (string, error) {
	key, err := r.client.HGet(ctx, channelsKey(uaid), channelID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return key, err
}

func (r *Redis) Channels(ctx context.Context, uaid uuid.UUID) ([]uuid.UUID, error) {
	ids, err := r.client.HKeys(ctx, channelsKey(uaid)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("channel id %q: %w", id, err)
		}
		out = append(out, parsed)
	}
	return out, nil
}

func (r *Redis) SaveMessage(ctx context.Context, uaid uuid.UUID, month string, n protocol.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	id := messageID(n)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, monthsKey(uaid), month)
		pipe.HSet(ctx, bodiesKey(uaid, month), id, data)
		pipe.ZAdd(ctx, indexKey(uaid, month), redis.Z{Score: float64(n.Timestamp), Member: id})
		return nil
	})
	return err
}

func (r *Redis) DeleteMessage(ctx context.Context, uaid uuid.UUID, month string, channelID uuid.UUID, version string) error {
	id := messageKey(channelID, version)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, bodiesKey(uaid, month), id)
		pipe.ZRem(ctx, indexKey(uaid, month), id)
		return nil
	})
	return err
}

func (r *Redis) FetchMessages(ctx context.Context, uaid uuid.UUID, month string, includeTopic bool, since *int64, limit int) ([]protocol.Notification, error) {
	lo := "-inf"
	if since != nil {
		lo = strconv.FormatInt(*since, 10)
	}
	ids, err := r.client.ZRangeByScore(ctx, indexKey(uaid, month), &redis.ZRangeBy{Min: lo, Max: "+inf"}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	bodies, err := r.client.HMGet(ctx, bodiesKey(uaid, month), ids...).Result()
	if err != nil {
		return nil, err
	}
	msgs := make([]protocol.Notification, 0, len(bodies))
	for i, body := range bodies {
		s, ok := body.(string)
		if !ok {
			continue
		}
		var n protocol.Notification
		if err := json.Unmarshal([]byte(s), &n); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", ids[i], err)
		}
		msgs = append(msgs, n)
	}
	return selectMessages(msgs, includeTopic, since, limit), nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
