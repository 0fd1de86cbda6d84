package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/joeecarter/health-gateway/gateway"
)

const defaultGrantsKey = "health:read_grants"

// Redis keeps grants in a single hash, field per kind.
type Redis struct {
	client   redis.UniversalClient
	key      string
	decision gateway.AuthorizationStatus
}

// NewRedisClient parses url (redis://host:port/db) and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// NewRedis returns an authority storing grants under key (health:read_grants
// when empty). The client stays owned by the caller.
func NewRedis(client redis.UniversalClient, key string, decision gateway.AuthorizationStatus) *Redis {
	if key == "" {
		key = defaultGrantsKey
	}
	return &Redis{client: client, key: key, decision: decision}
}

func (r *Redis) RequestAuthorization(ctx context.Context, kinds []gateway.Kind) error {
	if len(kinds) == 0 {
		return nil
	}
	fields := make([]string, len(kinds))
	for i, k := range kinds {
		fields[i] = string(k)
	}

	var values *redis.SliceCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, f := range fields {
			pipe.HSetNX(ctx, r.key, f, r.decision.String())
		}
		values = pipe.HMGet(ctx, r.key, fields...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record decisions: %w", err)
	}

	var denied []gateway.Kind
	for i, v := range values.Val() {
		s, _ := v.(string)
		st, err := gateway.ParseAuthorizationStatus(s)
		if err != nil {
			return err
		}
		if st != gateway.Granted {
			denied = append(denied, kinds[i])
		}
	}
	return deniedError(denied)
}

func (r *Redis) AuthorizationStatus(ctx context.Context, kind gateway.Kind) (gateway.AuthorizationStatus, error) {
	s, err := r.client.HGet(ctx, r.key, string(kind)).Result()
	if errors.Is(err, redis.Nil) {
		return gateway.NotDetermined, nil
	}
	if err != nil {
		return gateway.NotDetermined, fmt.Errorf("failed to read decision: %w", err)
	}
	return gateway.ParseAuthorizationStatus(s)
}
