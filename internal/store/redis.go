package store

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strconv"

	"loan-club/internal/common/config"
	"loan-club/internal/common/errors"
	"loan-club/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	fieldContent = "content"
	fieldVersion = "version"
)

var errStaleVersion = stdErrors.New("stale version")

// RedisGateway keeps the Dataset in a hash {content, version}. Writes WATCH
// the key and commit in MULTI/EXEC only when the version still matches.
type RedisGateway struct {
	client redis.UniversalClient
	key    string
}

func NewRedisGateway(client redis.UniversalClient, key string) *RedisGateway {
	return &RedisGateway{client: client, key: key}
}

func (g *RedisGateway) Name() string { return config.BackendRedis }

func (g *RedisGateway) Read(ctx context.Context) (*models.Dataset, string, error) {
	fields, err := g.client.HGetAll(ctx, g.key).Result()
	if err != nil {
		return nil, "", errors.NewTransportError("read", err)
	}
	content, ok := fields[fieldContent]
	if !ok {
		return nil, "", errors.NewNotFoundError("Dataset", fmt.Sprintf("key %q", g.key))
	}

	ds, err := decodeDataset([]byte(content))
	if err != nil {
		return nil, "", err
	}
	return ds, fields[fieldVersion], nil
}

func (g *RedisGateway) Write(ctx context.Context, ds *models.Dataset, token string) (*models.Dataset, string, error) {
	data, err := encodeDataset(ds)
	if err != nil {
		return nil, "", err
	}

	var next string
	err = g.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, g.key, fieldVersion).Result()
		if stdErrors.Is(err, redis.Nil) {
			current = ""
		} else if err != nil {
			return err
		}
		if current != token {
			return errStaleVersion
		}

		var n int64
		if current != "" {
			if n, err = strconv.ParseInt(current, 10, 64); err != nil {
				return fmt.Errorf("malformed version %q: %w", current, err)
			}
		}
		next = strconv.FormatInt(n+1, 10)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, g.key, fieldContent, string(data), fieldVersion, next)
			return nil
		})
		return err
	}, g.key)

	switch {
	case err == nil:
		return ds, next, nil
	case stdErrors.Is(err, errStaleVersion), stdErrors.Is(err, redis.TxFailedErr):
		return nil, "", errors.NewVersionConflictError(fmt.Sprintf("key %q changed since it was read", g.key))
	default:
		return nil, "", errors.NewTransportError("write", err)
	}
}
