package database

import (
	"context"
	"testing"

	"loan-club/internal/common/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisClient_PingAndClose(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)

	assert.NoError(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}

func TestRedisClient_PingFailsWhenServerGone(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	c, err := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer c.Close()

	mr.Close()
	assert.Error(t, c.Ping(context.Background()))
}

func TestNewRedis_RequiresAddress(t *testing.T) {
	_, err := NewRedis(config.RedisConfig{})
	assert.Error(t, err)
}

func TestNewPostgres_OpensLazily(t *testing.T) {
	c, err := NewPostgres(config.PostgresConfig{
		Host: "127.0.0.1", Port: 1, User: "u", Database: "d", SSLMode: "disable",
		MaxConnections: 2, MaxIdle: 1,
	})
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}
