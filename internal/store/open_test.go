package store

import (
	"context"
	"path/filepath"
	"testing"

	"loan-club/internal/common/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_FileBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Backend = config.BackendFile
	cfg.Store.File.Path = filepath.Join(t.TempDir(), "data.json")

	b, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, "file", b.Gateway.Name())
	assert.NoError(t, b.Ping(context.Background()))
}

func TestOpen_GitHubBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Backend = config.BackendGitHub
	cfg.Store.Timeout = 1000
	cfg.Store.GitHub = config.GitHubConfig{APIURL: "http://127.0.0.1:1", Owner: "acme", Repo: "loans", Branch: "main", Path: "data.json", Token: "t"}

	b, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "github", b.Gateway.Name())
	assert.NoError(t, b.Close())
}

func TestOpen_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{}
	cfg.Store.Backend = config.BackendRedis
	cfg.Store.Redis.Key = "loanclub:dataset"
	cfg.Database.Redis.Address = mr.Addr()

	b, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, "redis", b.Gateway.Name())
	assert.NoError(t, b.Ping(context.Background()))

	_, _, err = b.Gateway.Write(context.Background(), sampleDataset(), "")
	require.NoError(t, err)
	assert.True(t, mr.Exists("loanclub:dataset"))
}

func TestOpen_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := &config.Config{}
	cfg.Store.Backend = config.BackendRedis
	cfg.Database.Redis.Address = addr

	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Backend = "s3"

	_, err := Open(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"s3"`)
}
