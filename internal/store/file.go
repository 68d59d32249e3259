package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stdErrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"loan-club/internal/common/config"
	"loan-club/internal/common/errors"
	"loan-club/internal/models"
)

// FileGateway keeps the Dataset in a local JSON file. The version token is the
// SHA-256 of the file bytes; writes compare it under a lock and replace the
// file with an atomic rename.
type FileGateway struct {
	path string
	mu   sync.Mutex
}

func NewFileGateway(path string) *FileGateway {
	return &FileGateway{path: path}
}

func (g *FileGateway) Name() string { return config.BackendFile }

func (g *FileGateway) Read(ctx context.Context) (*models.Dataset, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", errors.NewTransportError("read", err)
	}

	data, err := os.ReadFile(g.path)
	if err != nil {
		if stdErrors.Is(err, fs.ErrNotExist) {
			return nil, "", errors.NewNotFoundError("Dataset", g.path)
		}
		return nil, "", errors.NewTransportError("read", err)
	}

	ds, err := decodeDataset(data)
	if err != nil {
		return nil, "", err
	}
	return ds, hashBytes(data), nil
}

func (g *FileGateway) Write(ctx context.Context, ds *models.Dataset, token string) (*models.Dataset, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", errors.NewTransportError("write", err)
	}

	data, err := encodeDataset(ds)
	if err != nil {
		return nil, "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	current, err := g.currentToken()
	if err != nil {
		return nil, "", errors.NewTransportError("write", err)
	}
	if current != token {
		return nil, "", errors.NewVersionConflictError(fmt.Sprintf("file %s changed since it was read", g.path))
	}

	if err := writeFileAtomic(g.path, data); err != nil {
		return nil, "", errors.NewTransportError("write", err)
	}
	return ds, hashBytes(data), nil
}

func (g *FileGateway) currentToken() (string, error) {
	data, err := os.ReadFile(g.path)
	if err != nil {
		if stdErrors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return hashBytes(data), nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
