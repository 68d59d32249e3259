package store

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"strconv"

	"loan-club/internal/common/config"
	"loan-club/internal/common/errors"
	"loan-club/internal/models"

	"github.com/lib/pq"
)

// PostgresGateway keeps the Dataset as one JSONB row keyed by name, with an
// integer version column used for compare-and-swap.
type PostgresGateway struct {
	db    *sql.DB
	table string
	name  string
}

func NewPostgresGateway(db *sql.DB, table, name string) *PostgresGateway {
	return &PostgresGateway{db: db, table: pq.QuoteIdentifier(table), name: name}
}

func (g *PostgresGateway) Name() string { return config.BackendPostgres }

// EnsureTable creates the datasets table when it does not exist.
func (g *PostgresGateway) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name TEXT PRIMARY KEY,
		content JSONB NOT NULL,
		version BIGINT NOT NULL
	)`, g.table)
	if _, err := g.db.ExecContext(ctx, query); err != nil {
		return errors.NewTransportError("migrate", err)
	}
	return nil
}

func (g *PostgresGateway) Read(ctx context.Context) (*models.Dataset, string, error) {
	query := fmt.Sprintf(`SELECT content, version FROM %s WHERE name = $1`, g.table)

	var (
		content []byte
		version int64
	)
	err := g.db.QueryRowContext(ctx, query, g.name).Scan(&content, &version)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, "", errors.NewNotFoundError("Dataset", fmt.Sprintf("row %q", g.name))
	}
	if err != nil {
		return nil, "", errors.NewTransportError("read", err)
	}

	ds, err := decodeDataset(content)
	if err != nil {
		return nil, "", err
	}
	return ds, strconv.FormatInt(version, 10), nil
}

func (g *PostgresGateway) Write(ctx context.Context, ds *models.Dataset, token string) (*models.Dataset, string, error) {
	data, err := encodeDataset(ds)
	if err != nil {
		return nil, "", err
	}

	if token == "" {
		return g.insert(ctx, ds, data)
	}

	expected, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return nil, "", errors.NewVersionConflictError(fmt.Sprintf("malformed version token %q", token))
	}

	query := fmt.Sprintf(
		`UPDATE %s SET content = $1, version = version + 1 WHERE name = $2 AND version = $3 RETURNING version`,
		g.table,
	)
	var next int64
	err = g.db.QueryRowContext(ctx, query, string(data), g.name, expected).Scan(&next)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, "", errors.NewVersionConflictError(fmt.Sprintf("row %q is no longer at version %d", g.name, expected))
	}
	if err != nil {
		return nil, "", errors.NewTransportError("write", err)
	}
	return ds, strconv.FormatInt(next, 10), nil
}

func (g *PostgresGateway) insert(ctx context.Context, ds *models.Dataset, data []byte) (*models.Dataset, string, error) {
	query := fmt.Sprintf(
		`INSERT INTO %s (name, content, version) VALUES ($1, $2, 1) ON CONFLICT (name) DO NOTHING`,
		g.table,
	)
	res, err := g.db.ExecContext(ctx, query, g.name, string(data))
	if err != nil {
		return nil, "", errors.NewTransportError("write", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, "", errors.NewTransportError("write", err)
	}
	if n == 0 {
		return nil, "", errors.NewVersionConflictError(fmt.Sprintf("row %q was created concurrently", g.name))
	}
	return ds, "1", nil
}
