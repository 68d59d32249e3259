// Package store provides versioned read-modify-write access to the Dataset.
package store

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"loan-club/internal/common/errors"
	"loan-club/internal/common/logger"
	"loan-club/internal/common/metrics"
	"loan-club/internal/common/observability"
	"loan-club/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Gateway is one backend holding the Dataset as a single versioned object.
//
// Read returns the Dataset and an opaque version token. Write commits only if
// token still names the stored revision and returns the new token. An empty
// token means the object must not exist yet.
type Gateway interface {
	Name() string
	Read(ctx context.Context) (*models.Dataset, string, error)
	Write(ctx context.Context, ds *models.Dataset, token string) (*models.Dataset, string, error)
}

// MutateFunc changes the Dataset in place. Returning an error aborts the write.
type MutateFunc func(ds *models.Dataset) error

type Options struct {
	CreateIfMissing bool
	Timeout         time.Duration
}

type Store struct {
	gateway Gateway
	opts    Options
	logger  logger.Logger
	obs     *observability.Observability
	tracer  trace.Tracer
}

func New(gw Gateway, opts Options, log logger.Logger, obs *observability.Observability) *Store {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Store{
		gateway: gw,
		opts:    opts,
		logger:  log.WithFields(map[string]interface{}{"backend": gw.Name()}),
		obs:     obs,
		tracer:  otel.Tracer("loan-club/store"),
	}
}

func (s *Store) Backend() string {
	return s.gateway.Name()
}

// Load returns the current Dataset. A missing object reads as empty when the
// store is allowed to create it.
func (s *Store) Load(ctx context.Context) (*models.Dataset, error) {
	ds, _, err := s.read(ctx)
	return ds, err
}

// Apply runs read, mutate and write as one unit. A version conflict re-reads
// and re-applies mutate exactly once before surfacing.
func (s *Store) Apply(ctx context.Context, mutate MutateFunc) (*models.Dataset, error) {
	ctx, span := s.tracer.Start(ctx, "store.Apply", trace.WithAttributes(
		attribute.String("store.backend", s.gateway.Name()),
	))
	defer span.End()

	start := time.Now()
	retries := errors.GetRetryCount(errors.ErrCodeVersionConflict)

	var (
		ds       *models.Dataset
		err      error
		attempts int
	)
	for {
		attempts++
		ds, err = s.applyOnce(ctx, mutate)
		if err == nil || !stdErrors.Is(err, errors.ErrVersionConflict) || attempts > retries {
			break
		}
		s.logger.Warn("version conflict, retrying", map[string]interface{}{
			"attempt": attempts,
		})
	}

	span.SetAttributes(attribute.Int("store.attempts", attempts))
	status := "ok"
	if err != nil {
		status = strings.ToLower(string(errors.CodeOf(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if attempts > 1 {
		outcome := "recovered"
		if err != nil {
			outcome = "surfaced"
		}
		metrics.StoreConflicts.WithLabelValues(s.gateway.Name(), outcome).Inc()
	}
	s.obs.RecordApply(ctx, s.gateway.Name(), status, attempts, time.Since(start))

	if err != nil {
		return nil, err
	}
	return ds, nil
}

// Replace overwrites the whole Dataset against the current revision.
func (s *Store) Replace(ctx context.Context, next *models.Dataset) (*models.Dataset, error) {
	if next == nil {
		return nil, errors.NewValidationError("Missing content in body")
	}
	return s.Apply(ctx, func(ds *models.Dataset) error {
		*ds = *next.Clone().Normalize()
		return nil
	})
}

func (s *Store) applyOnce(ctx context.Context, mutate MutateFunc) (*models.Dataset, error) {
	ds, token, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	if err := mutate(ds); err != nil {
		return nil, err
	}
	ds.Normalize()
	return s.write(ctx, ds, token)
}

func (s *Store) read(ctx context.Context) (*models.Dataset, string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ds, token, err := s.gateway.Read(ctx)
	s.record("read", err)
	if err != nil {
		if s.opts.CreateIfMissing && stdErrors.Is(err, errors.ErrNotFound) {
			s.logger.Debug("dataset missing, starting empty", nil)
			return models.NewDataset(), "", nil
		}
		return nil, "", errors.FromBackend(err)
	}
	return ds.Normalize(), token, nil
}

func (s *Store) write(ctx context.Context, ds *models.Dataset, token string) (*models.Dataset, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, _, err := s.gateway.Write(ctx, ds, token)
	s.record("write", err)
	if err != nil {
		return nil, errors.FromBackend(err)
	}
	return out.Normalize(), nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.Timeout)
}

func (s *Store) record(op string, err error) {
	result := "ok"
	if err != nil {
		result = strings.ToLower(string(errors.CodeOf(err)))
	}
	metrics.StoreOperations.WithLabelValues(s.gateway.Name(), op, result).Inc()
}

// ==========================
// Shared helpers
// ==========================

type commitMessageKey struct{}

const defaultCommitMessage = "Update data.json via Loan Club"

// WithCommitMessage attaches a description of the change for backends that keep one.
func WithCommitMessage(ctx context.Context, msg string) context.Context {
	return context.WithValue(ctx, commitMessageKey{}, msg)
}

func commitMessage(ctx context.Context) string {
	if msg, ok := ctx.Value(commitMessageKey{}).(string); ok && msg != "" {
		return msg
	}
	return defaultCommitMessage
}

// encodeDataset renders the document the way it is stored: two-space indented JSON.
func encodeDataset(ds *models.Dataset) ([]byte, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return nil, errors.NewInternalError(fmt.Errorf("encode dataset: %w", err))
	}
	return data, nil
}

func decodeDataset(data []byte) (*models.Dataset, error) {
	var ds models.Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, errors.NewInternalError(fmt.Errorf("decode dataset: %w", err))
	}
	return ds.Normalize(), nil
}
