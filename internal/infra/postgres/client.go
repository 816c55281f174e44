// Package postgres is the evidence store backed by PostgreSQL. Every call
// goes through a resilience.Guard (bulkhead, circuit breaker, retry) and is
// traced; failures are wrapped in domain error types.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/resilience"
	"github.com/boddenberg/customer-identity-bfa/internal/port"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("postgres")

// DBTX is the subset of *pgxpool.Pool the store uses.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// NewPool creates a connection pool and verifies connectivity.
func NewPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// Store implements port.EvidenceStore.
type Store struct {
	db     DBTX
	guard  *resilience.Guard
	logger *zap.Logger
}

// NewStore creates a PostgreSQL evidence store.
func NewStore(db DBTX, guard *resilience.Guard, logger *zap.Logger) *Store {
	return &Store{db: db, guard: guard, logger: logger}
}

// Ping checks connectivity without going through the breaker.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// run executes fn under the guard inside a span and maps its error.
func (s *Store) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "postgres."+op)
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", op))

	err := s.guard.Do(ctx, fn)
	if err == nil {
		return nil
	}

	var notFound *domain.ErrNotFound
	switch {
	case errors.As(err, &notFound):
		return err
	case resilience.IsCircuitOpen(err):
		err = &domain.ErrCircuitOpen{Service: "postgres"}
	case errors.Is(err, context.DeadlineExceeded):
		err = &domain.ErrTimeout{Operation: "postgres." + op}
	default:
		err = &domain.ErrExternalService{Service: "postgres", Err: err}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.Warn("postgres: query failed",
		zap.String("op", op),
		zap.Error(err),
	)
	return err
}

// collect scans every row with scan and closes rows.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

var _ port.EvidenceStore = (*Store)(nil)
