package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ErrSQLMarker is returned when a query does not start with a `--sql <uuid>` line.
var ErrSQLMarker = errors.New("sql marker missing or invalid")

// SQLExecutor is the query surface shared by the run ledger and the token store.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// pgxQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// SQLRunner executes marker-tagged statements and logs each one by marker.
type SQLRunner struct {
	db     pgxQuerier
	logger zerolog.Logger
}

// NewSQLRunner wraps a pool.
func NewSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{db: pool, logger: logger}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, body, err := SplitMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	tag, err := r.db.Exec(ctx, body, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("sql", marker).Msg("exec failed")
		return tag, err
	}
	r.logger.Debug().Str("sql", marker).Int64("rows", tag.RowsAffected()).Msg("exec")
	return tag, nil
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, body, err := SplitMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	r.logger.Debug().Str("sql", marker).Msg("query_row")
	return loggingRow{row: r.db.QueryRow(ctx, body, args...), logger: r.logger, marker: marker}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, body, err := SplitMarker(query)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, body, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("sql", marker).Msg("query failed")
		return nil, err
	}
	r.logger.Debug().Str("sql", marker).Msg("query")
	return rows, nil
}

type loggingRow struct {
	row    pgx.Row
	logger zerolog.Logger
	marker string
}

func (l loggingRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	if err != nil && !IsNoRows(err) {
		l.logger.Error().Err(err).Str("sql", l.marker).Msg("scan failed")
	}
	return err
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(dest ...any) error {
	return e.err
}

// SplitMarker separates the leading `--sql <uuid>` line from the statement body.
func SplitMarker(query string) (marker string, body string, err error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", "", ErrSQLMarker
	}
	first, rest, _ := strings.Cut(trimmed, "\n")
	first = strings.TrimSpace(first)
	if !markerRegexp.MatchString(first) {
		return "", "", ErrSQLMarker
	}
	return strings.TrimPrefix(first, "--sql "), strings.TrimSpace(rest), nil
}

var _ SQLExecutor = (*SQLRunner)(nil)
