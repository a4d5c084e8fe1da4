package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"AlertEnricher/internal/domain"
	"AlertEnricher/internal/ports"
)

const summaryTable = "alerts_summary"

// alert_id holds the alert key as text; alert_seq its integer part.
// The ALTERs bring tables created with a BIGINT alert_id up to date.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS alerts_summary (
    alert_id      TEXT PRIMARY KEY,
    alert_seq     BIGINT NOT NULL DEFAULT 0,
    opinion       TEXT NOT NULL,
    mitigation    TEXT NOT NULL,
    relevant_info TEXT NOT NULL,
    machine       TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`ALTER TABLE alerts_summary ALTER COLUMN alert_id TYPE TEXT`,
	`ALTER TABLE alerts_summary ADD COLUMN IF NOT EXISTS alert_seq BIGINT NOT NULL DEFAULT 0`,
}

var summaryColumns = []string{"alert_id", "alert_seq", "opinion", "mitigation", "relevant_info", "machine"}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository persists alert summaries into Postgres.
type PostgresRepository struct {
	db *sql.DB

	schemaMu    sync.Mutex
	schemaReady bool
}

var _ ports.SummaryStore = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Connect opens the pool and waits for the server, up to maxRetries pings
// spaced by delay. If the server never answers the pool is still returned:
// database/sql reconnects on use, so the service keeps running and storage
// calls fail per alert until Postgres is back.
func Connect(ctx context.Context, dsn string, maxRetries int, delay time.Duration, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		pingErr := db.PingContext(ctx)
		if pingErr == nil {
			log.Info("connected to postgres", "attempt", attempt)
			return db, nil
		}
		log.Warn("postgres not ready", "attempt", attempt, "max", maxRetries, "error", pingErr)
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return db, nil
		case <-time.After(delay):
		}
	}

	log.Error("postgres unreachable, continuing without a verified connection", "retries", maxRetries)
	return db, nil
}

// EnsureSchema creates or upgrades the summary table. A failure is retried
// on the next storage call.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	r.schemaMu.Lock()
	defer r.schemaMu.Unlock()

	if r.schemaReady {
		return nil
	}
	for _, stmt := range schemaStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return &domain.StorageError{Op: "create schema", Err: err}
		}
	}
	r.schemaReady = true
	return nil
}

// Exists reports whether a summary for key is already stored.
func (r *PostgresRepository) Exists(ctx context.Context, key string) (bool, error) {
	if err := r.EnsureSchema(ctx); err != nil {
		return false, err
	}

	query, args, err := existsQuery(key)
	if err != nil {
		return false, &domain.StorageError{AlertID: key, Op: "exists", Err: err}
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &domain.StorageError{AlertID: key, Op: "exists", Err: err}
	}
	return true, nil
}

// UpsertIfAbsent inserts the summary unless its alert_id is already present.
// An existing row is never modified.
func (r *PostgresRepository) UpsertIfAbsent(ctx context.Context, summary domain.Summary) (domain.UpsertResult, error) {
	if err := r.EnsureSchema(ctx); err != nil {
		return 0, err
	}

	query, args, err := insertQuery(summary)
	if err != nil {
		return 0, &domain.StorageError{AlertID: summary.AlertID, Op: "insert", Err: err}
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &domain.StorageError{AlertID: summary.AlertID, Op: "insert", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &domain.StorageError{AlertID: summary.AlertID, Op: "insert", Err: fmt.Errorf("rows affected: %w", err)}
	}
	if n == 0 {
		return domain.AlreadyExists, nil
	}
	return domain.Inserted, nil
}

// List returns every summary, newest alert first.
func (r *PostgresRepository) List(ctx context.Context) ([]domain.Summary, error) {
	if err := r.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	query, args, err := listQuery()
	if err != nil {
		return nil, &domain.StorageError{Op: "list", Err: err}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.StorageError{Op: "list", Err: err}
	}

	result := []domain.Summary{}
	for rows.Next() {
		var s domain.Summary
		if err := rows.Scan(&s.AlertID, &s.Seq, &s.Opinion, &s.Mitigation, &s.RelevantInfo, &s.Machine); err != nil {
			_ = rows.Close()
			return nil, &domain.StorageError{Op: "list", Err: fmt.Errorf("scan row: %w", err)}
		}
		result = append(result, s)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, &domain.StorageError{Op: "list", Err: fmt.Errorf("rows iteration: %w", rowsErr)}
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, &domain.StorageError{Op: "list", Err: fmt.Errorf("close rows: %w", closeErr)}
	}

	return result, nil
}

func existsQuery(key string) (string, []interface{}, error) {
	return psql.Select("1").
		From(summaryTable).
		Where(sq.Eq{"alert_id": key}).
		Limit(1).
		ToSql()
}

func insertQuery(summary domain.Summary) (string, []interface{}, error) {
	s := summary.Sanitized()
	return psql.Insert(summaryTable).
		Columns(summaryColumns...).
		Values(s.AlertID, s.Seq, s.Opinion, s.Mitigation, s.RelevantInfo, s.Machine).
		Suffix("ON CONFLICT (alert_id) DO NOTHING").
		ToSql()
}

func listQuery() (string, []interface{}, error) {
	return psql.Select(summaryColumns...).
		From(summaryTable).
		OrderBy("alert_seq DESC", "length(alert_id) DESC", "alert_id DESC").
		ToSql()
}
