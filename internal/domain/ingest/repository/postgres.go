package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool abstracts the subset of pgxpool.Pool used by the repository to allow mocking in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var _ PgxPool = (*pgxpool.Pool)(nil)

// PostgresIngestRepository implements IngestRepository using PostgreSQL.
type PostgresIngestRepository struct {
	pgpool PgxPool
}

// NewPostgresIngestRepository creates a new PostgreSQL-backed ingest repository.
func NewPostgresIngestRepository(pgpool PgxPool) *PostgresIngestRepository {
	return &PostgresIngestRepository{pgpool: pgpool}
}

const insertTransactionQuery = `
	INSERT INTO transactions (
		id, external_id, amount, direction, merchant, counterparty, reference_id,
		balance, institution, account_suffix, transaction_date, sender, raw_message
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (external_id) DO NOTHING
`

// InsertTransaction stores one record, returning false for a dedup hit.
func (r *PostgresIngestRepository) InsertTransaction(ctx context.Context, tx *StoredTransaction) (bool, error) {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}

	tag, err := r.pgpool.Exec(ctx, insertTransactionQuery,
		tx.ID, tx.ExternalID, tx.Amount, tx.Direction, tx.Merchant, tx.Counterparty,
		tx.ReferenceID, tx.Balance, tx.Institution, tx.AccountSuffix,
		tx.TransactionDate, tx.Sender, tx.RawMessage,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

const existingExternalIDsQuery = `SELECT external_id FROM transactions WHERE external_id = ANY($1)`

// ExistingExternalIDs reports which of the given ids are already stored.
func (r *PostgresIngestRepository) ExistingExternalIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	rows, err := r.pgpool.Query(ctx, existingExternalIDsQuery, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing external ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan external id: %w", err)
		}
		existing[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read existing external ids: %w", err)
	}

	return existing, nil
}

// BulkInsertTransactions inserts multiple records efficiently. Callers filter
// duplicates through ExistingExternalIDs first; COPY has no conflict handling.
func (r *PostgresIngestRepository) BulkInsertTransactions(ctx context.Context, txs []*StoredTransaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	columns := []string{
		"id", "external_id", "amount", "direction", "merchant", "counterparty",
		"reference_id", "balance", "institution", "account_suffix",
		"transaction_date", "sender", "raw_message",
	}

	copyCount, err := r.pgpool.CopyFrom(ctx,
		pgx.Identifier{"transactions"},
		columns,
		pgx.CopyFromSlice(len(txs), func(i int) ([]any, error) {
			tx := txs[i]
			id := tx.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			return []any{
				id, tx.ExternalID, tx.Amount, tx.Direction, tx.Merchant,
				tx.Counterparty, tx.ReferenceID, tx.Balance, tx.Institution,
				tx.AccountSuffix, tx.TransactionDate, tx.Sender, tx.RawMessage,
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk insert transactions: %w", err)
	}

	return int(copyCount), nil
}

const listTransactionsColumns = `
	id, external_id, amount, direction, merchant, counterparty, reference_id,
	balance, institution, account_suffix, transaction_date, sender, raw_message, created_at
`

// ListTransactions returns records matching the filter plus the unlimited count.
func (r *PostgresIngestRepository) ListTransactions(ctx context.Context, filter ListTransactionsFilter) ([]*StoredTransaction, int64, error) {
	where, args := buildTransactionFilter(filter)

	countQuery := "SELECT COUNT(*) FROM transactions" + where
	var total int64
	if err := r.pgpool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(
		"SELECT %s FROM transactions%s ORDER BY transaction_date DESC, created_at DESC LIMIT $%d OFFSET $%d",
		listTransactionsColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, limit, filter.Offset)

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*StoredTransaction
	for rows.Next() {
		var tx StoredTransaction
		err := rows.Scan(
			&tx.ID, &tx.ExternalID, &tx.Amount, &tx.Direction, &tx.Merchant,
			&tx.Counterparty, &tx.ReferenceID, &tx.Balance, &tx.Institution,
			&tx.AccountSuffix, &tx.TransactionDate, &tx.Sender, &tx.RawMessage,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read transactions: %w", err)
	}

	return txs, total, nil
}

const summarizeTransactionsColumns = `
	COUNT(*),
	COUNT(*) FILTER (WHERE direction = 'credit'),
	COUNT(*) FILTER (WHERE direction = 'debit'),
	COALESCE(SUM(amount::numeric) FILTER (WHERE direction = 'credit'), 0)::text,
	COALESCE(SUM(amount::numeric) FILTER (WHERE direction = 'debit'), 0)::text,
	(COALESCE(SUM(amount::numeric) FILTER (WHERE direction = 'credit'), 0)
	 - COALESCE(SUM(amount::numeric) FILTER (WHERE direction = 'debit'), 0))::text
`

// SummarizeTransactions totals the stored history matching the filter.
func (r *PostgresIngestRepository) SummarizeTransactions(ctx context.Context, filter ListTransactionsFilter) (*TransactionSummary, error) {
	where, args := buildTransactionFilter(filter)
	query := "SELECT" + summarizeTransactionsColumns + "FROM transactions" + where

	var summary TransactionSummary
	err := r.pgpool.QueryRow(ctx, query, args...).Scan(
		&summary.Count, &summary.CreditCount, &summary.DebitCount,
		&summary.CreditTotal, &summary.DebitTotal, &summary.Net,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize transactions: %w", err)
	}
	return &summary, nil
}

const merchantActivityQuery = `
	SELECT merchant, COUNT(*),
	       AVG(amount::numeric)::float8,
	       COALESCE(STDDEV_POP(amount::numeric), 0)::float8,
	       MIN(amount::numeric)::float8,
	       MAX(amount::numeric)::float8
	FROM transactions
	WHERE merchant IS NOT NULL AND amount IS NOT NULL
	GROUP BY merchant
	ORDER BY COUNT(*) DESC, merchant
`

// MerchantActivityStats aggregates amounts per merchant.
func (r *PostgresIngestRepository) MerchantActivityStats(ctx context.Context) ([]MerchantActivity, error) {
	rows, err := r.pgpool.Query(ctx, merchantActivityQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant activity: %w", err)
	}
	defer rows.Close()

	var activity []MerchantActivity
	for rows.Next() {
		var a MerchantActivity
		if err := rows.Scan(&a.Merchant, &a.Count, &a.Mean, &a.StdDev, &a.Min, &a.Max); err != nil {
			return nil, fmt.Errorf("failed to scan merchant activity: %w", err)
		}
		activity = append(activity, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read merchant activity: %w", err)
	}

	return activity, nil
}

func buildTransactionFilter(filter ListTransactionsFilter) (string, []any) {
	var clauses []string
	var args []any

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.Institution != nil {
		add("institution = $%d", *filter.Institution)
	}
	if filter.Direction != nil {
		add("direction = $%d", *filter.Direction)
	}
	if filter.From != nil {
		add("transaction_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("transaction_date < $%d", *filter.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

const createIngestJobQuery = `
	INSERT INTO ingest_jobs (id, status, rows_total, rows_parsed, rows_rejected, rows_duplicate, requested_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// CreateIngestJob creates a new ingest job row.
func (r *PostgresIngestRepository) CreateIngestJob(ctx context.Context, job *IngestJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now().UTC()
	}

	_, err := r.pgpool.Exec(ctx, createIngestJobQuery,
		job.ID, job.Status, job.RowsTotal, job.RowsParsed, job.RowsRejected,
		job.RowsDuplicate, job.RequestedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create ingest job: %w", err)
	}
	return nil
}

const getIngestJobQuery = `
	SELECT id, status, rows_total, rows_parsed, rows_rejected, rows_duplicate,
	       error_message, requested_at, finished_at
	FROM ingest_jobs WHERE id = $1
`

// GetIngestJobByID retrieves a job by id, or nil when it does not exist.
func (r *PostgresIngestRepository) GetIngestJobByID(ctx context.Context, id uuid.UUID) (*IngestJob, error) {
	var job IngestJob
	err := r.pgpool.QueryRow(ctx, getIngestJobQuery, id).Scan(
		&job.ID, &job.Status, &job.RowsTotal, &job.RowsParsed, &job.RowsRejected,
		&job.RowsDuplicate, &job.ErrorMessage, &job.RequestedAt, &job.FinishedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ingest job: %w", err)
	}
	return &job, nil
}

const updateIngestJobProgressQuery = `
	UPDATE ingest_jobs SET rows_parsed = $2, rows_rejected = $3, rows_duplicate = $4 WHERE id = $1
`

// UpdateIngestJobProgress updates the row counters of a running job.
func (r *PostgresIngestRepository) UpdateIngestJobProgress(ctx context.Context, id uuid.UUID, parsed, rejected, duplicate int) error {
	_, err := r.pgpool.Exec(ctx, updateIngestJobProgressQuery, id, parsed, rejected, duplicate)
	if err != nil {
		return fmt.Errorf("failed to update ingest job progress: %w", err)
	}
	return nil
}

const finishIngestJobQuery = `
	UPDATE ingest_jobs SET
		status = $2, rows_parsed = $3, rows_rejected = $4, rows_duplicate = $5,
		error_message = $6, finished_at = NOW(), rows_total = $3 + $4 + $5
	WHERE id = $1
`

// FinishIngestJob marks a job as complete.
func (r *PostgresIngestRepository) FinishIngestJob(ctx context.Context, id uuid.UUID, status string, parsed, rejected, duplicate int, errorMessage *string) error {
	_, err := r.pgpool.Exec(ctx, finishIngestJobQuery, id, status, parsed, rejected, duplicate, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to finish ingest job: %w", err)
	}
	return nil
}
