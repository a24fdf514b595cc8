// Package repository provides data access for ingested transactions and jobs.
package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StoredTransaction is one persisted transaction record. Optional fields stay
// nil when the extractor found nothing for them.
type StoredTransaction struct {
	ID              uuid.UUID `db:"id"`
	ExternalID      string    `db:"external_id"`
	Amount          *string   `db:"amount"`
	Direction       string    `db:"direction"`
	Merchant        *string   `db:"merchant"`
	Counterparty    *string   `db:"counterparty"`
	ReferenceID     *string   `db:"reference_id"`
	Balance         *string   `db:"balance"`
	Institution     *string   `db:"institution"`
	AccountSuffix   *string   `db:"account_suffix"`
	TransactionDate time.Time `db:"transaction_date"`
	Sender          string    `db:"sender"`
	RawMessage      string    `db:"raw_message"`
	CreatedAt       time.Time `db:"created_at"`
}

// IngestJob tracks the status of a batch ingestion run.
type IngestJob struct {
	ID            uuid.UUID  `db:"id"`
	Status        string     `db:"status"` // "running", "succeeded", "failed"
	RowsTotal     int        `db:"rows_total"`
	RowsParsed    int        `db:"rows_parsed"`
	RowsRejected  int        `db:"rows_rejected"`
	RowsDuplicate int        `db:"rows_duplicate"`
	ErrorMessage  *string    `db:"error_message"`
	RequestedAt   time.Time  `db:"requested_at"`
	FinishedAt    *time.Time `db:"finished_at"`
}

// ListTransactionsFilter narrows a transaction listing. Nil fields match all.
type ListTransactionsFilter struct {
	Institution *string
	Direction   *string
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

// TransactionSummary aggregates stored history. Totals are decimal strings;
// rows without an extractable amount count toward the row counters only.
type TransactionSummary struct {
	Count       int64
	CreditCount int64
	DebitCount  int64
	CreditTotal string
	DebitTotal  string
	// Net is credits minus debits, the running savings over the window.
	Net string
}

// MerchantActivity is the raw per-merchant aggregate over rows that carry
// both a merchant and an amount.
type MerchantActivity struct {
	Merchant string
	Count    int64
	Mean     float64
	StdDev   float64
	Min      float64
	Max      float64
}

// IngestRepository defines data access operations for ingestion.
type IngestRepository interface {
	// InsertTransaction stores one record. It returns false when a record
	// with the same external id already exists.
	InsertTransaction(ctx context.Context, tx *StoredTransaction) (bool, error)

	// ExistingExternalIDs reports which of the given external ids are
	// already stored.
	ExistingExternalIDs(ctx context.Context, ids []string) (map[string]struct{}, error)

	// BulkInsertTransactions inserts records that passed the dedup filter.
	BulkInsertTransactions(ctx context.Context, txs []*StoredTransaction) (int, error)

	ListTransactions(ctx context.Context, filter ListTransactionsFilter) ([]*StoredTransaction, int64, error)

	// SummarizeTransactions totals the stored history matching the filter.
	// Limit and Offset are ignored; the summary always covers the full match.
	SummarizeTransactions(ctx context.Context, filter ListTransactionsFilter) (*TransactionSummary, error)

	// MerchantActivityStats aggregates amounts per merchant over the whole
	// stored history.
	MerchantActivityStats(ctx context.Context) ([]MerchantActivity, error)

	CreateIngestJob(ctx context.Context, job *IngestJob) error
	GetIngestJobByID(ctx context.Context, id uuid.UUID) (*IngestJob, error)
	UpdateIngestJobProgress(ctx context.Context, id uuid.UUID, parsed, rejected, duplicate int) error
	FinishIngestJob(ctx context.Context, id uuid.UUID, status string, parsed, rejected, duplicate int, errorMessage *string) error
}

// ExternalID derives the deduplication key for a message. Re-ingesting the
// same message always produces the same id, so replays collapse to one row.
func ExternalID(sender string, ts time.Time, body string) string {
	data := fmt.Sprintf("%s|%s|%s", sender, ts.UTC().Format(time.RFC3339), body)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}
