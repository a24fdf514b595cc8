// Package service orchestrates message ingestion: it runs the parse pipeline
// over incoming messages and persists accepted records with deduplication.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/avishkarn/smsledger/internal/domain/ingest/repository"
	"github.com/avishkarn/smsledger/internal/domain/ingest/stats"
	"github.com/avishkarn/smsledger/internal/domain/message"
	"github.com/avishkarn/smsledger/internal/domain/parse"
	"github.com/avishkarn/smsledger/internal/domain/transaction"
	"github.com/avishkarn/smsledger/pkg/observability"
)

const (
	ingestBatchSize           = 500
	ingestProgressUpdateEvery = 500
)

// Outcome is the result of ingesting a single message.
type Outcome struct {
	Stored *repository.StoredTransaction
	Reject parse.Reject
	// Duplicate is true when the message parsed but its external id was
	// already stored.
	Duplicate bool
}

// BatchResult summarizes one batch ingestion run.
type BatchResult struct {
	JobID         uuid.UUID
	RowsTotal     int
	RowsParsed    int
	RowsRejected  int
	RowsDuplicate int
	// Rejects counts rejections per reason label.
	Rejects map[string]int
}

// IngestService runs the parse pipeline and persists its output.
type IngestService struct {
	repo     repository.IngestRepository
	pipeline *parse.Pipeline
	logger   *slog.Logger
}

// NewIngestService creates a new ingest service.
func NewIngestService(repo repository.IngestRepository, logger *slog.Logger) *IngestService {
	return &IngestService{
		repo:     repo,
		pipeline: parse.New(),
		logger:   logger,
	}
}

// IngestOne processes a single live message. Rejection and deduplication are
// reported through the outcome; the error is reserved for storage failures.
func (s *IngestService) IngestOne(ctx context.Context, msg message.RawMessage) (*Outcome, error) {
	rec, reject := s.pipeline.Parse(msg)
	observability.RecordParseOutcome(reject.String())
	if reject != parse.RejectNone {
		return &Outcome{Reject: reject}, nil
	}

	stored := toStored(rec, msg)
	inserted, err := s.repo.InsertTransaction(ctx, stored)
	if err != nil {
		return nil, fmt.Errorf("failed to store transaction: %w", err)
	}
	if !inserted {
		observability.DuplicatesTotal.Inc()
		return &Outcome{Duplicate: true}, nil
	}

	return &Outcome{Stored: stored}, nil
}

// GetJob returns the ingest job with the given id, or nil when unknown.
func (s *IngestService) GetJob(ctx context.Context, id uuid.UUID) (*repository.IngestJob, error) {
	return s.repo.GetIngestJobByID(ctx, id)
}

// ListTransactions returns stored records matching the filter.
func (s *IngestService) ListTransactions(ctx context.Context, filter repository.ListTransactionsFilter) ([]*repository.StoredTransaction, int64, error) {
	return s.repo.ListTransactions(ctx, filter)
}

// Summarize totals the stored history matching the filter. Net is credits
// minus debits, so a windowed call doubles as a per-period cash flow figure.
func (s *IngestService) Summarize(ctx context.Context, filter repository.ListTransactionsFilter) (*repository.TransactionSummary, error) {
	return s.repo.SummarizeTransactions(ctx, filter)
}

// MerchantStats returns scored per-merchant activity over the stored history.
func (s *IngestService) MerchantStats(ctx context.Context) ([]stats.MerchantSummary, error) {
	activity, err := s.repo.MerchantActivityStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant activity: %w", err)
	}

	summaries := make([]stats.MerchantSummary, 0, len(activity))
	for _, a := range activity {
		summaries = append(summaries, stats.Summarize(a.Merchant, a.Count, a.Mean, a.StdDev, a.Min, a.Max))
	}
	return summaries, nil
}

type parseJob struct {
	idx int
	msg message.RawMessage
}

type parseOutcome struct {
	idx    int
	msg    message.RawMessage
	rec    *transaction.Record
	reject parse.Reject
}

// IngestBatch processes a backlog of messages concurrently. Parsing fans out
// over a worker pool; inserts are batched through COPY with a dedup pre-check.
func (s *IngestService) IngestBatch(ctx context.Context, msgs []message.RawMessage) (*BatchResult, error) {
	job := &repository.IngestJob{
		Status:    "running",
		RowsTotal: len(msgs),
	}
	if err := s.repo.CreateIngestJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create ingest job: %w", err)
	}

	parseCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := s.parseMessagesStream(parseCtx, msgs)

	result := &BatchResult{
		JobID:   job.ID,
		Rejects: make(map[string]int),
	}
	progressSinceUpdate := 0

	updateProgress := func() {
		if err := s.repo.UpdateIngestJobProgress(ctx, job.ID, result.RowsParsed, result.RowsRejected, result.RowsDuplicate); err != nil {
			s.logger.Warn("failed to update ingest job progress", "error", err)
		}
	}

	batch := make([]*repository.StoredTransaction, 0, ingestBatchSize)
	flushBatch := func() error {
		if len(batch) == 0 {
			return nil
		}
		inserted, duplicates, err := s.insertDeduplicated(ctx, batch)
		if err != nil {
			return err
		}
		result.RowsParsed += inserted
		result.RowsDuplicate += duplicates
		batch = batch[:0]
		updateProgress()
		progressSinceUpdate = 0
		return nil
	}

	var insertErr error
	for outcome := range results {
		if insertErr != nil {
			continue
		}
		observability.RecordParseOutcome(outcome.reject.String())
		if outcome.reject != parse.RejectNone {
			result.RowsRejected++
			result.Rejects[outcome.reject.String()]++
			progressSinceUpdate++
			if progressSinceUpdate >= ingestProgressUpdateEvery {
				updateProgress()
				progressSinceUpdate = 0
			}
			continue
		}

		batch = append(batch, toStored(outcome.rec, outcome.msg))
		if len(batch) >= ingestBatchSize {
			if err := flushBatch(); err != nil {
				insertErr = err
				cancel()
			}
		}
	}

	if insertErr == nil {
		if err := flushBatch(); err != nil {
			insertErr = err
		}
	}
	if progressSinceUpdate > 0 && insertErr == nil {
		updateProgress()
	}

	if insertErr != nil {
		errMsg := insertErr.Error()
		if err := s.repo.FinishIngestJob(ctx, job.ID, "failed", result.RowsParsed, result.RowsRejected, result.RowsDuplicate, &errMsg); err != nil {
			s.logger.Warn("failed to finish ingest job", "error", err)
		}
		return nil, fmt.Errorf("failed to insert transactions: %w", insertErr)
	}

	if err := s.repo.FinishIngestJob(ctx, job.ID, "succeeded", result.RowsParsed, result.RowsRejected, result.RowsDuplicate, nil); err != nil {
		s.logger.Warn("failed to finish ingest job", "error", err)
	}

	result.RowsTotal = result.RowsParsed + result.RowsRejected + result.RowsDuplicate
	return result, nil
}

// insertDeduplicated filters already-stored external ids out of the batch and
// bulk-inserts the remainder. A batch can also carry the same message twice,
// so in-batch repeats collapse as well.
func (s *IngestService) insertDeduplicated(ctx context.Context, batch []*repository.StoredTransaction) (int, int, error) {
	ids := make([]string, 0, len(batch))
	for _, tx := range batch {
		ids = append(ids, tx.ExternalID)
	}
	existing, err := s.repo.ExistingExternalIDs(ctx, ids)
	if err != nil {
		return 0, 0, err
	}

	fresh := make([]*repository.StoredTransaction, 0, len(batch))
	seen := make(map[string]struct{}, len(batch))
	duplicates := 0
	for _, tx := range batch {
		if _, ok := existing[tx.ExternalID]; ok {
			duplicates++
			continue
		}
		if _, ok := seen[tx.ExternalID]; ok {
			duplicates++
			continue
		}
		seen[tx.ExternalID] = struct{}{}
		fresh = append(fresh, tx)
	}
	if duplicates > 0 {
		observability.DuplicatesTotal.Add(float64(duplicates))
	}

	inserted, err := s.repo.BulkInsertTransactions(ctx, fresh)
	if err != nil {
		return 0, 0, err
	}
	return inserted, duplicates, nil
}

// parseMessagesStream fans the messages out over a worker pool. Each message
// is parsed independently so order of results is not guaranteed.
func (s *IngestService) parseMessagesStream(ctx context.Context, msgs []message.RawMessage) <-chan parseOutcome {
	workerCount := runtime.GOMAXPROCS(0)
	if workerCount < 1 {
		workerCount = 1
	}

	results := make(chan parseOutcome, workerCount*4)
	jobs := make(chan parseJob, workerCount*4)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					return
				}
				rec, reject := s.pipeline.Parse(job.msg)
				select {
				case results <- parseOutcome{idx: job.idx, msg: job.msg, rec: rec, reject: reject}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, msg := range msgs {
			select {
			case jobs <- parseJob{idx: i, msg: msg}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

func toStored(rec *transaction.Record, msg message.RawMessage) *repository.StoredTransaction {
	return &repository.StoredTransaction{
		ID:              uuid.New(),
		ExternalID:      repository.ExternalID(msg.Sender, msg.Timestamp, msg.Body),
		Amount:          rec.Amount,
		Direction:       rec.Direction.String(),
		Merchant:        rec.Merchant,
		Counterparty:    rec.Counterparty,
		ReferenceID:     rec.ReferenceID,
		Balance:         rec.Balance,
		Institution:     rec.Institution,
		AccountSuffix:   rec.AccountSuffix,
		TransactionDate: rec.TransactionDate,
		Sender:          msg.Sender,
		RawMessage:      rec.RawMessage,
	}
}
