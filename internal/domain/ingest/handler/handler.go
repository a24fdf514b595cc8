// Package handler exposes the ingestion API over HTTP/JSON.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/avishkarn/smsledger/internal/domain/ingest/repository"
	"github.com/avishkarn/smsledger/internal/domain/ingest/service"
	"github.com/avishkarn/smsledger/internal/domain/ingest/stats"
	"github.com/avishkarn/smsledger/internal/domain/message"
	"github.com/avishkarn/smsledger/internal/domain/parse"
	"github.com/avishkarn/smsledger/internal/domain/parse/registry"
	"github.com/avishkarn/smsledger/internal/domain/transaction"
)

const (
	maxMessageBodyBytes int64 = 1 << 20  // 1 MiB
	maxBatchBodyBytes   int64 = 32 << 20 // 32 MiB
)

// IngestHandler handles message ingestion and transaction queries.
type IngestHandler struct {
	service *service.IngestService
	logger  *slog.Logger
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(svc *service.IngestService, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{service: svc, logger: logger}
}

type messagePayload struct {
	Body      string    `json:"body"`
	Sender    string    `json:"sender"`
	Address   string    `json:"address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (p messagePayload) raw() message.RawMessage {
	return message.RawMessage{
		Body:      p.Body,
		Sender:    p.Sender,
		Address:   p.Address,
		Timestamp: p.Timestamp,
	}
}

type transactionResponse struct {
	ID              uuid.UUID `json:"id"`
	ExternalID      string    `json:"external_id"`
	Amount          *string   `json:"amount,omitempty"`
	Direction       string    `json:"direction"`
	Merchant        *string   `json:"merchant,omitempty"`
	Counterparty    *string   `json:"counterparty,omitempty"`
	ReferenceID     *string   `json:"reference_id,omitempty"`
	Balance         *string   `json:"balance,omitempty"`
	Institution     *string   `json:"institution,omitempty"`
	AccountSuffix   *string   `json:"account_suffix,omitempty"`
	TransactionDate time.Time `json:"transaction_date"`
	Sender          string    `json:"sender"`
	RawMessage      string    `json:"raw_message"`
}

func toResponse(tx *repository.StoredTransaction) transactionResponse {
	return transactionResponse{
		ID:              tx.ID,
		ExternalID:      tx.ExternalID,
		Amount:          tx.Amount,
		Direction:       tx.Direction,
		Merchant:        tx.Merchant,
		Counterparty:    tx.Counterparty,
		ReferenceID:     tx.ReferenceID,
		Balance:         tx.Balance,
		Institution:     tx.Institution,
		AccountSuffix:   tx.AccountSuffix,
		TransactionDate: tx.TransactionDate,
		Sender:          tx.Sender,
		RawMessage:      tx.RawMessage,
	}
}

// HandleIngestMessage ingests one live message.
// Accepted messages return 200 with the stored record; rejected ones return
// 204 with the reason in the X-Reject-Reason header.
func (h *IngestHandler) HandleIngestMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBodyBytes)

	var payload messagePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := h.service.IngestOne(r.Context(), payload.raw())
	if err != nil {
		h.logger.Error("failed to ingest message", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to ingest message")
		return
	}

	if outcome.Reject != parse.RejectNone {
		w.Header().Set("X-Reject-Reason", outcome.Reject.String())
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if outcome.Duplicate {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	h.writeJSON(w, http.StatusOK, toResponse(outcome.Stored))
}

type batchRequest struct {
	Messages []messagePayload `json:"messages"`
}

type batchResponse struct {
	JobID         uuid.UUID      `json:"job_id"`
	RowsTotal     int            `json:"rows_total"`
	RowsParsed    int            `json:"rows_parsed"`
	RowsRejected  int            `json:"rows_rejected"`
	RowsDuplicate int            `json:"rows_duplicate"`
	Rejects       map[string]int `json:"rejects,omitempty"`
}

// HandleIngestBatch ingests a backlog of messages in one request.
func (h *IngestHandler) HandleIngestBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBatchBodyBytes)

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		h.writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	msgs := make([]message.RawMessage, 0, len(req.Messages))
	for _, p := range req.Messages {
		msgs = append(msgs, p.raw())
	}

	result, err := h.service.IngestBatch(r.Context(), msgs)
	if err != nil {
		h.logger.Error("failed to ingest batch", "error", err, "messages", len(msgs))
		h.writeError(w, http.StatusInternalServerError, "failed to ingest batch")
		return
	}

	h.writeJSON(w, http.StatusOK, batchResponse{
		JobID:         result.JobID,
		RowsTotal:     result.RowsTotal,
		RowsParsed:    result.RowsParsed,
		RowsRejected:  result.RowsRejected,
		RowsDuplicate: result.RowsDuplicate,
		Rejects:       result.Rejects,
	})
}

type jobResponse struct {
	ID            uuid.UUID  `json:"id"`
	Status        string     `json:"status"`
	RowsTotal     int        `json:"rows_total"`
	RowsParsed    int        `json:"rows_parsed"`
	RowsRejected  int        `json:"rows_rejected"`
	RowsDuplicate int        `json:"rows_duplicate"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	RequestedAt   time.Time  `json:"requested_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// HandleGetJob returns one ingest job by id.
func (h *IngestHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.service.GetJob(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get ingest job", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	if job == nil {
		h.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	h.writeJSON(w, http.StatusOK, jobResponse{
		ID:            job.ID,
		Status:        job.Status,
		RowsTotal:     job.RowsTotal,
		RowsParsed:    job.RowsParsed,
		RowsRejected:  job.RowsRejected,
		RowsDuplicate: job.RowsDuplicate,
		ErrorMessage:  job.ErrorMessage,
		RequestedAt:   job.RequestedAt,
		FinishedAt:    job.FinishedAt,
	})
}

type listResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	Total        int64                 `json:"total"`
}

// HandleListTransactions lists stored transactions with optional filters.
func (h *IngestHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, total, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list transactions", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	resp := listResponse{Transactions: make([]transactionResponse, 0, len(txs)), Total: total}
	for _, tx := range txs {
		resp.Transactions = append(resp.Transactions, toResponse(tx))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func parseListFilter(r *http.Request) (repository.ListTransactionsFilter, error) {
	var filter repository.ListTransactionsFilter
	q := r.URL.Query()

	if v := q.Get("institution"); v != "" {
		filter.Institution = &v
	}
	if v := q.Get("direction"); v != "" {
		if v != transaction.DirectionUnknown.String() && transaction.ParseDirection(v) == transaction.DirectionUnknown {
			return filter, errInvalidParam("direction")
		}
		filter.Direction = &v
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errInvalidParam("from")
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errInvalidParam("to")
		}
		filter.To = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errInvalidParam("limit")
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errInvalidParam("offset")
		}
		filter.Offset = n
	}

	return filter, nil
}

type summaryResponse struct {
	Count       int64  `json:"count"`
	CreditCount int64  `json:"credit_count"`
	DebitCount  int64  `json:"debit_count"`
	CreditTotal string `json:"credit_total"`
	DebitTotal  string `json:"debit_total"`
	Net         string `json:"net"`
}

// HandleTransactionSummary returns aggregate totals over the stored history.
// Net is credits minus debits; with from/to it reads as cash flow for the
// window, without it as running savings.
func (h *IngestHandler) HandleTransactionSummary(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.service.Summarize(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to summarize transactions", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to summarize transactions")
		return
	}

	h.writeJSON(w, http.StatusOK, summaryResponse{
		Count:       summary.Count,
		CreditCount: summary.CreditCount,
		DebitCount:  summary.DebitCount,
		CreditTotal: summary.CreditTotal,
		DebitTotal:  summary.DebitTotal,
		Net:         summary.Net,
	})
}

type merchantStatsResponse struct {
	Merchants []stats.MerchantSummary `json:"merchants"`
}

// HandleMerchantStats returns scored per-merchant activity.
func (h *IngestHandler) HandleMerchantStats(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.MerchantStats(r.Context())
	if err != nil {
		h.logger.Error("failed to compute merchant stats", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to compute merchant stats")
		return
	}
	if summaries == nil {
		summaries = []stats.MerchantSummary{}
	}
	h.writeJSON(w, http.StatusOK, merchantStatsResponse{Merchants: summaries})
}

type paramError string

func errInvalidParam(name string) paramError { return paramError("invalid " + name + " parameter") }

func (e paramError) Error() string { return string(e) }

// HandleGetRegistry returns the active registry table.
func (h *IngestHandler) HandleGetRegistry(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, registry.Current())
}

// HandlePutRegistry atomically replaces the registry table. Partial updates
// are not supported; operators submit the full table.
func (h *IngestHandler) HandlePutRegistry(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBodyBytes)

	var table registry.Table
	if err := json.NewDecoder(r.Body).Decode(&table); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid registry table")
		return
	}
	if len(table.Institutions) == 0 {
		h.writeError(w, http.StatusBadRequest, "institutions must not be empty")
		return
	}

	registry.Replace(&table)
	h.logger.Info("registry table replaced",
		"institutions", len(table.Institutions),
		"promotional", len(table.Promotional),
		"pending", len(table.Pending),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *IngestHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *IngestHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
