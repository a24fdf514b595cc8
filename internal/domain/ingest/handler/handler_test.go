package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/avishkarn/smsledger/internal/domain/ingest/repository"
	"github.com/avishkarn/smsledger/internal/domain/ingest/service"
	"github.com/avishkarn/smsledger/internal/domain/parse/registry"
)

var ts = time.Date(2025, 12, 4, 18, 30, 0, 0, time.UTC)

func newTestHandler(repo repository.IngestRepository) *IngestHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewIngestHandler(service.NewIngestService(repo, logger), logger)
}

func newTestMux(h *IngestHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", h.HandleIngestMessage)
	mux.HandleFunc("POST /v1/messages/batch", h.HandleIngestBatch)
	mux.HandleFunc("GET /v1/jobs/{id}", h.HandleGetJob)
	mux.HandleFunc("GET /v1/transactions", h.HandleListTransactions)
	mux.HandleFunc("GET /v1/transactions/summary", h.HandleTransactionSummary)
	mux.HandleFunc("GET /v1/transactions/stats", h.HandleMerchantStats)
	mux.HandleFunc("GET /v1/registry", h.HandleGetRegistry)
	mux.HandleFunc("PUT /v1/registry", h.HandlePutRegistry)
	return mux
}

func postJSON(t *testing.T, mux *http.ServeMux, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleIngestMessage_Accepted(t *testing.T) {
	mux := newTestMux(newTestHandler(&memoryRepo{}))

	body := fmt.Sprintf(`{
		"body": "Rs.1,250.00 credited to A/c XX1234 on 03Dec25 via NEFT. Avl Bal: Rs.5,430.10",
		"sender": "VM-SBIINB-S",
		"timestamp": %q
	}`, ts.Format(time.RFC3339))

	rec := postJSON(t, mux, "/v1/messages", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Amount      *string `json:"amount"`
		Direction   string  `json:"direction"`
		Institution *string `json:"institution"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Amount == nil || *resp.Amount != "1250.00" {
		t.Errorf("amount = %v, want 1250.00", resp.Amount)
	}
	if resp.Direction != "credit" {
		t.Errorf("direction = %q, want credit", resp.Direction)
	}
	if resp.Institution == nil || *resp.Institution != "SBI" {
		t.Errorf("institution = %v, want SBI", resp.Institution)
	}
}

func TestHandleIngestMessage_Rejected(t *testing.T) {
	mux := newTestMux(newTestHandler(&memoryRepo{}))

	body := fmt.Sprintf(`{"body": "Lunch tomorrow?", "sender": "MOM", "timestamp": %q}`, ts.Format(time.RFC3339))
	rec := postJSON(t, mux, "/v1/messages", body)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("X-Reject-Reason"); got != "not_financial" {
		t.Errorf("reject reason = %q, want not_financial", got)
	}
}

func TestHandleIngestMessage_Duplicate(t *testing.T) {
	mux := newTestMux(newTestHandler(&memoryRepo{}))

	body := fmt.Sprintf(`{
		"body": "Rs.500.00 debited from A/c XX1234 on 04Dec25 for UPI txn. Ref No 433912345678",
		"sender": "VM-SBIINB",
		"timestamp": %q
	}`, ts.Format(time.RFC3339))

	if rec := postJSON(t, mux, "/v1/messages", body); rec.Code != http.StatusOK {
		t.Fatalf("first ingest status = %d, want 200", rec.Code)
	}

	rec := postJSON(t, mux, "/v1/messages", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "duplicate" {
		t.Errorf("status = %q, want duplicate", resp["status"])
	}
}

func TestHandleIngestMessage_BadJSON(t *testing.T) {
	mux := newTestMux(newTestHandler(&memoryRepo{}))

	rec := postJSON(t, mux, "/v1/messages", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleIngestBatch(t *testing.T) {
	repo := &memoryRepo{}
	mux := newTestMux(newTestHandler(repo))

	var payload struct {
		Messages []map[string]any `json:"messages"`
	}
	payload.Messages = []map[string]any{
		{"body": "Rs.230 paid to Sharma Stores via UPI", "sender": "BHIMUPI", "timestamp": ts.Format(time.RFC3339)},
		{"body": "Lunch tomorrow?", "sender": "MOM", "timestamp": ts.Format(time.RFC3339)},
	}
	raw, _ := json.Marshal(payload)

	rec := postJSON(t, mux, "/v1/messages/batch", string(raw))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}

	var resp struct {
		JobID        uuid.UUID      `json:"job_id"`
		RowsParsed   int            `json:"rows_parsed"`
		RowsRejected int            `json:"rows_rejected"`
		Rejects      map[string]int `json:"rejects"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RowsParsed != 1 || resp.RowsRejected != 1 {
		t.Errorf("parsed=%d rejected=%d, want 1 and 1", resp.RowsParsed, resp.RowsRejected)
	}
	if resp.Rejects["not_financial"] != 1 {
		t.Errorf("not_financial = %d, want 1", resp.Rejects["not_financial"])
	}

	// The job is queryable afterwards.
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+resp.JobID.String(), nil)
	jobRec := httptest.NewRecorder()
	mux.ServeHTTP(jobRec, req)
	if jobRec.Code != http.StatusOK {
		t.Fatalf("job status = %d, want 200", jobRec.Code)
	}
	var job struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(jobRec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.Status != "succeeded" {
		t.Errorf("job status = %q, want succeeded", job.Status)
	}
}

func TestHandleIngestBatch_EmptyMessages(t *testing.T) {
	mux := newTestMux(newTestHandler(&memoryRepo{}))

	rec := postJSON(t, mux, "/v1/messages/batch", `{"messages": []}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleGetJob_NotFound(t *testing.T) {
	mux := newTestMux(newTestHandler(&memoryRepo{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/jobs/not-a-uuid", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed id", rec.Code)
	}
}

func TestHandleListTransactions(t *testing.T) {
	repo := &memoryRepo{}
	mux := newTestMux(newTestHandler(repo))

	body := fmt.Sprintf(`{
		"body": "Rs.230 paid to Sharma Stores via UPI",
		"sender": "BHIMUPI",
		"timestamp": %q
	}`, ts.Format(time.RFC3339))
	if rec := postJSON(t, mux, "/v1/messages", body); rec.Code != http.StatusOK {
		t.Fatalf("seed ingest failed: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/transactions?direction=debit&limit=10", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Transactions []struct {
			Direction string  `json:"direction"`
			Merchant  *string `json:"merchant"`
		} `json:"transactions"`
		Total int64 `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 || len(resp.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got total=%d len=%d", resp.Total, len(resp.Transactions))
	}
	if resp.Transactions[0].Merchant == nil || *resp.Transactions[0].Merchant != "Sharma Stores" {
		t.Errorf("merchant = %v, want Sharma Stores", resp.Transactions[0].Merchant)
	}

	badReq := httptest.NewRequest(http.MethodGet, "/v1/transactions?from=yesterday", nil)
	badRec := httptest.NewRecorder()
	mux.ServeHTTP(badRec, badReq)
	if badRec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed from", badRec.Code)
	}
}

func TestHandleListTransactions_InvalidDirection(t *testing.T) {
	mux := newTestMux(newTestHandler(&memoryRepo{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/transactions?direction=sideways", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown direction", rec.Code)
	}

	for _, v := range []string{"credit", "debit", "unknown"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/transactions?direction="+v, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("direction=%s status = %d, want 200", v, rec.Code)
		}
	}
}

func TestHandleTransactionSummary(t *testing.T) {
	mux := newTestMux(newTestHandler(&memoryRepo{}))

	seeds := []string{
		fmt.Sprintf(`{"body": "Rs.1,250.00 credited to A/c XX1234 on 03Dec25 via NEFT. Avl Bal: Rs.5,430.10", "sender": "VM-SBIINB-S", "timestamp": %q}`, ts.Format(time.RFC3339)),
		fmt.Sprintf(`{"body": "Rs.230 paid to Sharma Stores via UPI", "sender": "BHIMUPI", "timestamp": %q}`, ts.Format(time.RFC3339)),
	}
	for _, body := range seeds {
		if rec := postJSON(t, mux, "/v1/messages", body); rec.Code != http.StatusOK {
			t.Fatalf("seed ingest failed: %d %s", rec.Code, rec.Body)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/transactions/summary", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Count       int64  `json:"count"`
		CreditCount int64  `json:"credit_count"`
		DebitCount  int64  `json:"debit_count"`
		CreditTotal string `json:"credit_total"`
		DebitTotal  string `json:"debit_total"`
		Net         string `json:"net"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 2 || resp.CreditCount != 1 || resp.DebitCount != 1 {
		t.Fatalf("unexpected counts: %+v", resp)
	}
	if resp.CreditTotal != "1250.00" || resp.DebitTotal != "230.00" {
		t.Fatalf("unexpected totals: %+v", resp)
	}
	if resp.Net != "1020.00" {
		t.Errorf("net = %q, want 1020.00 (credits minus debits)", resp.Net)
	}
}

func TestHandleMerchantStats(t *testing.T) {
	mux := newTestMux(newTestHandler(&memoryRepo{}))

	seeds := []string{
		fmt.Sprintf(`{"body": "Rs.230 paid to Sharma Stores via UPI", "sender": "BHIMUPI", "timestamp": %q}`, ts.Format(time.RFC3339)),
		fmt.Sprintf(`{"body": "Rs.270 paid to Sharma Stores via UPI", "sender": "BHIMUPI", "timestamp": %q}`, ts.Add(time.Hour).Format(time.RFC3339)),
	}
	for _, body := range seeds {
		if rec := postJSON(t, mux, "/v1/messages", body); rec.Code != http.StatusOK {
			t.Fatalf("seed ingest failed: %d %s", rec.Code, rec.Body)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/transactions/stats", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Merchants []struct {
			Merchant    string  `json:"merchant"`
			Count       int64   `json:"count"`
			Mean        float64 `json:"mean"`
			Reliability float64 `json:"reliability"`
			Rare        bool    `json:"rare"`
		} `json:"merchants"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Merchants) != 1 {
		t.Fatalf("expected 1 merchant, got %d", len(resp.Merchants))
	}
	m := resp.Merchants[0]
	if m.Merchant != "Sharma Stores" || m.Count != 2 {
		t.Fatalf("unexpected merchant row: %+v", m)
	}
	if m.Mean != 250 {
		t.Errorf("mean = %v, want 250", m.Mean)
	}
	if !m.Rare {
		t.Error("two rows must still count as rare")
	}
	if m.Reliability <= 0 || m.Reliability >= 1 {
		t.Errorf("reliability = %v, want a score strictly between 0 and 1", m.Reliability)
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	original := registry.Current()
	defer registry.Replace(original)

	mux := newTestMux(newTestHandler(&memoryRepo{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/registry", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rec.Code)
	}

	var table registry.Table
	if err := json.Unmarshal(rec.Body.Bytes(), &table); err != nil {
		t.Fatalf("decode table: %v", err)
	}
	if len(table.Institutions) == 0 {
		t.Fatal("expected institutions in the active table")
	}

	// Amend and replace the whole table.
	table.Institutions = append(table.Institutions, registry.Institution{
		Name: "TESTBANK", Tokens: []string{"TSTBNK"},
	})
	raw, _ := json.Marshal(table)

	putReq := httptest.NewRequest(http.MethodPut, "/v1/registry", bytes.NewReader(raw))
	putRec := httptest.NewRecorder()
	mux.ServeHTTP(putRec, putReq)
	if putRec.Code != http.StatusNoContent {
		t.Fatalf("PUT status = %d, want 204", putRec.Code)
	}

	if _, ok := registry.Current().MatchInstitution("AX-TSTBNK", ""); !ok {
		t.Error("expected new institution to be active after replace")
	}
}

func TestHandlePutRegistry_RejectsEmptyTable(t *testing.T) {
	mux := newTestMux(newTestHandler(&memoryRepo{}))

	putReq := httptest.NewRequest(http.MethodPut, "/v1/registry", strings.NewReader(`{"institutions": []}`))
	putRec := httptest.NewRecorder()
	mux.ServeHTTP(putRec, putReq)
	if putRec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", putRec.Code)
	}
}

// memoryRepo is a minimal in-memory IngestRepository for handler tests.
type memoryRepo struct {
	stored []*repository.StoredTransaction
	jobs   map[uuid.UUID]*repository.IngestJob
}

func (m *memoryRepo) InsertTransaction(ctx context.Context, tx *repository.StoredTransaction) (bool, error) {
	for _, existing := range m.stored {
		if existing.ExternalID == tx.ExternalID {
			return false, nil
		}
	}
	m.stored = append(m.stored, tx)
	return true, nil
}

func (m *memoryRepo) ExistingExternalIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	for _, tx := range m.stored {
		for _, id := range ids {
			if tx.ExternalID == id {
				existing[id] = struct{}{}
			}
		}
	}
	return existing, nil
}

func (m *memoryRepo) BulkInsertTransactions(ctx context.Context, txs []*repository.StoredTransaction) (int, error) {
	m.stored = append(m.stored, txs...)
	return len(txs), nil
}

func (m *memoryRepo) ListTransactions(ctx context.Context, filter repository.ListTransactionsFilter) ([]*repository.StoredTransaction, int64, error) {
	var out []*repository.StoredTransaction
	for _, tx := range m.stored {
		if filter.Direction != nil && tx.Direction != *filter.Direction {
			continue
		}
		if filter.Institution != nil && (tx.Institution == nil || *tx.Institution != *filter.Institution) {
			continue
		}
		out = append(out, tx)
	}
	return out, int64(len(out)), nil
}

func (m *memoryRepo) SummarizeTransactions(ctx context.Context, filter repository.ListTransactionsFilter) (*repository.TransactionSummary, error) {
	summary := &repository.TransactionSummary{}
	var credits, debits float64
	for _, tx := range m.stored {
		if filter.Direction != nil && tx.Direction != *filter.Direction {
			continue
		}
		if filter.Institution != nil && (tx.Institution == nil || *tx.Institution != *filter.Institution) {
			continue
		}
		summary.Count++
		switch tx.Direction {
		case "credit":
			summary.CreditCount++
		case "debit":
			summary.DebitCount++
		}
		if tx.Amount == nil {
			continue
		}
		v, err := strconv.ParseFloat(*tx.Amount, 64)
		if err != nil {
			continue
		}
		switch tx.Direction {
		case "credit":
			credits += v
		case "debit":
			debits += v
		}
	}
	summary.CreditTotal = strconv.FormatFloat(credits, 'f', 2, 64)
	summary.DebitTotal = strconv.FormatFloat(debits, 'f', 2, 64)
	summary.Net = strconv.FormatFloat(credits-debits, 'f', 2, 64)
	return summary, nil
}

func (m *memoryRepo) MerchantActivityStats(ctx context.Context) ([]repository.MerchantActivity, error) {
	amounts := make(map[string][]float64)
	for _, tx := range m.stored {
		if tx.Merchant == nil || tx.Amount == nil {
			continue
		}
		v, err := strconv.ParseFloat(*tx.Amount, 64)
		if err != nil {
			continue
		}
		amounts[*tx.Merchant] = append(amounts[*tx.Merchant], v)
	}

	var activity []repository.MerchantActivity
	for merchant, vs := range amounts {
		a := repository.MerchantActivity{Merchant: merchant, Count: int64(len(vs)), Min: vs[0], Max: vs[0]}
		var sum float64
		for _, v := range vs {
			sum += v
			a.Min = math.Min(a.Min, v)
			a.Max = math.Max(a.Max, v)
		}
		a.Mean = sum / float64(len(vs))
		var variance float64
		for _, v := range vs {
			variance += (v - a.Mean) * (v - a.Mean)
		}
		a.StdDev = math.Sqrt(variance / float64(len(vs)))
		activity = append(activity, a)
	}
	sort.Slice(activity, func(i, j int) bool {
		if activity[i].Count != activity[j].Count {
			return activity[i].Count > activity[j].Count
		}
		return activity[i].Merchant < activity[j].Merchant
	})
	return activity, nil
}

func (m *memoryRepo) CreateIngestJob(ctx context.Context, job *repository.IngestJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if m.jobs == nil {
		m.jobs = make(map[uuid.UUID]*repository.IngestJob)
	}
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *memoryRepo) GetIngestJobByID(ctx context.Context, id uuid.UUID) (*repository.IngestJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (m *memoryRepo) UpdateIngestJobProgress(ctx context.Context, id uuid.UUID, parsed, rejected, duplicate int) error {
	return nil
}

func (m *memoryRepo) FinishIngestJob(ctx context.Context, id uuid.UUID, status string, parsed, rejected, duplicate int, errorMessage *string) error {
	if job, ok := m.jobs[id]; ok {
		job.Status = status
		job.RowsParsed = parsed
		job.RowsRejected = rejected
		job.RowsDuplicate = duplicate
		job.ErrorMessage = errorMessage
	}
	return nil
}
