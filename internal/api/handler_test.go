package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/kalambet/applybot/internal/answers"
	"github.com/kalambet/applybot/internal/ledger"
	"github.com/kalambet/applybot/internal/llm"
	"github.com/kalambet/applybot/internal/storage"
)

const testToken = "test-token-12345"

var alice = ledger.Identity{UserLogin: "alice", JobTitle: "backend-engineer"}

func seededStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if err := store.SavePartition(ctx, alice, ledger.Partition{"acme": {"go developer"}}); err != nil {
		t.Fatalf("SavePartition: %v", err)
	}
	if err := store.AppendAnswer(ctx, answers.Entry{Question: "why go?", Answer: "Because."}); err != nil {
		t.Fatalf("AppendAnswer: %v", err)
	}
	rec := llm.InvocationRecord{
		ID: "inv-1", Model: "gpt-4o-mini", Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Reply: "Personal information", InputTokens: 100, OutputTokens: 20, TotalTokens: 120, Cost: 0.5,
	}
	if err := store.AppendInvocation(ctx, rec); err != nil {
		t.Fatalf("AppendInvocation: %v", err)
	}
	return store
}

func setupHandler(t *testing.T, once bool) http.Handler {
	t.Helper()
	return NewHandler(Deps{Store: seededStore(t), Token: testToken, ApplyOnceAtCompany: once})
}

func get(t *testing.T, h http.Handler, url, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
}

func TestHealth_NoAuth(t *testing.T) {
	h := setupHandler(t, true)
	rr := get(t, h, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := rr.Body.String(); got != `{"status":"ok"}` {
		t.Errorf("body = %q", got)
	}
}

func TestAuth_Rejected(t *testing.T) {
	h := setupHandler(t, true)
	for _, token := range []string{"", "wrong"} {
		rr := get(t, h, "/ledger", token)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, rr.Code)
		}
	}
}

func TestAuth_EmptyServerTokenRejectsAll(t *testing.T) {
	h := NewHandler(Deps{Store: seededStore(t)})
	req := httptest.NewRequest(http.MethodGet, "/costs", nil)
	req.Header.Set("Authorization", "Bearer ")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestLedger_All(t *testing.T) {
	h := setupHandler(t, true)
	var views []LedgerView
	decode(t, get(t, h, "/ledger", testToken), &views)

	if len(views) != 1 {
		t.Fatalf("got %d views, want 1", len(views))
	}
	v := views[0]
	if v.UserLogin != "alice" || v.JobTitle != "backend-engineer" {
		t.Errorf("identity = %s/%s", v.UserLogin, v.JobTitle)
	}
	if jobs := v.Companies["acme"]; len(jobs) != 1 || jobs[0] != "go developer" {
		t.Errorf("acme jobs = %v", jobs)
	}
}

func TestLedger_UnknownIdentityIsEmpty(t *testing.T) {
	h := setupHandler(t, true)
	var views []LedgerView
	decode(t, get(t, h, "/ledger?user=bob&job_title=qa", testToken), &views)

	if len(views) != 1 || len(views[0].Companies) != 0 {
		t.Fatalf("views = %+v, want one empty partition", views)
	}
}

func TestLedgerCheck_Policies(t *testing.T) {
	tests := []struct {
		once bool
		job  string
		want bool
	}{
		{true, "Go Developer", true},
		{true, "Rust Developer", true},
		{false, "Go Developer", true},
		{false, "Rust Developer", false},
	}
	for _, tt := range tests {
		h := setupHandler(t, tt.once)
		var res CheckResult
		target := "/ledger/check?user=alice&job_title=backend-engineer&company=ACME&job=" + url.QueryEscape(tt.job)
		decode(t, get(t, h, target, testToken), &res)
		if res.Handled != tt.want {
			t.Errorf("once=%v job=%q: handled = %v, want %v", tt.once, tt.job, res.Handled, tt.want)
		}
		if res.Company != "acme" {
			t.Errorf("company = %q, want canonical %q", res.Company, "acme")
		}
	}
}

func TestLedgerCheck_MissingParams(t *testing.T) {
	h := setupHandler(t, true)
	rr := get(t, h, "/ledger/check?user=alice", testToken)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestAnswers_ListAndLookup(t *testing.T) {
	h := setupHandler(t, true)

	var entries []answers.Entry
	decode(t, get(t, h, "/answers", testToken), &entries)
	if len(entries) != 1 || entries[0].Answer != "Because." {
		t.Fatalf("entries = %+v", entries)
	}

	var e answers.Entry
	decode(t, get(t, h, "/answers?question=Why+Go%3F", testToken), &e)
	if e.Answer != "Because." {
		t.Errorf("answer = %q, want %q", e.Answer, "Because.")
	}

	rr := get(t, h, "/answers?question=unknown", testToken)
	if rr.Code != http.StatusNotFound {
		t.Errorf("miss status = %d, want 404", rr.Code)
	}
}

func TestInvocationsAndCosts(t *testing.T) {
	h := setupHandler(t, true)

	var recs []llm.InvocationRecord
	decode(t, get(t, h, "/invocations?limit=5", testToken), &recs)
	if len(recs) != 1 || recs[0].ID != "inv-1" {
		t.Fatalf("invocations = %+v", recs)
	}

	var sum llm.CostSummary
	decode(t, get(t, h, "/costs", testToken), &sum)
	if sum.Calls != 1 || sum.TotalTokens != 120 || sum.Cost != 0.5 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=-1", 20},
		{"limit=abc", 20},
		{"limit=1000", 100},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
		if got := parseIntParam(r, "limit", 20, 100); got != tt.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
