// Package api exposes the ledger, the answer cache and the invocation log
// of a data folder over HTTP and MCP. Both surfaces are read-only.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/applybot/internal/answers"
	"github.com/kalambet/applybot/internal/canon"
	"github.com/kalambet/applybot/internal/ledger"
	"github.com/kalambet/applybot/internal/llm"
)

// Store is the read side of a persistence backend. persist.Backend
// satisfies it.
type Store interface {
	ledger.Store
	answers.Store
	ListIdentities(ctx context.Context) ([]ledger.Identity, error)
	ListInvocations(ctx context.Context, limit int) ([]llm.InvocationRecord, error)
	CostSummary(ctx context.Context) (llm.CostSummary, error)
}

// Deps holds what the handlers read from.
type Deps struct {
	Store Store
	Token string
	// ApplyOnceAtCompany is the dedup policy used by ledger checks.
	ApplyOnceAtCompany bool
	Logger             *slog.Logger
}

// LedgerView is one ledger partition.
type LedgerView struct {
	UserLogin string           `json:"user_login"`
	JobTitle  string           `json:"job_title"`
	Companies ledger.Partition `json:"companies"`
}

// CheckResult answers whether a job would be skipped as a duplicate.
type CheckResult struct {
	Company string `json:"company"`
	Job     string `json:"job"`
	Handled bool   `json:"handled"`
}

// NewHandler returns the HTTP API. /health is public; everything else
// needs the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/ledger", handleLedger(deps))
		r.Get("/ledger/check", handleLedgerCheck(deps))
		r.Get("/answers", handleAnswers(deps))
		r.Get("/invocations", handleInvocations(deps))
		r.Get("/costs", handleCosts(deps))
	})
	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleLedger(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := identities(r, deps.Store)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list identities: %v", err)
			return
		}

		views := make([]LedgerView, 0, len(ids))
		for _, id := range ids {
			p, err := deps.Store.LoadPartition(r.Context(), id)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to load ledger for %s: %v", id, err)
				return
			}
			if p == nil {
				p = ledger.Partition{}
			}
			views = append(views, LedgerView{UserLogin: id.UserLogin, JobTitle: id.JobTitle, Companies: p})
		}
		writeJSON(w, views)
	}
}

// identities returns the identity named by the user and job_title query
// parameters, or every stored identity when they are absent.
func identities(r *http.Request, store Store) ([]ledger.Identity, error) {
	q := r.URL.Query()
	if user, title := q.Get("user"), q.Get("job_title"); user != "" && title != "" {
		return []ledger.Identity{{UserLogin: user, JobTitle: title}}, nil
	}
	return store.ListIdentities(r.Context())
}

func handleLedgerCheck(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		id := ledger.Identity{UserLogin: q.Get("user"), JobTitle: q.Get("job_title")}
		company, job := q.Get("company"), q.Get("job")
		if id.UserLogin == "" || id.JobTitle == "" || company == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user, job_title and company are required")
			return
		}

		res, err := CheckLedger(r.Context(), deps.Store, deps.ApplyOnceAtCompany, id, company, job)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, res)
	}
}

// CheckLedger reports whether the apply loop would skip job at company for
// id under the given policy.
func CheckLedger(ctx context.Context, store ledger.Store, once bool, id ledger.Identity, company, job string) (CheckResult, error) {
	l, err := ledger.Open(ctx, store, id, ledger.Options{ApplyOnceAtCompany: once, Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		return CheckResult{}, err
	}
	return CheckResult{
		Company: canon.Text(company),
		Job:     canon.Text(job),
		Handled: l.AlreadyHandled(company, job),
	}, nil
}

func handleAnswers(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cache, err := answers.Open(r.Context(), deps.Store, deps.Logger)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}

		if question := r.URL.Query().Get("question"); question != "" {
			answer, ok := cache.Lookup(question)
			if !ok {
				httpError(w, http.StatusNotFound, "not_found_error", "no answer for %q", canon.Text(question))
				return
			}
			writeJSON(w, answers.Entry{Question: canon.Text(question), Answer: answer})
			return
		}

		entries := cache.Entries()
		if entries == nil {
			entries = []answers.Entry{}
		}
		writeJSON(w, entries)
	}
}

func handleInvocations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		recs, err := deps.Store.ListInvocations(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list invocations: %v", err)
			return
		}
		if recs == nil {
			recs = []llm.InvocationRecord{}
		}
		writeJSON(w, recs)
	}
}

func handleCosts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := deps.Store.CostSummary(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to summarize costs: %v", err)
			return
		}
		writeJSON(w, sum)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
