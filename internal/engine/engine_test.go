package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/applybot/internal/llm"
)

func TestNew_UnknownVendor(t *testing.T) {
	_, err := New(context.Background(), Config{Vendor: "mystery", Model: "m"})
	if err == nil || !strings.Contains(err.Error(), "unknown vendor") {
		t.Fatalf("err = %v, want unknown vendor", err)
	}
}

func TestNew_RequiresKey(t *testing.T) {
	for _, v := range []string{VendorOpenAI, VendorOpenRouter, VendorAnthropic, VendorGemini} {
		if _, err := New(context.Background(), Config{Vendor: v, Model: "m"}); err == nil {
			t.Errorf("New(%s) without key: err = nil, want error", v)
		}
	}
}

func TestNew_OllamaNeedsNoKey(t *testing.T) {
	b, err := New(context.Background(), Config{Vendor: VendorOllama, Model: "llama3.2"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := b.(ModelManager); !ok {
		t.Error("ollama backend does not implement ModelManager")
	}
}

func TestOpenAI_Invoke(t *testing.T) {
	var gotAuth, gotTitle string
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotTitle = r.Header.Get("X-Title")
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"model":"gpt-4o-mini-2024-07-18","choices":[{"message":{"content":"5 years"}}],"usage":{"prompt_tokens":120,"completion_tokens":3,"total_tokens":123}}`)
	}))
	defer srv.Close()

	b, err := New(context.Background(), Config{Vendor: VendorOpenRouter, Model: "gpt-4o-mini", APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	reply, err := b.Invoke(context.Background(), []llm.Message{{Role: "user", Content: "How long with Go?"}})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotTitle != "applybot" {
		t.Errorf("X-Title = %q, want applybot", gotTitle)
	}
	if got.Model != "gpt-4o-mini" || got.Temperature != nil {
		t.Errorf("request = %+v", got)
	}
	if reply.Content != "5 years" || reply.Model != "gpt-4o-mini-2024-07-18" {
		t.Errorf("reply = %+v", reply)
	}
	if reply.Usage != (llm.Usage{InputTokens: 120, OutputTokens: 3, TotalTokens: 123}) {
		t.Errorf("usage = %+v", reply.Usage)
	}
}

func TestOpenAI_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After-Ms", "1500")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	b, _ := New(context.Background(), Config{Vendor: VendorOpenAI, Model: "gpt-4o", APIKey: "k", BaseURL: srv.URL})
	_, err := b.Invoke(context.Background(), nil)

	var rl *llm.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %v, want *llm.RateLimitError", err)
	}
	if rl.RetryAfter != 1500*time.Millisecond {
		t.Errorf("RetryAfter = %s, want 1.5s", rl.RetryAfter)
	}
}

func TestOpenAI_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	b, _ := New(context.Background(), Config{Vendor: VendorOpenAI, Model: "gpt-4o", APIKey: "k", BaseURL: srv.URL})
	_, err := b.Invoke(context.Background(), nil)
	if !llm.IsPermanent(err) {
		t.Errorf("err = %v, want permanent", err)
	}
}

func TestAnthropic_Invoke(t *testing.T) {
	var got messagesRequest
	var gotKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"model":"claude-3-5-haiku-20241022","content":[{"type":"text","text":"Hello"},{"type":"text","text":" there"}],"usage":{"input_tokens":10,"output_tokens":2}}`)
	}))
	defer srv.Close()

	b, err := New(context.Background(), Config{Vendor: VendorAnthropic, Model: "claude-3-5-haiku", APIKey: "ak", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	reply, err := b.Invoke(context.Background(), []llm.Message{
		{Role: "system", Content: "Be brief."},
		{Role: "user", Content: "Hi"},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if gotKey != "ak" || gotVersion != anthropicVersion {
		t.Errorf("headers = %q/%q", gotKey, gotVersion)
	}
	if got.System != "Be brief." || len(got.Messages) != 1 || got.MaxTokens != anthropicMaxTokens {
		t.Errorf("request = %+v", got)
	}
	if reply.Content != "Hello there" {
		t.Errorf("content = %q", reply.Content)
	}
	if reply.Usage.TotalTokens != 12 {
		t.Errorf("total = %d, want 12", reply.Usage.TotalTokens)
	}
}

func TestAnthropic_OverloadedIsRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
	}))
	defer srv.Close()

	b, _ := New(context.Background(), Config{Vendor: VendorAnthropic, Model: "m", APIKey: "k", BaseURL: srv.URL})
	_, err := b.Invoke(context.Background(), nil)
	var rl *llm.RateLimitError
	if !errors.As(err, &rl) {
		t.Errorf("err = %v, want *llm.RateLimitError", err)
	}
}

func TestOllama_Invoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"model":"llama3.2:latest","message":{"role":"assistant","content":"Go"},"prompt_eval_count":40,"eval_count":1}`)
	}))
	defer srv.Close()

	b, _ := New(context.Background(), Config{Vendor: VendorOllama, Model: "llama3.2", BaseURL: srv.URL})
	reply, err := b.Invoke(context.Background(), []llm.Message{{Role: "user", Content: "Favorite language?"}})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if reply.Content != "Go" || reply.Usage.TotalTokens != 41 {
		t.Errorf("reply = %+v", reply)
	}
}

func TestOllama_StatusMapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	b, _ := New(context.Background(), Config{Vendor: VendorOllama, Model: "nope", BaseURL: srv.URL})
	_, err := b.Invoke(context.Background(), nil)
	if !llm.IsPermanent(err) {
		t.Errorf("err = %v, want permanent", err)
	}
}

func TestEnsureReady_PullsMissingModel(t *testing.T) {
	var pulled atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			if pulled.Load() {
				io.WriteString(w, `{"models":[{"name":"llama3.2:latest"}]}`)
				return
			}
			io.WriteString(w, `{"models":[]}`)
		case "/api/pull":
			pulled.Store(true)
			io.WriteString(w, `{"status":"downloading","total":10,"completed":5}`+"\n"+`{"status":"success"}`+"\n")
		}
	}))
	defer srv.Close()

	b, _ := New(context.Background(), Config{Vendor: VendorOllama, Model: "llama3.2", BaseURL: srv.URL})
	var out bytes.Buffer
	if err := EnsureReady(context.Background(), b, "llama3.2", &out); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if !pulled.Load() {
		t.Error("model was not pulled")
	}
	if !strings.Contains(out.String(), "downloading 50%") {
		t.Errorf("output = %q, want progress line", out.String())
	}
}

func TestEnsureReady_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	b, _ := New(context.Background(), Config{Vendor: VendorOllama, Model: "llama3.2", BaseURL: srv.URL})
	if err := EnsureReady(context.Background(), b, "llama3.2", io.Discard); err == nil {
		t.Error("EnsureReady on closed server: err = nil, want error")
	}
}

func TestEnsureReady_RemoteBackendIsNoop(t *testing.T) {
	b, _ := New(context.Background(), Config{Vendor: VendorOpenAI, Model: "gpt-4o", APIKey: "k"})
	if err := EnsureReady(context.Background(), b, "gpt-4o", io.Discard); err != nil {
		t.Errorf("EnsureReady: %v", err)
	}
}
