package elastic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
	"github.com/kirillkom/movie-search-assistant/internal/infrastructure/resilience"
)

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode body %s: %v", raw, err)
	}
	return body
}

func TestExecuteSendsLexicalQueryAndDecodesHits(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/movies_inferred/_search" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "ApiKey secret" {
			t.Errorf("unexpected authorization %q", got)
		}
		captured = decodeBody(t, r)
		_, _ = w.Write([]byte(`{"took":7,"hits":{"total":{"value":12},"hits":[
			{"_id":"m1","_score":4.5,"_source":{"title":"Heat"}},
			{"_id":"m2","_score":null,"_source":{"title":"Ronin"}}
		]}}`))
	}))
	defer server.Close()

	client := New(server.URL, Options{APIKey: "secret"})
	query := domain.LexicalQuery{Match: domain.LexicalClause{Field: "body_content", Text: "heist"}, Size: 5}
	result, err := client.Execute(context.Background(), "movies_inferred", query, 5)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if result.Missing || len(result.Hits) != 2 || result.Total != 12 || result.Took != 7*time.Millisecond {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Hits[0].ID != "m1" || result.Hits[0].Score != 4.5 || result.Hits[0].Source["title"] != "Heat" {
		t.Fatalf("unexpected first hit %+v", result.Hits[0])
	}
	if captured["size"] != float64(5) {
		t.Fatalf("expected size 5, got %v", captured["size"])
	}
	should := captured["query"].(map[string]any)["bool"].(map[string]any)["should"].([]any)
	qs := should[0].(map[string]any)["query_string"].(map[string]any)
	if qs["default_field"] != "body_content" || qs["query"] != "heist" {
		t.Fatalf("unexpected query_string %v", qs)
	}
}

func TestExecuteFlagsMissingHitList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"took":1,"timed_out":false}`))
	}))
	defer server.Close()

	result, err := New(server.URL, Options{}).Execute(context.Background(), "movies", domain.LexicalQuery{Size: 5}, 5)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Missing {
		t.Fatalf("expected Missing for response without hits, got %+v", result)
	}
}

func TestExecuteEmptyHitListIsPresent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":0},"hits":[]}}`))
	}))
	defer server.Close()

	result, err := New(server.URL, Options{}).Execute(context.Background(), "movies", domain.LexicalQuery{Size: 5}, 5)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Missing || result.Hits == nil || len(result.Hits) != 0 {
		t.Fatalf("expected empty present hit list, got %+v", result)
	}
}

func TestExecuteIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"type":"index_not_found_exception"}}`, http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(server.URL, Options{}).Execute(context.Background(), "missing", domain.LexicalQuery{Size: 5}, 5)
	if err == nil || !strings.Contains(err.Error(), "index_not_found_exception") {
		t.Fatalf("expected error with body, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("404 must not be temporary")
	}
}

func TestExecuteMakesSingleRoundTripWhenUnavailable(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, Options{ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig())})
	_, err := client.Execute(context.Background(), "movies", domain.LexicalQuery{Size: 5}, 5)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 call, got %d", got)
	}
}

func TestExecuteUsesBasicAuthWithoutAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "elastic" || pass != "changeme" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"hits":{"hits":[]}}`))
	}))
	defer server.Close()

	client := New(server.URL, Options{Username: "elastic", Password: "changeme"})
	if _, err := client.Execute(context.Background(), "movies", domain.LexicalQuery{Size: 5}, 5); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
}
