package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"AlertEnricher/internal/config"
	"AlertEnricher/internal/domain"
)

func testAlert() domain.AlertRecord {
	return domain.AlertRecord{
		ID:        42,
		RawID:     "42",
		Severity:  7,
		AgentName: "web-01",
		Raw:       json.RawMessage(`{"id":"42","rule":{"level":7},"agent":{"name":"web-01"}}`),
	}
}

func newClient(url string) *OllamaClient {
	return NewOllamaClient(config.EnrichmentConfig{Endpoint: url + "/", Model: "phi3:mini", TimeoutSeconds: 5})
}

func TestOllamaClientEnrich(t *testing.T) {
	t.Parallel()

	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/generate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"response": "\n  Likely SSH brute force.\\nRepeated failures.\nBlock the source IP.\nSeen 40 times in 5 minutes.\nMachine: web-01\n",
		})
	}))
	t.Cleanup(server.Close)

	enrichment, err := newClient(server.URL).Enrich(context.Background(), testAlert())
	if err != nil {
		t.Fatalf("Enrich returned error: %v", err)
	}

	if got.Model != "phi3:mini" || got.Stream {
		t.Fatalf("unexpected request body: %+v", got)
	}
	if !strings.HasPrefix(got.Prompt, "You are a cybersecurity analyst.") {
		t.Fatalf("prompt missing preamble: %q", got.Prompt)
	}
	if !strings.Contains(got.Prompt, "4. Identify the machine name involved.") {
		t.Fatalf("prompt missing instructions: %q", got.Prompt)
	}
	if !strings.Contains(got.Prompt, "\n  \"rule\": {\n    \"level\": 7\n  },") {
		t.Fatalf("alert JSON not indented with two spaces: %q", got.Prompt)
	}

	want := domain.Enrichment{
		Opinion:      "Likely SSH brute force. Repeated failures.",
		Mitigation:   "Block the source IP.",
		RelevantInfo: "Seen 40 times in 5 minutes.",
		Machine:      "web-01",
	}
	if enrichment != want {
		t.Fatalf("Enrich() = %+v, want %+v", enrichment, want)
	}
}

func TestOllamaClientFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "model not loaded", http.StatusInternalServerError)
			},
			wantErr: "model not loaded",
		},
		{
			name: "missing response field",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"done":true}`))
			},
			wantErr: "no response field",
		},
		{
			name: "blank response",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"response":"  \n "}`))
			},
			wantErr: "empty response",
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
			wantErr: "decode response",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(tc.handler)
			t.Cleanup(server.Close)

			_, err := newClient(server.URL).Enrich(context.Background(), testAlert())
			var enrichErr *domain.EnrichmentError
			if !errors.As(err, &enrichErr) {
				t.Fatalf("expected EnrichmentError, got %v", err)
			}
			if enrichErr.AlertID != "42" {
				t.Fatalf("AlertID = %q, want 42", enrichErr.AlertID)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestOllamaClientHonoursContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newClient(server.URL).Enrich(ctx, testAlert())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	got := ParseResponse("only an opinion", "unknown")
	want := domain.Enrichment{Opinion: "only an opinion", Machine: "unknown"}
	if got != want {
		t.Fatalf("ParseResponse() = %+v, want %+v", got, want)
	}

	got = ParseResponse("a\nb\nc\nd\ne", "m")
	if got.Opinion != "a" || got.Mitigation != "b" || got.RelevantInfo != "c" {
		t.Fatalf("unexpected positional mapping: %+v", got)
	}
}

func TestBuildPromptFallsBackToRaw(t *testing.T) {
	t.Parallel()

	prompt := BuildPrompt(domain.AlertRecord{Raw: []byte("{broken")})
	if !strings.HasSuffix(prompt, "Here is the alert JSON:\n{broken\n") {
		t.Fatalf("unexpected prompt tail: %q", prompt)
	}
}

type stubEnricher struct {
	calls atomic.Int32
	err   error
}

func (s *stubEnricher) Enrich(_ context.Context, alert domain.AlertRecord) (domain.Enrichment, error) {
	s.calls.Add(1)
	if s.err != nil {
		return domain.Enrichment{}, &domain.EnrichmentError{AlertID: alert.Key(), Err: s.err}
	}
	return domain.Enrichment{Opinion: "ok", Machine: alert.Machine()}, nil
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	stub := &stubEnricher{err: errors.New("connection refused")}
	enricher := WithBreaker(stub, config.BreakerConfig{Failures: 3, OpenSeconds: 60}, nil)

	for i := 0; i < 3; i++ {
		if _, err := enricher.Enrich(context.Background(), testAlert()); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	if got := enricher.(*BreakerEnricher).State(); got != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", got)
	}

	_, err := enricher.Enrich(context.Background(), testAlert())
	var enrichErr *domain.EnrichmentError
	if !errors.As(err, &enrichErr) || !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected fail-fast EnrichmentError, got %v", err)
	}
	if stub.calls.Load() != 3 {
		t.Fatalf("wrapped enricher called %d times, want 3", stub.calls.Load())
	}
}

func TestBreakerPassesThroughSuccess(t *testing.T) {
	t.Parallel()

	stub := &stubEnricher{}
	enricher := WithBreaker(stub, config.BreakerConfig{Failures: 2, OpenSeconds: 1}, nil)

	got, err := enricher.Enrich(context.Background(), testAlert())
	if err != nil {
		t.Fatalf("Enrich returned error: %v", err)
	}
	if got.Opinion != "ok" || got.Machine != "web-01" {
		t.Fatalf("unexpected enrichment: %+v", got)
	}
}

func TestBreakerDisabled(t *testing.T) {
	t.Parallel()

	stub := &stubEnricher{}
	if got := WithBreaker(stub, config.BreakerConfig{}, nil); got != stub {
		t.Fatalf("expected the wrapped enricher back when failures is zero")
	}
}
