package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"AlertEnricher/internal/config"
	"AlertEnricher/internal/domain"
	"AlertEnricher/internal/metrics"
	"AlertEnricher/internal/ports"
)

const generatePath = "/api/generate"

const promptHeader = `You are a cybersecurity analyst. Analyze this alert and generate:

1. An opinion on what this alert means.
2. Recommended mitigation steps.
3. Any relevant info about the alert.
4. Identify the machine name involved.

Here is the alert JSON:
`

// OllamaClient implements ports.Enricher against an Ollama generate endpoint.
type OllamaClient struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

var _ ports.Enricher = (*OllamaClient)(nil)

// NewOllamaClient builds a client from configuration. A zero timeout leaves
// the request bounded only by the caller's context.
func NewOllamaClient(cfg config.EnrichmentConfig) *OllamaClient {
	return &OllamaClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response *string `json:"response"`
}

// Enrich asks the model about one alert. Every failure comes back as a
// *domain.EnrichmentError.
func (c *OllamaClient) Enrich(ctx context.Context, alert domain.AlertRecord) (domain.Enrichment, error) {
	start := time.Now()
	text, err := c.generate(ctx, BuildPrompt(alert))
	if err != nil {
		metrics.EnrichmentLatency.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return domain.Enrichment{}, &domain.EnrichmentError{AlertID: alert.Key(), Err: err}
	}
	metrics.EnrichmentLatency.WithLabelValues("success").Observe(time.Since(start).Seconds())

	return ParseResponse(text, alert.Machine()), nil
}

func (c *OllamaClient) generate(ctx context.Context, prompt string) (string, error) {
	if c.endpoint == "" || c.model == "" {
		return "", errors.New("ollama client misconfigured")
	}

	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("marshal generate payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+generatePath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("ollama error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Response == nil {
		return "", errors.New("no response field in ollama reply")
	}
	if strings.TrimSpace(*out.Response) == "" {
		return "", errors.New("empty response from model")
	}
	return *out.Response, nil
}

// BuildPrompt renders the analyst instruction followed by the alert JSON
// indented with two spaces.
func BuildPrompt(alert domain.AlertRecord) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, alert.Raw, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(alert.Raw)
	}

	var b strings.Builder
	b.Grow(len(promptHeader) + pretty.Len() + 1)
	b.WriteString(promptHeader)
	b.Write(pretty.Bytes())
	b.WriteByte('\n')
	return b.String()
}

// ParseResponse maps the first three lines of the model output to opinion,
// mitigation and relevant info. The mapping is positional and best effort:
// models do not reliably follow the numbered layout, and nothing here checks
// that they did. Missing lines become empty strings.
func ParseResponse(text, machine string) domain.Enrichment {
	parts := strings.Split(strings.TrimSpace(text), "\n")
	line := func(i int) string {
		if i < len(parts) {
			return domain.SanitizeText(parts[i])
		}
		return ""
	}
	return domain.Enrichment{
		Opinion:      line(0),
		Mitigation:   line(1),
		RelevantInfo: line(2),
		Machine:      machine,
	}
}
