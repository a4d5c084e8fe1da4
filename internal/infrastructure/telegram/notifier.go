package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"AlertEnricher/internal/domain"
	"AlertEnricher/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram rejects messages over 4096 characters.
const maxMessageRunes = 4000

// Notifier sends a short card for each newly stored summary to a Telegram chat.
type Notifier struct {
	apiBase  string
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		apiBase:  defaultAPIBase,
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// WithAPIBase points the notifier at another Bot API host.
func (n *Notifier) WithAPIBase(base string) *Notifier {
	n.apiBase = strings.TrimRight(base, "/")
	return n
}

// PublishSummary posts one summary as plain text.
func (n *Notifier) PublishSummary(ctx context.Context, summary domain.Summary) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", FormatSummary(summary))
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	return nil
}

// FormatSummary renders the chat message for a summary.
func FormatSummary(s domain.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Alert %s on %s\n\n", s.AlertID, s.Machine)
	fmt.Fprintf(&b, "Opinion: %s\n", orDash(s.Opinion))
	fmt.Fprintf(&b, "Mitigation: %s\n", orDash(s.Mitigation))
	fmt.Fprintf(&b, "Details: %s", orDash(s.RelevantInfo))

	msg := []rune(b.String())
	if len(msg) > maxMessageRunes {
		return string(msg[:maxMessageRunes-1]) + "…"
	}
	return string(msg)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
