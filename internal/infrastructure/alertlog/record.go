package alertlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"AlertEnricher/internal/domain"
)

type wireAlert struct {
	ID   json.RawMessage `json:"id"`
	Rule struct {
		Level json.RawMessage `json:"level"`
	} `json:"rule"`
	Agent struct {
		Name string `json:"name"`
	} `json:"agent"`
}

// ParseLine decodes one log line. Only id, rule.level and agent.name are
// interpreted; the full line is kept as the record payload.
func ParseLine(line []byte) (domain.AlertRecord, error) {
	if len(line) == 0 || line[0] != '{' {
		return domain.AlertRecord{}, errors.New("not a JSON object")
	}

	var w wireAlert
	if err := json.Unmarshal(line, &w); err != nil {
		return domain.AlertRecord{}, fmt.Errorf("decode alert: %w", err)
	}

	id, rawID, err := numericField(w.ID)
	if err != nil {
		return domain.AlertRecord{}, fmt.Errorf("alert id: %w", err)
	}

	// An unreadable level behaves like a missing one and can only pass a threshold <= 0.
	level, _, err := numericField(w.Rule.Level)
	if err != nil {
		level = 0
	}

	return domain.AlertRecord{
		ID:        id,
		RawID:     rawID,
		Severity:  int(level),
		AgentName: strings.TrimSpace(w.Agent.Name),
		Raw:       append(json.RawMessage(nil), line...),
	}, nil
}

// numericField accepts a JSON number or a numeric string. Absent values are 0.
func numericField(raw json.RawMessage) (int64, string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, "", nil
	}

	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, "", err
		}
	} else {
		text = string(raw)
	}

	n, err := CoerceInt(text)
	if err != nil {
		return 0, text, err
	}
	return n, text, nil
}

// CoerceInt converts integer or float-looking text to an int64, truncating
// toward zero, so "42.0", "42.9" and "42" all yield 42.
func CoerceInt(text string) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, errors.New("empty number")
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, nil
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("not numeric: %q", text)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not finite: %q", text)
	}
	f = math.Trunc(f)
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("out of range: %q", text)
	}
	return int64(f), nil
}
