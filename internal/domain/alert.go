package domain

import "encoding/json"

// DefaultMachine is reported when an alert carries no agent name.
const DefaultMachine = "unknown"

// AlertRecord is one parsed line of the alert log. ID is the numeric id used
// for selection and checkpoints; RawID is the id as written, see Key.
type AlertRecord struct {
	ID        int64
	RawID     string
	Severity  int
	AgentName string
	Raw       json.RawMessage
}

// Machine returns the agent name, falling back to DefaultMachine.
func (a AlertRecord) Machine() string {
	if a.AgentName == "" {
		return DefaultMachine
	}
	return a.AgentName
}

// Enrichment is the model-derived part of a summary.
type Enrichment struct {
	Opinion      string
	Mitigation   string
	RelevantInfo string
	Machine      string
}

// Summary is the persisted enrichment of a single alert, keyed by AlertID
// (the alert's Key). Seq carries the numeric id for ordering.
type Summary struct {
	AlertID      string `json:"alert_id"`
	Seq          int64  `json:"-"`
	Opinion      string `json:"opinion"`
	Mitigation   string `json:"mitigation"`
	RelevantInfo string `json:"relevant_info"`
	Machine      string `json:"machine"`
}

// NewSummary binds an enrichment to its alert.
func NewSummary(alert AlertRecord, e Enrichment) Summary {
	return Summary{
		AlertID:      alert.Key(),
		Seq:          alert.ID,
		Opinion:      e.Opinion,
		Mitigation:   e.Mitigation,
		RelevantInfo: e.RelevantInfo,
		Machine:      e.Machine,
	}
}

// UpsertResult reports what an insert-if-absent did.
type UpsertResult int

const (
	Inserted UpsertResult = iota + 1
	AlreadyExists
)

func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case AlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}
