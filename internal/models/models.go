package models

import "time"

// Rule generation status values stored in rule_records.status.
const (
	StatusPending    = "pending"
	StatusGenerating = "generating"
	StatusReady      = "ready"
	StatusError      = "error"
)

// Rule kinds. Billing rules depend on a guideline rule existing at the exact
// same pattern (no ancestor substitution).
const (
	RuleKindGuideline = "guideline"
	RuleKindBilling   = "billing"
)

type RuleKey struct {
	Pattern  string `json:"pattern"`
	CodeType string `json:"code_type"`
	RuleKind string `json:"rule_kind"`
}

type RuleRecord struct {
	Pattern     string    `json:"pattern"`
	CodeType    string    `json:"code_type"`
	RuleKind    string    `json:"rule_kind"`
	Status      string    `json:"status"`
	HasOwnRule  bool      `json:"has_own_rule"`
	ContentPath string    `json:"content_path,omitempty"`
	FailReason  string    `json:"fail_reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r RuleRecord) Key() RuleKey {
	return RuleKey{Pattern: r.Pattern, CodeType: r.CodeType, RuleKind: r.RuleKind}
}

type Page struct {
	DocID  string `json:"doc_id"`
	Number int    `json:"page"`
	Text   string `json:"text"`
}

type SourceDocument struct {
	DocID    string `json:"doc_id"`
	Filename string `json:"filename"`
	Pages    []Page `json:"pages"`
}

type PlanStep struct {
	Pattern string `json:"pattern"`
	Level   int    `json:"level"`
}

// GenerationPlan is produced fresh per request and never persisted.
type GenerationPlan struct {
	Target             string     `json:"target"`
	CodeType           string     `json:"code_type"`
	RuleKind           string     `json:"rule_kind"`
	ToGenerate         []PlanStep `json:"to_generate"`
	Existing           []string   `json:"existing"`
	PrerequisiteMet    bool       `json:"prerequisite_met"`
	PrerequisiteReason string     `json:"prerequisite_reason,omitempty"`
}

type CascadeRun struct {
	RunID      string    `json:"run_id"`
	Target     string    `json:"target"`
	CodeType   string    `json:"code_type"`
	RuleKind   string    `json:"rule_kind"`
	Status     string    `json:"status"`
	ReportPath string    `json:"report_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// GenerationEvent kinds emitted by the orchestrator per stage.
const (
	EventStatus       = "status"
	EventContentChunk = "content_chunk"
	EventDone         = "done"
	EventError        = "error"
)

type GenerationEvent struct {
	JobPattern string `json:"job_pattern"`
	Stage      string `json:"stage"`
	Kind       string `json:"event_kind"`
	Payload    string `json:"payload,omitempty"`
}
