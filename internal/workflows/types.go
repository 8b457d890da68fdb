package workflows

import "ruleflow/internal/models"

type CascadeGenerateInput struct {
	RunID           string   `json:"run_id"`
	Target          string   `json:"target"`
	CodeType        string   `json:"code_type"`
	RuleKind        string   `json:"rule_kind"`
	Force           string   `json:"force,omitempty"`
	LLMProviders    int      `json:"llm_providers"`
	LLMProviderRefs []string `json:"llm_provider_refs,omitempty"`
	CooldownSeconds int      `json:"cooldown_seconds"`
	CitationSoftCap int      `json:"citation_soft_cap"`
	CitationHardCap int      `json:"citation_hard_cap"`
	FuzzyThreshold  float64  `json:"fuzzy_threshold"`
}

type RuleGenerateInput struct {
	Pattern           string   `json:"pattern"`
	CodeType          string   `json:"code_type"`
	RuleKind          string   `json:"rule_kind"`
	ParentContentPath string   `json:"parent_content_path,omitempty"`
	PrereqContentPath string   `json:"prereq_content_path,omitempty"`
	LLMProviders      int      `json:"llm_providers"`
	LLMProviderRefs   []string `json:"llm_provider_refs,omitempty"`
	CooldownSeconds   int      `json:"cooldown_seconds"`
	CitationSoftCap   int      `json:"citation_soft_cap"`
	CitationHardCap   int      `json:"citation_hard_cap"`
	FuzzyThreshold    float64  `json:"fuzzy_threshold"`
}

// RuleGenerateResult statuses. "in_progress" means another workflow holds
// the claim; the job neither succeeded nor failed.
const (
	ResultReady      = "ready"
	ResultError      = "error"
	ResultInProgress = "in_progress"
)

type RuleGenerateResult struct {
	Status      string `json:"status"`
	ContentPath string `json:"content_path,omitempty"`
	FailReason  string `json:"fail_reason,omitempty"`
}

// Stage names, in execution order.
const (
	StageQueued      = "queued"
	StageDrafting    = "drafting"
	StageCritiquing  = "critiquing"
	StageArbitrating = "arbitrating"
	StageFinalizing  = "finalizing"
)

type RuleProgress struct {
	Pattern    string                   `json:"pattern"`
	CodeType   string                   `json:"code_type"`
	RuleKind   string                   `json:"rule_kind"`
	Stage      string                   `json:"stage"`
	Status     string                   `json:"status"`
	FailReason string                   `json:"fail_reason,omitempty"`
	Providers  []string                 `json:"providers_used,omitempty"`
	Events     []models.GenerationEvent `json:"events"`
}

type CascadeProgress struct {
	RunID         string                   `json:"run_id"`
	Target        string                   `json:"target"`
	Total         int                      `json:"total"`
	Done          int                      `json:"done"`
	Failed        int                      `json:"failed"`
	Skipped       int                      `json:"skipped"`
	PerPattern    map[string]string        `json:"per_pattern_status"`
	ChildWorkflow map[string]string        `json:"child_workflow_ids,omitempty"`
	Events        []models.GenerationEvent `json:"events"`
}

// CascadeReport records partial success: which patterns reached ready, which
// job failed and why, and which planned patterns were never attempted.
type CascadeReport struct {
	RunID          string   `json:"run_id"`
	Target         string   `json:"target"`
	CodeType       string   `json:"code_type"`
	RuleKind       string   `json:"rule_kind"`
	Ready          []string `json:"ready"`
	AlreadyExisted []string `json:"already_existed,omitempty"`
	FailedPattern  string   `json:"failed_pattern,omitempty"`
	FailReason     string   `json:"fail_reason,omitempty"`
	Skipped        []string `json:"skipped,omitempty"`
	Completed      bool     `json:"completed"`
}
