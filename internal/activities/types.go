package activities

import (
	"ruleflow/internal/citation"
	"ruleflow/internal/models"
	"ruleflow/internal/review"
)

type PlanCascadeInput struct {
	Target   string `json:"target"`
	CodeType string `json:"code_type"`
	RuleKind string `json:"rule_kind"`
	Force    string `json:"force,omitempty"`
}

type PlanCascadeOutput struct {
	Plan models.GenerationPlan `json:"plan"`
}

type ClaimRuleInput struct {
	Key models.RuleKey `json:"key"`
}

type ClaimRuleOutput struct {
	Claimed bool `json:"claimed"`
}

type UpdateRuleStatusInput struct {
	Key         models.RuleKey `json:"key"`
	Status      string         `json:"status"`
	ContentPath string         `json:"content_path,omitempty"`
	FailReason  string         `json:"fail_reason,omitempty"`
}

type GetRuleRecordInput struct {
	Key models.RuleKey `json:"key"`
}

type GetRuleRecordOutput struct {
	Found  bool               `json:"found"`
	Record *models.RuleRecord `json:"record,omitempty"`
}

type NearestAncestorContentInput struct {
	Pattern  string `json:"pattern"`
	CodeType string `json:"code_type"`
	RuleKind string `json:"rule_kind"`
}

type NearestAncestorContentOutput struct {
	Pattern     string `json:"pattern,omitempty"`
	ContentPath string `json:"content_path,omitempty"`
}

type LoadSourcesInput struct {
	Pattern  string `json:"pattern"`
	CodeType string `json:"code_type"`
}

type LoadSourcesOutput struct {
	Pages []models.Page `json:"pages"`
	// PromptContext carries one labeled entry per page, ready to hand to a
	// provider as grounding material.
	PromptContext []string `json:"prompt_context"`
}

type ReadRuleContentInput struct {
	Path string `json:"path"`
}

type ReadRuleContentOutput struct {
	Content string `json:"content"`
}

type LLMGenerateInput struct {
	Operation     string   `json:"operation"`
	Pattern       string   `json:"pattern"`
	CodeType      string   `json:"code_type"`
	RuleKind      string   `json:"rule_kind"`
	Prompt        string   `json:"prompt"`
	Context       []string `json:"context"`
	ProviderIndex int      `json:"provider_index"`
	ProviderRef   string   `json:"provider_ref,omitempty"`
}

type LLMGenerateOutput struct {
	Text         string `json:"text"`
	ProviderName string `json:"provider_name"`
	Model        string `json:"model"`
}

type VerifyCitationsInput struct {
	Text           string        `json:"text"`
	Pages          []models.Page `json:"pages"`
	FuzzyThreshold float64       `json:"fuzzy_threshold,omitempty"`
}

type VerifyCitationsOutput struct {
	Report citation.Report `json:"report"`
}

type ArbitrateInput struct {
	ContentRaw     string             `json:"content_raw"`
	AdversarialRaw string             `json:"adversarial_raw"`
	Findings       []citation.Finding `json:"findings"`
}

type ArbitrateOutput struct {
	Corrections []review.Correction `json:"corrections"`
}

type WriteRuleContentInput struct {
	Key     models.RuleKey `json:"key"`
	Content string         `json:"content"`
}

type WriteRuleContentOutput struct {
	Path string `json:"path"`
}

type UpdateCascadeRunInput struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	ReportPath string `json:"report_path,omitempty"`
}

type WriteCascadeReportInput struct {
	RunID  string `json:"run_id"`
	Report any    `json:"report"`
}

type WriteCascadeReportOutput struct {
	Path string `json:"path"`
}

type LogLLMCallInput struct {
	CallID       string `json:"call_id"`
	Operation    string `json:"operation"`
	Pattern      string `json:"pattern"`
	CodeType     string `json:"code_type"`
	RuleKind     string `json:"rule_kind"`
	ProviderName string `json:"provider_name"`
	Model        string `json:"model"`
	RequestID    string `json:"request_id"`
	Status       string `json:"status"`
	ErrorType    string `json:"error_type"`
}
