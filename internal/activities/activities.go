package activities

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ruleflow/internal/citation"
	"ruleflow/internal/config"
	"ruleflow/internal/models"
	"ruleflow/internal/pattern"
	"ruleflow/internal/planner"
	"ruleflow/internal/providers"
	"ruleflow/internal/retrieval"
	"ruleflow/internal/review"
	"ruleflow/internal/source"
	"ruleflow/internal/storage"
	"ruleflow/internal/util"
)

type Activities struct {
	cfg          config.Config
	ruleRepo     *storage.RuleRepo
	docRepo      *storage.DocumentRepo
	cascadeRepo  *storage.CascadeRepo
	llmAuditRepo *storage.LLMAuditRepo
	planner      *planner.Planner
	providers    *providers.Manager
}

func New(cfg config.Config, db *storage.DB) (*Activities, error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	ruleRepo := storage.NewRuleRepo(db)
	return &Activities{
		cfg:          cfg,
		ruleRepo:     ruleRepo,
		docRepo:      storage.NewDocumentRepo(db),
		cascadeRepo:  storage.NewCascadeRepo(db),
		llmAuditRepo: storage.NewLLMAuditRepo(db),
		planner:      planner.New(ruleRepo),
		providers:    pm,
	}, nil
}

func (a *Activities) PlanCascadeActivity(ctx context.Context, in PlanCascadeInput) (PlanCascadeOutput, error) {
	plan, err := a.planner.Plan(ctx, in.Target, in.CodeType, in.RuleKind, planner.ForceMode(in.Force))
	if err != nil {
		return PlanCascadeOutput{}, err
	}
	return PlanCascadeOutput{Plan: plan}, nil
}

func (a *Activities) ClaimRuleActivity(ctx context.Context, in ClaimRuleInput) (ClaimRuleOutput, error) {
	err := a.planner.Claim(ctx, in.Key)
	if err != nil {
		if errors.Is(err, planner.ErrConcurrentGeneration) {
			return ClaimRuleOutput{Claimed: false}, nil
		}
		return ClaimRuleOutput{}, err
	}
	return ClaimRuleOutput{Claimed: true}, nil
}

func (a *Activities) UpdateRuleStatusActivity(ctx context.Context, in UpdateRuleStatusInput) error {
	return a.ruleRepo.UpdateStatus(ctx, in.Key, in.Status, in.ContentPath, in.FailReason)
}

func (a *Activities) GetRuleRecordActivity(ctx context.Context, in GetRuleRecordInput) (GetRuleRecordOutput, error) {
	rec, err := a.ruleRepo.Get(ctx, in.Key)
	if err != nil {
		return GetRuleRecordOutput{}, err
	}
	if rec == nil {
		return GetRuleRecordOutput{Found: false}, nil
	}
	return GetRuleRecordOutput{Found: true, Record: rec}, nil
}

// NearestAncestorContentActivity walks the ancestry chain nearest-first and
// returns the first ready rule's content path, so a job can seed its prompt
// with the closest finished generalization.
func (a *Activities) NearestAncestorContentActivity(ctx context.Context, in NearestAncestorContentInput) (NearestAncestorContentOutput, error) {
	ancestors, err := pattern.Ancestors(in.Pattern, in.CodeType)
	if err != nil {
		return NearestAncestorContentOutput{}, err
	}
	for _, anc := range ancestors {
		rec, err := a.ruleRepo.Get(ctx, models.RuleKey{Pattern: anc, CodeType: in.CodeType, RuleKind: in.RuleKind})
		if err != nil {
			return NearestAncestorContentOutput{}, err
		}
		if rec != nil && rec.Status == models.StatusReady && rec.ContentPath != "" {
			return NearestAncestorContentOutput{Pattern: anc, ContentPath: rec.ContentPath}, nil
		}
	}
	return NearestAncestorContentOutput{}, nil
}

func (a *Activities) LoadSourcesActivity(ctx context.Context, in LoadSourcesInput) (LoadSourcesOutput, error) {
	docs, _, err := retrieval.SelectSources(ctx, a.docRepo, in.Pattern, in.CodeType)
	if err != nil {
		return LoadSourcesOutput{}, err
	}
	out := LoadSourcesOutput{}
	for _, d := range docs {
		for _, p := range d.Pages {
			if strings.TrimSpace(p.Text) == "" {
				continue
			}
			out.Pages = append(out.Pages, p)
			out.PromptContext = append(out.PromptContext,
				fmt.Sprintf("[doc %s (%s), page %d]\n%s", p.DocID, d.Filename, p.Number, p.Text))
		}
	}
	if len(out.Pages) == 0 {
		return LoadSourcesOutput{}, fmt.Errorf("sources for %s contain no page text", in.Pattern)
	}
	return out, nil
}

func (a *Activities) ReadRuleContentActivity(ctx context.Context, in ReadRuleContentInput) (ReadRuleContentOutput, error) {
	b, err := os.ReadFile(in.Path)
	if err != nil {
		return ReadRuleContentOutput{}, fmt.Errorf("read rule content: %w", err)
	}
	return ReadRuleContentOutput{Content: string(b)}, nil
}

func (a *Activities) LLMGenerateActivity(ctx context.Context, in LLMGenerateInput) (LLMGenerateOutput, error) {
	if in.ProviderRef != "" {
		if idx := a.providers.FindLLMProviderIndex(in.ProviderRef); idx >= 0 {
			in.ProviderIndex = idx
		} else {
			return LLMGenerateOutput{}, fmt.Errorf("llm provider ref not configured in worker: %s", in.ProviderRef)
		}
	}
	provider, ref := a.providers.LLMProviderByIndex(in.ProviderIndex)
	resp, info, err := provider.Generate(ctx, providers.GenerateRequest{
		Operation: in.Operation,
		Prompt:    in.Prompt,
		Context:   in.Context,
	})
	if err != nil {
		return LLMGenerateOutput{}, fmt.Errorf("llm generate via %s failed: %w", ref.Raw, err)
	}
	return LLMGenerateOutput{
		Text:         resp.Text,
		ProviderName: info.Name,
		Model:        info.Model,
	}, nil
}

func (a *Activities) VerifyCitationsActivity(ctx context.Context, in VerifyCitationsInput) (VerifyCitationsOutput, error) {
	byDoc := map[string]*models.SourceDocument{}
	order := make([]string, 0)
	for _, p := range in.Pages {
		d, ok := byDoc[p.DocID]
		if !ok {
			d = &models.SourceDocument{DocID: p.DocID}
			byDoc[p.DocID] = d
			order = append(order, p.DocID)
		}
		d.Pages = append(d.Pages, p)
	}
	docs := make([]models.SourceDocument, 0, len(order))
	for _, id := range order {
		docs = append(docs, *byDoc[id])
	}
	idx, err := source.Build(docs)
	if err != nil {
		return VerifyCitationsOutput{}, fmt.Errorf("index verification sources: %w", err)
	}
	threshold := in.FuzzyThreshold
	if threshold <= 0 {
		threshold = a.cfg.FuzzyThreshold
	}
	v := citation.NewVerifier(idx, citation.Config{FuzzyThreshold: threshold})
	return VerifyCitationsOutput{Report: v.Verify(in.Text)}, nil
}

func (a *Activities) ArbitrateActivity(ctx context.Context, in ArbitrateInput) (ArbitrateOutput, error) {
	content, err := review.ParseCritique(review.SourceContent, in.ContentRaw)
	if err != nil {
		return ArbitrateOutput{}, fmt.Errorf("content critique: %w", err)
	}
	adversarial, err := review.ParseCritique(review.SourceAdversarial, in.AdversarialRaw)
	if err != nil {
		return ArbitrateOutput{}, fmt.Errorf("adversarial critique: %w", err)
	}
	return ArbitrateOutput{Corrections: review.Arbitrate(content, adversarial, in.Findings)}, nil
}

func (a *Activities) WriteRuleContentActivity(ctx context.Context, in WriteRuleContentInput) (WriteRuleContentOutput, error) {
	name := strings.ReplaceAll(in.Key.Pattern, ":", "_")
	path := filepath.Join(a.cfg.DataOutRoot, "rules", in.Key.CodeType, in.Key.RuleKind, name+".md")
	if err := util.WriteTextAtomic(path, in.Content); err != nil {
		return WriteRuleContentOutput{}, err
	}
	return WriteRuleContentOutput{Path: path}, nil
}

func (a *Activities) WriteCascadeReportActivity(ctx context.Context, in WriteCascadeReportInput) (WriteCascadeReportOutput, error) {
	path := filepath.Join(a.cfg.DataOutRoot, "cascades", in.RunID, "report.json")
	if err := util.WriteJSONAtomic(path, in.Report); err != nil {
		return WriteCascadeReportOutput{}, err
	}
	return WriteCascadeReportOutput{Path: path}, nil
}

func (a *Activities) UpdateCascadeRunActivity(ctx context.Context, in UpdateCascadeRunInput) error {
	return a.cascadeRepo.UpdateRunStatus(ctx, in.RunID, in.Status, in.ReportPath)
}

func (a *Activities) LogLLMCallActivity(ctx context.Context, in LogLLMCallInput) error {
	return a.llmAuditRepo.Insert(ctx, storage.LLMCallRecord{
		CallID:       in.CallID,
		Operation:    in.Operation,
		Pattern:      in.Pattern,
		CodeType:     in.CodeType,
		RuleKind:     in.RuleKind,
		ProviderName: in.ProviderName,
		Model:        in.Model,
		RequestID:    in.RequestID,
		Status:       in.Status,
		ErrorType:    in.ErrorType,
	})
}
