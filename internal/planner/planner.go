package planner

import (
	"context"
	"errors"
	"fmt"

	"ruleflow/internal/models"
	"ruleflow/internal/pattern"
)

var (
	// ErrPrerequisiteNotMet is returned when a dependent rule kind is
	// requested before its exact-pattern prerequisite exists. The caller gets
	// the missing prerequisite identified; it is never generated implicitly.
	ErrPrerequisiteNotMet = errors.New("prerequisite rule not met")

	// ErrConcurrentGeneration means a compare-and-set claim lost a race.
	// Callers should treat it as "already in progress", not a failure.
	ErrConcurrentGeneration = errors.New("generation already in progress")
)

// RuleStore is the persistence contract this core consumes. Any relational
// or key-value backend suffices; storage.RuleRepo is the pgx implementation.
type RuleStore interface {
	Get(ctx context.Context, key models.RuleKey) (*models.RuleRecord, error)
	Upsert(ctx context.Context, rec models.RuleRecord) error
	// CompareAndSetStatus atomically moves key from expected to next and
	// reports whether the transition won.
	CompareAndSetStatus(ctx context.Context, key models.RuleKey, expected, next string) (bool, error)
	// ResetCascade forces the given records back to pending.
	ResetCascade(ctx context.Context, keys []models.RuleKey) error
}

// ForceMode selects how much of an existing cascade a caller regenerates.
// This is an explicit caller choice, never inferred.
type ForceMode string

const (
	ForceNone    ForceMode = ""
	ForceLeaf    ForceMode = "leaf"
	ForceCascade ForceMode = "cascade"
)

type Planner struct {
	store RuleStore
}

func New(store RuleStore) *Planner {
	return &Planner{store: store}
}

// Plan computes the root-first list of hierarchy levels lacking a ready rule
// for the target code, checking the exact-pattern prerequisite for dependent
// rule kinds. Records are created in pending when first referenced.
func (p *Planner) Plan(ctx context.Context, target, codeType, ruleKind string, force ForceMode) (models.GenerationPlan, error) {
	plan := models.GenerationPlan{Target: target, CodeType: codeType, RuleKind: ruleKind}

	ancestors, err := pattern.Ancestors(target, codeType)
	if err != nil {
		return plan, err
	}

	// Root-first chain ending at the target itself.
	chain := make([]string, 0, len(ancestors)+1)
	for i := len(ancestors) - 1; i >= 0; i-- {
		chain = append(chain, ancestors[i])
	}
	chain = append(chain, target)

	switch force {
	case ForceNone:
	case ForceLeaf:
		if err := p.store.ResetCascade(ctx, []models.RuleKey{{Pattern: target, CodeType: codeType, RuleKind: ruleKind}}); err != nil {
			return plan, fmt.Errorf("reset target: %w", err)
		}
	case ForceCascade:
		keys := make([]models.RuleKey, 0, len(chain))
		for _, pat := range chain {
			keys = append(keys, models.RuleKey{Pattern: pat, CodeType: codeType, RuleKind: ruleKind})
		}
		if err := p.store.ResetCascade(ctx, keys); err != nil {
			return plan, fmt.Errorf("reset cascade: %w", err)
		}
	default:
		return plan, fmt.Errorf("unknown force mode %q", force)
	}

	// Dependent rule kinds require their prerequisite at the exact target
	// pattern; an ancestor's prerequisite does not substitute.
	if prereq, ok := prerequisiteKind(ruleKind); ok {
		rec, err := p.store.Get(ctx, models.RuleKey{Pattern: target, CodeType: codeType, RuleKind: prereq})
		if err != nil {
			return plan, fmt.Errorf("get prerequisite: %w", err)
		}
		if rec == nil || rec.Status != models.StatusReady {
			plan.PrerequisiteReason = fmt.Sprintf("no ready %s rule at pattern %q", prereq, target)
			return plan, fmt.Errorf("%w: %s", ErrPrerequisiteNotMet, plan.PrerequisiteReason)
		}
	}
	plan.PrerequisiteMet = true

	for _, pat := range chain {
		key := models.RuleKey{Pattern: pat, CodeType: codeType, RuleKind: ruleKind}
		rec, err := p.store.Get(ctx, key)
		if err != nil {
			return plan, fmt.Errorf("get rule record: %w", err)
		}
		if rec != nil && rec.Status == models.StatusReady {
			plan.Existing = append(plan.Existing, pat)
			continue
		}
		if rec == nil {
			if err := p.store.Upsert(ctx, models.RuleRecord{
				Pattern:  pat,
				CodeType: codeType,
				RuleKind: ruleKind,
				Status:   models.StatusPending,
			}); err != nil {
				return plan, fmt.Errorf("create pending record: %w", err)
			}
		}
		lvl, err := pattern.Level(pat, codeType)
		if err != nil {
			return plan, err
		}
		plan.ToGenerate = append(plan.ToGenerate, models.PlanStep{Pattern: pat, Level: lvl})
	}
	return plan, nil
}

// ResolveContent returns the content path that serves a pattern: the
// record's own artifact when it generated one, otherwise the nearest ready
// ancestor's. The pattern whose content is served comes back alongside the
// path, so callers can tell an inherited answer from an owned one.
func (p *Planner) ResolveContent(ctx context.Context, key models.RuleKey) (string, string, error) {
	rec, err := p.store.Get(ctx, key)
	if err != nil {
		return "", "", fmt.Errorf("get rule record: %w", err)
	}
	if hasOwnContent(rec) {
		return rec.ContentPath, key.Pattern, nil
	}
	ancestors, err := pattern.Ancestors(key.Pattern, key.CodeType)
	if err != nil {
		return "", "", err
	}
	for _, anc := range ancestors {
		arec, err := p.store.Get(ctx, models.RuleKey{Pattern: anc, CodeType: key.CodeType, RuleKind: key.RuleKind})
		if err != nil {
			return "", "", fmt.Errorf("get ancestor record: %w", err)
		}
		if hasOwnContent(arec) {
			return arec.ContentPath, anc, nil
		}
	}
	return "", "", nil
}

func hasOwnContent(rec *models.RuleRecord) bool {
	return rec != nil && rec.Status == models.StatusReady && rec.HasOwnRule && rec.ContentPath != ""
}

// Claim takes the at-most-one-concurrent-generation lock for a key before
// drafting starts. pending and error records are claimable; generating is
// not, so a lost race surfaces as ErrConcurrentGeneration.
func (p *Planner) Claim(ctx context.Context, key models.RuleKey) error {
	for _, expected := range []string{models.StatusPending, models.StatusError} {
		won, err := p.store.CompareAndSetStatus(ctx, key, expected, models.StatusGenerating)
		if err != nil {
			return fmt.Errorf("claim %s: %w", key.Pattern, err)
		}
		if won {
			return nil
		}
	}
	return fmt.Errorf("%w: %s/%s/%s", ErrConcurrentGeneration, key.Pattern, key.CodeType, key.RuleKind)
}

func prerequisiteKind(ruleKind string) (string, bool) {
	if ruleKind == models.RuleKindBilling {
		return models.RuleKindGuideline, true
	}
	return "", false
}
