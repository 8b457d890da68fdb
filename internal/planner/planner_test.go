package planner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ruleflow/internal/models"
	"ruleflow/internal/pattern"

	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	records map[models.RuleKey]models.RuleRecord
}

func newMemStore() *memStore {
	return &memStore{records: map[models.RuleKey]models.RuleRecord{}}
}

func (m *memStore) Get(_ context.Context, key models.RuleKey) (*models.RuleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memStore) Upsert(_ context.Context, rec models.RuleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.UpdatedAt = time.Now()
	m.records[rec.Key()] = rec
	return nil
}

func (m *memStore) CompareAndSetStatus(_ context.Context, key models.RuleKey, expected, next string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok || rec.Status != expected {
		return false, nil
	}
	rec.Status = next
	rec.UpdatedAt = time.Now()
	m.records[key] = rec
	return true, nil
}

func (m *memStore) ResetCascade(_ context.Context, keys []models.RuleKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		rec, ok := m.records[key]
		if !ok {
			continue
		}
		rec.Status = models.StatusPending
		m.records[key] = rec
	}
	return nil
}

func (m *memStore) put(pat, codeType, kind, status string) {
	m.records[models.RuleKey{Pattern: pat, CodeType: codeType, RuleKind: kind}] = models.RuleRecord{
		Pattern: pat, CodeType: codeType, RuleKind: kind, Status: status,
	}
}

func patterns(steps []models.PlanStep) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Pattern)
	}
	return out
}

func TestPlanFullCascadeRootFirst(t *testing.T) {
	store := newMemStore()
	p := New(store)

	plan, err := p.Plan(context.Background(), "E11.65", pattern.CodeTypeICD10, models.RuleKindGuideline, ForceNone)
	require.NoError(t, err)
	require.True(t, plan.PrerequisiteMet)
	require.Equal(t, []string{"E", "E11", "E11.6", "E11.65"}, patterns(plan.ToGenerate))
	require.Empty(t, plan.Existing)

	// Every planned pattern now has a pending record.
	for _, pat := range patterns(plan.ToGenerate) {
		rec, err := store.Get(context.Background(), models.RuleKey{Pattern: pat, CodeType: pattern.CodeTypeICD10, RuleKind: models.RuleKindGuideline})
		require.NoError(t, err)
		require.NotNil(t, rec)
		require.Equal(t, models.StatusPending, rec.Status)
	}
}

func TestPlanSkipsReadyAncestors(t *testing.T) {
	store := newMemStore()
	store.put("E", pattern.CodeTypeICD10, models.RuleKindGuideline, models.StatusReady)
	store.put("E11", pattern.CodeTypeICD10, models.RuleKindGuideline, models.StatusReady)
	p := New(store)

	plan, err := p.Plan(context.Background(), "E11.65", pattern.CodeTypeICD10, models.RuleKindGuideline, ForceNone)
	require.NoError(t, err)
	require.Equal(t, []string{"E11.6", "E11.65"}, patterns(plan.ToGenerate))
	require.Equal(t, []string{"E", "E11"}, plan.Existing)

	// Never propose a pattern already ready.
	for _, g := range patterns(plan.ToGenerate) {
		require.NotContains(t, plan.Existing, g)
	}
}

func TestPlanBillingRequiresExactPatternGuideline(t *testing.T) {
	store := newMemStore()
	// A guideline exists at "E" but not at the target "E11".
	store.put("E", pattern.CodeTypeICD10, models.RuleKindGuideline, models.StatusReady)
	p := New(store)

	plan, err := p.Plan(context.Background(), "E11", pattern.CodeTypeICD10, models.RuleKindBilling, ForceNone)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrPrerequisiteNotMet))
	require.False(t, plan.PrerequisiteMet)
	require.Contains(t, plan.PrerequisiteReason, "E11")
	require.Empty(t, plan.ToGenerate)
}

func TestPlanBillingWithGuidelinePresent(t *testing.T) {
	store := newMemStore()
	store.put("E11", pattern.CodeTypeICD10, models.RuleKindGuideline, models.StatusReady)
	p := New(store)

	plan, err := p.Plan(context.Background(), "E11", pattern.CodeTypeICD10, models.RuleKindBilling, ForceNone)
	require.NoError(t, err)
	require.True(t, plan.PrerequisiteMet)
	require.Equal(t, []string{"E", "E11"}, patterns(plan.ToGenerate))
}

func TestPlanInvalidPattern(t *testing.T) {
	p := New(newMemStore())
	_, err := p.Plan(context.Background(), "not-a-code", pattern.CodeTypeICD10, models.RuleKindGuideline, ForceNone)
	require.True(t, errors.Is(err, pattern.ErrInvalidPattern))
}

func TestPlanForceLeafResetsOnlyTarget(t *testing.T) {
	store := newMemStore()
	for _, pat := range []string{"E", "E11", "E11.6", "E11.65"} {
		store.put(pat, pattern.CodeTypeICD10, models.RuleKindGuideline, models.StatusReady)
	}
	p := New(store)

	plan, err := p.Plan(context.Background(), "E11.65", pattern.CodeTypeICD10, models.RuleKindGuideline, ForceLeaf)
	require.NoError(t, err)
	require.Equal(t, []string{"E11.65"}, patterns(plan.ToGenerate))
	require.Equal(t, []string{"E", "E11", "E11.6"}, plan.Existing)
}

func TestPlanForceCascadeResetsWholeChain(t *testing.T) {
	store := newMemStore()
	for _, pat := range []string{"E", "E11", "E11.6", "E11.65"} {
		store.put(pat, pattern.CodeTypeICD10, models.RuleKindGuideline, models.StatusReady)
	}
	p := New(store)

	plan, err := p.Plan(context.Background(), "E11.65", pattern.CodeTypeICD10, models.RuleKindGuideline, ForceCascade)
	require.NoError(t, err)
	require.Equal(t, []string{"E", "E11", "E11.6", "E11.65"}, patterns(plan.ToGenerate))
	require.Empty(t, plan.Existing)
}

func TestClaimRaceHasExactlyOneWinner(t *testing.T) {
	store := newMemStore()
	store.put("E11", pattern.CodeTypeICD10, models.RuleKindGuideline, models.StatusPending)
	p := New(store)
	key := models.RuleKey{Pattern: "E11", CodeType: pattern.CodeTypeICD10, RuleKind: models.RuleKindGuideline}

	const claimants = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, claimants)
	losses := make(chan error, claimants)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Claim(context.Background(), key); err != nil {
				losses <- err
				return
			}
			wins <- struct{}{}
		}()
	}
	wg.Wait()
	close(wins)
	close(losses)

	require.Len(t, wins, 1)
	require.Len(t, losses, claimants-1)
	for err := range losses {
		require.True(t, errors.Is(err, ErrConcurrentGeneration))
	}
}

func TestResolveContentOwnedRecord(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Upsert(context.Background(), models.RuleRecord{
		Pattern: "E11", CodeType: pattern.CodeTypeICD10, RuleKind: models.RuleKindGuideline,
		Status: models.StatusReady, HasOwnRule: true, ContentPath: "/data/out/rules/icd10/guideline/E11.md",
	}))
	p := New(store)

	path, servedBy, err := p.ResolveContent(context.Background(), models.RuleKey{
		Pattern: "E11", CodeType: pattern.CodeTypeICD10, RuleKind: models.RuleKindGuideline,
	})
	require.NoError(t, err)
	require.Equal(t, "/data/out/rules/icd10/guideline/E11.md", path)
	require.Equal(t, "E11", servedBy)
}

func TestResolveContentInheritsFromNearestReadyAncestor(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Upsert(context.Background(), models.RuleRecord{
		Pattern: "E11", CodeType: pattern.CodeTypeICD10, RuleKind: models.RuleKindGuideline,
		Status: models.StatusReady, HasOwnRule: true, ContentPath: "/data/out/rules/icd10/guideline/E11.md",
	}))
	// Ready status without an own artifact never serves content.
	require.NoError(t, store.Upsert(context.Background(), models.RuleRecord{
		Pattern: "E11.6", CodeType: pattern.CodeTypeICD10, RuleKind: models.RuleKindGuideline,
		Status: models.StatusReady,
	}))
	p := New(store)

	path, servedBy, err := p.ResolveContent(context.Background(), models.RuleKey{
		Pattern: "E11.65", CodeType: pattern.CodeTypeICD10, RuleKind: models.RuleKindGuideline,
	})
	require.NoError(t, err)
	require.Equal(t, "/data/out/rules/icd10/guideline/E11.md", path)
	require.Equal(t, "E11", servedBy)
}

func TestResolveContentEmptyWhenNothingReady(t *testing.T) {
	store := newMemStore()
	store.put("E11", pattern.CodeTypeICD10, models.RuleKindGuideline, models.StatusPending)
	p := New(store)

	path, servedBy, err := p.ResolveContent(context.Background(), models.RuleKey{
		Pattern: "E11.65", CodeType: pattern.CodeTypeICD10, RuleKind: models.RuleKindGuideline,
	})
	require.NoError(t, err)
	require.Empty(t, path)
	require.Empty(t, servedBy)
}

func TestClaimErrorRecordIsRetryable(t *testing.T) {
	store := newMemStore()
	store.put("E11", pattern.CodeTypeICD10, models.RuleKindGuideline, models.StatusError)
	p := New(store)
	key := models.RuleKey{Pattern: "E11", CodeType: pattern.CodeTypeICD10, RuleKind: models.RuleKindGuideline}

	require.NoError(t, p.Claim(context.Background(), key))
	err := p.Claim(context.Background(), key)
	require.True(t, errors.Is(err, ErrConcurrentGeneration))
}
