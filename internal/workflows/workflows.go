package workflows

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ruleflow/internal/activities"
	"ruleflow/internal/citation"
	"ruleflow/internal/models"
	"ruleflow/internal/providers"
	"ruleflow/internal/review"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryGetRuleProgress    = "GetRuleProgress"
	QueryGetCascadeProgress = "GetCascadeProgress"
)

// Job-level failure kinds. These terminate the affected job, never the
// cascade workflow itself; the cascade reports partial success.
var (
	ErrCitationFabrication = errors.New("citation_fabrication")
	ErrStageFailure        = errors.New("stage_failure")
)

type providerState struct {
	disabledUntil map[int]time.Time
	retries       map[string]int
}

func newProviderState() providerState {
	return providerState{disabledUntil: map[int]time.Time{}, retries: map[string]int{}}
}

func CascadeGenerateWorkflow(ctx workflow.Context, input CascadeGenerateInput) (CascadeReport, error) {
	progress := CascadeProgress{
		RunID:         input.RunID,
		Target:        input.Target,
		PerPattern:    map[string]string{},
		ChildWorkflow: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetCascadeProgress, func() (CascadeProgress, error) {
		return progress, nil
	}); err != nil {
		return CascadeReport{}, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	_ = workflow.ExecuteActivity(ctx, "UpdateCascadeRunActivity", activities.UpdateCascadeRunInput{RunID: input.RunID, Status: "running"}).Get(ctx, nil)

	var planOut activities.PlanCascadeOutput
	if err := workflow.ExecuteActivity(ctx, "PlanCascadeActivity", activities.PlanCascadeInput{
		Target:   input.Target,
		CodeType: input.CodeType,
		RuleKind: input.RuleKind,
		Force:    input.Force,
	}).Get(ctx, &planOut); err != nil {
		_ = workflow.ExecuteActivity(ctx, "UpdateCascadeRunActivity", activities.UpdateCascadeRunInput{RunID: input.RunID, Status: "failed"}).Get(ctx, nil)
		return CascadeReport{}, err
	}
	plan := planOut.Plan
	progress.Total = len(plan.ToGenerate)

	report := CascadeReport{
		RunID:          input.RunID,
		Target:         input.Target,
		CodeType:       input.CodeType,
		RuleKind:       input.RuleKind,
		AlreadyExisted: plan.Existing,
	}

	parentPath := ""
	if len(plan.ToGenerate) > 0 {
		first := plan.ToGenerate[0].Pattern
		var anc activities.NearestAncestorContentOutput
		if err := workflow.ExecuteActivity(ctx, "NearestAncestorContentActivity", activities.NearestAncestorContentInput{
			Pattern:  first,
			CodeType: input.CodeType,
			RuleKind: input.RuleKind,
		}).Get(ctx, &anc); err != nil {
			// Ancestor content only enriches the first job's context; a lookup
			// failure is recorded, not fatal.
			progress.Events = append(progress.Events, models.GenerationEvent{
				JobPattern: first, Stage: StageQueued, Kind: models.EventStatus,
				Payload: "ancestor context unavailable: " + err.Error(),
			})
		} else {
			parentPath = anc.ContentPath
		}
	}

	for i, step := range plan.ToGenerate {
		progress.PerPattern[step.Pattern] = "processing"
		progress.Events = append(progress.Events, models.GenerationEvent{
			JobPattern: step.Pattern, Stage: StageQueued, Kind: models.EventStatus, Payload: "started",
		})

		prereqPath := ""
		if step.Pattern == input.Target && input.RuleKind == models.RuleKindBilling {
			var prereq activities.GetRuleRecordOutput
			_ = workflow.ExecuteActivity(ctx, "GetRuleRecordActivity", activities.GetRuleRecordInput{
				Key: models.RuleKey{Pattern: step.Pattern, CodeType: input.CodeType, RuleKind: models.RuleKindGuideline},
			}).Get(ctx, &prereq)
			if prereq.Found {
				prereqPath = prereq.Record.ContentPath
			}
		}

		workflowID := "rule-" + sanitizeID(input.CodeType+"-"+input.RuleKind+"-"+step.Pattern)
		cwo := workflow.ChildWorkflowOptions{WorkflowID: workflowID}
		childCtx := workflow.WithChildOptions(ctx, cwo)
		progress.ChildWorkflow[step.Pattern] = workflowID

		var res RuleGenerateResult
		err := workflow.ExecuteChildWorkflow(childCtx, RuleGenerateWorkflow, RuleGenerateInput{
			Pattern:           step.Pattern,
			CodeType:          input.CodeType,
			RuleKind:          input.RuleKind,
			ParentContentPath: parentPath,
			PrereqContentPath: prereqPath,
			LLMProviders:      input.LLMProviders,
			LLMProviderRefs:   input.LLMProviderRefs,
			CooldownSeconds:   input.CooldownSeconds,
			CitationSoftCap:   input.CitationSoftCap,
			CitationHardCap:   input.CitationHardCap,
			FuzzyThreshold:    input.FuzzyThreshold,
		}).Get(ctx, &res)
		if err != nil {
			res = RuleGenerateResult{Status: ResultError, FailReason: err.Error()}
		}

		switch res.Status {
		case ResultReady:
			progress.Done++
			progress.PerPattern[step.Pattern] = models.StatusReady
			progress.Events = append(progress.Events, models.GenerationEvent{
				JobPattern: step.Pattern, Stage: StageFinalizing, Kind: models.EventDone,
			})
			report.Ready = append(report.Ready, step.Pattern)
			parentPath = res.ContentPath
			continue
		case ResultInProgress:
			res.FailReason = "pattern is being generated by another workflow"
		}

		progress.Failed++
		progress.PerPattern[step.Pattern] = models.StatusError
		progress.Events = append(progress.Events, models.GenerationEvent{
			JobPattern: step.Pattern, Stage: StageFinalizing, Kind: models.EventError, Payload: res.FailReason,
		})
		report.FailedPattern = step.Pattern
		report.FailReason = res.FailReason
		// A failed ancestor invalidates every deeper pattern in this run;
		// already finished ancestors stay ready.
		for _, rest := range plan.ToGenerate[i+1:] {
			progress.Skipped++
			progress.PerPattern[rest.Pattern] = "skipped"
			report.Skipped = append(report.Skipped, rest.Pattern)
		}
		break
	}

	report.Completed = report.FailedPattern == ""
	runStatus := "completed"
	if !report.Completed {
		runStatus = "failed"
	}

	var reportOut activities.WriteCascadeReportOutput
	if err := workflow.ExecuteActivity(ctx, "WriteCascadeReportActivity", activities.WriteCascadeReportInput{
		RunID:  input.RunID,
		Report: report,
	}).Get(ctx, &reportOut); err != nil {
		return report, err
	}
	_ = workflow.ExecuteActivity(ctx, "UpdateCascadeRunActivity", activities.UpdateCascadeRunInput{
		RunID: input.RunID, Status: runStatus, ReportPath: reportOut.Path,
	}).Get(ctx, nil)
	return report, nil
}

func RuleGenerateWorkflow(ctx workflow.Context, input RuleGenerateInput) (RuleGenerateResult, error) {
	progress := RuleProgress{
		Pattern:  input.Pattern,
		CodeType: input.CodeType,
		RuleKind: input.RuleKind,
		Stage:    StageQueued,
		Status:   "processing",
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetRuleProgress, func() (RuleProgress, error) {
		return progress, nil
	}); err != nil {
		return RuleGenerateResult{}, err
	}
	emit := func(kind, payload string) {
		progress.Events = append(progress.Events, models.GenerationEvent{
			JobPattern: input.Pattern, Stage: progress.Stage, Kind: kind, Payload: payload,
		})
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	key := models.RuleKey{Pattern: input.Pattern, CodeType: input.CodeType, RuleKind: input.RuleKind}
	cooldown := durationOrDefault(input.CooldownSeconds, 900)
	providerCount := input.LLMProviders
	if providerCount <= 0 {
		providerCount = 1
	}
	softCap := input.CitationSoftCap
	if softCap <= 0 {
		softCap = 3
	}
	hardCap := input.CitationHardCap
	if hardCap < softCap {
		hardCap = softCap + 2
	}
	state := newProviderState()

	fail := func(reason string) (RuleGenerateResult, error) {
		progress.Status = ResultError
		progress.FailReason = reason
		emit(models.EventError, reason)
		_ = workflow.ExecuteActivity(ctx, "UpdateRuleStatusActivity", activities.UpdateRuleStatusInput{
			Key: key, Status: models.StatusError, FailReason: reason,
		}).Get(ctx, nil)
		return RuleGenerateResult{Status: ResultError, FailReason: reason}, nil
	}

	var claim activities.ClaimRuleOutput
	if err := workflow.ExecuteActivity(ctx, "ClaimRuleActivity", activities.ClaimRuleInput{Key: key}).Get(ctx, &claim); err != nil {
		return RuleGenerateResult{}, err
	}
	if !claim.Claimed {
		progress.Status = ResultInProgress
		return RuleGenerateResult{Status: ResultInProgress}, nil
	}

	// A cancelled run must not leave the claim stuck in generating. Already
	// finished ancestors are untouched; only this job's record moves to error.
	defer func() {
		if ctx.Err() == nil || progress.Status == ResultReady {
			return
		}
		cleanup, _ := workflow.NewDisconnectedContext(ctx)
		cleanup = workflow.WithActivityOptions(cleanup, ao)
		_ = workflow.ExecuteActivity(cleanup, "UpdateRuleStatusActivity", activities.UpdateRuleStatusInput{
			Key: key, Status: models.StatusError, FailReason: "generation canceled",
		}).Get(cleanup, nil)
	}()

	var src activities.LoadSourcesOutput
	if err := workflow.ExecuteActivity(ctx, "LoadSourcesActivity", activities.LoadSourcesInput{
		Pattern: input.Pattern, CodeType: input.CodeType,
	}).Get(ctx, &src); err != nil {
		return fail(stageFailure("load_sources", err))
	}

	contextWindow := make([]string, 0, len(src.PromptContext)+2)
	if input.ParentContentPath != "" {
		var parent activities.ReadRuleContentOutput
		if err := workflow.ExecuteActivity(ctx, "ReadRuleContentActivity", activities.ReadRuleContentInput{Path: input.ParentContentPath}).Get(ctx, &parent); err == nil && parent.Content != "" {
			contextWindow = append(contextWindow, "[ancestor rule]\n"+parent.Content)
		}
	}
	if input.PrereqContentPath != "" {
		var prereq activities.ReadRuleContentOutput
		if err := workflow.ExecuteActivity(ctx, "ReadRuleContentActivity", activities.ReadRuleContentInput{Path: input.PrereqContentPath}).Get(ctx, &prereq); err == nil && prereq.Content != "" {
			contextWindow = append(contextWindow, "[guideline rule for this pattern]\n"+prereq.Content)
		}
	}
	contextWindow = append(contextWindow, src.PromptContext...)

	verify := func(text string) (citation.Report, error) {
		var out activities.VerifyCitationsOutput
		err := workflow.ExecuteActivity(ctx, "VerifyCitationsActivity", activities.VerifyCitationsInput{
			Text: text, Pages: src.Pages, FuzzyThreshold: input.FuzzyThreshold,
		}).Get(ctx, &out)
		return out.Report, err
	}

	progress.Stage = StageDrafting
	emit(models.EventStatus, "drafting")
	draftIn := activities.LLMGenerateInput{
		Operation: "rule_draft",
		Pattern:   input.Pattern,
		CodeType:  input.CodeType,
		RuleKind:  input.RuleKind,
		Prompt:    draftPrompt(input),
		Context:   contextWindow,
	}
	draftOut, _, err := callLLMWithFailover(ctx, &state, providerCount, input.LLMProviderRefs, cooldown, draftIn)
	if err != nil {
		return fail(stageFailure(StageDrafting, err))
	}
	progress.Providers = append(progress.Providers, draftOut.ProviderName)
	draft := draftOut.Text
	emit(models.EventContentChunk, snippet(draft))

	report, err := verify(draft)
	if err != nil {
		return fail(stageFailure("verify_draft", err))
	}
	if redraft, reason := draftGate(report, softCap, hardCap); reason != "" {
		return fail(reason)
	} else if redraft {
		emit(models.EventStatus, "redrafting after citation errors")
		redraftIn := draftIn
		redraftIn.Prompt = draftIn.Prompt + "\n\nYour previous draft had unverifiable citations. Fix them:\n" + report.ErrorSummary()
		draftOut, _, err = callLLMWithFailover(ctx, &state, providerCount, input.LLMProviderRefs, cooldown, redraftIn)
		if err != nil {
			return fail(stageFailure(StageDrafting, err))
		}
		draft = draftOut.Text
		report, err = verify(draft)
		if err != nil {
			return fail(stageFailure("verify_draft", err))
		}
		if redo, reason := draftGate(report, softCap, hardCap); redo || reason != "" {
			if reason == "" {
				reason = fabricationFailure(report)
			}
			return fail(reason)
		}
	}
	draftFindings := report.Findings

	// Two independent reviews of the same immutable draft, run concurrently.
	progress.Stage = StageCritiquing
	emit(models.EventStatus, "critiquing")
	critiqueCtx, cancelCritiques := workflow.WithCancel(ctx)
	critiqueContext := append([]string{"[draft under review]\n" + draft}, src.PromptContext...)
	// The adversarial pass goes to a different provider when one is
	// configured, so the two reviews are not the same model agreeing with
	// itself.
	adversarialIdx := 0
	if providerCount > 1 {
		adversarialIdx = 1
	}
	contentFuture := workflow.ExecuteActivity(critiqueCtx, "LLMGenerateActivity", activities.LLMGenerateInput{
		Operation:     "rule_critique_content",
		Pattern:       input.Pattern,
		CodeType:      input.CodeType,
		RuleKind:      input.RuleKind,
		Prompt:        critiquePrompt("content", input),
		Context:       critiqueContext,
		ProviderIndex: 0,
		ProviderRef:   providerRefAt(input.LLMProviderRefs, 0),
	})
	adversarialFuture := workflow.ExecuteActivity(critiqueCtx, "LLMGenerateActivity", activities.LLMGenerateInput{
		Operation:     "rule_critique_adversarial",
		Pattern:       input.Pattern,
		CodeType:      input.CodeType,
		RuleKind:      input.RuleKind,
		Prompt:        critiquePrompt("adversarial", input),
		Context:       critiqueContext,
		ProviderIndex: adversarialIdx,
		ProviderRef:   providerRefAt(input.LLMProviderRefs, adversarialIdx),
	})

	var contentOut activities.LLMGenerateOutput
	if err := contentFuture.Get(ctx, &contentOut); err != nil {
		cancelCritiques()
		return fail(stageFailure(StageCritiquing, err))
	}
	var adversarialOut activities.LLMGenerateOutput
	if err := adversarialFuture.Get(ctx, &adversarialOut); err != nil {
		return fail(stageFailure(StageCritiquing, err))
	}
	cancelCritiques()

	// Critique outputs go through the same verifier; their findings extend
	// the corroboration set used during arbitration.
	findings := append([]citation.Finding{}, draftFindings...)
	for _, raw := range []string{contentOut.Text, adversarialOut.Text} {
		rep, err := verify(raw)
		if err != nil {
			return fail(stageFailure("verify_critique", err))
		}
		findings = append(findings, rep.Findings...)
	}

	progress.Stage = StageArbitrating
	emit(models.EventStatus, "arbitrating")
	var arb activities.ArbitrateOutput
	if err := workflow.ExecuteActivity(ctx, "ArbitrateActivity", activities.ArbitrateInput{
		ContentRaw:     contentOut.Text,
		AdversarialRaw: adversarialOut.Text,
		Findings:       findings,
	}).Get(ctx, &arb); err != nil {
		return fail(stageFailure(StageArbitrating, err))
	}

	progress.Stage = StageFinalizing
	emit(models.EventStatus, "finalizing")
	finalText := draft
	if len(arb.Corrections) > 0 {
		finalIn := activities.LLMGenerateInput{
			Operation: "rule_finalize",
			Pattern:   input.Pattern,
			CodeType:  input.CodeType,
			RuleKind:  input.RuleKind,
			Prompt:    finalizePrompt(input, arb.Corrections),
			Context:   append([]string{"[draft]\n" + draft}, src.PromptContext...),
		}
		finalOut, _, err := callLLMWithFailover(ctx, &state, providerCount, input.LLMProviderRefs, cooldown, finalIn)
		if err != nil {
			return fail(stageFailure(StageFinalizing, err))
		}
		progress.Providers = append(progress.Providers, finalOut.ProviderName)
		finalText = finalOut.Text
		emit(models.EventContentChunk, snippet(finalText))
	}

	finalReport, err := verify(finalText)
	if err != nil {
		return fail(stageFailure("verify_final", err))
	}
	if repairable := finalReport.Repairable(); len(repairable) > 0 {
		finalText = citation.ApplyRepairs(finalText, repairable)
		finalReport, err = verify(finalText)
		if err != nil {
			return fail(stageFailure("verify_final", err))
		}
	}
	if !finalReport.Passing() {
		return fail(stageFailure(StageFinalizing, errors.New("unverifiable citations remain: "+finalReport.ErrorSummary())))
	}

	var written activities.WriteRuleContentOutput
	if err := workflow.ExecuteActivity(ctx, "WriteRuleContentActivity", activities.WriteRuleContentInput{
		Key: key, Content: finalText,
	}).Get(ctx, &written); err != nil {
		return fail(stageFailure("write_content", err))
	}
	if err := workflow.ExecuteActivity(ctx, "UpdateRuleStatusActivity", activities.UpdateRuleStatusInput{
		Key: key, Status: models.StatusReady, ContentPath: written.Path,
	}).Get(ctx, nil); err != nil {
		return RuleGenerateResult{}, err
	}
	progress.Status = ResultReady
	emit(models.EventDone, written.Path)
	return RuleGenerateResult{Status: ResultReady, ContentPath: written.Path}, nil
}

// draftGate applies the citation caps: above the hard cap the draft is
// rejected outright; between the soft and hard cap the job gets one redraft.
func draftGate(report citation.Report, softCap, hardCap int) (redraft bool, failReason string) {
	notFound := report.Count(citation.VerdictNotFound)
	high := notFound + report.Count(citation.VerdictDocError)
	if notFound > hardCap {
		return false, fabricationFailure(report)
	}
	if high > softCap {
		return true, ""
	}
	return false, ""
}

func fabricationFailure(report citation.Report) string {
	return fmt.Sprintf("%s: %d unverifiable citations\n%s",
		ErrCitationFabrication.Error(),
		report.Count(citation.VerdictNotFound, citation.VerdictDocError),
		report.ErrorSummary())
}

func stageFailure(stage string, err error) string {
	return fmt.Sprintf("%s: %s: %s", ErrStageFailure.Error(), stage, err.Error())
}

func draftPrompt(input RuleGenerateInput) string {
	return fmt.Sprintf(
		"Draft a %s validation rule for %s pattern %q. State each requirement as a checkable statement and cite every factual claim from the source pages using [[doc:page | \"anchor\"]] tokens, where the anchor is a verbatim quote from the cited page.",
		input.RuleKind, strings.ToUpper(input.CodeType), input.Pattern)
}

func critiquePrompt(mode string, input RuleGenerateInput) string {
	base := fmt.Sprintf("Review the draft %s rule for %s pattern %q against the source pages. ", input.RuleKind, strings.ToUpper(input.CodeType), input.Pattern)
	switch mode {
	case "adversarial":
		base += "Hunt for unsupported claims, miscited pages, and statements the sources contradict."
	default:
		base += "Check completeness and clinical-coding accuracy of each statement."
	}
	return base + ` Respond with JSON only: {"corrections":[{"target_statement":"...","proposed_text":"...","reason":"...","citation_fix":{"citation":"...","doc_id":"...","page":0}}]}. Use an empty corrections array when the draft needs no changes.`
}

func finalizePrompt(input RuleGenerateInput, corrections []review.Correction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rewrite the draft %s rule for %s pattern %q applying the accepted corrections below. Keep every verified citation token unchanged.\n\nCorrections:\n",
		input.RuleKind, strings.ToUpper(input.CodeType), input.Pattern)
	for _, c := range corrections {
		fmt.Fprintf(&b, "- target: %s\n", c.TargetStatement)
		if c.ProposedText != "" {
			fmt.Fprintf(&b, "  replace with: %s\n", c.ProposedText)
		}
		if c.Reason != "" {
			fmt.Fprintf(&b, "  reason: %s\n", c.Reason)
		}
	}
	return b.String()
}

func isProviderDisabled(ctx workflow.Context, state *providerState, idx int) bool {
	until, ok := state.disabledUntil[idx]
	if !ok {
		return false
	}
	return workflow.Now(ctx).Before(until)
}

func disableProviderUntil(ctx workflow.Context, state *providerState, idx int, d time.Duration) {
	state.disabledUntil[idx] = workflow.Now(ctx).Add(d)
}

func callLLMWithFailover(ctx workflow.Context, state *providerState, providerCount int, refs []string, cooldown time.Duration, input activities.LLMGenerateInput) (activities.LLMGenerateOutput, string, error) {
	var lastErr error
	for attempt := 0; attempt < providerCount*4; attempt++ {
		idx := attempt % providerCount
		if isProviderDisabled(ctx, state, idx) {
			continue
		}
		input.ProviderIndex = idx
		if idx < len(refs) {
			input.ProviderRef = refs[idx]
		}
		var out activities.LLMGenerateOutput
		err := workflow.ExecuteActivity(ctx, "LLMGenerateActivity", input).Get(ctx, &out)
		if err == nil {
			_ = workflow.ExecuteActivity(ctx, "LogLLMCallActivity", activities.LogLLMCallInput{
				Operation: input.Operation, Pattern: input.Pattern, CodeType: input.CodeType, RuleKind: input.RuleKind,
				ProviderName: out.ProviderName, Model: out.Model,
				RequestID: fmt.Sprintf("%s-%d", input.Operation, attempt), Status: "ok",
			}).Get(ctx, nil)
			return out, "", nil
		}
		lastErr = err
		errType := providers.ClassifyError(err)
		_ = workflow.ExecuteActivity(ctx, "LogLLMCallActivity", activities.LogLLMCallInput{
			Operation: input.Operation, Pattern: input.Pattern, CodeType: input.CodeType, RuleKind: input.RuleKind,
			ProviderName: fmt.Sprintf("provider-%d", idx),
			RequestID:    fmt.Sprintf("%s-%d", input.Operation, attempt), Status: "failed", ErrorType: string(errType),
		}).Get(ctx, nil)
		key := fmt.Sprintf("llm-%s-%d", input.Operation, idx)
		state.retries[key]++
		switch errType {
		case providers.ErrorQuota:
			disableProviderUntil(ctx, state, idx, cooldown)
		case providers.ErrorRate:
			if state.retries[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(state.retries[key]*2)*time.Second)
				attempt--
			} else {
				disableProviderUntil(ctx, state, idx, 2*time.Minute)
			}
		case providers.ErrorTransient:
			if state.retries[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(state.retries[key])*time.Second)
				attempt--
			}
		case providers.ErrorContext:
			return activities.LLMGenerateOutput{}, string(providers.ErrorContext), err
		default:
			disableProviderUntil(ctx, state, idx, time.Minute)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all llm providers exhausted")
	}
	return activities.LLMGenerateOutput{}, string(providers.ClassifyError(lastErr)), lastErr
}

func providerRefAt(refs []string, idx int) string {
	if idx >= 0 && idx < len(refs) {
		return refs[idx]
	}
	return ""
}

// snippet truncates stage output for progress events; full text only ever
// travels through activities.
func snippet(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, ":", "-")
	return s
}

func durationOrDefault(seconds int, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}
