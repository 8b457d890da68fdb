package workflows

import (
	"context"
	"errors"
	"testing"

	"ruleflow/internal/activities"
	"ruleflow/internal/citation"
	"ruleflow/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

func registerCascadeActivities(env *testsuite.TestWorkflowEnvironment) {
	registerRuleActivities(env)
	registerActivityName(env, "UpdateCascadeRunActivity", func(context.Context, activities.UpdateCascadeRunInput) error { return nil })
	registerActivityName(env, "PlanCascadeActivity", func(context.Context, activities.PlanCascadeInput) (activities.PlanCascadeOutput, error) {
		return activities.PlanCascadeOutput{}, nil
	})
	registerActivityName(env, "NearestAncestorContentActivity", func(context.Context, activities.NearestAncestorContentInput) (activities.NearestAncestorContentOutput, error) {
		return activities.NearestAncestorContentOutput{}, nil
	})
	registerActivityName(env, "GetRuleRecordActivity", func(context.Context, activities.GetRuleRecordInput) (activities.GetRuleRecordOutput, error) {
		return activities.GetRuleRecordOutput{}, nil
	})
	registerActivityName(env, "WriteCascadeReportActivity", func(context.Context, activities.WriteCascadeReportInput) (activities.WriteCascadeReportOutput, error) {
		return activities.WriteCascadeReportOutput{}, nil
	})
}

func mockHappyRuleActivities(env *testsuite.TestWorkflowEnvironment) {
	goodReport := citation.Report{Findings: []citation.Finding{{Verdict: citation.VerdictExact}}}
	env.OnActivity("ClaimRuleActivity", mock.Anything, mock.Anything).Return(activities.ClaimRuleOutput{Claimed: true}, nil)
	env.OnActivity("LLMGenerateActivity", mock.Anything, mock.Anything).Return(activities.LLMGenerateOutput{Text: "rule text", ProviderName: "mock"}, nil)
	env.OnActivity("VerifyCitationsActivity", mock.Anything, mock.Anything).Return(activities.VerifyCitationsOutput{Report: goodReport}, nil)
	env.OnActivity("ArbitrateActivity", mock.Anything, mock.Anything).Return(activities.ArbitrateOutput{}, nil)
	env.OnActivity("WriteRuleContentActivity", mock.Anything, mock.Anything).Return(activities.WriteRuleContentOutput{Path: "/tmp/rules/out.md"}, nil)
	env.OnActivity("ReadRuleContentActivity", mock.Anything, mock.Anything).Return(activities.ReadRuleContentOutput{Content: "parent rule"}, nil)
	env.OnActivity("UpdateRuleStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("LogLLMCallActivity", mock.Anything, mock.Anything).Return(nil)
}

func TestCascadeGenerateWorkflowAllReady(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(CascadeGenerateWorkflow)
	env.RegisterWorkflow(RuleGenerateWorkflow)
	registerCascadeActivities(env)

	env.OnActivity("UpdateCascadeRunActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("PlanCascadeActivity", mock.Anything, mock.Anything).Return(activities.PlanCascadeOutput{
		Plan: models.GenerationPlan{
			Target: "E11.65", CodeType: "icd10", RuleKind: "guideline",
			ToGenerate: []models.PlanStep{{Pattern: "E11", Level: 0}, {Pattern: "E11.6", Level: 1}, {Pattern: "E11.65", Level: 2}},
		},
	}, nil)
	env.OnActivity("NearestAncestorContentActivity", mock.Anything, mock.Anything).Return(activities.NearestAncestorContentOutput{}, nil)
	env.OnActivity("WriteCascadeReportActivity", mock.Anything, mock.Anything).Return(activities.WriteCascadeReportOutput{Path: "/tmp/report.json"}, nil)
	env.OnActivity("LoadSourcesActivity", mock.Anything, mock.Anything).Return(activities.LoadSourcesOutput{
		Pages: []models.Page{{DocID: "abc123def456", Number: 1, Text: "source text"}},
	}, nil)
	mockHappyRuleActivities(env)

	env.ExecuteWorkflow(CascadeGenerateWorkflow, CascadeGenerateInput{
		RunID: "run-1", Target: "E11.65", CodeType: "icd10", RuleKind: "guideline",
		LLMProviders: 1, CooldownSeconds: 10,
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var report CascadeReport
	require.NoError(t, env.GetWorkflowResult(&report))
	require.True(t, report.Completed)
	require.Equal(t, []string{"E11", "E11.6", "E11.65"}, report.Ready)
	require.Empty(t, report.FailedPattern)
	require.Empty(t, report.Skipped)
}

func TestCascadeGenerateWorkflowFailureSkipsDescendants(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(CascadeGenerateWorkflow)
	env.RegisterWorkflow(RuleGenerateWorkflow)
	registerCascadeActivities(env)

	env.OnActivity("UpdateCascadeRunActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("PlanCascadeActivity", mock.Anything, mock.Anything).Return(activities.PlanCascadeOutput{
		Plan: models.GenerationPlan{
			Target: "E11.65", CodeType: "icd10", RuleKind: "guideline",
			ToGenerate: []models.PlanStep{{Pattern: "E11", Level: 0}, {Pattern: "E11.6", Level: 1}, {Pattern: "E11.65", Level: 2}},
		},
	}, nil)
	env.OnActivity("NearestAncestorContentActivity", mock.Anything, mock.Anything).Return(activities.NearestAncestorContentOutput{}, nil)
	env.OnActivity("WriteCascadeReportActivity", mock.Anything, mock.Anything).Return(activities.WriteCascadeReportOutput{Path: "/tmp/report.json"}, nil)

	// The middle pattern has no usable sources; its job fails and the
	// deeper pattern never runs.
	env.OnActivity("LoadSourcesActivity", mock.Anything, activities.LoadSourcesInput{Pattern: "E11", CodeType: "icd10"}).Return(activities.LoadSourcesOutput{
		Pages: []models.Page{{DocID: "abc123def456", Number: 1, Text: "source text"}},
	}, nil)
	env.OnActivity("LoadSourcesActivity", mock.Anything, activities.LoadSourcesInput{Pattern: "E11.6", CodeType: "icd10"}).Return(
		activities.LoadSourcesOutput{}, errors.New("no source documents tagged for scope E"))
	mockHappyRuleActivities(env)

	env.ExecuteWorkflow(CascadeGenerateWorkflow, CascadeGenerateInput{
		RunID: "run-2", Target: "E11.65", CodeType: "icd10", RuleKind: "guideline",
		LLMProviders: 1, CooldownSeconds: 10,
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var report CascadeReport
	require.NoError(t, env.GetWorkflowResult(&report))
	require.False(t, report.Completed)
	require.Equal(t, []string{"E11"}, report.Ready)
	require.Equal(t, "E11.6", report.FailedPattern)
	require.NotEmpty(t, report.FailReason)
	require.Equal(t, []string{"E11.65"}, report.Skipped)
}

func TestCascadeGenerateWorkflowAncestorLookupFailureIsNotFatal(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(CascadeGenerateWorkflow)
	env.RegisterWorkflow(RuleGenerateWorkflow)
	registerCascadeActivities(env)

	env.OnActivity("UpdateCascadeRunActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("PlanCascadeActivity", mock.Anything, mock.Anything).Return(activities.PlanCascadeOutput{
		Plan: models.GenerationPlan{
			Target: "E11", CodeType: "icd10", RuleKind: "guideline",
			ToGenerate: []models.PlanStep{{Pattern: "E11", Level: 1}},
		},
	}, nil)
	env.OnActivity("NearestAncestorContentActivity", mock.Anything, mock.Anything).Return(
		activities.NearestAncestorContentOutput{}, errors.New("connection refused"))
	env.OnActivity("WriteCascadeReportActivity", mock.Anything, mock.Anything).Return(activities.WriteCascadeReportOutput{Path: "/tmp/report.json"}, nil)
	env.OnActivity("LoadSourcesActivity", mock.Anything, mock.Anything).Return(activities.LoadSourcesOutput{
		Pages: []models.Page{{DocID: "abc123def456", Number: 1, Text: "source text"}},
	}, nil)
	mockHappyRuleActivities(env)

	env.ExecuteWorkflow(CascadeGenerateWorkflow, CascadeGenerateInput{
		RunID: "run-5", Target: "E11", CodeType: "icd10", RuleKind: "guideline",
		LLMProviders: 1, CooldownSeconds: 10,
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var report CascadeReport
	require.NoError(t, env.GetWorkflowResult(&report))
	require.True(t, report.Completed)
	require.Equal(t, []string{"E11"}, report.Ready)
}

func TestCascadeGenerateWorkflowPlanFailure(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(CascadeGenerateWorkflow)
	env.RegisterWorkflow(RuleGenerateWorkflow)
	registerCascadeActivities(env)

	env.OnActivity("UpdateCascadeRunActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("PlanCascadeActivity", mock.Anything, mock.Anything).Return(
		activities.PlanCascadeOutput{}, errors.New("prerequisite rule not met: no ready guideline rule for E11"))

	env.ExecuteWorkflow(CascadeGenerateWorkflow, CascadeGenerateInput{
		RunID: "run-3", Target: "E11", CodeType: "icd10", RuleKind: "billing",
		LLMProviders: 1, CooldownSeconds: 10,
	})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}
