package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.PlanCascadeActivity)
	w.RegisterActivity(a.ClaimRuleActivity)
	w.RegisterActivity(a.UpdateRuleStatusActivity)
	w.RegisterActivity(a.GetRuleRecordActivity)
	w.RegisterActivity(a.NearestAncestorContentActivity)
	w.RegisterActivity(a.LoadSourcesActivity)
	w.RegisterActivity(a.ReadRuleContentActivity)
	w.RegisterActivity(a.LLMGenerateActivity)
	w.RegisterActivity(a.VerifyCitationsActivity)
	w.RegisterActivity(a.ArbitrateActivity)
	w.RegisterActivity(a.WriteRuleContentActivity)
	w.RegisterActivity(a.WriteCascadeReportActivity)
	w.RegisterActivity(a.UpdateCascadeRunActivity)
	w.RegisterActivity(a.LogLLMCallActivity)
}
