package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ruleflow/internal/config"
	"ruleflow/internal/models"
	"ruleflow/internal/pattern"
	"ruleflow/internal/planner"
	"ruleflow/internal/providers"
	"ruleflow/internal/retrieval"
	"ruleflow/internal/storage"
	"ruleflow/internal/util"
	"ruleflow/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

type Server struct {
	cfg         config.Config
	db          *storage.DB
	ruleRepo    *storage.RuleRepo
	docRepo     *storage.DocumentRepo
	cascadeRepo *storage.CascadeRepo
	planner     *planner.Planner
	temporal    tclient.Client
}

func NewServer(cfg config.Config) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}
	ruleRepo := storage.NewRuleRepo(db)
	return &Server{
		cfg:         cfg,
		db:          db,
		ruleRepo:    ruleRepo,
		docRepo:     storage.NewDocumentRepo(db),
		cascadeRepo: storage.NewCascadeRepo(db),
		planner:     planner.New(ruleRepo),
		temporal:    tc,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/", s.handleDocumentScoped)
	mux.HandleFunc("/rules", s.handleRules)
	mux.HandleFunc("/rules/", s.handleRuleScoped)
	mux.HandleFunc("/cascades", s.handleCascades)
	mux.HandleFunc("/cascades/", s.handleCascadeScoped)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	docs, err := s.docRepo.ListDocuments(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	type docSummary struct {
		DocID    string `json:"doc_id"`
		Filename string `json:"filename"`
	}
	out := make([]docSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, docSummary{DocID: d.DocID, Filename: d.Filename})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (s *Server) handleDocumentScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}

	if len(parts) == 1 && parts[0] == "upload" {
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleUpload(w, r)
		return
	}

	if len(parts) == 3 && parts[1] == "pages" {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		page, err := strconv.Atoi(parts[2])
		if err != nil || page < 1 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid page number"))
			return
		}
		doc, err := s.docRepo.GetDocument(r.Context(), parts[0])
		if err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		for _, p := range doc.Pages {
			if p.Number == page {
				writeJSON(w, http.StatusOK, p)
				return
			}
		}
		writeErr(w, http.StatusNotFound, fmt.Errorf("page not found"))
		return
	}

	writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(128 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	codeType := strings.TrimSpace(r.FormValue("code_type"))
	if codeType != pattern.CodeTypeICD10 && codeType != pattern.CodeTypeCPT {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("code_type must be icd10 or cpt"))
		return
	}
	tags := splitTags(r.FormValue("tags"))

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		if single, ok := firstSingleFile(r.MultipartForm.File); ok {
			files = append(files, single)
		}
	}
	if len(files) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no files provided"))
		return
	}

	inDir := filepath.Join(s.cfg.DataInRoot, "sources", codeType)
	if err := util.EnsureDir(inDir); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	type uploadResult struct {
		Filename string `json:"filename"`
		DocID    string `json:"doc_id"`
		Pages    int    `json:"pages"`
	}
	out := make([]uploadResult, 0, len(files))

	for _, fh := range files {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if ext != ".pdf" && ext != ".txt" {
			continue
		}
		savedPath, err := saveUploadedFile(inDir, fh, ext)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		doc, err := retrieval.ExtractDocument(savedPath)
		if err != nil {
			if errors.Is(err, retrieval.ErrNoExtractableText) {
				writeErr(w, http.StatusBadRequest, fmt.Errorf("%s: no extractable text", fh.Filename))
				return
			}
			writeErr(w, http.StatusBadRequest, fmt.Errorf("extract %s: %w", fh.Filename, err))
			return
		}
		if err := s.docRepo.UpsertDocument(r.Context(), doc, codeType, tags); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		out = append(out, uploadResult{Filename: doc.Filename, DocID: doc.DocID, Pages: len(doc.Pages)})
	}

	writeJSON(w, http.StatusOK, map[string]any{"uploaded": out})
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	codeType := strings.TrimSpace(r.URL.Query().Get("code_type"))
	status := strings.TrimSpace(r.URL.Query().Get("status"))

	var records []models.RuleRecord
	var err error
	switch {
	case status != "":
		records, err = s.ruleRepo.ListByStatus(r.Context(), status)
	case codeType != "":
		records, err = s.ruleRepo.ListByCodeType(r.Context(), codeType)
	default:
		writeErr(w, http.StatusBadRequest, fmt.Errorf("code_type or status is required"))
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	kind := strings.TrimSpace(r.URL.Query().Get("rule_kind"))
	if kind != "" || (status != "" && codeType != "") {
		filtered := records[:0]
		for _, rec := range records {
			if kind != "" && rec.RuleKind != kind {
				continue
			}
			if status != "" && codeType != "" && rec.CodeType != codeType {
				continue
			}
			filtered = append(filtered, rec)
		}
		records = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": records})
}

func (s *Server) handleRuleScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/rules/"), "/")
	if path == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if path == "generate" {
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleGenerate(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	key := models.RuleKey{
		Pattern:  path,
		CodeType: strings.TrimSpace(r.URL.Query().Get("code_type")),
		RuleKind: strings.TrimSpace(r.URL.Query().Get("rule_kind")),
	}
	if key.CodeType == "" || key.RuleKind == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("code_type and rule_kind are required"))
		return
	}
	rec, err := s.ruleRepo.Get(r.Context(), key)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if rec == nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("rule not found"))
		return
	}
	// Patterns without their own artifact inherit content from the nearest
	// ready ancestor.
	path, servedBy, err := s.planner.ResolveContent(r.Context(), key)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	content := ""
	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			content = string(b)
		}
	}
	resp := map[string]any{"rule": rec, "content": content}
	if content != "" && servedBy != key.Pattern {
		resp["inherited_from"] = servedBy
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pattern  string `json:"pattern"`
		CodeType string `json:"code_type"`
		RuleKind string `json:"rule_kind"`
		Force    string `json:"force,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.Pattern = strings.TrimSpace(req.Pattern)
	if req.Pattern == "" || req.CodeType == "" || req.RuleKind == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("pattern, code_type and rule_kind are required"))
		return
	}
	if req.RuleKind != models.RuleKindGuideline && req.RuleKind != models.RuleKindBilling {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("rule_kind must be guideline or billing"))
		return
	}
	switch planner.ForceMode(req.Force) {
	case planner.ForceNone, planner.ForceLeaf, planner.ForceCascade:
	default:
		writeErr(w, http.StatusBadRequest, fmt.Errorf("force must be empty, leaf or cascade"))
		return
	}

	// Planning errors surface synchronously; the workflow only ever starts
	// with a viable plan.
	plan, err := s.planner.Plan(r.Context(), req.Pattern, req.CodeType, req.RuleKind, planner.ForceMode(req.Force))
	if err != nil {
		switch {
		case errors.Is(err, pattern.ErrInvalidPattern):
			writeErr(w, http.StatusBadRequest, err)
		case errors.Is(err, planner.ErrPrerequisiteNotMet):
			writeErr(w, http.StatusPreconditionFailed, err)
		default:
			writeErr(w, http.StatusInternalServerError, err)
		}
		return
	}
	target, err := s.ruleRepo.Get(r.Context(), models.RuleKey{Pattern: req.Pattern, CodeType: req.CodeType, RuleKind: req.RuleKind})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if target != nil && target.Status == models.StatusGenerating {
		writeErr(w, http.StatusConflict, fmt.Errorf("generation already in progress for %s", req.Pattern))
		return
	}
	if len(plan.ToGenerate) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"plan": plan, "started": false})
		return
	}

	runID := uuid.NewString()
	run := models.CascadeRun{RunID: runID, Target: req.Pattern, CodeType: req.CodeType, RuleKind: req.RuleKind}
	if err := s.cascadeRepo.CreateRun(r.Context(), run); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	refs := providers.ParseProviderList(s.cfg.LLMProviders)
	rawRefs := make([]string, 0, len(refs))
	for _, ref := range refs {
		rawRefs = append(rawRefs, ref.Raw)
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       "cascade-" + runID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.CascadeGenerateWorkflow, workflows.CascadeGenerateInput{
		RunID:           runID,
		Target:          req.Pattern,
		CodeType:        req.CodeType,
		RuleKind:        req.RuleKind,
		Force:           req.Force,
		LLMProviders:    len(refs),
		LLMProviderRefs: rawRefs,
		CooldownSeconds: s.cfg.ProviderCooldownSecs,
		CitationSoftCap: s.cfg.CitationSoftCap,
		CitationHardCap: s.cfg.CitationHardCap,
		FuzzyThreshold:  s.cfg.FuzzyThreshold,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":      runID,
		"workflow_id": we.GetID(),
		"plan":        plan,
	})
}

func (s *Server) handleCascades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.cascadeRepo.ListRuns(r.Context(), limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleCascadeScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/cascades/"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	runID := parts[0]

	switch parts[1] {
	case "progress":
		var prog workflows.CascadeProgress
		resp, err := s.temporal.QueryWorkflow(r.Context(), "cascade-"+runID, "", workflows.QueryGetCascadeProgress)
		if err != nil {
			// Fallback to the persisted run row when the workflow is gone.
			run, rErr := s.cascadeRepo.GetRun(r.Context(), runID)
			if rErr != nil {
				writeErr(w, http.StatusNotFound, rErr)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"run": run})
			return
		}
		if err := resp.Get(&prog); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, prog)
	case "report":
		run, err := s.cascadeRepo.GetRun(r.Context(), runID)
		if err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		if run.ReportPath == "" {
			writeJSON(w, http.StatusOK, map[string]any{"status": run.Status})
			return
		}
		b, err := os.ReadFile(run.ReportPath)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": run.Status, "report": json.RawMessage(b)})
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func saveUploadedFile(dstDir string, fh *multipart.FileHeader, ext string) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dstDir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
	}()

	if _, err := io.Copy(tmp, src); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	finalPath := filepath.Join(dstDir, filepath.Base(fh.Filename))
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return "", fmt.Errorf("atomic move upload: %w", err)
	}
	return finalPath, nil
}

func firstSingleFile(m map[string][]*multipart.FileHeader) (*multipart.FileHeader, bool) {
	for _, v := range m {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}

func splitTags(raw string) []string {
	out := make([]string, 0)
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "RF-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "RF-DB-5001",
				Message: "Database schema is not initialized. Run migrations and retry.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "RF-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "RF-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "RF-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "RF-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "RF-API-4009"
		msg = "Generation is already in progress for this pattern."
	case status == http.StatusPreconditionFailed:
		code = "RF-API-4012"
		msg = "Prerequisite rule is missing. Generate the guideline rule for this exact pattern first."
	case status == http.StatusMethodNotAllowed:
		code = "RF-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusBadGateway:
		code = "RF-API-5020"
		msg = "Upstream provider unavailable. Retry shortly."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		low := strings.ToLower(err.Error())
		switch {
		case strings.Contains(low, "invalid code pattern"):
			msg = "Pattern does not match any known code shape."
		case strings.Contains(low, "code_type must be"):
			msg = "code_type must be icd10 or cpt."
		case strings.Contains(low, "rule_kind must be"):
			msg = "rule_kind must be guideline or billing."
		case strings.Contains(low, "no files provided"):
			msg = "No PDF or text files were provided."
		case strings.Contains(low, "no extractable text"):
			msg = "Uploaded file contains no extractable text."
		case strings.Contains(low, "invalid json"):
			msg = "Malformed JSON request body."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
