package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/graph"
	"github.com/shaiso/agentflow/internal/repo"
	"github.com/shaiso/agentflow/internal/runs"
)

// Validate проверяет определение workflow без запуска.
// POST /api/v1/validate
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req DefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	def, err := req.Parse()
	if err == nil {
		err = h.runs.Validate(def)
	}
	if err != nil {
		Success(w, ValidateResponse{Valid: false, Errors: validationMessages(err)})
		return
	}
	Success(w, ValidateResponse{Valid: true})
}

// ListRuns возвращает запуски текущего процесса.
// GET /api/v1/runs?status=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	status := domain.WorkflowStatus(r.URL.Query().Get("status"))

	result := make([]RunResponse, 0)
	for _, run := range h.runs.List() {
		resp := RunFromDomain(run)
		if status != "" && resp.Status != status {
			continue
		}
		result = append(result, resp)
	}

	List(w, result, len(result))
}

// CreateRun строит и запускает workflow.
// POST /api/v1/runs
//
// Синхронный запуск возвращает 201 с полным отчётом,
// асинхронный — 202 с кратким описанием запуска.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	def, err := req.Parse()
	if err != nil {
		InvalidWorkflow(w, err)
		return
	}

	if req.Async {
		run, err := h.runs.Submit(r.Context(), def, req.Input)
		if err != nil {
			InvalidWorkflow(w, err)
			return
		}
		h.logger.Info("run submitted", "run_id", run.ID().String(), "workflow_id", def.ID)
		Accepted(w, RunFromDomain(run))
		return
	}

	run, err := h.runs.Prepare(def)
	if err != nil {
		InvalidWorkflow(w, err)
		return
	}
	report, err := h.runs.Execute(r.Context(), run, req.Input)
	if HandleRunError(w, h.logger, err) {
		return
	}
	Created(w, report)
}

// GetRun возвращает отчёт о запуске.
// GET /api/v1/runs/{id}
//
// Запуски, которых нет в памяти процесса, ищутся в архиве.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.runs.Get(runID)
	if err == nil {
		Success(w, run.Report())
		return
	}
	if !errors.Is(err, runs.ErrRunNotFound) || h.reports == nil {
		HandleRunError(w, h.logger, err)
		return
	}

	report, err := h.reports.Get(r.Context(), runID)
	if HandleRunError(w, h.logger, err) {
		return
	}
	Success(w, report)
}

// ResumeRun передаёт ответ task, ожидающему ввода.
// POST /api/v1/runs/{id}/resume
func (h *Handler) ResumeRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.TaskID == "" {
		BadRequest(w, "task_id is required")
		return
	}

	report, err := h.runs.Resume(r.Context(), runID, req.TaskID, req.Input)
	if HandleRunError(w, h.logger, err) {
		return
	}
	Success(w, report)
}

// GetRunGraph экспортирует граф запуска.
// GET /api/v1/runs/{id}/graph?format=dot|json
func (h *Handler) GetRunGraph(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = graph.FormatJSON
	}
	renderer, err := graph.RendererFor(format)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	run, err := h.runs.Get(runID)
	if HandleRunError(w, h.logger, err) {
		return
	}

	if format == graph.FormatJSON {
		Success(w, graph.Export(run.Workflow))
		return
	}

	w.Header().Set("Content-Type", "text/vnd.graphviz")
	w.WriteHeader(http.StatusOK)
	if err := renderer.Render(w, graph.Export(run.Workflow)); err != nil {
		h.logger.Error("failed to render graph", "run_id", runID.String(), "error", err)
	}
}

// ListHistory возвращает архив отчётов.
// GET /api/v1/history?workflow_id=...&status=...&limit=...&offset=...
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		Error(w, http.StatusNotImplemented, ErrCodeNotConfigured, "report archive is not configured")
		return
	}

	q := r.URL.Query()
	filter := repo.ReportFilter{
		WorkflowID: q.Get("workflow_id"),
		Status:     domain.WorkflowStatus(q.Get("status")),
		Limit:      parseInt(q.Get("limit"), 50),
		Offset:     parseInt(q.Get("offset"), 0),
	}

	items, err := h.reports.List(r.Context(), filter)
	if HandleRunError(w, h.logger, err) {
		return
	}
	if items == nil {
		items = []repo.ReportSummary{}
	}
	List(w, items, len(items))
}

func parseInt(s string, defaultVal int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
