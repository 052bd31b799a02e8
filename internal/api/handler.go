package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/orchestrator"
)

// GlobalTenantID is used for fraud rules that apply to all tenants.
const GlobalTenantID = "*"

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	orch    *orchestrator.Orchestrator
	engine  *fraud.Engine
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, orch *orchestrator.Orchestrator, engine *fraud.Engine, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		orch:    orch,
		engine:  engine,
		version: version,
	}
}

// EvaluateResponse is the response for POST /applications/evaluate.
// The fusion result fields are flattened into the top level.
type EvaluateResponse struct {
	DecisionID string `json:"decision_id"`
	CaseID     string `json:"case_id"`
	*domain.FusionResult
	Metadata domain.DecisionMetadata `json:"metadata"`
}

// Evaluate handles POST /applications/evaluate requests.
// Well-formed applications always get a 200 decision, even when every
// branch degraded; only malformed or invalid input is rejected.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var pkg domain.ApplicationPackage
	if err := json.NewDecoder(r.Body).Decode(&pkg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if err := pkg.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if pkg.CaseID == "" {
		pkg.CaseID = uuid.New().String()
	}
	pkg.SubmittedAt = time.Now().UTC()

	// Persist the submitted package for the audit trail. A storage failure
	// must not block the decision.
	if h.repo != nil {
		if err := h.repo.SaveApplication(ctx, tenantID, &pkg); err != nil {
			slog.Error("failed to save application", "case_id", pkg.CaseID, "error", err)
		}
	}

	evaluation, err := h.orch.Evaluate(ctx, tenantID, &pkg)
	if err != nil {
		slog.Error("evaluation aborted", "case_id", pkg.CaseID, "error", err)
		writeError(w, http.StatusInternalServerError, "evaluation aborted")
		return
	}

	rec := &domain.DecisionRecord{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		ApplicationID: pkg.CaseID,
		Result:        *evaluation.Result,
		Timestamp:     time.Now().UTC(),
		Metadata:      evaluation.Metadata,
	}

	if h.repo != nil {
		if err := h.repo.SaveDecision(ctx, tenantID, rec); err != nil {
			slog.Error("failed to save decision", "decision_id", rec.ID, "error", err)
		}
	}

	h.publishDecisionEvents(r, tenantID, rec)

	writeJSON(w, http.StatusOK, EvaluateResponse{
		DecisionID:   rec.ID,
		CaseID:       pkg.CaseID,
		FusionResult: evaluation.Result,
		Metadata:     evaluation.Metadata,
	})
}

// publishDecisionEvents emits the decision and, where warranted, the fraud
// alert and review queue events. Publication is best effort.
func (h *Handler) publishDecisionEvents(r *http.Request, tenantID string, rec *domain.DecisionRecord) {
	if h.bus == nil {
		return
	}
	ctx := r.Context()

	payload, err := json.Marshal(rec)
	if err != nil {
		slog.Error("failed to marshal decision event", "decision_id", rec.ID, "error", err)
		return
	}

	if err := h.bus.Publish(ctx, tenantID, domain.TopicDecision, payload); err != nil {
		slog.Error("failed to publish decision", "decision_id", rec.ID, "error", err)
	}

	if rec.Result.FinalDecision == domain.DecisionFraudStop {
		if err := h.bus.Publish(ctx, tenantID, domain.TopicFraudAlert, payload); err != nil {
			slog.Error("failed to publish fraud alert", "decision_id", rec.ID, "error", err)
		}
	}

	if rec.Result.RequiresHuman() {
		if err := h.bus.Publish(ctx, tenantID, domain.TopicReviewQueue, payload); err != nil {
			slog.Error("failed to publish review queue event", "decision_id", rec.ID, "error", err)
		}
	}
}

// GetApplication retrieves a submitted application by case ID.
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	if caseID == "" {
		writeError(w, http.StatusBadRequest, "application id is required")
		return
	}

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	pkg, err := h.repo.GetApplication(ctx, tenantID, caseID)
	if err != nil {
		slog.Error("failed to get application", "id", caseID, "error", err)
		writeError(w, http.StatusNotFound, "application not found")
		return
	}

	writeJSON(w, http.StatusOK, pkg)
}

// GetDecision retrieves a decision record by ID.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	decisionID := chi.URLParam(r, "id")

	if decisionID == "" {
		writeError(w, http.StatusBadRequest, "decision id is required")
		return
	}

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	rec, err := h.repo.GetDecision(ctx, tenantID, decisionID)
	if err != nil {
		slog.Error("failed to get decision", "id", decisionID, "error", err)
		writeError(w, http.StatusNotFound, "decision not found")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// CreateCaseRequest is the request body for recording a resolved case.
type CreateCaseRequest struct {
	ID         string            `json:"id,omitempty"`
	Summary    string            `json:"summary"`
	Vector     []float32         `json:"vector,omitempty"`
	Outcome    domain.Prediction `json:"outcome"`
	ResolvedAt time.Time         `json:"resolved_at,omitempty"`
}

// CreateCase handles POST /cases. Resolved cases feed the similarity corpus;
// indexing happens asynchronously through the bus so a slow index rebuild
// never blocks the caller.
func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if req.Summary == "" {
		writeError(w, http.StatusUnprocessableEntity, "summary is required")
		return
	}
	if req.Outcome != domain.PredictAccept && req.Outcome != domain.PredictReject {
		writeError(w, http.StatusUnprocessableEntity, "outcome must be ACCEPT or REJECT")
		return
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.ResolvedAt.IsZero() {
		req.ResolvedAt = time.Now().UTC()
	}

	c := &domain.Case{
		ID:         req.ID,
		TenantID:   tenantID,
		Summary:    req.Summary,
		Vector:     req.Vector,
		Outcome:    req.Outcome,
		ResolvedAt: req.ResolvedAt,
	}

	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	payload, err := json.Marshal(c)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode case")
		return
	}

	if err := h.bus.Publish(ctx, tenantID, domain.TopicCaseResolved, payload); err != nil {
		slog.Error("failed to publish resolved case", "case_id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue case")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     c.ID,
		"status": "accepted",
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListFraudRules returns all fraud rules loaded in the engine.
// Rules are loaded from the database at startup and can be reloaded via
// POST /fraud-rules/reload.
func (h *Handler) ListFraudRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetFraudRule retrieves a fraud rule by ID from the loaded engine rules.
func (h *Handler) GetFraudRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeError(w, http.StatusBadRequest, "rule id is required")
		return
	}

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeError(w, http.StatusNotFound, "rule not found")
}

// CreateFraudRuleRequest is the request body for creating a fraud rule.
type CreateFraudRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Expression  string            `json:"expression"`
	Bands       []domain.RuleBand `json:"bands"`
	Weight      float64           `json:"weight"`
	Enabled     bool              `json:"enabled"`
}

// CreateFraudRule creates a new fraud rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
func (h *Handler) CreateFraudRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateFraudRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeError(w, http.StatusUnprocessableEntity, "id, name, and expression are required")
		return
	}

	ruleConfig := &domain.FraudRuleConfig{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Bands:       req.Bands,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
	}

	if err := h.engine.ValidateRule(ruleConfig); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid CEL expression: "+err.Error())
		return
	}

	// Persist before loading: a rule the engine serves must survive the next
	// reload from the database.
	if h.repo != nil {
		if err := h.repo.SaveFraudRule(ctx, GlobalTenantID, ruleConfig); err != nil {
			slog.Error("failed to save fraud rule", "id", ruleConfig.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save rule")
			return
		}
	}

	if err := h.engine.LoadRule(ruleConfig); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load rule: "+err.Error())
		return
	}

	slog.Info("fraud rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    ruleConfig,
		"message": "Rule created and loaded into the engine.",
	})
}

// ReloadFraudRules reloads all fraud rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadFraudRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	dbRules, err := h.repo.ListFraudRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list fraud rules from database", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load rules from database")
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload fraud rules into engine", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload rules: "+err.Error())
		return
	}

	slog.Info("fraud rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
