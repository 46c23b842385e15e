package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/upb/studygen/app"
	"github.com/upb/studygen/internal/observability"
	"github.com/upb/studygen/internal/shared"
	"github.com/upb/studygen/services/generation"
	"github.com/upb/studygen/services/providers"
	"github.com/upb/studygen/utils"
	"go.uber.org/zap"
)

// GenerateRequest is the body of POST /api/v1/generate
type GenerateRequest struct {
	Prompt         string                     `json:"prompt" validate:"required"`
	System         string                     `json:"system,omitempty"`
	ExpectedShape  generation.ExpectedShape   `json:"expected_shape"`
	DeadlineMs     int64                      `json:"deadline_ms,omitempty" validate:"gte=0"`
	FastMode       bool                       `json:"fast_mode,omitempty"`
	ProviderGroups []generation.ProviderGroup `json:"provider_groups,omitempty" validate:"omitempty,dive"`
}

// GenerateResponse is the body of a successful generation
type GenerateResponse struct {
	OK       bool                   `json:"ok"`
	Data     map[string]interface{} `json:"data"`
	Provider string                 `json:"provider"`
	Model    string                 `json:"model"`
	Stage    string                 `json:"stage"`
	Repaired bool                   `json:"repaired"`
	Trace    *TraceResponse         `json:"trace"`
}

// TraceResponse is the wire form of a generation trace. Durations are in
// milliseconds.
type TraceResponse struct {
	RequestID  string             `json:"request_id"`
	Attempts   []AttemptResponse  `json:"attempts"`
	Milestones map[string]float64 `json:"milestones"`
}

// AttemptResponse is the wire form of one attempt record
type AttemptResponse struct {
	Provider   string  `json:"provider"`
	Model      string  `json:"model"`
	Group      string  `json:"group,omitempty"`
	GroupIndex int     `json:"group_index"`
	Purpose    string  `json:"purpose"`
	StartMs    float64 `json:"start_ms"`
	DurationMs float64 `json:"duration_ms"`
	TimeoutMs  float64 `json:"timeout_ms"`
	Outcome    string  `json:"outcome"`
	Fault      string  `json:"fault,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// NewTraceResponse converts a trace for the wire; nil stays nil
func NewTraceResponse(tr *generation.Trace) *TraceResponse {
	if tr == nil {
		return nil
	}

	attempts := tr.Attempts()
	resp := &TraceResponse{
		RequestID:  tr.RequestID(),
		Attempts:   make([]AttemptResponse, 0, len(attempts)),
		Milestones: make(map[string]float64),
	}
	for _, a := range attempts {
		resp.Attempts = append(resp.Attempts, AttemptResponse{
			Provider:   a.Provider,
			Model:      a.Model,
			Group:      a.Group,
			GroupIndex: a.GroupIndex,
			Purpose:    string(a.Purpose),
			StartMs:    millis(a.Start),
			DurationMs: millis(a.Duration),
			TimeoutMs:  millis(a.Timeout),
			Outcome:    string(a.Outcome),
			Fault:      string(a.Fault),
			Error:      a.Error,
		})
	}
	for _, m := range tr.Milestones() {
		resp.Milestones[string(m.Name)] = millis(m.Offset)
	}
	return resp
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// GenerationService defines the interface for generation operations
type GenerationService interface {
	Run(ctx context.Context, req *generation.GenerationRequest) (*generation.ParsedResult, error)
}

// GenerationDefaults are applied to requests that leave fields unset
type GenerationDefaults struct {
	Groups        []generation.ProviderGroup
	Repair        *providers.Descriptor
	DefaultBudget time.Duration
	MaxBudget     time.Duration
}

// GenerationHandler handles generation HTTP requests
type GenerationHandler struct {
	service  GenerationService
	defaults GenerationDefaults
	logger   *zap.Logger
	now      func() time.Time
}

// NewGenerationHandler creates a new GenerationHandler
func NewGenerationHandler(service GenerationService, defaults GenerationDefaults, logger *zap.Logger) *GenerationHandler {
	return &GenerationHandler{
		service:  service,
		defaults: defaults,
		logger:   logger,
		now:      time.Now,
	}
}

// GenerateHandler wires a GenerationHandler from the application dependencies
func GenerateHandler(deps *app.Dependencies) http.HandlerFunc {
	h := NewGenerationHandler(deps.Generation, GenerationDefaults{
		Groups:        deps.Groups.Groups,
		Repair:        deps.Groups.Repair,
		DefaultBudget: deps.Config.Generation.DefaultBudget,
		MaxBudget:     deps.Config.Generation.MaxBudget,
	}, deps.Logger)
	return h.HandleGenerate
}

// HandleGenerate handles POST /api/v1/generate
func (h *GenerationHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	received := h.now()

	requestID := middleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx := shared.WithRequestID(r.Context(), requestID)
	logger := observability.ContextLogger(ctx, h.logger)

	var body GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.Warn("failed to parse request body", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&body); err != nil {
		logger.Warn("request validation failed", zap.Error(err))
		HandleValidationError(w, err, logger)
		return
	}

	req := &generation.GenerationRequest{
		RequestID:      requestID,
		Prompt:         body.Prompt,
		System:         body.System,
		Shape:          body.ExpectedShape,
		Deadline:       received.Add(h.budget(body.DeadlineMs)),
		FastMode:       body.FastMode,
		ProviderGroups: body.ProviderGroups,
		RepairProvider: h.defaults.Repair,
	}
	if len(req.ProviderGroups) == 0 {
		req.ProviderGroups = h.defaults.Groups
	}

	logger.Debug("processing generation",
		zap.Int("provider_groups", len(req.ProviderGroups)),
		zap.Bool("fast_mode", req.FastMode),
		zap.Time("deadline", req.Deadline))

	result, err := h.service.Run(ctx, req)
	if err != nil {
		HandleGenerationError(w, err, logger)
		return
	}

	logger.Info("generation successful",
		zap.String("provider", result.Provider),
		zap.String("model", result.Model),
		zap.String("stage", string(result.Stage)),
		zap.Bool("repaired", result.Repaired))

	response := GenerateResponse{
		OK:       true,
		Data:     result.Data,
		Provider: result.Provider,
		Model:    result.Model,
		Stage:    string(result.Stage),
		Repaired: result.Repaired,
		Trace:    NewTraceResponse(result.Trace),
	}
	if err := utils.WriteJSON(w, http.StatusOK, response); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// budget turns the requested deadline into a duration, applying the default
// when unset and the configured maximum.
func (h *GenerationHandler) budget(deadlineMs int64) time.Duration {
	budget := time.Duration(deadlineMs) * time.Millisecond
	if budget <= 0 {
		budget = h.defaults.DefaultBudget
	}
	if h.defaults.MaxBudget > 0 && budget > h.defaults.MaxBudget {
		budget = h.defaults.MaxBudget
	}
	return budget
}
