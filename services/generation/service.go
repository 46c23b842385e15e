package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/upb/studygen/internal/jsonx"
	"github.com/upb/studygen/services"
	"github.com/upb/studygen/services/providers"
)

const tracerName = "github.com/upb/studygen/services/generation"

// ClientResolver looks up a provider client by name. *providers.Registry
// implements it.
type ClientResolver interface {
	Client(name string) (providers.Client, error)
}

// Recorder receives attempt and run observations
type Recorder interface {
	ObserveAttempt(provider string, purpose Purpose, outcome Outcome, fault Fault, duration time.Duration)
	ObserveRun(kind string, attempts int, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(string, Purpose, Outcome, Fault, time.Duration) {}
func (nopRecorder) ObserveRun(string, int, time.Duration)                         {}

// Config holds the timing and sizing knobs of the orchestrator
type Config struct {
	// SafetyMargin is held back before the deadline on every allocation
	SafetyMargin time.Duration

	// AttemptCeiling bounds one provider attempt
	AttemptCeiling time.Duration

	// FastAttemptCeiling replaces AttemptCeiling in fast mode
	FastAttemptCeiling time.Duration

	// AttemptFloor is the shortest timeout an attempt is given
	AttemptFloor time.Duration

	// FastMaxTokens caps output size in fast mode
	FastMaxTokens int

	// RepairMinBudget is the remaining budget required to start a repair call
	RepairMinBudget time.Duration

	// RepairCeiling bounds the repair call
	RepairCeiling time.Duration
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		SafetyMargin:       250 * time.Millisecond,
		AttemptCeiling:     45 * time.Second,
		FastAttemptCeiling: 15 * time.Second,
		AttemptFloor:       2 * time.Second,
		FastMaxTokens:      1024,
		RepairMinBudget:    3 * time.Second,
		RepairCeiling:      10 * time.Second,
	}
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces the wall clock
func WithClock(clock Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(recorder Recorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

// WithTracer sets the OpenTelemetry tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// Service runs provider cascades. It holds only read-only collaborators, so
// one Service serves any number of concurrent Run calls.
type Service struct {
	config   Config
	clients  ClientResolver
	logger   *zap.Logger
	clock    Clock
	recorder Recorder
	tracer   trace.Tracer
}

// NewService creates a new generation service
func NewService(config Config, clients ClientResolver, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		config:   config,
		clients:  clients,
		logger:   logger,
		clock:    SystemClock(),
		recorder: nopRecorder{},
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the service configuration
func (s *Service) Config() Config {
	return s.config
}

// state of the cascade
type state int

const (
	stateInit state = iota
	stateTryingGroup
	stateSuccess
	stateAborted
	stateDeadline
	stateExhausted
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateTryingGroup:
		return "trying_group"
	case stateSuccess:
		return "success"
	case stateAborted:
		return "aborted"
	case stateDeadline:
		return "deadline_exceeded"
	case stateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// transition is what a failed attempt means for the cascade
type transition int

const (
	transitionNextProvider transition = iota
	// skip every later descriptor sharing the provider name (one quota pool)
	transitionSkipPool
	transitionAbort
)

// decide maps a fault to a cascade transition
func decide(fault Fault) transition {
	switch fault.Effective() {
	case FaultFatal:
		return transitionAbort
	case FaultQuota:
		return transitionSkipPool
	default:
		return transitionNextProvider
	}
}

// run is the per-request orchestration state
type run struct {
	svc    *Service
	req    *GenerationRequest
	budget *Budget
	trace  *Trace
	logger *zap.Logger

	// exhausted holds provider names whose quota pool is spent
	exhausted  map[string]bool
	repairUsed bool
	lastErr    error
	result     *ParsedResult
}

// Run walks the provider cascade for req and returns the first result that
// parses and matches the expected shape. Every failure is a
// *GenerationFailure carrying the trace.
func (s *Service) Run(ctx context.Context, req *GenerationRequest) (*ParsedResult, error) {
	started := s.clock.Now()
	tr := newTrace(req.RequestID, started)

	ctx, span := s.tracer.Start(ctx, "generation.Run", trace.WithAttributes(
		attribute.String("request_id", req.RequestID),
		attribute.Bool("fast_mode", req.FastMode),
		attribute.Int("provider_groups", len(req.ProviderGroups)),
	))
	defer span.End()

	r := &run{
		svc:       s,
		req:       req,
		trace:     tr,
		logger:    s.logger.With(zap.String("request_id", req.RequestID)),
		exhausted: make(map[string]bool),
	}

	result, failure := r.execute(ctx)

	kind := "success"
	if failure != nil {
		kind = failure.Kind()
		span.RecordError(failure)
		span.SetStatus(codes.Error, kind)
	}
	span.SetAttributes(attribute.Int("attempts", tr.Len()), attribute.String("result", kind))
	s.recorder.ObserveRun(kind, tr.Len(), s.clock.Now().Sub(started))

	if failure != nil {
		return nil, failure
	}
	return result, nil
}

func (r *run) execute(ctx context.Context) (*ParsedResult, *GenerationFailure) {
	st := stateInit
	group := 0

	for {
		switch st {
		case stateInit:
			if failure := r.validate(); failure != nil {
				return nil, failure
			}
			r.trace.mark(MilestoneValidatedInput, r.svc.clock.Now())

			r.budget = NewBudget(r.req.Deadline, r.svc.config.SafetyMargin, r.svc.clock)
			r.trace.mark(MilestoneBudgetsComputed, r.svc.clock.Now())

			r.logger.Debug("Starting provider cascade",
				zap.Int("groups", len(r.req.ProviderGroups)),
				zap.Duration("budget", r.budget.Remaining()),
				zap.Bool("fast_mode", r.req.FastMode),
			)
			r.trace.mark(MilestoneProvidersStarted, r.svc.clock.Now())
			st = stateTryingGroup

		case stateTryingGroup:
			if group >= len(r.req.ProviderGroups) {
				st = stateExhausted
				continue
			}
			st = r.tryGroup(ctx, group)
			group++

		case stateSuccess:
			r.trace.mark(MilestoneSuccess, r.svc.clock.Now())
			r.logger.Info("Generation succeeded",
				zap.String("provider", r.result.Provider),
				zap.String("model", r.result.Model),
				zap.String("stage", string(r.result.Stage)),
				zap.Bool("repaired", r.result.Repaired),
				zap.Int("attempts", r.trace.Len()),
			)
			return r.result, nil

		case stateAborted:
			return nil, r.finish(fatalFailure(r.lastErr, r.trace))

		case stateDeadline:
			cause := r.lastErr
			if cause == nil {
				cause = context.DeadlineExceeded
			}
			return nil, r.finish(newFailure(services.ErrDeadlineExceeded, "generation budget exhausted before any provider succeeded", cause, r.trace))

		case stateExhausted:
			// the last attempt may have spent the budget itself
			if r.budget.Expired() || ctx.Err() != nil {
				st = stateDeadline
				continue
			}
			return nil, r.finish(exhaustedFailure(r.lastErr, r.trace))
		}
	}
}

func (r *run) finish(failure *GenerationFailure) *GenerationFailure {
	r.trace.mark(MilestoneExhausted, r.svc.clock.Now())
	r.logger.Info("Generation failed",
		zap.String("kind", failure.Kind()),
		zap.Int("attempts", r.trace.Len()),
		zap.Error(failure.Err),
	)
	return failure
}

func (r *run) validate() *GenerationFailure {
	if strings.TrimSpace(r.req.Prompt) == "" {
		return newFailure(services.ErrEmptyPrompt, "", nil, r.trace)
	}
	if r.req.Deadline.IsZero() {
		return newFailure(services.ErrInvalidInput, "deadline is required", nil, r.trace)
	}
	for _, g := range r.req.ProviderGroups {
		if len(g.Providers) > 0 {
			return nil
		}
	}
	return newFailure(services.ErrNoProviders, "", nil, r.trace)
}

// tryGroup walks one group and returns the next state. stateTryingGroup
// means move on to the following group. Providers whose quota pool is
// spent are skipped without an attempt, so a quota fault on a provider
// that fills the rest of the group advances straight to the next group.
func (r *run) tryGroup(ctx context.Context, groupIndex int) state {
	group := r.req.ProviderGroups[groupIndex]

	for _, desc := range group.Providers {
		if r.exhausted[desc.Name] {
			continue
		}
		if r.budget.Expired() || ctx.Err() != nil {
			return stateDeadline
		}

		fault, err := r.attempt(ctx, groupIndex, desc)
		if err == nil {
			return stateSuccess
		}
		r.lastErr = err

		switch decide(fault) {
		case transitionAbort:
			return stateAborted
		case transitionSkipPool:
			r.exhausted[desc.Name] = true
			r.logger.Debug("Quota fault, skipping provider for the rest of the request",
				zap.String("provider", desc.Name),
				zap.String("group", group.Name),
			)
		}
	}

	return stateTryingGroup
}

// attempt makes one cascade call and, on success, sets r.result
func (r *run) attempt(ctx context.Context, groupIndex int, desc providers.Descriptor) (Fault, error) {
	group := r.req.ProviderGroups[groupIndex]
	ceiling := r.svc.config.AttemptCeiling
	if r.req.FastMode && r.svc.config.FastAttemptCeiling > 0 {
		ceiling = r.svc.config.FastAttemptCeiling
	}

	rec := AttemptRecord{
		Provider:   desc.Name,
		Model:      desc.Model,
		Group:      group.Name,
		GroupIndex: groupIndex,
		Purpose:    PurposeGenerate,
	}

	resp, err := r.call(ctx, &rec, desc, r.req.Prompt, r.systemPrompt(), ceiling)
	if err != nil {
		return rec.Fault, err
	}

	data, stage, err := r.parse(resp.Text)
	if err == nil {
		r.commit(&rec, OutcomeSuccess, FaultNone, nil)
		r.result = &ParsedResult{Data: data, Raw: resp.Text, Provider: desc.Name, Model: desc.Model, Stage: stage, Trace: r.trace}
		return FaultNone, nil
	}

	fault := Classify(err)
	r.commit(&rec, OutcomeParseFailed, fault, err)

	if errors.Is(err, jsonx.ErrNoObject) || errors.Is(err, jsonx.ErrUnrepairable) {
		if r.repair(ctx, resp.Text) {
			return FaultNone, nil
		}
	}
	return fault, err
}

// call invokes one provider under a budget-derived timeout. Failures are
// committed to the trace before returning.
func (r *run) call(ctx context.Context, rec *AttemptRecord, desc providers.Descriptor, prompt, system string, ceiling time.Duration) (*providers.GenerateResponse, error) {
	start := r.svc.clock.Now()
	rec.Start = r.trace.offset(start)

	ctx, span := r.svc.tracer.Start(ctx, "generation.attempt", trace.WithAttributes(
		attribute.String("provider", desc.Name),
		attribute.String("model", desc.Model),
		attribute.String("purpose", string(rec.Purpose)),
		attribute.Int("group_index", rec.GroupIndex),
	))
	defer span.End()

	client, err := r.svc.clients.Client(desc.Name)
	if err != nil {
		r.commit(rec, OutcomeProviderError, Classify(err), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(rec.Fault))
		return nil, err
	}

	timeout := r.budget.Allocate(ceiling, r.svc.config.AttemptFloor)
	rec.Timeout = timeout

	r.logger.Debug("Calling provider",
		zap.String("provider", desc.Name),
		zap.String("model", desc.Model),
		zap.String("purpose", string(rec.Purpose)),
		zap.Int64("timeout_ms", timeout.Milliseconds()),
	)

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.Generate(attemptCtx, &providers.GenerateRequest{
		Model:       desc.Model,
		Prompt:      prompt,
		System:      system,
		MaxTokens:   r.maxTokens(desc.Options.MaxTokens),
		Temperature: desc.Options.Temperature,
		JSONMode:    true,
		Timeout:     timeout,
	})
	if err == nil && resp == nil {
		err = fmt.Errorf("provider %s returned no response", desc.Name)
	}
	if err != nil {
		r.commit(rec, OutcomeProviderError, Classify(err), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(rec.Fault))
		return nil, err
	}

	return resp, nil
}

// commit finalizes rec and appends it to the trace
func (r *run) commit(rec *AttemptRecord, outcome Outcome, fault Fault, err error) {
	now := r.svc.clock.Now()
	rec.Duration = r.trace.offset(now) - rec.Start
	rec.Outcome = outcome
	rec.Fault = fault
	if err != nil {
		rec.Error = err.Error()
	}
	r.trace.append(*rec)
	r.svc.recorder.ObserveAttempt(rec.Provider, rec.Purpose, outcome, fault, rec.Duration)

	if outcome != OutcomeSuccess {
		r.logger.Warn("Provider attempt failed",
			zap.String("provider", rec.Provider),
			zap.String("model", rec.Model),
			zap.String("purpose", string(rec.Purpose)),
			zap.String("outcome", string(outcome)),
			zap.String("fault", string(fault)),
			zap.Int64("latency_ms", rec.Duration.Milliseconds()),
			zap.Error(err),
		)
	}
}

// parse runs the local extract/repair chain and the shape check
func (r *run) parse(text string) (map[string]interface{}, jsonx.Stage, error) {
	data, stage, err := jsonx.Parse(text)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidOutput, err)
	}
	if err := ValidateShape(data, r.req.Shape); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidOutput, err)
	}
	return data, stage, nil
}

// repair makes the secondary repair call at most once per request and only
// while enough budget remains. It reports whether r.result was set.
func (r *run) repair(ctx context.Context, original string) bool {
	desc := r.req.RepairProvider
	if desc == nil || r.repairUsed {
		return false
	}
	if ctx.Err() != nil || r.budget.Expired() || r.budget.Remaining() <= r.svc.config.RepairMinBudget {
		r.logger.Debug("Skipping repair call, budget too low", zap.Duration("remaining", r.budget.Remaining()))
		return false
	}
	r.repairUsed = true

	rec := AttemptRecord{
		Provider:   desc.Name,
		Model:      desc.Model,
		GroupIndex: -1,
		Purpose:    PurposeRepair,
	}

	resp, err := r.call(ctx, &rec, *desc, repairPrompt(original, r.req.Shape), repairSystemPrompt, r.svc.config.RepairCeiling)
	if err != nil {
		return false
	}

	data, stage, err := r.parse(resp.Text)
	if err != nil {
		r.commit(&rec, OutcomeParseFailed, Classify(err), err)
		return false
	}

	r.commit(&rec, OutcomeSuccess, FaultNone, nil)
	r.result = &ParsedResult{Data: data, Raw: resp.Text, Provider: desc.Name, Model: desc.Model, Stage: stage, Repaired: true, Trace: r.trace}
	return true
}

func (r *run) maxTokens(requested int) int {
	if !r.req.FastMode || r.svc.config.FastMaxTokens <= 0 {
		return requested
	}
	if requested == 0 || requested > r.svc.config.FastMaxTokens {
		return r.svc.config.FastMaxTokens
	}
	return requested
}

func (r *run) systemPrompt() string {
	var b strings.Builder
	b.WriteString("Respond with a single JSON object and nothing else.")
	if keys := shapeKeys(r.req.Shape); keys != "" {
		b.WriteString(" Required top-level keys: ")
		b.WriteString(keys)
		b.WriteString(".")
	}
	if r.req.System != "" {
		b.WriteString("\n")
		b.WriteString(r.req.System)
	}
	return b.String()
}

const repairSystemPrompt = "You fix malformed JSON. Return only the corrected JSON object, with no commentary and no code fences."

func repairPrompt(original string, shape ExpectedShape) string {
	var b strings.Builder
	b.WriteString("The following text should contain one JSON object but does not parse.")
	if keys := shapeKeys(shape); keys != "" {
		b.WriteString(" The object must have the top-level keys ")
		b.WriteString(keys)
		b.WriteString(".")
	}
	b.WriteString(" Return the corrected JSON object only.\n\n")
	b.WriteString(original)
	return b.String()
}

func shapeKeys(shape ExpectedShape) string {
	keys := make([]string, 0, len(shape.RequiredKeys)+len(shape.RequiredArrayKeys))
	keys = append(keys, shape.RequiredKeys...)
	for _, k := range shape.RequiredArrayKeys {
		keys = append(keys, k+" (non-empty array)")
	}
	return strings.Join(keys, ", ")
}
