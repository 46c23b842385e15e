package generation

import (
	"time"

	"github.com/upb/studygen/internal/jsonx"
	"github.com/upb/studygen/services/providers"
)

// ProviderGroup is one fallback tier. Providers inside it are tried in order.
type ProviderGroup struct {
	Name      string                 `json:"name" yaml:"name"`
	Providers []providers.Descriptor `json:"providers" yaml:"providers" validate:"dive"`
}

// GenerationRequest is everything one Run needs. It is not modified by Run.
type GenerationRequest struct {
	// RequestID correlates logs, spans and the trace
	RequestID string

	// Prompt is the full natural-language instruction
	Prompt string

	// System is an optional system instruction appended to the JSON directive
	System string

	// Shape is the structure the result must have
	Shape ExpectedShape

	// Deadline is the absolute time by which Run must resolve
	Deadline time.Time

	// FastMode tightens attempt timeouts and output size
	FastMode bool

	// ProviderGroups is the cascade, walked in order
	ProviderGroups []ProviderGroup

	// RepairProvider serves the secondary repair call; nil disables it
	RepairProvider *providers.Descriptor
}

// Outcome of a single attempt
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeParseFailed   Outcome = "parse-failed"
	OutcomeProviderError Outcome = "provider-error"
)

// Purpose tells a cascade attempt apart from the secondary repair call
type Purpose string

const (
	PurposeGenerate Purpose = "generate"
	PurposeRepair   Purpose = "repair"
)

// AttemptRecord describes one provider call. Records are values; the trace
// hands out copies.
type AttemptRecord struct {
	Provider   string        `json:"provider"`
	Model      string        `json:"model"`
	Group      string        `json:"group,omitempty"`
	GroupIndex int           `json:"group_index"`
	Purpose    Purpose       `json:"purpose"`
	Start      time.Duration `json:"start"`
	Duration   time.Duration `json:"duration"`
	Timeout    time.Duration `json:"timeout"`
	Outcome    Outcome       `json:"outcome"`
	Fault      Fault         `json:"fault,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Milestone names a point in the life of a request
type Milestone string

const (
	MilestoneValidatedInput   Milestone = "validated-input"
	MilestoneBudgetsComputed  Milestone = "budgets-computed"
	MilestoneProvidersStarted Milestone = "providers-started"
	MilestoneSuccess          Milestone = "success"
	MilestoneExhausted        Milestone = "exhausted"
)

// MilestoneMark is a milestone with its offset from the start of the request
type MilestoneMark struct {
	Name   Milestone     `json:"name"`
	Offset time.Duration `json:"offset"`
}

// Trace is the append-only history of one request. It is owned by that
// request and is not safe for concurrent writers.
type Trace struct {
	requestID  string
	started    time.Time
	attempts   []AttemptRecord
	milestones []MilestoneMark
}

func newTrace(requestID string, started time.Time) *Trace {
	return &Trace{
		requestID: requestID,
		started:   started,
	}
}

// RequestID returns the id of the traced request
func (t *Trace) RequestID() string {
	return t.requestID
}

// Started returns the time the request started
func (t *Trace) Started() time.Time {
	return t.started
}

// Len returns the number of recorded attempts
func (t *Trace) Len() int {
	return len(t.attempts)
}

// Attempts returns a copy of the recorded attempts in order
func (t *Trace) Attempts() []AttemptRecord {
	out := make([]AttemptRecord, len(t.attempts))
	copy(out, t.attempts)
	return out
}

// Milestones returns a copy of the recorded milestones in order
func (t *Trace) Milestones() []MilestoneMark {
	out := make([]MilestoneMark, len(t.milestones))
	copy(out, t.milestones)
	return out
}

// Milestone returns the offset of a milestone, if reached
func (t *Trace) Milestone(name Milestone) (time.Duration, bool) {
	for _, m := range t.milestones {
		if m.Name == name {
			return m.Offset, true
		}
	}
	return 0, false
}

func (t *Trace) offset(at time.Time) time.Duration {
	return at.Sub(t.started)
}

func (t *Trace) append(rec AttemptRecord) {
	t.attempts = append(t.attempts, rec)
}

func (t *Trace) mark(name Milestone, at time.Time) {
	t.milestones = append(t.milestones, MilestoneMark{Name: name, Offset: t.offset(at)})
}

// ParsedResult is the single successful outcome of a request
type ParsedResult struct {
	// Data is the validated object
	Data map[string]interface{}

	// Raw is the provider text the object came from
	Raw string

	// Provider and Model that produced Data
	Provider string
	Model    string

	// Stage of the parse chain that succeeded
	Stage jsonx.Stage

	// Repaired is true when the secondary repair call produced Data
	Repaired bool

	Trace *Trace
}
