package audit

import (
	"context"
	"errors"
	"time"
)

type Trigger string

const (
	TriggerAutomatic Trigger = "automatic"
	TriggerManual    Trigger = "manual"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeTimeout Outcome = "timeout"
)

// Step is one action taken during an attempt, in execution order.
type Step struct {
	Action string    `json:"action"`
	Result string    `json:"result"`
	OK     bool      `json:"ok"`
	At     time.Time `json:"at"`
}

// Entry is the full record of one remediation attempt. Immutable once
// appended; the log only grows.
type Entry struct {
	AttemptID  string    `json:"attemptId"`
	Service    string    `json:"service"`
	Trigger    Trigger   `json:"trigger"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Outcome    Outcome   `json:"outcome"`
	Steps      []Step    `json:"steps"`
}

// Clone returns a copy with its own steps slice.
func (e *Entry) Clone() *Entry {
	out := *e
	out.Steps = make([]Step, len(e.Steps))
	copy(out.Steps, e.Steps)
	return &out
}

var ErrNotFound = errors.New("audit entry not found")

type Store interface {
	Append(ctx context.Context, e *Entry) error
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
	ListByService(ctx context.Context, service string, limit int) ([]Entry, error)
	Get(ctx context.Context, attemptID string) (*Entry, error)
}

// Recorder accumulates the steps of one attempt into its eventual entry.
// Used by a single goroutine per attempt.
type Recorder struct {
	entry Entry
}

func NewRecorder(attemptID, service string, trigger Trigger) *Recorder {
	return &Recorder{entry: Entry{
		AttemptID: attemptID,
		Service:   service,
		Trigger:   trigger,
		StartedAt: time.Now(),
	}}
}

func (r *Recorder) AttemptID() string { return r.entry.AttemptID }

// Step records a completed action.
func (r *Recorder) Step(action, result string) {
	r.entry.Steps = append(r.entry.Steps, Step{
		Action: action,
		Result: result,
		OK:     true,
		At:     time.Now(),
	})
}

// StepFailed records the action that aborted the attempt.
func (r *Recorder) StepFailed(action string, err error) {
	r.entry.Steps = append(r.entry.Steps, Step{
		Action: action,
		Result: err.Error(),
		At:     time.Now(),
	})
}

func (r *Recorder) StepCount() int { return len(r.entry.Steps) }

// Complete stamps the outcome and returns the finished entry.
func (r *Recorder) Complete(outcome Outcome) *Entry {
	r.entry.Outcome = outcome
	r.entry.FinishedAt = time.Now()
	return r.entry.Clone()
}
