// Package report collects per-entity outcomes of a reconciliation run and
// renders them for humans. Recording is independent of the reconciliation
// logic: the reconciler only ever appends, the CLI decides how to print.
package report

import (
	"io"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
)

// Action is what happened to one entity.
type Action string

const (
	ActionCreated   Action = "created"
	ActionSkipped   Action = "skipped"
	ActionDeleted   Action = "deleted"
	ActionEnrolled  Action = "enrolled"
	ActionSubmitted Action = "submitted"
	ActionFailed    Action = "failed"
)

// Kind is the entity class an outcome refers to.
type Kind string

const (
	KindCourse     Kind = "course"
	KindSection    Kind = "section"
	KindAssignment Kind = "assignment"
	KindEnrollment Kind = "enrollment"
	KindSubmission Kind = "submission"
)

// Outcome is one line of the run transcript.
type Outcome struct {
	Course string `json:"course"`
	Kind   Kind   `json:"kind"`
	Name   string `json:"name"`
	Action Action `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// Report accumulates outcomes for one run and logs each as it is recorded.
type Report struct {
	RunID    string    `json:"run_id"`
	Outcomes []Outcome `json:"outcomes"`

	log zerolog.Logger
}

// New creates a report bound to a logger; every outcome is logged live with
// the run id attached.
func New(log zerolog.Logger) *Report {
	runID := uuid.NewString()
	return &Report{
		RunID: runID,
		log:   log.With().Str("run_id", runID).Logger(),
	}
}

// Record appends an outcome and emits its log line.
func (r *Report) Record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	evt := r.log.Info()
	if o.Action == ActionFailed {
		evt = r.log.Error()
	}
	evt = evt.Str("course", o.Course).
		Str("kind", string(o.Kind)).
		Str("name", o.Name)
	if o.Reason != "" {
		evt = evt.Str("reason", o.Reason)
	}
	evt.Msg(string(o.Action))
}

// Failure records a failed action with its reason.
func (r *Report) Failure(course string, kind Kind, name string, err error) {
	r.Record(Outcome{Course: course, Kind: kind, Name: name, Action: ActionFailed, Reason: err.Error()})
}

// Success records a non-failure action.
func (r *Report) Success(course string, kind Kind, name string, action Action) {
	r.Record(Outcome{Course: course, Kind: kind, Name: name, Action: action})
}

// Skip records an expected-absence skip with an informational reason.
func (r *Report) Skip(course string, kind Kind, name, reason string) {
	r.Record(Outcome{Course: course, Kind: kind, Name: name, Action: ActionSkipped, Reason: reason})
}

// Summary returns outcome counts by action.
func (r *Report) Summary() map[Action]int {
	counts := map[Action]int{}
	for _, o := range r.Outcomes {
		counts[o.Action]++
	}
	return counts
}

// HasFailures reports whether any outcome failed.
func (r *Report) HasFailures() bool {
	for _, o := range r.Outcomes {
		if o.Action == ActionFailed {
			return true
		}
	}
	return false
}

// RenderTable writes the full transcript as a table.
func (r *Report) RenderTable(w io.Writer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Course", "Kind", "Name", "Action", "Reason"})
	for _, o := range r.Outcomes {
		tw.AppendRow(table.Row{o.Course, o.Kind, o.Name, o.Action, o.Reason})
	}
	tw.Render()
}
