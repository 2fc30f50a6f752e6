package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

// ExecutionRecord is the terminal record of one action within a run.
type ExecutionRecord struct {
	// ActionID references the action.
	ActionID string `json:"action_id"`

	// Kind mirrors the action's kind.
	Kind Kind `json:"kind"`

	// Severity mirrors the action's effective severity.
	Severity Severity `json:"severity"`

	// Outcome is the terminal outcome.
	Outcome Outcome `json:"outcome"`

	// Detail is a short, redacted explanation: what was applied, why the
	// action was skipped, or why it failed.
	Detail string `json:"detail,omitempty"`

	// Attempts is how many times apply ran, including retries.
	Attempts int `json:"attempts"`

	// StartedAt is when the first attempt began. Zero for records that never ran.
	StartedAt time.Time `json:"started_at,omitempty"`

	// Duration covers all attempts including backoff waits.
	Duration time.Duration `json:"duration"`
}

// RunReport is the complete outcome of one run: a record per action in
// execution order plus the overall status.
type RunReport struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// PlanID references the plan the run executed.
	PlanID string `json:"plan_id"`

	// Status is the overall run status.
	Status RunStatus `json:"status"`

	// StartedAt is when execution began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when execution finished.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is the wall-clock run duration.
	Duration time.Duration `json:"duration"`

	// Records holds one record per plan entry, in plan order.
	Records []ExecutionRecord `json:"records"`

	// Warnings counts advisory action failures.
	Warnings int `json:"warnings"`
}

// Summary aggregates record outcomes.
type Summary struct {
	Total   int `json:"total"`
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Aborted int `json:"aborted"`
}

// Summary computes outcome counts across all records.
func (r *RunReport) Summary() Summary {
	s := Summary{Total: len(r.Records)}
	for _, rec := range r.Records {
		switch rec.Outcome {
		case OutcomeApplied:
			s.Applied++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeFailed:
			s.Failed++
		case OutcomeAborted:
			s.Aborted++
		}
	}
	return s
}

// Record returns the record for the given action ID, or nil.
func (r *RunReport) Record(actionID string) *ExecutionRecord {
	for i := range r.Records {
		if r.Records[i].ActionID == actionID {
			return &r.Records[i]
		}
	}
	return nil
}

// RenderJSON renders the report as indented JSON for machine consumption.
func (r *RunReport) RenderJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// RenderText renders the report as a human-readable table.
func (r *RunReport) RenderText() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "ACTION\tKIND\tOUTCOME\tATTEMPTS\tDURATION\tDETAIL\n")
	for _, rec := range r.Records {
		outcome := string(rec.Outcome)
		if rec.Outcome == OutcomeFailed && rec.Severity == SeverityAdvisory {
			outcome += " (advisory)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			rec.ActionID, rec.Kind, outcome, rec.Attempts,
			rec.Duration.Round(time.Millisecond), rec.Detail)
	}
	w.Flush()

	s := r.Summary()
	sb.WriteString(fmt.Sprintf("\nRun %s: %s in %s (%d applied, %d skipped, %d failed, %d aborted",
		r.RunID, r.Status, r.Duration.Round(time.Millisecond),
		s.Applied, s.Skipped, s.Failed, s.Aborted))
	if r.Warnings > 0 {
		sb.WriteString(fmt.Sprintf(", %d warnings", r.Warnings))
	}
	sb.WriteString(")\n")
	return sb.String()
}

// RenderPlanText renders a plan as a human-readable table.
func RenderPlanText(plan *Plan) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "ACTION\tKIND\tDECISION\tVERDICT\tREASON\n")
	for _, e := range plan.Entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.ActionID, e.Kind, e.Decision, e.Verdict, e.Reason)
	}
	w.Flush()

	if plan.Converged() {
		sb.WriteString("\nNo changes required; host state is converged.\n")
	} else {
		sb.WriteString(fmt.Sprintf("\n%d of %d actions require changes.\n",
			plan.PendingCount(), len(plan.Entries)))
	}
	return sb.String()
}
