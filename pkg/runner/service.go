// Package runner wires the full convergence pipeline: load a manifest, build
// the action graph, take the fact snapshot, plan, gate the plan through
// policies, execute, and persist the run. The CLI commands are thin wrappers
// over this package.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/convergo/convergo/pkg/actions"
	"github.com/convergo/convergo/pkg/engine"
	"github.com/convergo/convergo/pkg/manifest"
	"github.com/convergo/convergo/pkg/policy"
	"github.com/convergo/convergo/pkg/stores"
	"github.com/convergo/convergo/pkg/system"
	"github.com/convergo/convergo/pkg/telemetry"
)

// Options configures a Service. Zero values fall back to local execution with
// observability disabled and no persistence.
type Options struct {
	// Parallelism overrides the manifest's policy when positive.
	Parallelism int

	// PolicyMode selects enforcing or advisory plan gating.
	PolicyMode policy.Mode

	// PolicyPaths are extra .rego files or directories loaded into the gate.
	PolicyPaths []string

	// FactTTL bounds how long persisted probe results stay fresh.
	FactTTL time.Duration

	// Runner executes host commands. Defaults to the local exec runner.
	Runner system.Runner

	// Store persists runs, records, and facts. Nil disables persistence.
	Store stores.Store

	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
	Log     zerolog.Logger
}

// Service drives convergence runs end to end.
type Service struct {
	opts     Options
	registry *engine.Registry
	gate     *policy.Gate
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	log      zerolog.Logger
}

// New assembles a service: handler registry over the host facades, policy
// gate with builtins plus any user policies, and the observability hooks.
func New(opts Options) (*Service, error) {
	if opts.Runner == nil {
		opts.Runner = system.NewExecRunner()
	}
	if opts.FactTTL <= 0 {
		opts.FactTTL = 15 * time.Minute
	}
	if opts.Metrics == nil {
		m, err := telemetry.NewMetrics(telemetry.MetricsConfig{})
		if err != nil {
			return nil, err
		}
		opts.Metrics = m
	}
	if opts.Tracer == nil {
		t, err := telemetry.NewTracer(telemetry.TracingConfig{}, "convergo", "dev", "")
		if err != nil {
			return nil, err
		}
		opts.Tracer = t
	}

	registry := engine.NewRegistry()
	deps := actions.NewDeps(opts.Runner, opts.Log)
	if err := actions.RegisterAll(registry, deps); err != nil {
		return nil, err
	}

	gate, err := policy.NewGate(opts.PolicyMode, opts.Log)
	if err != nil {
		return nil, err
	}
	if len(opts.PolicyPaths) > 0 {
		loader := policy.NewLoader(opts.Log)
		policies, err := loader.LoadFromPaths(opts.PolicyPaths)
		if err != nil {
			return nil, err
		}
		if err := gate.Load(context.Background(), policies); err != nil {
			return nil, err
		}
	}

	return &Service{
		opts:     opts,
		registry: registry,
		gate:     gate,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		log:      opts.Log.With().Str("component", "runner").Logger(),
	}, nil
}

// Policies returns the gate's loaded policies sorted by name.
func (s *Service) Policies() []policy.Policy {
	return s.gate.List()
}

// Preparation is the read-only half of a run: everything needed to show the
// user what would change, and everything Apply needs to make it happen.
type Preparation struct {
	Manifest *manifest.Loaded
	Graph    *engine.Graph
	Snapshot *engine.Snapshot
	Plan     *engine.Plan
	Gate     *policy.Result

	redactor *engine.Redactor
}

// Prepare loads the manifest, probes current state, plans, and gates the
// plan. It never mutates the host.
func (s *Service) Prepare(ctx context.Context, manifestPath string) (*Preparation, error) {
	loaded, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}

	redactor := engine.NewRedactorFromActions(loaded.Actions)

	graph, err := engine.NewGraphBuilder().Build(loaded.Actions)
	if err != nil {
		return nil, err
	}

	runPolicy := loaded.Policy
	if s.opts.Parallelism > 0 {
		runPolicy.Parallelism = s.opts.Parallelism
	}

	snapshotter := engine.NewSnapshotter(s.registry, redactor, 0, s.opts.Log)
	snapshot, err := snapshotter.Take(ctx, graph)
	if err != nil {
		return nil, err
	}
	for id, result := range snapshot.Results {
		s.metrics.RecordProbe(string(graph.Actions[id].Kind), string(result.Verdict), result.Duration)
	}

	plan, err := engine.NewPlanner(s.opts.Log).Plan(graph, snapshot, runPolicy)
	if err != nil {
		return nil, err
	}

	gateResult, err := s.gate.EvaluatePlan(ctx, graph, plan)
	if err != nil {
		return nil, err
	}

	if err := s.persistFacts(ctx, snapshot); err != nil {
		s.log.Warn().Err(err).Msg("could not persist fact snapshot")
	}

	return &Preparation{
		Manifest: loaded,
		Graph:    graph,
		Snapshot: snapshot,
		Plan:     plan,
		Gate:     gateResult,
		redactor: redactor,
	}, nil
}

// Apply executes a prepared plan. A plan the gate denied never executes.
func (s *Service) Apply(ctx context.Context, prep *Preparation) (*engine.RunReport, error) {
	if !prep.Gate.Allowed {
		return nil, fmt.Errorf("plan denied by policy: %s", describeViolations(prep.Gate.Violations))
	}

	ctx, span := s.tracer.StartSpan(ctx, "run.execute",
		telemetry.AttrPlanID.String(prep.Plan.ID))
	defer span.End()

	s.metrics.RecordRunStarted()

	executor := engine.NewExecutor(s.registry, prep.redactor, s.opts.Log)
	report, err := executor.Execute(ctx, prep.Graph, prep.Plan)
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordRunCompleted("error", 0)
		return nil, err
	}

	span.SetAttributes(
		telemetry.AttrRunID.String(report.RunID),
		telemetry.AttrRunStatus.String(string(report.Status)),
	)
	if report.Status == engine.RunStatusSuccess {
		telemetry.RecordSuccess(span)
	} else {
		telemetry.RecordError(span, fmt.Errorf("run finished with status %s", report.Status))
	}

	s.metrics.RecordRunCompleted(string(report.Status), report.Duration)
	for _, rec := range report.Records {
		s.metrics.RecordAction(string(rec.Kind), string(rec.Outcome), rec.Attempts, rec.Duration)
	}

	if err := s.persistRun(ctx, prep, report); err != nil {
		s.log.Warn().Err(err).Str("run_id", report.RunID).Msg("could not persist run")
	}

	return report, nil
}

// Rollback restores a single action's previous state on explicit request.
// Only kinds whose handler keeps a restorable previous state support it.
func (s *Service) Rollback(ctx context.Context, manifestPath, actionID string) (string, error) {
	loaded, err := manifest.Load(manifestPath)
	if err != nil {
		return "", err
	}

	var target *engine.Action
	for i := range loaded.Actions {
		if loaded.Actions[i].ID == actionID {
			target = &loaded.Actions[i]
			break
		}
	}
	if target == nil {
		return "", fmt.Errorf("action %s not found in %s", actionID, manifestPath)
	}

	handler, err := s.registry.Get(target.Kind)
	if err != nil {
		return "", err
	}
	rollbacker, ok := handler.(engine.Rollbacker)
	if !ok {
		return "", fmt.Errorf("%s actions do not support rollback", target.Kind)
	}

	redactor := engine.NewRedactorFromActions(loaded.Actions)
	detail, err := rollbacker.Rollback(ctx, target)
	if err != nil {
		return "", fmt.Errorf("%s", redactor.Redact(err.Error()))
	}

	s.log.Info().Str("action", actionID).Msg("rollback completed")
	return redactor.Redact(detail), nil
}

// persistFacts stores the snapshot's probe results with the configured TTL.
func (s *Service) persistFacts(ctx context.Context, snapshot *engine.Snapshot) error {
	if s.opts.Store == nil {
		return nil
	}
	for actionID, result := range snapshot.Results {
		expires := result.ProbedAt.Add(s.opts.FactTTL)
		fact := &stores.Fact{
			ID:        uuid.New().String(),
			ActionID:  actionID,
			Verdict:   string(result.Verdict),
			Detail:    result.Detail,
			ProbedAt:  result.ProbedAt,
			ExpiresAt: &expires,
		}
		if err := s.opts.Store.UpsertFact(ctx, fact); err != nil {
			return err
		}
	}
	return nil
}

// persistRun stores the run row and one record per action.
func (s *Service) persistRun(ctx context.Context, prep *Preparation, report *engine.RunReport) error {
	if s.opts.Store == nil {
		return nil
	}

	warnings := collectWarnings(prep.Gate, report)
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return err
	}

	run := &stores.Run{
		ID:           report.RunID,
		ManifestPath: prep.Manifest.Path,
		PlanID:       report.PlanID,
		Status:       string(report.Status),
		StartedAt:    report.StartedAt,
		Warnings:     "[]",
		CreatedAt:    report.StartedAt,
	}
	if err := s.opts.Store.CreateRun(ctx, run); err != nil {
		return err
	}
	if err := s.opts.Store.FinishRun(ctx, report.RunID, string(report.Status),
		report.CompletedAt, string(warningsJSON)); err != nil {
		return err
	}

	for _, rec := range report.Records {
		record := &stores.Record{
			RunID:      report.RunID,
			ActionID:   rec.ActionID,
			Kind:       string(rec.Kind),
			Severity:   string(rec.Severity),
			Outcome:    string(rec.Outcome),
			Detail:     rec.Detail,
			Attempts:   rec.Attempts,
			StartedAt:  rec.StartedAt,
			DurationMS: rec.Duration.Milliseconds(),
		}
		if err := s.opts.Store.InsertRecord(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// collectWarnings merges policy warnings with advisory action failures.
func collectWarnings(gate *policy.Result, report *engine.RunReport) []string {
	var warnings []string
	for _, w := range gate.Warnings {
		warnings = append(warnings, fmt.Sprintf("policy %s: %s", w.Policy, w.Message))
	}
	for _, rec := range report.Records {
		if rec.Severity == engine.SeverityAdvisory && rec.Outcome == engine.OutcomeFailed {
			warnings = append(warnings, fmt.Sprintf("advisory action %s failed: %s", rec.ActionID, rec.Detail))
		}
	}
	if warnings == nil {
		warnings = []string{}
	}
	return warnings
}

func describeViolations(violations []policy.Violation) string {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		if v.ActionID != "" {
			parts = append(parts, fmt.Sprintf("%s (%s): %s", v.Policy, v.ActionID, v.Message))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", v.Policy, v.Message))
	}
	return strings.Join(parts, "; ")
}
