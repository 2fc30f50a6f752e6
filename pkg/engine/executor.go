package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Executor applies a plan level by level. Within a level, actions are
// independent and may run in parallel up to the policy's bound; actions
// sharing a resource class are still serialized through per-class mutexes.
type Executor struct {
	registry *Registry
	redactor *Redactor
	log      zerolog.Logger

	// retryBaseDelay is the backoff unit for transient failures.
	retryBaseDelay time.Duration

	mu       sync.Mutex
	outcomes map[string]Outcome
	records  map[string]*ExecutionRecord
	halted   bool

	classMu map[ResourceClass]*sync.Mutex
}

// NewExecutor creates an executor over the given handler registry.
func NewExecutor(registry *Registry, redactor *Redactor, log zerolog.Logger) *Executor {
	return &Executor{
		registry:       registry,
		redactor:       redactor,
		log:            log,
		retryBaseDelay: time.Second,
	}
}

// Execute runs the plan against the graph and returns the run report.
// The report is always non-nil when the error is nil; execution failures are
// reported through record outcomes and the run status, not through the error.
func (e *Executor) Execute(ctx context.Context, graph *Graph, plan *Plan) (*RunReport, error) {
	if graph == nil || plan == nil {
		return nil, NewStructuralError("graph and plan are required", nil).
			WithCode(ErrCodeValidation)
	}

	policy := plan.Policy.Normalize()

	runCtx := ctx
	var cancel context.CancelFunc
	if policy.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, policy.RunTimeout)
		defer cancel()
	}

	e.mu.Lock()
	e.outcomes = make(map[string]Outcome, len(plan.Entries))
	e.records = make(map[string]*ExecutionRecord, len(plan.Entries))
	e.halted = false
	e.classMu = make(map[ResourceClass]*sync.Mutex)
	e.mu.Unlock()

	report := &RunReport{
		RunID:     uuid.New().String(),
		PlanID:    plan.ID,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}

	e.log.Info().
		Str("run_id", report.RunID).
		Str("plan_id", plan.ID).
		Int("pending", plan.PendingCount()).
		Str("on_failure", string(policy.OnFailure)).
		Int("parallelism", policy.Parallelism).
		Msg("run started")

	for _, level := range graph.Levels {
		e.executeLevel(runCtx, graph, plan, policy, level)
		if runCtx.Err() != nil {
			break
		}
	}

	// Anything without a record at this point never got dispatched.
	e.mu.Lock()
	cancelled := runCtx.Err() != nil
	for _, entry := range plan.Entries {
		if _, done := e.records[entry.ActionID]; done {
			continue
		}
		action := graph.Actions[entry.ActionID]
		detail := "run halted before this action was attempted"
		if cancelled {
			detail = "run cancelled before this action was attempted"
		}
		e.records[entry.ActionID] = &ExecutionRecord{
			ActionID: entry.ActionID,
			Kind:     entry.Kind,
			Severity: action.EffectiveSeverity(),
			Outcome:  OutcomeAborted,
			Detail:   detail,
		}
		e.outcomes[entry.ActionID] = OutcomeAborted
	}
	halted := e.halted
	e.mu.Unlock()

	e.finalize(report, plan, halted, cancelled)

	e.log.Info().
		Str("run_id", report.RunID).
		Str("status", string(report.Status)).
		Dur("duration", report.Duration).
		Msg("run finished")

	return report, nil
}

// executeLevel dispatches one level through a bounded worker pool.
func (e *Executor) executeLevel(
	ctx context.Context,
	graph *Graph,
	plan *Plan,
	policy RunPolicy,
	level []string,
) {
	workerCount := policy.Parallelism
	if workerCount < 1 {
		workerCount = 1
	}
	if len(level) < workerCount {
		workerCount = len(level)
	}

	queue := make(chan string, len(level))
	for _, id := range level {
		queue <- id
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range queue {
				e.executeOne(ctx, graph, plan, policy, id)
			}
		}()
	}
	wg.Wait()
}

// executeOne resolves and records the terminal outcome of a single action.
func (e *Executor) executeOne(
	ctx context.Context,
	graph *Graph,
	plan *Plan,
	policy RunPolicy,
	id string,
) {
	action := graph.Actions[id]
	entry := plan.Entry(id)
	severity := action.EffectiveSeverity()

	record := &ExecutionRecord{
		ActionID: id,
		Kind:     action.Kind,
		Severity: severity,
	}

	// Skips were decided at plan time and carry no side effects, but they
	// still record the precondition reason.
	if entry.Decision == DecisionSkip {
		record.Outcome = OutcomeSkipped
		record.Detail = entry.Reason
		e.store(id, record)
		return
	}

	if ctx.Err() != nil {
		record.Outcome = OutcomeAborted
		record.Detail = "run cancelled before this action was attempted"
		e.store(id, record)
		return
	}

	if e.isHalted() {
		record.Outcome = OutcomeAborted
		record.Detail = "run halted by an earlier failure"
		e.store(id, record)
		return
	}

	if blockedBy := e.failedDependency(graph, id); blockedBy != "" {
		record.Outcome = OutcomeAborted
		record.Detail = fmt.Sprintf("dependency %s did not reach its desired state", blockedBy)
		e.store(id, record)
		return
	}

	handler, err := e.registry.Get(action.Kind)
	if err != nil {
		record.Outcome = OutcomeFailed
		record.Detail = e.redactor.Redact(err.Error())
		e.store(id, record)
		e.noteFailure(policy, severity)
		return
	}

	detail, attempts, startedAt, applyErr := e.applyWithRetry(ctx, handler, action, policy)
	record.Attempts = attempts
	record.StartedAt = startedAt
	record.Duration = time.Since(startedAt)

	switch {
	case applyErr == nil:
		record.Outcome = OutcomeApplied
		record.Detail = e.redactor.Redact(detail)
		e.log.Info().
			Str("action", id).
			Str("kind", string(action.Kind)).
			Int("attempts", attempts).
			Msg("action applied")
	case ctx.Err() != nil && !IsStructural(applyErr):
		record.Outcome = OutcomeAborted
		record.Detail = "run cancelled while this action was in flight"
	default:
		record.Outcome = OutcomeFailed
		record.Detail = e.redactor.Redact(applyErr.Error())
		e.log.Error().
			Str("action", id).
			Str("kind", string(action.Kind)).
			Int("attempts", attempts).
			Err(applyErr).
			Msg("action failed")
		e.noteFailure(policy, severity)
	}

	e.store(id, record)
}

// applyWithRetry runs the handler's apply under the per-action timeout,
// retrying transient failures with exponential backoff.
func (e *Executor) applyWithRetry(
	ctx context.Context,
	handler Handler,
	action *Action,
	policy RunPolicy,
) (detail string, attempts int, startedAt time.Time, err error) {
	timeout := action.EffectiveTimeout(policy)
	maxRetries := action.EffectiveRetries(policy)
	classLock := e.classLock(handler.ResourceClass())
	startedAt = time.Now()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		attempts++

		applyCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			applyCtx, cancel = context.WithTimeout(ctx, timeout)
		}

		classLock.Lock()
		detail, err = handler.Apply(applyCtx, action)
		classLock.Unlock()

		if cancel != nil {
			cancel()
		}

		if err == nil {
			return detail, attempts, startedAt, nil
		}
		if !IsRetryable(err) || ctx.Err() != nil || attempt >= maxRetries {
			break
		}

		backoff := e.backoff(attempt, err)
		e.log.Warn().
			Str("action", action.ID).
			Int("attempt", attempt+1).
			Int("max_attempts", maxRetries+1).
			Dur("backoff", backoff).
			Err(err).
			Msg("retrying transient failure")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return detail, attempts, startedAt, err
		}
	}

	return detail, attempts, startedAt, err
}

// backoff computes exponential backoff with a throttle-aware base and a cap.
func (e *Executor) backoff(attempt int, err error) time.Duration {
	base := e.retryBaseDelay
	if IsThrottled(err) {
		base = 5 * e.retryBaseDelay
	}

	delay := base * time.Duration(math.Pow(2, float64(attempt)))
	if delay > time.Minute {
		delay = time.Minute
	}

	// Small fixed jitter keeps simultaneous retries from aligning.
	jitter := time.Duration(float64(delay) * 0.25)
	return delay + jitter/2
}

// failedDependency returns the ID of a required dependency that failed or was
// aborted, or empty when all dependencies reached their desired state.
// Advisory failures never block dependents.
func (e *Executor) failedDependency(graph *Graph, id string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, dep := range graph.Dependencies[id] {
		outcome, done := e.outcomes[dep]
		if !done {
			// Levels guarantee dependencies are terminal before dependents
			// dispatch; a missing outcome means the dependency never ran.
			return dep
		}
		if !outcome.IsTerminalFailure() {
			continue
		}
		if graph.Actions[dep].EffectiveSeverity() == SeverityAdvisory && outcome == OutcomeFailed {
			continue
		}
		return dep
	}
	return ""
}

// noteFailure flips the halt flag for required failures under the halt policy.
func (e *Executor) noteFailure(policy RunPolicy, severity Severity) {
	if severity == SeverityAdvisory {
		return
	}
	if policy.OnFailure != OnFailureHalt {
		return
	}
	e.mu.Lock()
	e.halted = true
	e.mu.Unlock()
}

func (e *Executor) isHalted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}

// classLock returns the mutex serializing a resource class.
func (e *Executor) classLock(class ResourceClass) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.classMu[class]
	if !ok {
		lock = &sync.Mutex{}
		e.classMu[class] = lock
	}
	return lock
}

// store records an action's terminal outcome.
func (e *Executor) store(id string, record *ExecutionRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records[id] = record
	e.outcomes[id] = record.Outcome
}

// finalize assembles the report in plan order and derives the run status.
func (e *Executor) finalize(report *RunReport, plan *Plan, halted, cancelled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	report.Records = make([]ExecutionRecord, 0, len(plan.Entries))
	requiredFailed := 0
	requiredAborted := 0
	for _, entry := range plan.Entries {
		rec := e.records[entry.ActionID]
		report.Records = append(report.Records, *rec)

		if rec.Severity == SeverityAdvisory {
			if rec.Outcome == OutcomeFailed {
				report.Warnings++
			}
			continue
		}
		switch rec.Outcome {
		case OutcomeFailed:
			requiredFailed++
		case OutcomeAborted:
			requiredAborted++
		}
	}

	switch {
	case cancelled:
		report.Status = RunStatusAborted
	case halted && requiredAborted > 0:
		report.Status = RunStatusAborted
	case requiredFailed > 0 || requiredAborted > 0:
		report.Status = RunStatusPartialFailure
	default:
		report.Status = RunStatusSuccess
	}

	report.CompletedAt = time.Now()
	report.Duration = report.CompletedAt.Sub(report.StartedAt)
}
