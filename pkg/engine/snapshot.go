package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// FactResult is the snapshot's answer for one action.
type FactResult struct {
	// Verdict is the probe's answer.
	Verdict Verdict `json:"verdict"`

	// Detail explains an unsatisfied or unknown verdict.
	Detail string `json:"detail,omitempty"`

	// ProbedAt is when the probe ran.
	ProbedAt time.Time `json:"probed_at"`

	// Duration is how long the probe took.
	Duration time.Duration `json:"duration"`
}

// Snapshot is the coherent set of fact results for one run. It is taken once,
// before planning; a single run never mixes observations from different
// probing passes.
type Snapshot struct {
	// TakenAt is when the snapshot pass started.
	TakenAt time.Time `json:"taken_at"`

	// Results maps action ID to its fact result.
	Results map[string]FactResult `json:"results"`
}

// Result returns the fact result for an action. A missing entry is reported
// as unknown so planning errs toward executing.
func (s *Snapshot) Result(actionID string) FactResult {
	if r, ok := s.Results[actionID]; ok {
		return r
	}
	return FactResult{Verdict: VerdictUnknown, Detail: "no probe result recorded"}
}

// Snapshotter probes the current system state for every action in a graph.
type Snapshotter struct {
	registry *Registry
	redactor *Redactor
	timeout  time.Duration
	log      zerolog.Logger
}

// NewSnapshotter creates a snapshotter. The timeout bounds each individual
// probe; zero means 30 seconds.
func NewSnapshotter(registry *Registry, redactor *Redactor, timeout time.Duration, log zerolog.Logger) *Snapshotter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Snapshotter{
		registry: registry,
		redactor: redactor,
		timeout:  timeout,
		log:      log,
	}
}

// Take probes every action in the graph and returns the snapshot.
// Probe failures never fail the snapshot: an unanswerable probe yields an
// unknown verdict, which forces the action into the execute set.
func (s *Snapshotter) Take(ctx context.Context, graph *Graph) (*Snapshot, error) {
	snap := &Snapshot{
		TakenAt: time.Now(),
		Results: make(map[string]FactResult, len(graph.Order)),
	}

	for _, id := range graph.Order {
		if err := ctx.Err(); err != nil {
			return nil, NewStructuralError("fact probing cancelled", err).
				WithCode(ErrCodeCancelled)
		}

		action := graph.Actions[id]
		handler, err := s.registry.Get(action.Kind)
		if err != nil {
			return nil, err
		}

		snap.Results[id] = s.probe(ctx, handler, action)
	}

	return snap, nil
}

// probe runs one handler check under the probe timeout.
func (s *Snapshotter) probe(ctx context.Context, handler Handler, action *Action) FactResult {
	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	verdict, err := handler.Check(probeCtx, action)
	result := FactResult{
		Verdict:  verdict,
		ProbedAt: start,
		Duration: time.Since(start),
	}

	if err != nil {
		// Unanswerable probes are not treated as "state differs"; they force
		// execution with an unknown verdict instead.
		result.Verdict = VerdictUnknown
		result.Detail = s.redactor.Redact(err.Error())
		s.log.Warn().
			Str("action", action.ID).
			Str("kind", string(action.Kind)).
			Err(err).
			Msg("fact probe could not determine current state")
		return result
	}

	s.log.Debug().
		Str("action", action.ID).
		Str("kind", string(action.Kind)).
		Str("verdict", string(result.Verdict)).
		Dur("duration", result.Duration).
		Msg("fact probe completed")
	return result
}
