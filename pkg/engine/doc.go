// Package engine provides the core types and execution model for the
// convergo provisioning engine.
//
// # Overview
//
// convergo converges a single host toward a declared desired state through a
// five-phase pipeline:
//
//  1. Graph - Validate actions and build the dependency DAG (GraphBuilder)
//  2. Snapshot - Probe current system state once per run (Snapshotter)
//  3. Plan - Decide skip or execute per action (Planner)
//  4. Execute - Apply pending actions in dependency order (Executor)
//  5. Report - Capture per-action outcomes and the run status (RunReport)
//
// # Core Domain Types
//
//   - Action: A declarative convergence unit (package, user, database, file,
//     service, or shell) with dependencies, severity, and sensitive markers
//   - Graph: The validated DAG with a deterministic topological order
//   - Snapshot: The per-run set of fact verdicts
//   - Plan: Ordered skip/execute decisions for every action
//   - ExecutionRecord: One action's terminal outcome within a run
//   - RunReport: The complete run outcome, renderable as JSON or text
//
// # Handler Interface
//
// Each action kind is served by a Handler:
//
//	type Handler interface {
//	    Kind() Kind
//	    ResourceClass() ResourceClass
//	    Check(ctx context.Context, action *Action) (Verdict, error)
//	    Apply(ctx context.Context, action *Action) (string, error)
//	}
//
// Check is a read-only precondition probe; Apply is idempotent convergence.
//
// # Error Classification
//
// Errors are classified for retry logic:
//
//   - Transient: Temporary failures retried with exponential backoff
//   - Throttled: Rate limiting retried with a longer backoff
//   - Structural: Non-recoverable errors that fail fast
//
// Use the helper functions to classify and inspect errors:
//
//	if IsRetryable(err) {
//	    // Retry the operation
//	}
//
// # Sensitive Data
//
// Parameters flagged sensitive in the manifest never appear in logs, reports,
// or error output. The Redactor strips their values from every detail string
// the engine records.
//
// # Thread Safety
//
// The Executor may apply independent actions concurrently; actions sharing a
// resource class are serialized through per-class mutexes. All other types
// are used from a single goroutine per run.
package engine
