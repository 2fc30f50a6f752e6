// Package policy gates plans before execution using Open Policy Agent.
//
// Each policy is a Rego rule set exporting a deny set. The gate builds an
// input document from the plan and the action graph, evaluates every
// enabled policy, and aggregates the findings into a single result.
// Warning findings surface without blocking; error and critical findings
// deny admission when the gate is enforcing. In advisory mode nothing
// blocks and every finding is reported as a warning.
//
// Sensitive parameter values are redacted before Rego sees them, so policy
// messages can quote parameters without leaking secrets.
//
// Builtin policies flag imperative shell steps, destructive package
// removals, and world-writable file modes. Sites can add their own rules
// with the Loader, which reads .rego files.
package policy
