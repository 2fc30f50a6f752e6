package policy

// BuiltinPolicies returns the policies every gate starts with. They flag
// risky plan content: imperative shell steps, package removals, and
// world-writable file modes.
func BuiltinPolicies() []Policy {
	return []Policy{
		shellStepPolicy(),
		packageRemovalPolicy(),
		worldWritablePolicy(),
	}
}

// shellStepPolicy flags imperative shell steps scheduled to run. Shell
// steps bypass the typed handlers, so reviewers should see them called out.
func shellStepPolicy() Policy {
	return Policy{
		Name:        "shell-steps",
		Description: "Flags shell steps scheduled to execute",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"review", "shell"},
		Rego: `package convergo.policies.shell

import rego.v1

deny contains violation if {
	some action in input.actions
	action.kind == "shell"
	action.decision == "execute"
	violation := {
		"message": sprintf("action %s runs an imperative shell step", [action.id]),
		"severity": "warning",
		"action": action.id,
	}
}
`,
	}
}

// packageRemovalPolicy flags package removals, which can strand dependents
// the manifest does not know about.
func packageRemovalPolicy() Policy {
	return Policy{
		Name:        "package-removal",
		Description: "Flags destructive package removals",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"review", "packages"},
		Rego: `package convergo.policies.packages

import rego.v1

deny contains violation if {
	some action in input.actions
	action.kind == "package"
	action.decision == "execute"
	action.params.state == "absent"
	violation := {
		"message": sprintf("action %s removes packages from the host", [action.id]),
		"severity": "warning",
		"action": action.id,
	}
}
`,
	}
}

// worldWritablePolicy blocks files declared with a world-writable mode.
func worldWritablePolicy() Policy {
	return Policy{
		Name:        "world-writable-files",
		Description: "Denies files declared with world-writable permissions",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"security", "files"},
		Rego: `package convergo.policies.files

import rego.v1

deny contains violation if {
	some action in input.actions
	action.kind == "file"
	mode := object.get(action.params, "mode", "0644")
	regex.match("^[0-7]*[2367]$", mode)
	violation := {
		"message": sprintf("action %s declares world-writable mode %s", [action.id, mode]),
		"severity": "error",
		"action": action.id,
	}
}
`,
	}
}
