package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		destructiveCommandsPolicy(),
		remoteScriptExecutionPolicy(),
		privilegeEscalationPolicy(),
	}
}

// destructiveCommandsPolicy blocks install plans containing commands that
// destroy data at the filesystem or block-device level.
func destructiveCommandsPolicy() Policy {
	return Policy{
		Name:        "destructive-commands",
		Description: "Blocks install commands that wipe filesystems or block devices",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"safety", "builtin"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package pkgsmith.policies.destructive

import rego.v1

dangerous_patterns := [
	` + "`" + `rm\s+(-[a-zA-Z]*\s+)*-[a-zA-Z]*[rf][a-zA-Z]*\s+/\s*$` + "`" + `,
	` + "`" + `rm\s+(-[a-zA-Z]*\s+)*-[a-zA-Z]*[rf][a-zA-Z]*\s+/\s` + "`" + `,
	` + "`" + `mkfs(\.[a-z0-9]+)?\s` + "`" + `,
	` + "`" + `dd\s+.*of=/dev/` + "`" + `,
]

deny contains violation if {
	some step in input.steps
	some pattern in dangerous_patterns
	regex.match(pattern, step.install)
	violation := {
		"message": sprintf("install command for %s is destructive: %s", [step.package, step.install]),
		"severity": "critical",
		"package": step.package,
	}
}
`,
	}
}

// remoteScriptExecutionPolicy warns when an install command pipes a
// downloaded script straight into a shell.
func remoteScriptExecutionPolicy() Policy {
	return Policy{
		Name:        "remote-script-execution",
		Description: "Warns when install commands pipe curl or wget output into a shell",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"supply-chain", "builtin"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package pkgsmith.policies.remotescript

import rego.v1

deny contains violation if {
	some step in input.steps
	regex.match(` + "`" + `(curl|wget)[^|]*\|\s*(ba|z|da|k)?sh` + "`" + `, step.install)
	violation := {
		"message": sprintf("install command for %s pipes a downloaded script into a shell", [step.package]),
		"severity": "warning",
		"package": step.package,
	}
}
`,
	}
}

// privilegeEscalationPolicy warns about sudo in install commands. Disabled
// by default since many package managers legitimately need it.
func privilegeEscalationPolicy() Policy {
	return Policy{
		Name:        "privilege-escalation",
		Description: "Warns when install commands use sudo",
		Severity:    SeverityWarning,
		Enabled:     false,
		Tags:        []string{"privileges", "builtin"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package pkgsmith.policies.sudo

import rego.v1

deny contains violation if {
	some step in input.steps
	regex.match(` + "`" + `(^|\s|;|&&|\|\|)sudo\s` + "`" + `, step.install)
	violation := {
		"message": sprintf("install command for %s escalates privileges with sudo", [step.package]),
		"severity": "warning",
		"package": step.package,
	}
}
`,
	}
}
