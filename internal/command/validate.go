// Package command implements the three-gate execution safety chain: static
// validation, approval gating, and sandboxed execution.
package command

import (
	"fmt"
	"regexp"

	"github.com/google/shlex"
)

// Execution modes, from most to least restrictive.
const (
	ModeSafe       = "safe"
	ModeRestricted = "restricted"
	ModeYolo       = "yolo"
)

// blockedPatterns are denied in every mode, including yolo.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-rf\s+/`),
	regexp.MustCompile(`\b(?:sudo|su)\b`),
	regexp.MustCompile(`(?:>|>>)\s*/dev/sd`),
	regexp.MustCompile(`\bcurl.*\|\s*(?:bash|sh)`),
	regexp.MustCompile(`\bwget.*-O-.*\|`),
	regexp.MustCompile(`:\(\)\{.*\};:`),
	regexp.MustCompile(`\beval\b`),
	regexp.MustCompile(`\bexec\b.*<`),
}

// safeCommands are read-only utilities with no side effects.
var safeCommands = map[string]bool{
	"ls": true, "cat": true, "grep": true, "find": true, "head": true,
	"tail": true, "wc": true, "echo": true, "pwd": true, "whoami": true,
	"date": true, "env": true, "which": true, "type": true, "file": true,
	"ps": true, "df": true, "du": true, "tree": true, "stat": true,
	"diff": true,
}

// restrictedCommands maps a utility to its allowed subcommands. An empty
// list allows every subcommand of that utility.
var restrictedCommands = map[string][]string{
	"git":    {"status", "log", "diff", "show", "branch", "add", "commit", "push", "pull", "checkout"},
	"npm":    {"install", "run", "test", "build"},
	"pip":    {"install", "list", "show"},
	"go":     {"build", "test", "run", "vet"},
	"cargo":  {"build", "test", "run"},
	"pytest": {},
	"make":   {},
}

// Verdict is the outcome of static validation.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Validate checks a command against the denylist and the mode's policy. It
// is pure: no side effects, nothing executed.
func Validate(cmd, mode string) Verdict {
	for _, p := range blockedPatterns {
		if p.MatchString(cmd) {
			return Verdict{Reason: fmt.Sprintf("blocked dangerous pattern: %s", p.String())}
		}
	}

	words, err := shlex.Split(cmd)
	if err != nil {
		return Verdict{Reason: fmt.Sprintf("invalid command syntax: %v", err)}
	}
	if len(words) == 0 {
		return Verdict{Reason: "empty command"}
	}
	base := words[0]

	switch mode {
	case ModeSafe:
		if safeCommands[base] {
			return Verdict{Allowed: true, Reason: "safe command"}
		}
		return Verdict{Reason: "command not in safe list; use a less restrictive mode to allow"}

	case ModeRestricted:
		if safeCommands[base] {
			return Verdict{Allowed: true, Reason: "safe command"}
		}
		subs, ok := restrictedCommands[base]
		if !ok {
			return Verdict{Reason: "command not in safe or restricted lists"}
		}
		if len(subs) == 0 {
			return Verdict{Allowed: true, Reason: "restricted command allowed"}
		}
		if len(words) > 1 {
			for _, s := range subs {
				if words[1] == s {
					return Verdict{Allowed: true, Reason: "restricted subcommand allowed"}
				}
			}
		}
		return Verdict{Reason: fmt.Sprintf("subcommand not allowed for %s; allowed: %v", base, subs)}

	case ModeYolo:
		return Verdict{Allowed: true, Reason: "yolo mode: command allowed"}
	}

	return Verdict{Reason: fmt.Sprintf("unknown mode %q", mode)}
}

// ValidMode reports whether mode names a recognized execution mode.
func ValidMode(mode string) bool {
	return mode == ModeSafe || mode == ModeRestricted || mode == ModeYolo
}
