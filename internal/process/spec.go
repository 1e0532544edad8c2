package process

import (
	"errors"
	"os/exec"
	"strings"

	"github.com/loykin/sidecar/internal/logger"
)

// Spec describes a child process to launch.
type Spec struct {
	Name    string        `json:"name"`
	Command string        `json:"command"`  // program, or a full command line when Args is empty
	Args    []string      `json:"args"`     // explicit argv after Command; disables command-line parsing
	WorkDir string        `json:"work_dir"` // optional working dir
	Env     []string      `json:"env"`      // optional extra env
	Log     logger.Config `json:"log"`      // stdout/stderr capture
}

// Validate reports whether the spec can be launched.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("process name is required")
	}
	if strings.TrimSpace(s.Command) == "" {
		return errors.New("process command is required")
	}
	return nil
}

// BuildCommand constructs an *exec.Cmd for the spec. With Args set, Command is
// the program and is never passed through a shell. Otherwise Command is a
// command line: an explicit "sh -c" prefix is honored without double-wrapping,
// shell metacharacters select a shell, and anything else is split on spaces.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if len(s.Args) > 0 {
		// #nosec G204
		return exec.Command(cmdStr, s.Args...)
	}
	if cmdStr == "" {
		return fromArgv(noopArgv)
	}
	if script, ok := parseExplicitShell(cmdStr); ok {
		return fromArgv(shellArgv, script)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return fromArgv(shellArgv, cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}

// fromArgv runs argv[0] with the rest of argv followed by extra.
func fromArgv(argv []string, extra ...string) *exec.Cmd {
	args := append(append([]string(nil), argv[1:]...), extra...)
	// #nosec G204
	return exec.Command(argv[0], args...)
}

// parseExplicitShell detects "sh -c <ARG>" style prefixes and returns the
// script, with one pair of surrounding quotes stripped.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if !strings.HasPrefix(trim, p) {
			continue
		}
		after := trim[len(p):]
		if n := len(after); n >= 2 {
			if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
				after = after[1 : n-1]
			}
		}
		return after, true
	}
	return "", false
}
