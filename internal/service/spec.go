package service

import (
	"fmt"
	"os/exec"
	"strings"
)

// Spec describes one managed service. Specs are declared in the config file
// at startup and never mutated afterwards; the supervisor associates many
// process handles with one Spec over its lifetime (one per spawn/restart).
type Spec struct {
	Name       string   `json:"name" mapstructure:"name"`
	Command    string   `json:"command" mapstructure:"command"`
	WorkDir    string   `json:"workdir" mapstructure:"workdir"`
	Env        []string `json:"env" mapstructure:"env"`         // "K=V" overlay on the supervisor env
	Port       int      `json:"port" mapstructure:"port"`       // declared listening port
	HealthPath string   `json:"health" mapstructure:"health"`   // per-service liveness path, e.g. /health or /api/health
	DependsOn  string   `json:"depends_on" mapstructure:"depends_on"`
}

// HealthURL returns the URL polled during health-gated startup, or "" when
// the service declares no health path (such a service is gated on spawn only).
func (s Spec) HealthURL() string {
	if s.HealthPath == "" || s.Port == 0 {
		return ""
	}
	path := s.HealthPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("http://127.0.0.1:%d%s", s.Port, path)
}

// Validate checks the fields that would otherwise fail at spawn time.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("service name is required")
	}
	if strings.ContainsAny(s.Name, " \t/\\") {
		return fmt.Errorf("service %q: name must not contain spaces or path separators", s.Name)
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("service %q: command is required", s.Name)
	}
	if s.HealthPath != "" && s.Port == 0 {
		return fmt.Errorf("service %q: health path declared without a port", s.Name)
	}
	return nil
}

// BuildCommand constructs an *exec.Cmd for the spec's command string.
// A shell is only involved when the command needs one: an explicit
// "sh -c ..." prefix is honored without double wrapping, and shell
// metacharacters fall back to /bin/sh -c.
func (s Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if afterC, ok := parseExplicitShell(cmdStr); ok {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", afterC)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}

// parseExplicitShell detects "sh -c <ARG>" style prefixes and returns the
// argument passed to -c, with one pair of surrounding quotes stripped so the
// shell sees the actual script.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return after, true
		}
	}
	return "", false
}
