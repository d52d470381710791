package buildtool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	DurationMs int64  `json:"duration_ms"`
}

// Output returns combined stdout and stderr.
func (r ExecResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// sensitiveEnvPatterns are case-insensitive suffixes for environment variables
// that are never passed to build processes.
var sensitiveEnvPatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always included regardless of filtering.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"JAVA_HOME": true, "GRADLE_HOME": true, "GRADLE_USER_HOME": true,
	"GOPATH": true, "GOROOT": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

// isSensitiveEnvVar checks if a variable name matches sensitive patterns.
func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

// filterEnvironment returns env without sensitive variables.
func filterEnvironment(env []string) []string {
	var filtered []string
	for _, kv := range env {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			filtered = append(filtered, kv)
		}
	}
	return filtered
}

// Exec runs name with args in dir. The process runs in its own process group
// and the whole group is killed when timeout elapses or ctx is cancelled. A
// non-zero exit is reported through ExecResult.ExitCode, not as an error.
func Exec(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) (*ExecResult, error) {
	parent := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = filterEnvironment(os.Environ())
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid signals the whole group (gradle daemons, make children).
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := &ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case parent.Err() != nil:
			// The caller's deadline or cancellation, not the task timeout.
			return nil, fmt.Errorf("exec %s: %w", name, parent.Err())
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			result.TimedOut = true
			result.ExitCode = -1
		case ctx.Err() != nil:
			return nil, fmt.Errorf("exec %s: %w", name, ctx.Err())
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		default:
			return nil, fmt.Errorf("exec %s: %w", name, err)
		}
	}

	return result, nil
}

// SplitArgs splits an argument string on whitespace. Quoting is not
// interpreted.
func SplitArgs(arguments string) []string {
	return strings.Fields(arguments)
}
