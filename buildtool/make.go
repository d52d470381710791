package buildtool

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// MakeRunner runs Make targets.
type MakeRunner struct {
	Timeout time.Duration
}

// Name returns "make".
func (m *MakeRunner) Name() string { return "make" }

// Run executes `make <task> <args...>`.
func (m *MakeRunner) Run(ctx context.Context, dir, task, arguments string) Result {
	args := append([]string{task}, SplitArgs(arguments)...)
	res, err := Exec(ctx, dir, m.Timeout, "make", args...)
	if err != nil {
		return Result{
			Success:  false,
			Summary:  fmt.Sprintf("Make target '%s' failed: %v", task, err),
			ExitCode: -1,
		}
	}

	out := Result{
		ExitCode: res.ExitCode,
		TimedOut: res.TimedOut,
		Duration: time.Duration(res.DurationMs) * time.Millisecond,
	}
	switch {
	case res.TimedOut:
		out.Summary = fmt.Sprintf("Make target '%s' failed: timed out after %s\n\nOutput:\n%s\n\nError:\n%s",
			task, m.Timeout, res.Stdout, res.Stderr)
	case res.ExitCode != 0:
		out.Summary = fmt.Sprintf("Make target '%s' failed: exit code %d\n\nOutput:\n%s\n\nError:\n%s",
			task, res.ExitCode, res.Stdout, res.Stderr)
	default:
		out.Success = true
		out.Summary = fmt.Sprintf("Make target '%s' completed successfully.\n\nOutput:\n%s", task, res.Stdout)
	}
	return out
}

// ListTasks parses the project's Makefile.
func (m *MakeRunner) ListTasks(_ context.Context, dir string) (map[string]string, error) {
	for _, name := range makeMarkers {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		defer f.Close()
		return ParseMakeTargets(f)
	}
	return nil, fmt.Errorf("%w: no Makefile in %s", ErrNoBuildTool, dir)
}

var makeTargetLine = regexp.MustCompile(`^([A-Za-z0-9_][A-Za-z0-9_./-]*)\s*:([^=].*)?$`)

// ParseMakeTargets returns the explicit targets of a Makefile. A target's
// description comes from a trailing `## text` on its line or from a `## text`
// comment directly above it.
func ParseMakeTargets(r io.Reader) (map[string]string, error) {
	targets := make(map[string]string)
	scanner := bufio.NewScanner(r)

	pending := ""
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "##") {
			pending = strings.TrimSpace(strings.TrimPrefix(trimmed, "##"))
			continue
		}
		if strings.HasPrefix(line, "\t") || trimmed == "" {
			pending = ""
			continue
		}

		m := makeTargetLine.FindStringSubmatch(line)
		if m == nil {
			pending = ""
			continue
		}
		desc := pending
		if _, after, ok := strings.Cut(m[2], "##"); ok {
			desc = strings.TrimSpace(after)
		}
		targets[m[1]] = desc
		pending = ""
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse makefile: %w", err)
	}
	return targets, nil
}
