package buildtool

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// GradleRunner runs Gradle tasks, preferring the project's wrapper.
type GradleRunner struct {
	Timeout time.Duration
}

// Name returns "gradle".
func (g *GradleRunner) Name() string { return "gradle" }

// command returns the Gradle executable for dir.
func (g *GradleRunner) command(dir string) string {
	wrapper := filepath.Join(dir, "gradlew")
	if info, err := os.Stat(wrapper); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
		return wrapper
	}
	return "gradle"
}

// Run executes task and formats the result the way the model sees it.
func (g *GradleRunner) Run(ctx context.Context, dir, task, arguments string) Result {
	args := append([]string{task, "--console=plain"}, SplitArgs(arguments)...)
	res, err := Exec(ctx, dir, g.Timeout, g.command(dir), args...)
	if err != nil {
		return Result{
			Success:  false,
			Summary:  fmt.Sprintf("Gradle task '%s' failed: %v\n\nOutput:\n\n\nError:\n", task, err),
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
		out.Summary = fmt.Sprintf("Gradle task '%s' failed: timed out after %s\n\nOutput:\n%s\n\nError:\n%s",
			task, g.Timeout, res.Stdout, res.Stderr)
	case res.ExitCode != 0:
		out.Summary = fmt.Sprintf("Gradle task '%s' failed: exit code %d\n\nOutput:\n%s\n\nError:\n%s",
			task, res.ExitCode, res.Stdout, res.Stderr)
	default:
		out.Success = true
		out.Summary = fmt.Sprintf("Gradle task '%s' completed successfully.\n\nOutput:\n%s", task, res.Stdout)
	}
	return out
}

// ListTasks runs `tasks --all` and parses the report.
func (g *GradleRunner) ListTasks(ctx context.Context, dir string) (map[string]string, error) {
	res, err := Exec(ctx, dir, g.Timeout, g.command(dir), "tasks", "--all", "--console=plain", "--quiet")
	if err != nil {
		return nil, fmt.Errorf("list gradle tasks: %w", err)
	}
	if res.ExitCode != 0 || res.TimedOut {
		return nil, fmt.Errorf("list gradle tasks: exit code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return ParseGradleTasks(res.Stdout), nil
}

// ParseGradleTasks parses the output of `gradle tasks --all`. Tasks appear
// in groups under a dashed underline, one per line as `name - description`
// or a bare name; a blank line ends the group.
func ParseGradleTasks(output string) map[string]string {
	tasks := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(output))

	var prev string
	inGroup := false
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		switch {
		case isUnderline(line) && prev != "":
			inGroup = true
		case line == "":
			inGroup = false
		case inGroup:
			name, desc, _ := strings.Cut(line, " - ")
			name = strings.TrimSpace(name)
			if name != "" && !strings.ContainsAny(name, " \t") {
				tasks[name] = strings.TrimSpace(desc)
			}
		}
		prev = line
	}
	return tasks
}

func isUnderline(line string) bool {
	return len(line) >= 3 && strings.Trim(line, "-") == ""
}
