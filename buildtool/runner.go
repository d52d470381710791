// Package buildtool runs build tasks for the project the agent works in.
//
// A Runner knows how to list and execute the tasks of one build system.
// GradleRunner and MakeRunner cover Gradle and Make projects; Detect picks
// the right one for a directory.
package buildtool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultTimeout bounds a single task execution.
const DefaultTimeout = 30 * time.Minute

// ErrNoBuildTool is returned by Detect when no supported build files exist.
var ErrNoBuildTool = errors.New("no supported build tool found")

// Result is the outcome of running one task. Summary is the text shown to
// the model.
type Result struct {
	Success  bool
	Summary  string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Runner executes tasks of one build system.
type Runner interface {
	// Name returns the build tool name ("gradle", "make").
	Name() string
	// ListTasks returns task name to description.
	ListTasks(ctx context.Context, dir string) (map[string]string, error)
	// Run executes task with whitespace-separated arguments. Task failure is
	// reported in Result, never as an error.
	Run(ctx context.Context, dir, task, arguments string) Result
}

// Options configures runners created by New and Detect.
type Options struct {
	Timeout time.Duration
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultTimeout
}

// New returns the runner registered under name.
func New(name string, opts Options) (Runner, error) {
	switch name {
	case "gradle":
		return &GradleRunner{Timeout: opts.timeout()}, nil
	case "make":
		return &MakeRunner{Timeout: opts.timeout()}, nil
	default:
		return nil, fmt.Errorf("unknown build tool %q", name)
	}
}

var gradleMarkers = []string{
	"gradlew",
	"build.gradle",
	"build.gradle.kts",
	"settings.gradle",
	"settings.gradle.kts",
}

var makeMarkers = []string{
	"GNUmakefile",
	"makefile",
	"Makefile",
}

// Detect picks the runner for dir. Gradle wins over Make when both exist.
func Detect(dir string, opts Options) (Runner, error) {
	if anyExists(dir, gradleMarkers) {
		return New("gradle", opts)
	}
	if anyExists(dir, makeMarkers) {
		return New("make", opts)
	}
	return nil, fmt.Errorf("%w in %s", ErrNoBuildTool, dir)
}

func anyExists(dir string, names []string) bool {
	for _, name := range names {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}
