// Command buildagent delegates a natural-language task to an LLM agent
// working inside a Gradle or Make project.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/martinemde/buildagent/agentloop"
	"github.com/martinemde/buildagent/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	exitOK            = 0
	exitFailure       = 1
	exitConfiguration = 2
	exitBudget        = 3
	exitTransport     = 4
	exitDeadEnd       = 5
)

func main() {
	root := NewRootCmd(newApp(os.Stdout, os.Stderr))
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// configError marks problems found before the agent loop starts.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func asConfigError(err error) error {
	if err == nil {
		return nil
	}
	return &configError{err: err}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *configError
	if errors.As(err, &ce) || errors.Is(err, config.ErrMissingCredentials) {
		return exitConfiguration
	}
	switch agentloop.KindOf(err) {
	case agentloop.FailureConfiguration:
		return exitConfiguration
	case agentloop.FailureBudget:
		return exitBudget
	case agentloop.FailureTransport:
		return exitTransport
	case agentloop.FailureDeadEnd:
		return exitDeadEnd
	}
	return exitFailure
}
