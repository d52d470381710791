package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/martinemde/buildagent/agentloop"
	"github.com/martinemde/buildagent/metrics"
	"github.com/spf13/cobra"
)

type runOptions struct {
	prompt         string
	validationTask string
	inputFile      string
	inputDir       string
	inputFiles     []string
	maxIterations  int
	provider       string
	model          string
	timeout        time.Duration
	metricsFile    string
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run [instruction]",
		Short: "Run the agent on an instruction",
		Long: `Run sends the instruction to the model together with tools for reading
and writing project files and running build tasks. When --validation-task is
set, that task must pass before the run succeeds.`,
		Example: `  buildagent run "Add a unit test for the Parser class" --validation-task test
  buildagent run --prompt "Fix the compile errors" --max-iterations 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			instruction := strings.TrimSpace(opts.prompt)
			if len(args) > 0 {
				instruction = strings.TrimSpace(strings.Join(args, " "))
			}
			if instruction == "" {
				return asConfigError(agentloop.ErrMissingInstruction)
			}
			if cmd.Flags().Changed("max-iterations") && opts.maxIterations <= 0 {
				return asConfigError(fmt.Errorf("--max-iterations must be positive"))
			}
			return a.run(cmd.Context(), instruction, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.prompt, "prompt", "p", "", "Instruction (alternative to the positional argument)")
	f.StringVar(&opts.validationTask, "validation-task", "", "Task that must succeed before the run settles")
	f.StringVar(&opts.inputFile, "input-file", "", "File the agent should know about")
	f.StringVar(&opts.inputDir, "input-dir", "", "Directory the agent should know about")
	f.StringArrayVar(&opts.inputFiles, "input-files", nil, "Additional files the agent should know about (repeatable)")
	f.IntVar(&opts.maxIterations, "max-iterations", 0, "Maximum LLM round trips (default 50, or 100 with a validation task)")
	f.StringVar(&opts.provider, "provider", "", "LLM provider")
	f.StringVar(&opts.model, "model", "", "Model ID or alias")
	f.DurationVar(&opts.timeout, "timeout", 0, "Abort the run after this duration (0 disables)")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when the run ends")
	return cmd
}

func (a *app) run(parent context.Context, instruction string, opts runOptions) error {
	ws, err := agentloop.NewWorkspace(a.projectDir)
	if err != nil {
		return asConfigError(err)
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if opts.provider != "" {
		cfg.Provider = opts.provider
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if opts.maxIterations > 0 {
		cfg.MaxIterations = opts.maxIterations
	}

	resolved, err := cfg.Resolve(a.lookupEnv)
	if err != nil {
		return asConfigError(err)
	}
	a.logger.Debug("resolved provider", "llm", resolved)

	runner, err := a.runner(cfg, ws.Root())
	if err != nil {
		return err
	}

	client, err := a.newClient(cfg, resolved)
	if err != nil {
		return asConfigError(err)
	}
	defer client.Close()

	tools := agentloop.NewToolRegistry()
	agentloop.RegisterBuildTools(tools)
	caps := agentloop.NewProjectCapabilities(ws, &agentloop.BuildTaskRunner{Runner: runner, Dir: ws.Root()}, a.logger)

	prompt := agentloop.BuildSystemPrompt(agentloop.PromptContext{
		BuildTool:  runner.Name(),
		InputFile:  opts.inputFile,
		InputDir:   opts.inputDir,
		InputFiles: opts.inputFiles,
		Workspace:  ws,
	})
	a.logger.Debug("system prompt", "prompt", prompt)

	session := agentloop.NewSession(client, agentloop.SessionConfig{
		Provider:     resolved.Provider,
		Model:        resolved.Model,
		SystemPrompt: prompt,
		Tools:        tools,
		Logger:       a.logger,
	})

	recorder := metrics.New()
	loop := agentloop.NewLoop(session, tools, caps, agentloop.LoopConfig{
		MaxIterations:  cfg.MaxIterations,
		ValidationTask: opts.validationTask,
		Logger:         a.logger,
		Handlers:       []agentloop.EventHandler{agentloop.LogEvents(a.logger), recorder.Handle},
	})

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	type outcome struct {
		run *agentloop.AgentRun
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		run, err := loop.Run(ctx, instruction)
		done <- outcome{run, err}
	}()
	res := <-done

	if opts.metricsFile != "" {
		if err := recorder.WriteToTextfile(opts.metricsFile); err != nil {
			a.logger.Warn("failed to write metrics", "path", opts.metricsFile, "error", err)
		}
	}
	if res.err != nil {
		return res.err
	}

	a.logger.Info("agent run settled",
		"run_id", res.run.ID,
		"iterations", res.run.Iterations,
		"tool_calls", res.run.ToolCallsExecuted,
		"validation_attempts", res.run.ValidationAttempts)
	_, err = fmt.Fprintln(a.stdout, res.run.Output)
	return err
}
