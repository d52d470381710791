package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/martinemde/buildagent/buildtool"
	"github.com/martinemde/buildagent/config"
	"github.com/martinemde/buildagent/unifiedllm"
	"github.com/spf13/cobra"
)

// app carries the process-wide dependencies of the command tree.
type app struct {
	stdout    io.Writer
	stderr    io.Writer
	lookupEnv func(string) (string, bool)
	newClient func(config.Config, config.Resolved) (*unifiedllm.Client, error)

	projectDir string
	configPath string
	buildTool  string
	debug      bool

	logger *slog.Logger
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:    stdout,
		stderr:    stderr,
		lookupEnv: os.LookupEnv,
		newClient: func(cfg config.Config, r config.Resolved) (*unifiedllm.Client, error) {
			return cfg.NewClient(r)
		},
	}
}

// NewRootCmd wires the cobra tree.
func NewRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "buildagent",
		Short:         "Let an LLM agent run and fix build tasks in a project",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if a.debug {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(a.logger)

			if a.projectDir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				a.projectDir = wd
			}
			return nil
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.projectDir, "project", "", "Project directory (default: current directory)")
	flags.StringVar(&a.configPath, "config", "", "Path to config file (default: "+config.DefaultFileName+" in the project)")
	flags.StringVar(&a.buildTool, "build-tool", "", "Build tool: gradle or make (default: detected)")
	flags.BoolVar(&a.debug, "debug", false, "Log every LLM call and tool call")

	root.AddCommand(
		newRunCmd(a),
		newTasksCmd(a),
		newVersionCmd(a),
	)
	return root
}

// loadConfig loads the config file and env overrides, then applies the
// persistent flags.
func (a *app) loadConfig() (config.Config, error) {
	cfg, err := config.Load(a.configPath, a.projectDir)
	if err != nil {
		return cfg, asConfigError(err)
	}
	if a.buildTool != "" {
		cfg.BuildTool = a.buildTool
	}
	return cfg, nil
}

// runner returns the configured build tool or detects one in dir.
func (a *app) runner(cfg config.Config, dir string) (buildtool.Runner, error) {
	opts := buildtool.Options{Timeout: cfg.TaskTimeout}
	var (
		r   buildtool.Runner
		err error
	)
	if cfg.BuildTool != "" {
		r, err = buildtool.New(cfg.BuildTool, opts)
	} else {
		r, err = buildtool.Detect(dir, opts)
	}
	return r, asConfigError(err)
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := io.WriteString(a.stdout, "buildagent "+version+"\n")
			return err
		},
	}
}
