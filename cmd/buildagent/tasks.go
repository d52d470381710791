package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newTasksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the build tasks the agent can run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			runner, err := a.runner(cfg, a.projectDir)
			if err != nil {
				return err
			}
			tasks, err := runner.ListTasks(cmd.Context(), a.projectDir)
			if err != nil {
				return fmt.Errorf("list %s tasks: %w", runner.Name(), err)
			}

			names := make([]string, 0, len(tasks))
			for name := range tasks {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				if desc := tasks[name]; desc != "" {
					fmt.Fprintf(a.stdout, "%s - %s\n", name, desc)
				} else {
					fmt.Fprintln(a.stdout, name)
				}
			}
			return nil
		},
	}
}
