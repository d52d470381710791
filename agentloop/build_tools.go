package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// RegisterBuildTools registers the project tools on reg. Every tool
// delegates to the Capabilities passed at execution time.
func RegisterBuildTools(reg *ToolRegistry) {
	registerListFiles(reg)
	registerFileExists(reg)
	registerReadFile(reg)
	registerWriteFile(reg)
	registerListTasks(reg)
	registerRunTask(reg)
}

func pathParameters(description string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": description,
			},
		},
		"required": []string{"path"},
	}
}

func pathArg(arguments json.RawMessage) (string, error) {
	args, err := ParseToolArguments(arguments)
	if err != nil {
		return "", err
	}
	return requireStringArg(args, "path")
}

func registerListFiles(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "list_files",
			Description: "List the entries of a directory in the project. Returns one name per line.",
			Parameters:  pathParameters("Directory path, relative to the project root."),
		},
		Executor: func(_ context.Context, arguments json.RawMessage, caps Capabilities) (Outcome, error) {
			path, err := pathArg(arguments)
			if err != nil {
				return Outcome{}, err
			}
			names, err := caps.ListFiles(path)
			if err != nil {
				return Outcome{}, err
			}
			if len(names) == 0 {
				return Success(fmt.Sprintf("No entries found in %s", path)), nil
			}
			return Success(strings.Join(names, "\n")), nil
		},
	})
}

func registerFileExists(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "file_exists",
			Description: "Check whether a file or directory exists in the project. Returns true or false.",
			Parameters:  pathParameters("Path, relative to the project root."),
		},
		Executor: func(_ context.Context, arguments json.RawMessage, caps Capabilities) (Outcome, error) {
			path, err := pathArg(arguments)
			if err != nil {
				return Outcome{}, err
			}
			exists, err := caps.FileExists(path)
			if err != nil {
				return Outcome{}, err
			}
			return Success(strconv.FormatBool(exists)), nil
		},
	})
}

func registerReadFile(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "read_file",
			Description: "Read the full contents of a file in the project.",
			Parameters:  pathParameters("File path, relative to the project root."),
		},
		Executor: func(_ context.Context, arguments json.RawMessage, caps Capabilities) (Outcome, error) {
			path, err := pathArg(arguments)
			if err != nil {
				return Outcome{}, err
			}
			return caps.ReadFile(path)
		},
	})
}

func registerWriteFile(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "write_file",
			Description: "Write content to a file in the project. Creates the file and parent directories if needed and overwrites existing content.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "File path, relative to the project root.",
					},
					"content": map[string]interface{}{
						"type":        "string",
						"description": "The full file content to write.",
					},
				},
				"required": []string{"path", "content"},
			},
		},
		Executor: func(_ context.Context, arguments json.RawMessage, caps Capabilities) (Outcome, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return Outcome{}, err
			}
			path, err := requireStringArg(args, "path")
			if err != nil {
				return Outcome{}, err
			}
			content, err := requireStringArg(args, "content")
			if err != nil {
				return Outcome{}, err
			}
			if err := caps.WriteFile(path, content); err != nil {
				return Outcome{}, err
			}
			return Success(fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path)), nil
		},
	})
}

func registerListTasks(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "list_tasks",
			Description: "List the build tasks available in the project with their descriptions.",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		Executor: func(ctx context.Context, _ json.RawMessage, caps Capabilities) (Outcome, error) {
			tasks, err := caps.ListTasks(ctx)
			if err != nil {
				return Outcome{}, err
			}
			return Success(formatTasks(tasks)), nil
		},
	})
}

func formatTasks(tasks map[string]string) string {
	if len(tasks) == 0 {
		return "No tasks found."
	}
	names := make([]string, 0, len(tasks))
	for name := range tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(name)
		if desc := tasks[name]; desc != "" {
			sb.WriteString(" - ")
			sb.WriteString(desc)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func registerRunTask(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "run_task",
			Description: "Run a build task of the project and return its output.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"task": map[string]interface{}{
						"type":        "string",
						"description": "Name or path of the task to run.",
					},
					"arguments": map[string]interface{}{
						"type":        "string",
						"description": "Optional whitespace separated arguments passed to the task.",
					},
				},
				"required": []string{"task"},
			},
		},
		Executor: func(ctx context.Context, arguments json.RawMessage, caps Capabilities) (Outcome, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return Outcome{}, err
			}
			task, err := requireStringArg(args, "task")
			if err != nil {
				return Outcome{}, err
			}
			if task == "" {
				return Outcome{}, fmt.Errorf("task must not be empty")
			}
			taskArgs, _ := GetStringArg(args, "arguments")
			return caps.RunTask(ctx, task, taskArgs), nil
		},
	})
}
