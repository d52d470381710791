package agentloop

import (
	"fmt"
	"os/exec"
	"strings"
)

// PromptContext is everything the system prompt is built from.
type PromptContext struct {
	// BuildTool is "gradle" or "make".
	BuildTool  string
	InputFile  string
	InputDir   string
	InputFiles []string
	// Workspace adds an environment block when set.
	Workspace *Workspace
}

const gradleDirectives = `Do not ask the user questions.
You are being run in an existing Gradle project.
You only need to know about the existing build file if you are going to make changes to it.
Build files are either build.gradle or build.gradle.kts - verify which one is used and read it before making changes.
Do not create a new build file.
When modifying an existing build, do not remove any existing code.
You do not need to list or verify the existing Gradle tasks before running a task specified by the user. Run the exact task the user has requested.`

const makeDirectives = `Do not ask the user questions.
You are being run in an existing project built with make.
You only need to know about the Makefile if you are going to make changes to it.
Do not create a new Makefile.
When modifying the Makefile, do not remove any existing targets.
You do not need to list or verify the existing targets before running a target specified by the user. Run the exact target the user has requested.`

// BuildSystemPrompt returns the immutable system prompt of a run.
func BuildSystemPrompt(pc PromptContext) string {
	var lines []string
	if pc.BuildTool == "make" {
		lines = append(lines, makeDirectives)
	} else {
		lines = append(lines, gradleDirectives)
	}
	if pc.InputFile != "" {
		lines = append(lines, "You have access to this file: "+pc.InputFile)
	}
	if pc.InputDir != "" {
		lines = append(lines, "You have access to this directory: "+pc.InputDir)
	}
	for _, f := range pc.InputFiles {
		lines = append(lines, "You have access to these files: "+f)
	}
	if pc.Workspace != nil {
		lines = append(lines, "", BuildEnvironmentContext(pc.Workspace))
	}
	return strings.Join(lines, "\n")
}

// BuildEnvironmentContext generates the structured environment block.
func BuildEnvironmentContext(ws *Workspace) string {
	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Project directory: %s\n", ws.Root())
	fmt.Fprintf(&sb, "Platform: %s\n", ws.Platform())
	if branch := gitBranch(ws.Root()); branch != "" {
		fmt.Fprintf(&sb, "Git branch: %s\n", branch)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

func gitBranch(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
