// Package agentloop drives an LLM through a build task inside a project.
//
// A run sends the instruction to the model, executes every tool call the
// model makes against the project, and feeds the results back until the
// model answers without calling a tool. When a validation task is
// configured it is then run once: success settles the run, failure sends the
// model back to work with the failure detail. The number of round trips is
// bounded.
//
// # Architecture
//
//   - Loop: the explicit state machine of one run.
//   - SessionPort: the conversation as the loop sees it; Session implements
//     it over a unifiedllm.Client and owns the history.
//   - Capabilities: sandboxed file access and build tasks; ProjectCapabilities
//     combines a Workspace with a TaskRunner.
//   - ToolRegistry: tool definitions sent to the model and their executors.
//   - ValidationGate: runs the validation task.
//   - EventHandler: synchronous run events for logging and metrics.
//
// # Quick Start
//
//	ws, _ := agentloop.NewWorkspace(dir)
//	runner, _ := buildtool.Detect(dir, buildtool.Options{})
//	caps := agentloop.NewProjectCapabilities(ws, &agentloop.BuildTaskRunner{Runner: runner, Dir: ws.Root()}, nil)
//
//	tools := agentloop.NewToolRegistry()
//	agentloop.RegisterBuildTools(tools)
//	session := agentloop.NewSession(client, agentloop.SessionConfig{
//	    Model:        "claude-sonnet-4-5",
//	    SystemPrompt: agentloop.BuildSystemPrompt(agentloop.PromptContext{BuildTool: runner.Name()}),
//	    Tools:        tools,
//	})
//
//	run, err := agentloop.NewLoop(session, tools, caps, agentloop.LoopConfig{ValidationTask: "test"}).
//	    Run(ctx, "Add a unit test for the parser")
package agentloop
