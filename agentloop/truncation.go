package agentloop

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TruncationMode specifies how output is truncated.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// DefaultToolCharLimits are the per-tool character limits for results sent
// to the model.
var DefaultToolCharLimits = map[string]int{
	"read_file":   50000,
	"run_task":    30000,
	"list_files":  20000,
	"list_tasks":  20000,
	"write_file":  1000,
	"file_exists": 1000,
}

// DefaultTruncationModes are the per-tool truncation modes.
var DefaultTruncationModes = map[string]TruncationMode{
	"read_file":   TruncateHeadTail,
	"run_task":    TruncateHeadTail,
	"list_files":  TruncateTail,
	"list_tasks":  TruncateTail,
	"write_file":  TruncateTail,
	"file_exists": TruncateTail,
}

// DefaultToolLineLimits are applied after character truncation.
var DefaultToolLineLimits = map[string]int{
	"run_task":   400,
	"list_files": 1000,
}

const fallbackCharLimit = 30000

// TruncateOutput applies character-based truncation to output.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if len(output) <= maxChars {
		return output
	}
	if mode == TruncateTail {
		start := nextRuneStart(output, len(output)-maxChars)
		return fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed.]\n\n", start) +
			output[start:]
	}
	return truncateHeadTail(output, maxChars, "tool output")
}

// truncateHeadTail keeps the head and tail halves of s around a marker.
func truncateHeadTail(s string, maxChars int, what string) string {
	if len(s) <= maxChars {
		return s
	}
	half := maxChars / 2
	head := prevRuneStart(s, half)
	tail := nextRuneStart(s, len(s)-half)
	return s[:head] +
		fmt.Sprintf("\n\n[WARNING: The %s was truncated. %d characters were removed from the middle.]\n\n", what, tail-head) +
		s[tail:]
}

// prevRuneStart moves i back to the start of the rune containing it.
func prevRuneStart(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// nextRuneStart moves i forward to the next rune boundary.
func nextRuneStart(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// TruncateLines applies line-based truncation using a head/tail split.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput applies character truncation, then line truncation, for
// toolName. charLimits overrides the defaults when it has an entry.
func TruncateToolOutput(output, toolName string, charLimits map[string]int) string {
	maxChars, ok := charLimits[toolName]
	if !ok {
		maxChars, ok = DefaultToolCharLimits[toolName]
		if !ok {
			maxChars = fallbackCharLimit
		}
	}

	mode, ok := DefaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}

	result := TruncateOutput(output, maxChars, mode)
	if maxLines := DefaultToolLineLimits[toolName]; maxLines > 0 {
		result = TruncateLines(result, maxLines)
	}
	return result
}
