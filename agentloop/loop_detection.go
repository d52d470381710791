package agentloop

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// DefaultLoopDetectionWindow is the number of recent tool calls inspected.
const DefaultLoopDetectionWindow = 10

// toolCallSignature computes a deterministic signature for a tool call
// (name + hash of arguments).
func toolCallSignature(name string, arguments json.RawMessage) string {
	h := sha256.Sum256(arguments)
	return fmt.Sprintf("%s:%x", name, h[:8])
}

// callTracker records the signatures of executed tool calls in order.
type callTracker struct {
	sigs []string
}

func (t *callTracker) record(calls []ToolCall) {
	for _, c := range calls {
		t.sigs = append(t.sigs, toolCallSignature(c.Name, c.Arguments))
	}
}

// repeating reports whether the last windowSize signatures follow a
// repeating pattern of length 1, 2, or 3.
func (t *callTracker) repeating(windowSize int) bool {
	if windowSize <= 0 || len(t.sigs) < windowSize {
		return false
	}
	return DetectLoop(t.sigs[len(t.sigs)-windowSize:])
}

// DetectLoop reports whether sigs consist of one pattern of length 1, 2, or
// 3 repeated end to end.
func DetectLoop(sigs []string) bool {
	n := len(sigs)
	if n < 2 {
		return false
	}
	for patternLen := 1; patternLen <= 3; patternLen++ {
		if n%patternLen != 0 || n == patternLen {
			continue
		}
		allMatch := true
		for i := patternLen; i < n && allMatch; i++ {
			if sigs[i] != sigs[i%patternLen] {
				allMatch = false
			}
		}
		if allMatch {
			return true
		}
	}
	return false
}
