package ai

import (
	"strings"

	"github.com/cycore-edu/cycore/backend/internal/model/chat"
)

// historyLimit caps how many prior turns reach the model.
const historyLimit = 8

// BuildPrompt assembles the plain-text transcript sent to the backend:
// a System line, up to the last eight turns, the new user text and a
// trailing "Tutor:" cue.
func BuildPrompt(system, userText string, history []chat.Message) string {
	start := 0
	if len(history) > historyLimit {
		start = len(history) - historyLimit
	}

	lines := make([]string, 0, len(history)-start+3)
	lines = append(lines, "System: "+system)
	for _, msg := range history[start:] {
		if msg.Role == chat.RoleUser {
			lines = append(lines, "User: "+msg.Content)
		} else {
			lines = append(lines, "Tutor: "+msg.Content)
		}
	}
	lines = append(lines, "User: "+userText, "Tutor:")
	return strings.Join(lines, "\n")
}
