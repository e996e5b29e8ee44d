package completion

import (
	"strings"

	"github.com/il-dat/open-code-assistant/pkg/prompt"
)

const maxCompletionLines = 5

// stopTokens is the ordered truncation set: the end-of-text marker, the
// FIM delimiters, then a blank-line fence. Order matters; each token is
// applied to the text left by the previous one.
var stopTokens = []string{
	prompt.TokenEndOfText,
	prompt.TokenPrefix,
	prompt.TokenSuffix,
	prompt.TokenMiddle,
	"\n\n",
}

// StopSequences returns the stop set sent with generation requests, in
// truncation order.
func StopSequences() []string {
	out := make([]string, len(stopTokens))
	copy(out, stopTokens)
	return out
}

// Process normalizes raw accumulated model output into an insertable
// completion string. Pure and idempotent; empty output means the model
// produced nothing usable.
func Process(raw string) string {
	text := strings.TrimSpace(raw)

	for _, token := range stopTokens {
		if idx := strings.Index(text, token); idx >= 0 {
			text = text[:idx]
		}
	}
	lines := strings.Split(text, "\n")
	if len(lines) > maxCompletionLines {
		text = strings.Join(lines[:maxCompletionLines], "\n")
	}
	return strings.TrimSpace(text)
}
