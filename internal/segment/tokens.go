package segment

import "strings"

// CountWords is a whitespace word counter usable as a core.TokenCounter.
// It approximates model token counts closely enough for chunk budgeting,
// where only the relative size of sentences matters. Callers with access to
// the backend's real tokenizer should prefer it.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
