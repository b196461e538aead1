package segment

import (
	"strings"
)

// Sentence terminators recognized by the built-in boundary detector, covering
// both Latin and CJK punctuation.
const sentenceTerminators = ".!?…。！？"

// Closing characters that stay attached to the sentence they follow, such as
// the quote in `He said "stop."`.
const trailingClosers = "\"'”’»)]}）】」』"

// SplitSentences is the built-in sentence boundary detector. It normalizes
// whitespace, then cuts after runs of terminal punctuation, keeping closing
// quotes and brackets attached to the sentence they end. Content is never
// dropped or reordered; text without any terminator comes back as one unit.
func SplitSentences(text string) []string {
	normalized := normalizeWhitespace(text)
	if normalized == "" {
		return nil
	}

	var (
		sentences []string
		current   strings.Builder
		inTail    bool
	)

	flush := func() {
		sentence := strings.TrimSpace(current.String())
		if sentence != "" {
			sentences = append(sentences, sentence)
		}

		current.Reset()
	}

	for _, r := range normalized {
		switch {
		case isTerminator(r):
			current.WriteRune(r)

			inTail = true
		case inTail && isTrailingCloser(r):
			current.WriteRune(r)
		case inTail:
			flush()

			inTail = false

			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}

	flush()

	return sentences
}

// normalizeWhitespace collapses every run of whitespace, including newlines
// and tabs, into a single space.
func normalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func isTerminator(r rune) bool {
	return strings.ContainsRune(sentenceTerminators, r)
}

func isTrailingCloser(r rune) bool {
	return strings.ContainsRune(trailingClosers, r)
}

func hasSentenceTerminator(text string) bool {
	return strings.ContainsAny(text, sentenceTerminators)
}
