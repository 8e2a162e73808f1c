// Package transcript normalizes recognized text and excises control
// utterances before it reaches the caller.
package transcript

import "strings"

// Clean normalizes whitespace: trims and collapses internal runs.
func Clean(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// StripPhrases removes every occurrence of each phrase from text, comparing
// token sequences case-insensitively and ignoring trailing punctuation on
// transcript tokens. Used to keep matched command utterances out of the
// final transcript.
func StripPhrases(text string, phrases []string) string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return ""
	}

	for _, phrase := range phrases {
		want := strings.Fields(strings.ToLower(phrase))
		if len(want) == 0 {
			continue
		}
		tokens = stripSequence(tokens, want)
	}
	return strings.Join(tokens, " ")
}

// stripSequence removes every occurrence of the token sequence want.
func stripSequence(tokens []string, want []string) []string {
	out := tokens[:0:0]
	for i := 0; i < len(tokens); {
		if matchesAt(tokens, i, want) {
			i += len(want)
			continue
		}
		out = append(out, tokens[i])
		i++
	}
	return out
}

func matchesAt(tokens []string, start int, want []string) bool {
	if start+len(want) > len(tokens) {
		return false
	}
	for j, w := range want {
		if canonicalToken(tokens[start+j]) != w {
			return false
		}
	}
	return true
}

// canonicalToken lowercases a token and drops trailing punctuation so
// "stop." still matches the configured phrase "stop".
func canonicalToken(token string) string {
	return strings.TrimRight(strings.ToLower(token), ".,!?;:")
}
