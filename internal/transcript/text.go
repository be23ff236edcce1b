package transcript

import (
	"fmt"
	"strings"
)

// TruncationSuffix marks text cut at the length limit.
const TruncationSuffix = "..."

// JoinText concatenates cue texts with single spaces and truncates the
// result to maxChars characters. It reports whether it truncated.
func JoinText(cues []Cue, maxChars int) (string, bool) {
	parts := make([]string, 0, len(cues))
	for _, c := range cues {
		parts = append(parts, c.Text)
	}
	return truncate(strings.Join(parts, " "), maxChars)
}

// JoinTimedText is JoinText with every cue prefixed by its whole start
// second, e.g. "[12] slice the onion".
func JoinTimedText(cues []Cue, maxChars int) (string, bool) {
	parts := make([]string, 0, len(cues))
	for _, c := range cues {
		parts = append(parts, fmt.Sprintf("[%d] %s", int(c.Start), c.Text))
	}
	return truncate(strings.Join(parts, " "), maxChars)
}

// truncate limits text by rune count.
func truncate(text string, maxChars int) (string, bool) {
	if maxChars <= 0 {
		return text, false
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text, false
	}
	return string(runes[:maxChars]) + TruncationSuffix, true
}
