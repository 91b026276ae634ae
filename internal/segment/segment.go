// Package segment splits article text into paragraphs suitable for speaking one at a time.
package segment

import (
	"strings"
	"unicode/utf8"
)

// MinParagraphRunes is the length under which a fragment is treated as a header,
// byline or caption and folded into a neighbouring paragraph.
const MinParagraphRunes = 50

// Paragraphs splits text on blank lines when there are any, otherwise on single
// newlines. Runs of short fragments are merged into the following paragraph, or
// into the previous one when nothing follows.
func Paragraphs(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	sep := "\n"
	if strings.Contains(normalized, "\n\n") {
		sep = "\n\n"
	}

	var (
		paragraphs []string
		pending    []string
	)
	for _, raw := range strings.Split(normalized, sep) {
		fragment := strings.TrimSpace(raw)
		if fragment == "" {
			continue
		}
		if utf8.RuneCountInString(fragment) < MinParagraphRunes {
			pending = append(pending, fragment)
			continue
		}
		if len(pending) > 0 {
			fragment = strings.Join(pending, " ") + " " + fragment
			pending = pending[:0]
		}
		paragraphs = append(paragraphs, fragment)
	}

	if len(pending) > 0 {
		tail := strings.Join(pending, " ")
		if n := len(paragraphs); n > 0 {
			paragraphs[n-1] += " " + tail
		} else {
			paragraphs = append(paragraphs, tail)
		}
	}

	if len(paragraphs) == 0 {
		return []string{text}
	}
	return paragraphs
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
