package chunking

import (
	"regexp"
	"sort"
	"strings"
)

var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+\s*`)

// splitSentences cuts text at sentence terminators. Text the pattern does not
// cover, such as a trailing fragment without punctuation, is kept as its own
// piece so nothing is lost.
func splitSentences(text string) []string {
	var (
		out  []string
		last int
	)
	for _, loc := range sentencePattern.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			out = append(out, text[last:loc[0]])
		}
		out = append(out, text[loc[0]:loc[1]])
		last = loc[1]
	}
	if last < len(text) {
		out = append(out, text[last:])
	}
	return out
}

// splitOversized breaks text into pieces of at most maxTokens, preferring
// sentence boundaries, then word boundaries, then raw runes.
func splitOversized(text string, maxTokens int, counter TokenCounter) []string {
	var (
		pieces []string
		cur    string
	)
	emit := func() {
		if s := strings.TrimSpace(cur); s != "" {
			pieces = append(pieces, s)
		}
		cur = ""
	}

	for _, sentence := range splitSentences(text) {
		if counter.Count(cur+sentence) <= maxTokens {
			cur += sentence
			continue
		}
		emit()
		if counter.Count(sentence) <= maxTokens {
			cur = sentence
			continue
		}
		pieces = append(pieces, splitWords(sentence, maxTokens, counter)...)
	}
	emit()
	return pieces
}

func splitWords(text string, maxTokens int, counter TokenCounter) []string {
	var (
		pieces []string
		cur    string
	)
	for _, word := range strings.Fields(text) {
		candidate := word
		if cur != "" {
			candidate = cur + " " + word
		}
		if counter.Count(candidate) <= maxTokens {
			cur = candidate
			continue
		}
		if cur != "" {
			pieces = append(pieces, cur)
			cur = ""
		}
		if counter.Count(word) <= maxTokens {
			cur = word
			continue
		}
		hard := splitRunes(word, maxTokens, counter)
		pieces = append(pieces, hard[:len(hard)-1]...)
		cur = hard[len(hard)-1]
	}
	if cur != "" {
		pieces = append(pieces, cur)
	}
	return pieces
}

// splitRunes cuts a single unbreakable word into the longest prefixes that fit.
func splitRunes(word string, maxTokens int, counter TokenCounter) []string {
	var pieces []string
	runes := []rune(word)
	for len(runes) > 0 {
		n := sort.Search(len(runes), func(i int) bool {
			return counter.Count(string(runes[:i+1])) > maxTokens
		})
		if n == 0 {
			n = 1
		}
		pieces = append(pieces, string(runes[:n]))
		runes = runes[n:]
	}
	return pieces
}
