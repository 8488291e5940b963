package retrieval

import (
	"strings"
	"unicode"
)

// EstimateTokens gives a rough token count for budgeting the assembled
// context. It uses character heuristics rather than a real tokenizer: long
// words count one token per four characters, digits count individually.
// Good enough to keep a context under a model's window, not for billing.
func EstimateTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	count := 0
	for _, word := range strings.Fields(text) {
		count += estimateWordTokens(word)
	}
	return count
}

func estimateWordTokens(word string) int {
	if len(word) == 1 && unicode.IsPunct(rune(word[0])) {
		return 1
	}
	if isNumeric(word) {
		// Digits tend to tokenize character by character.
		return len(word)
	}
	if len(word) <= 4 {
		return 1
	}
	// Longer words are split into subword pieces.
	return (len(word) + 3) / 4
}

func isNumeric(word string) bool {
	for _, r := range word {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return false
		}
	}
	return true
}
