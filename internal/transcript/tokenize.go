package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// contractionSuffixes are split off the end of a word as separate tokens.
// Longest first so "n't" wins over "t".
var contractionSuffixes = []string{"n't", "'re", "'ve", "'ll", "'s", "'d", "'m"}

// TokenizeSentences tokenizes every sentence and concatenates the tokens in
// transcript order.
func TokenizeSentences(sentences []TimedSentence) []string {
	var tokens []string
	for _, s := range sentences {
		tokens = append(tokens, Tokenize(s.Text)...)
	}
	return tokens
}

// Tokenize splits text into word-level tokens. Whitespace separates chunks;
// leading and trailing punctuation, English contraction suffixes, and hyphens
// between letters become their own tokens. Dotted abbreviations ("U.S.") and
// ellipses stay whole.
func Tokenize(text string) []string {
	text = norm.NFC.String(text)
	text = strings.NewReplacer("’", "'", "‘", "'").Replace(text)

	var tokens []string
	for _, chunk := range strings.Fields(text) {
		tokens = appendChunk(tokens, chunk)
	}
	return tokens
}

func appendChunk(tokens []string, chunk string) []string {
	// Prefixes
	for chunk != "" {
		r, size := utf8.DecodeRuneInString(chunk)
		if !isPrefixRune(r) || size == len(chunk) {
			break
		}
		tokens = append(tokens, chunk[:size])
		chunk = chunk[size:]
	}

	// Suffixes are collected in reverse and appended after the body.
	var suffixes []string
	for chunk != "" {
		if isAbbreviation(chunk) || strings.Trim(chunk, ".") == "" {
			break
		}
		if strings.HasSuffix(chunk, "...") && len(chunk) > 3 {
			suffixes = append(suffixes, "...")
			chunk = chunk[:len(chunk)-3]
			continue
		}
		r, size := utf8.DecodeLastRuneInString(chunk)
		if isSuffixRune(r) && size < len(chunk) {
			suffixes = append(suffixes, chunk[len(chunk)-size:])
			chunk = chunk[:len(chunk)-size]
			continue
		}
		if suf, ok := contractionSuffix(chunk); ok {
			suffixes = append(suffixes, chunk[len(chunk)-len(suf):])
			chunk = chunk[:len(chunk)-len(suf)]
			continue
		}
		break
	}

	if chunk != "" {
		tokens = appendInfixes(tokens, chunk)
	}
	for i := len(suffixes) - 1; i >= 0; i-- {
		tokens = append(tokens, suffixes[i])
	}
	return tokens
}

// appendInfixes splits hyphenated words ("well-known" -> well, -, known).
func appendInfixes(tokens []string, word string) []string {
	start := 0
	for i, r := range word {
		if r != '-' || i == 0 || i == len(word)-1 {
			continue
		}
		prev, _ := utf8.DecodeLastRuneInString(word[:i])
		next, _ := utf8.DecodeRuneInString(word[i+1:])
		if !unicode.IsLetter(prev) || !unicode.IsLetter(next) {
			continue
		}
		tokens = append(tokens, word[start:i], "-")
		start = i + 1
	}
	return append(tokens, word[start:])
}

func contractionSuffix(word string) (string, bool) {
	lower := strings.ToLower(word)
	for _, suf := range contractionSuffixes {
		if len(lower) > len(suf) && strings.HasSuffix(lower, suf) {
			return suf, true
		}
	}
	return "", false
}

// isAbbreviation reports whether word looks like "U.S." or "e.g.": letters
// separated by single dots and ending in a dot.
func isAbbreviation(word string) bool {
	if len(word) < 4 || !strings.HasSuffix(word, ".") {
		return false
	}
	for _, part := range strings.Split(strings.TrimSuffix(word, "."), ".") {
		if utf8.RuneCountInString(part) != 1 {
			return false
		}
		r, _ := utf8.DecodeRuneInString(part)
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func isPrefixRune(r rune) bool {
	switch r {
	case '"', '\'', '(', '[', '{', '<', '¿', '¡', '«', '“', '*', '#', '$', '£', '€', '¥':
		return true
	}
	return false
}

func isSuffixRune(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '>', '.', ',', '!', '?', ';', ':', '»', '”', '%', '*', '…':
		return true
	}
	return false
}
