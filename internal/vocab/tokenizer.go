package vocab

import (
	"regexp"
	"strings"
	"unicode"
)

// tokenRegex matches alphanumeric runs, underscores included for the
// initial split; camelCase/snake_case splitting happens afterward.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// Tokenize splits source text into lowercase code-aware tokens: camelCase,
// PascalCase, and snake_case identifiers are split into their parts, and
// tokens shorter than two characters are dropped.
func Tokenize(text string) []string {
	var tokens []string

	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, t := range SplitIdentifier(word) {
			lower := strings.ToLower(t)
			if len(lower) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}

	return tokens
}

// SplitIdentifier splits an identifier on underscores, then on camelCase
// boundaries within each underscore-delimited part.
func SplitIdentifier(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

// splitCamelCase splits camelCase and PascalCase identifiers, keeping
// acronym runs ("HTTPHandler" -> ["HTTP", "Handler"]) together.
func splitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}

// FilterStopWords removes stop words from a token list, case-insensitively.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordSet converts a slice of stop words into a lookup set.
func BuildStopWordSet(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
