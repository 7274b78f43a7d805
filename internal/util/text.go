// Package util provides small text helpers shared across components.
package util

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var quoteFolder = strings.NewReplacer(
	"‘", "'", "’", "'", "ʼ", "'",
	"“", "\"", "”", "\"", "″", "\"", "′", "'",
)

// FoldQuotes replaces typographic quotes and primes with their ASCII forms,
// so "don’t" and 5′10″ match the same patterns as "don't" and 5'10".
func FoldQuotes(s string) string {
	return quoteFolder.Replace(s)
}

// Normalize folds quotes, lowercases and trims s.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(FoldQuotes(s)))
}

// CapitalizeWords upper-cases the first rune of every space separated word
// and leaves the remaining runes untouched ("josé garcía" -> "José García",
// "McDonald" stays "McDonald").
func CapitalizeWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if r == utf8.RuneError {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// NameOrDefault returns name, or "there" when it is blank or skipped.
func NameOrDefault(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "skipped") {
		return "there"
	}
	return name
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
