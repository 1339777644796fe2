// Package textutil provides text helpers for title comparison and display:
// token-based similarity for sanity-checking bibliographic title matches,
// and humanized labels for machine-readable enum values.
package textutil

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// tokenSplitPattern matches non-alphanumeric character sequences for
// tokenization.
var tokenSplitPattern = regexp.MustCompile(`[^a-z0-9]+`)

var titleCaser = cases.Title(language.English)

// Tokenize splits text into lowercase tokens, filtering short tokens.
func Tokenize(text string) []string {
	lowered := strings.ToLower(text)
	raw := tokenSplitPattern.Split(lowered, -1)
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		token = strings.TrimSpace(token)
		if len(token) < 3 {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

// Humanize turns a snake_case enum value into a display label, e.g.
// "stored_incomplete" becomes "Stored Incomplete".
func Humanize(value string) string {
	value = strings.TrimSpace(strings.ReplaceAll(value, "_", " "))
	if value == "" {
		return ""
	}
	return titleCaser.String(value)
}

// Truncate shortens s to at most max runes, appending an ellipsis when it
// was cut. A max below 4 returns the bare prefix.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max < 4 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
