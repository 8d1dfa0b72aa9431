// Package textnorm normalizes titles, names and headings for comparison.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	yearRe       = regexp.MustCompile(`(?:^|\D)(1[0-9]{3}|20[0-9]{2})(?:\D|$)`)
)

func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// CleanString performs basic string cleaning (Unicode, trim, collapse)
func CleanString(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)
	return collapseWhitespace(s)
}

// NormalizeName normalizes an agent name for comparison: punctuation
// stripped, lowercased, whitespace collapsed.
func NormalizeName(name string) string {
	if name == "" {
		return ""
	}
	name = norm.NFC.String(name)
	name = lower(name)
	name = removePunctuation(name)
	return collapseWhitespace(name)
}

// TitleTokens splits a title on word boundaries, lowercases it and drops
// stopwords. The result is a set.
func TitleTokens(title string, stopwords map[string]bool) map[string]bool {
	title = lower(norm.NFC.String(title))
	words := strings.FieldsFunc(title, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	tokens := make(map[string]bool, len(words))
	for _, w := range words {
		if stopwords[w] {
			continue
		}
		tokens[w] = true
	}
	return tokens
}

// SubjectKey is the dedup key of a subject heading: trailing periods and
// commas stripped, lowercased.
func SubjectKey(heading string) string {
	heading = strings.TrimSpace(norm.NFC.String(heading))
	heading = strings.TrimRight(heading, ".,; ")
	return lower(collapseWhitespace(heading))
}

// Year extracts the first plausible four digit year from a date string.
func Year(value string) string {
	m := yearRe.FindStringSubmatch(value)
	if m == nil {
		return ""
	}
	return m[1]
}

// removePunctuation removes common punctuation characters
func removePunctuation(s string) string {
	replacer := strings.NewReplacer(
		".", "",
		",", "",
		"!", "",
		"?", "",
		"'", "",
		"\"", "",
		":", "",
		";", "",
		"(", "",
		")", "",
		"[", "",
		"]", "",
		"-", " ",
		"_", " ",
		"/", " ",
	)
	return replacer.Replace(s)
}

// collapseWhitespace replaces runs of whitespace with a single space
func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
