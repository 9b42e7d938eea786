// Package text holds the heuristic text helpers shared by the built-in
// capabilities.
package text

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	calledPattern = regexp.MustCompile(`(?i)\b(?:called|named|titled)\s+(?:"([^"]+)"|'([^']+)'|(.+?))(?:\s+(?:about|for|with)\b.*)?[.!?]?$`)
	aboutPattern  = regexp.MustCompile(`(?i)\b(?:about|regarding)\s+(?:"([^"]+)"|(.+?))[.!?]?$`)
	forPattern    = regexp.MustCompile(`(?i)\b(?:on|for)\s+(?:"([^"]+)"|(.+?))[.!?]?$`)
	slugStrip     = regexp.MustCompile(`[^a-z0-9]+`)
)

// Called returns the name introduced by "called", "named" or "titled".
func Called(s string) string {
	return firstGroup(calledPattern.FindStringSubmatch(strings.TrimSpace(s)))
}

// About returns the subject introduced by "about" or "regarding", falling
// back to "on" and "for".
func About(s string) string {
	s = strings.TrimSpace(s)
	if v := firstGroup(aboutPattern.FindStringSubmatch(s)); v != "" {
		return v
	}
	return firstGroup(forPattern.FindStringSubmatch(s))
}

// StripWords removes leading words found in drop (case insensitive) and
// returns the remainder with surrounding punctuation trimmed.
func StripWords(s string, drop ...string) string {
	set := make(map[string]bool, len(drop))
	for _, d := range drop {
		set[strings.ToLower(d)] = true
	}
	words := strings.Fields(s)
	i := 0
	for i < len(words) && set[strings.ToLower(strings.TrimFunc(words[i], isPunct))] {
		i++
	}
	return strings.TrimFunc(strings.Join(words[i:], " "), isPunct)
}

// Slug returns a lower-case, dash separated form of s suitable for file
// names. Empty input yields "untitled".
func Slug(s string) string {
	slug := strings.Trim(slugStrip.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if len(slug) > 40 {
		slug = strings.TrimRight(slug[:40], "-")
	}
	if slug == "" {
		return "untitled"
	}
	return slug
}

// Title upper-cases the first letter of every word.
func Title(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// Hashtag turns s into a single CamelCase hashtag.
func Hashtag(s string) string {
	var b strings.Builder
	b.WriteByte('#')
	for _, w := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }) {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	if b.Len() == 1 {
		return ""
	}
	return b.String()
}

// Truncate shortens s to at most n runes, ending with an ellipsis when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return strings.TrimSpace(string(r[:n-3])) + "..."
}

func firstGroup(m []string) string {
	for _, g := range m[min(1, len(m)):] {
		if g = strings.TrimSpace(g); g != "" {
			return g
		}
	}
	return ""
}

func isPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r)
}
