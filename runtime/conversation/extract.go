package conversation

import (
	"regexp"
	"strings"
	"unicode"
)

// Answer returns an extractor storing the trimmed input under field. Input
// without any letter or digit yields nothing.
func Answer(field string) Extractor {
	return func(input string) Fields {
		s := strings.TrimSpace(input)
		if !strings.ContainsFunc(s, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
			return nil
		}
		return Fields{field: s}
	}
}

// Keywords returns an extractor setting field to the first value whose
// keywords appear as words in the input. values is scanned in order.
func Keywords(field string, values []KeywordValue) Extractor {
	return func(input string) Fields {
		words := " " + strings.Join(strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}), " ") + " "
		for _, v := range values {
			for _, k := range v.Keywords {
				if strings.Contains(words, " "+strings.ToLower(k)+" ") {
					return Fields{field: v.Value}
				}
			}
		}
		return nil
	}
}

// KeywordValue maps keywords to the value stored by a Keywords extractor.
type KeywordValue struct {
	Value    string
	Keywords []string
}

// Pattern returns an extractor storing the first capture group of re under
// field. Matching is case insensitive when re is compiled that way.
func Pattern(field string, re *regexp.Regexp) Extractor {
	return func(input string) Fields {
		m := re.FindStringSubmatch(input)
		if len(m) < 2 {
			return nil
		}
		v := strings.TrimSpace(m[1])
		if v == "" {
			return nil
		}
		return Fields{field: v}
	}
}

// Chain runs extractors in order and merges their fields; later extractors
// win.
func Chain(extractors ...Extractor) Extractor {
	return func(input string) Fields {
		out := Fields{}
		for _, ex := range extractors {
			if ex != nil {
				out.Merge(ex(input))
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
}
