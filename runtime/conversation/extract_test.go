package conversation

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnswer(t *testing.T) {
	ex := Answer("audience")
	require.Equal(t, Fields{"audience": "developers"}, ex("  developers "))
	require.Nil(t, ex(")"))
	require.Nil(t, ex("   "))
}

func TestKeywords(t *testing.T) {
	ex := Keywords("tone", []KeywordValue{
		{Value: "formal", Keywords: []string{"formal", "professional"}},
		{Value: "casual", Keywords: []string{"casual", "friendly", "fun"}},
	})
	require.Equal(t, Fields{"tone": "formal"}, ex("Keep it Professional please"))
	require.Equal(t, Fields{"tone": "casual"}, ex("fun, friendly"))
	require.Nil(t, ex("funny"))
}

func TestPatternAndChain(t *testing.T) {
	name := Pattern("name", regexp.MustCompile(`(?i)called\s+"?([^"]+)"?`))
	date := Pattern("date", regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`))
	ex := Chain(name, date)

	require.Equal(t, Fields{"name": "Launch Plan", "date": "2026-06-01"}, ex(`called "Launch Plan" by 2026-06-01`))
	require.Nil(t, ex("nothing here"))
}

func TestFieldsMerge(t *testing.T) {
	f := Fields{"topic": "a", "tone": "formal"}
	f.Merge(Fields{"topic": "b", "audience": "", "goals": "grow"})
	require.Equal(t, Fields{"topic": "b", "tone": "formal", "goals": "grow"}, f)
	require.Equal(t, "x", f.Get("missing", "x"))
}
