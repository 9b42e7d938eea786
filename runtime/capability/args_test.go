package capability

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	cases := []struct {
		name string
		in   string
		args Args
		rest string
	}{
		{"empty", "", Args{}, ""},
		{"plain text", "launch the new site", Args{}, "launch the new site"},
		{"pairs", `theme=coffee days=7 enabled=false`, Args{"theme": "coffee", "days": float64(7), "enabled": false}, ""},
		{"quoted", `name="Launch Plan" status='on hold' now`, Args{"name": "Launch Plan", "status": "on hold"}, "now"},
		{"case folded key", `Theme=Tea`, Args{"theme": "Tea"}, ""},
		{"json", `{"theme":"coffee","days":3,"tags":["a"]}`, Args{"theme": "coffee", "days": float64(3), "tags": []any{"a"}}, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			args, rest := ParseArgs(c.in)
			require.Equal(t, c.args, args)
			require.Equal(t, c.rest, rest)
		})
	}
}

func TestArgsAccessors(t *testing.T) {
	a := Args{"n": float64(4), "s": "12", "b": "yes", "t": true, "f": 2.5}
	require.Equal(t, 4, a.Int("n", 0))
	require.Equal(t, 12, a.Int("s", 0))
	require.Equal(t, 9, a.Int("missing", 9))
	require.Equal(t, "2.5", a.String("f"))
	require.Equal(t, "", a.String("missing"))
	require.True(t, a.Bool("t", false))
	require.True(t, a.Bool("b", true))
}

func TestSplitCommand(t *testing.T) {
	cmd, rest, ok := SplitCommand("  /Project  name=\"Launch Plan\" ")
	require.True(t, ok)
	require.Equal(t, "/project", cmd)
	require.Equal(t, `name="Launch Plan"`, rest)

	_, _, ok = SplitCommand("create a project")
	require.False(t, ok)
	_, _, ok = SplitCommand("/")
	require.False(t, ok)
}
