package capability

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Args holds parsed inline arguments keyed by parameter name.
type Args map[string]any

var argPattern = regexp.MustCompile(`(?i)\b([a-z][a-z0-9_]*)=(?:"([^"]*)"|'([^']*)'|(\S+))`)

// ParseArgs extracts inline arguments from text. A JSON object yields its
// top-level fields; otherwise key=value, key="quoted value" and
// key='quoted value' pairs are extracted. Unquoted numbers become float64
// and true/false become booleans. rest is the text with the pairs removed.
func ParseArgs(text string) (args Args, rest string) {
	args = Args{}
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && gjson.Valid(trimmed) {
		gjson.Parse(trimmed).ForEach(func(k, v gjson.Result) bool {
			args[k.String()] = v.Value()
			return true
		})
		return args, ""
	}
	for _, m := range argPattern.FindAllStringSubmatchIndex(text, -1) {
		key := strings.ToLower(text[m[2]:m[3]])
		switch {
		case m[4] >= 0:
			args[key] = text[m[4]:m[5]]
		case m[6] >= 0:
			args[key] = text[m[6]:m[7]]
		default:
			args[key] = scalar(text[m[8]:m[9]])
		}
	}
	rest = strings.Join(strings.Fields(argPattern.ReplaceAllString(text, " ")), " ")
	return args, rest
}

// String returns the argument as a string. Non-string values are
// formatted.
func (a Args) String(name string) string {
	switch v := a[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the argument as an int, or def when absent or not numeric.
func (a Args) Int(name string, def int) int {
	switch v := a[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Bool returns the argument as a bool, or def when absent.
func (a Args) Bool(name string, def bool) bool {
	switch v := a[name].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// coerce converts args to the kinds declared by the operation and applies
// defaults. Unknown keys are left untouched; values that cannot be converted
// are left as is for schema validation to reject.
func (o *Operation) coerce(in Args) Args {
	out := make(Args, len(in)+len(o.Parameters))
	for k, v := range in {
		out[k] = v
	}
	for _, p := range o.Parameters {
		v, ok := out[p.Name]
		if !ok {
			if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}
		switch p.Kind {
		case KindString:
			out[p.Name] = out.String(p.Name)
		case KindNumber:
			if s, ok := v.(string); ok {
				if f, err := strconv.ParseFloat(s, 64); err == nil {
					out[p.Name] = f
				}
			}
		case KindBoolean:
			if s, ok := v.(string); ok {
				if b, err := strconv.ParseBool(s); err == nil {
					out[p.Name] = b
				}
			}
		case KindEnum:
			s := out.String(p.Name)
			out[p.Name] = s
			for _, c := range p.Choices {
				if strings.EqualFold(c, s) {
					out[p.Name] = c
					break
				}
			}
		}
	}
	return out
}

func scalar(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
