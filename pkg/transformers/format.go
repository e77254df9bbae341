package transformers

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/oarkflow/date"

	"github.com/oarkflow/hl7/pkg/hl7"
	"github.com/oarkflow/hl7/pkg/utils"
)

// FormatTransformer rewrites extracted values with small pipelines such as
// "trim | upper" or "component(2) | default('UNKNOWN')". List values are
// formatted element by element.
type FormatTransformer struct {
	fields []string
	steps  map[string][]formatStep
}

type formatStep struct {
	op   string
	args []string
}

var formatArity = map[string]int{
	"trim":      0,
	"upper":     0,
	"lower":     0,
	"name":      0,
	"default":   1,
	"prefix":    1,
	"suffix":    1,
	"component": 1,
	"date":      1,
	"replace":   2,
}

func NewFormatTransformer(formats map[string]string) (*FormatTransformer, error) {
	if len(formats) == 0 {
		return nil, fmt.Errorf("format transformer requires at least one field")
	}
	ft := &FormatTransformer{steps: make(map[string][]formatStep, len(formats))}
	for field, expr := range formats {
		steps, err := parseFormatPipeline(expr)
		if err != nil {
			return nil, fmt.Errorf("format %s: %w", field, err)
		}
		ft.fields = append(ft.fields, field)
		ft.steps[field] = steps
	}
	slices.Sort(ft.fields)
	return ft, nil
}

func (ft *FormatTransformer) Name() string {
	return "FormatTransformer"
}

// Transform formats the configured fields. Missing fields are left absent
// unless a default step supplies a value.
func (ft *FormatTransformer) Transform(_ context.Context, rec utils.Record) (utils.Record, error) {
	out := utils.CloneRecord(rec)
	for _, field := range ft.fields {
		val, ok := out[field]
		if !ok && !hasDefault(ft.steps[field]) {
			continue
		}
		var err error
		switch v := val.(type) {
		case []string:
			list := make([]string, len(v))
			for i, s := range v {
				if list[i], err = applyFormat(s, ft.steps[field]); err != nil {
					return nil, fmt.Errorf("format %s: %w", field, err)
				}
			}
			out[field] = list
		default:
			s, _ := utils.GetString(out, field)
			if out[field], err = applyFormat(s, ft.steps[field]); err != nil {
				return nil, fmt.Errorf("format %s: %w", field, err)
			}
		}
	}
	return out, nil
}

func hasDefault(steps []formatStep) bool {
	return slices.ContainsFunc(steps, func(s formatStep) bool { return s.op == "default" })
}

func applyFormat(value string, steps []formatStep) (string, error) {
	var err error
	for _, step := range steps {
		switch step.op {
		case "trim":
			value = strings.TrimSpace(value)
		case "upper":
			value = strings.ToUpper(value)
		case "lower":
			value = strings.ToLower(value)
		case "default":
			if strings.TrimSpace(value) == "" {
				value = step.args[0]
			}
		case "prefix":
			value = step.args[0] + value
		case "suffix":
			value += step.args[0]
		case "replace":
			value = strings.ReplaceAll(value, step.args[0], step.args[1])
		case "component":
			value, err = formatComponent(value, step.args[0])
		case "name":
			value, err = formatName(value)
		case "date":
			value, err = formatDate(value, step.args[0])
		}
		if err != nil {
			return "", err
		}
	}
	return value, nil
}

func formatComponent(value, arg string) (string, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return "", fmt.Errorf("component index must be a positive integer, got %q", arg)
	}
	c, _ := hl7.NewField(value).Component(n)
	return c, nil
}

// formatName renders a person-name value ("DOE^JOHN^Q") in reading order.
// Values without a family name are kept as they are.
func formatName(value string) (string, error) {
	name, err := hl7.NewField(value).AsName()
	if err != nil {
		return value, nil
	}
	return name.String(), nil
}

// formatDate accepts HL7 timestamps and the common layouts date.Parse knows,
// and renders them with a YYYY-MM-DD style pattern. Empty values stay empty.
func formatDate(value, pattern string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	t, err := hl7.NewField(value).AsTimestamp()
	if err != nil {
		if t, err = date.Parse(value); err != nil {
			return "", fmt.Errorf("unable to parse time value %q", value)
		}
	}
	return t.Format(layoutFromPattern(pattern)), nil
}

var formatTokens = []struct {
	token  string
	layout string
}{
	{"YYYY", "2006"},
	{"YY", "06"},
	{"MMM", "Jan"},
	{"MM", "01"},
	{"DD", "02"},
	{"HH", "15"},
	{"mm", "04"},
	{"ss", "05"},
	{"SSS", "000"},
	{"ZZ", "-0700"},
}

func layoutFromPattern(pattern string) string {
	if strings.TrimSpace(pattern) == "" {
		return time.RFC3339
	}
	var b strings.Builder
	for i := 0; i < len(pattern); {
		matched := false
		for _, tok := range formatTokens {
			if strings.HasPrefix(pattern[i:], tok.token) {
				b.WriteString(tok.layout)
				i += len(tok.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(pattern[i])
			i++
		}
	}
	return b.String()
}

// splitOutsideQuotes splits s on sep, ignoring separators inside single or
// double quotes.
func splitOutsideQuotes(s string, sep rune) []string {
	var (
		parts []string
		cur   strings.Builder
		quote rune
	)
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == sep:
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	return append(parts, cur.String())
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func parseFormatPipeline(expr string) ([]formatStep, error) {
	var steps []formatStep
	for _, part := range splitOutsideQuotes(expr, '|') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		step := formatStep{op: strings.ToLower(part)}
		if open := strings.IndexByte(part, '('); open >= 0 {
			if !strings.HasSuffix(part, ")") {
				return nil, fmt.Errorf("missing closing parenthesis in %s", part)
			}
			step.op = strings.ToLower(strings.TrimSpace(part[:open]))
			if inner := strings.TrimSpace(part[open+1 : len(part)-1]); inner != "" {
				for _, arg := range splitOutsideQuotes(inner, ',') {
					step.args = append(step.args, unquote(arg))
				}
			}
		}
		arity, ok := formatArity[step.op]
		if !ok {
			return nil, fmt.Errorf("unsupported formatting operation %s", step.op)
		}
		if len(step.args) != arity {
			return nil, fmt.Errorf("%s takes %d argument(s), got %d", step.op, arity, len(step.args))
		}
		steps = append(steps, step)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("no formatting operations defined")
	}
	return steps, nil
}
