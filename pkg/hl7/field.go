package hl7

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

var (
	datePattern      = regexp.MustCompile(`^\d{8}$`)
	dateTimePattern  = regexp.MustCompile(`^\d{8}(\d{4}(\d{2})?)?$`)
	timestampPattern = regexp.MustCompile(`^(\d{8}(?:\d{4}(?:\d{2})?)?)(?:\.(\d{1,4}))?([+-]\d{4})?$`)
)

// Field is one delimited value of a segment line. Components are split on
// first use and cached; a Field is safe for concurrent reads.
type Field struct {
	raw   string
	delim Delimiters

	once       sync.Once
	components []string
}

// NewField builds a Field using the default delimiters.
func NewField(raw string) *Field {
	return newField(raw, DefaultDelimiters())
}

func newField(raw string, d Delimiters) *Field {
	return &Field{raw: raw, delim: d}
}

// String returns the raw text. A nil Field renders as "".
func (f *Field) String() string {
	if f == nil {
		return ""
	}
	return f.raw
}

func (f *Field) Raw() string {
	return f.String()
}

// Components returns the component values. A field without a component
// delimiter has exactly one component: its raw text.
func (f *Field) Components() []string {
	if f == nil {
		return nil
	}
	f.once.Do(func() {
		f.components = strings.Split(f.raw, string(f.delim.Component))
	})
	out := make([]string, len(f.components))
	copy(out, f.components)
	return out
}

// Component returns the 1-based component i.
func (f *Field) Component(i int) (string, bool) {
	if f == nil || i < 1 {
		return "", false
	}
	f.Components()
	if i > len(f.components) {
		return "", false
	}
	return f.components[i-1], true
}

// Subcomponents splits component i on the subcomponent delimiter.
func (f *Field) Subcomponents(i int) []string {
	c, ok := f.Component(i)
	if !ok {
		return nil
	}
	return strings.Split(c, string(f.delim.Subcomponent))
}

// AsDate parses the fixed YYYYMMDD layout.
func (f *Field) AsDate() (time.Time, error) {
	raw := f.String()
	if !datePattern.MatchString(raw) {
		return time.Time{}, formatError("YYYYMMDD", raw, nil)
	}
	t, err := time.Parse("20060102", raw)
	if err != nil {
		return time.Time{}, formatError("YYYYMMDD", raw, err)
	}
	return t, nil
}

// AsDateTime parses YYYYMMDD[HHMM[SS]].
func (f *Field) AsDateTime() (time.Time, error) {
	raw := f.String()
	if !dateTimePattern.MatchString(raw) {
		return time.Time{}, formatError("YYYYMMDD[HHMM[SS]]", raw, nil)
	}
	t, err := time.Parse(dateTimeLayout(len(raw)), raw)
	if err != nil {
		return time.Time{}, formatError("YYYYMMDD[HHMM[SS]]", raw, err)
	}
	return t, nil
}

// AsTimestamp accepts the full HL7 timestamp form, with optional fractional
// seconds and a +/-ZZZZ offset. Only the first component is read.
func (f *Field) AsTimestamp() (time.Time, error) {
	raw, _ := f.Component(1)
	m := timestampPattern.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, formatError("YYYYMMDD[HHMM[SS[.S[S[S[S]]]]]][+/-ZZZZ]", raw, nil)
	}
	layout := dateTimeLayout(len(m[1]))
	value := m[1]
	if m[2] != "" {
		layout += "." + strings.Repeat("0", len(m[2]))
		value += "." + m[2]
	}
	if m[3] != "" {
		layout += "-0700"
		value += m[3]
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, formatError("HL7 timestamp", raw, err)
	}
	return t, nil
}

func dateTimeLayout(n int) string {
	switch n {
	case 12:
		return "200601021504"
	case 14:
		return "20060102150405"
	}
	return "20060102"
}

// Name is a person name read from Last^First^Middle^Suffix^Prefix^Degree.
type Name struct {
	Last   string `json:"last"`
	First  string `json:"first"`
	Middle string `json:"middle,omitempty"`
	Suffix string `json:"suffix,omitempty"`
	Prefix string `json:"prefix,omitempty"`
	Degree string `json:"degree,omitempty"`
}

func (n Name) String() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{n.Prefix, n.First, n.Middle, n.Last, n.Suffix} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// AsName interprets the field as a person name. The last name is required;
// components after the sixth are ignored.
func (f *Field) AsName() (Name, error) {
	parts := f.Components()
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		return Name{}, formatError("Last^First[^Middle][^Suffix]", f.String(), nil)
	}
	get := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}
	return Name{
		Last:   get(0),
		First:  get(1),
		Middle: get(2),
		Suffix: get(3),
		Prefix: get(4),
		Degree: get(5),
	}, nil
}
