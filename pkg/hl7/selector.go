package hl7

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// AllOccurrences selects every line of a segment.
const AllOccurrences = -1

var selectorPattern = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9]{2})(?:\((\d+|\*)\))?[.-]([A-Za-z_][A-Za-z0-9_]*|\d+)(?:\.(\d+))?$`)

// Selector addresses a field, or one of its components, as
// SEG[(occurrence)].field[.component]. The field is a name or a 1-based
// position; the occurrence is 1-based or "*" and defaults to the first.
type Selector struct {
	Segment    string
	Occurrence int
	Name       string
	Position   int
	Component  int
}

func ParseSelector(expr string) (Selector, error) {
	m := selectorPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return Selector{}, &Error{Code: ErrCodeSelector, Message: "malformed selector", Value: expr}
	}
	sel := Selector{Segment: strings.ToUpper(m[1]), Occurrence: 1}
	switch m[2] {
	case "":
	case "*":
		sel.Occurrence = AllOccurrences
	default:
		n, _ := strconv.Atoi(m[2])
		if n < 1 {
			return Selector{}, &Error{Code: ErrCodeSelector, Message: "occurrence must be 1 or more", Value: expr}
		}
		sel.Occurrence = n
	}
	if n, err := strconv.Atoi(m[3]); err == nil {
		if n < 1 {
			return Selector{}, &Error{Code: ErrCodeSelector, Message: "position must be 1 or more", Value: expr}
		}
		sel.Position = n
	} else {
		sel.Name = m[3]
	}
	if m[4] != "" {
		n, _ := strconv.Atoi(m[4])
		if n < 1 {
			return Selector{}, &Error{Code: ErrCodeSelector, Message: "component must be 1 or more", Value: expr}
		}
		sel.Component = n
	}
	return sel, nil
}

func MustParseSelector(expr string) Selector {
	sel, err := ParseSelector(expr)
	if err != nil {
		panic(err)
	}
	return sel
}

func (s Selector) String() string {
	var b strings.Builder
	b.WriteString(s.Segment)
	switch {
	case s.Occurrence == AllOccurrences:
		b.WriteString("(*)")
	case s.Occurrence > 1:
		fmt.Fprintf(&b, "(%d)", s.Occurrence)
	}
	b.WriteByte('.')
	if s.Name != "" {
		b.WriteString(s.Name)
	} else {
		b.WriteString(strconv.Itoa(s.Position))
	}
	if s.Component > 0 {
		fmt.Fprintf(&b, ".%d", s.Component)
	}
	return b.String()
}

// Select returns one entry per selected occurrence, nil where the field is
// absent. A segment type missing from the message selects nothing.
func (m *Message) Select(sel Selector) ([]*Field, error) {
	seg, ok := m.Segment(sel.Segment)
	if !ok {
		return nil, nil
	}
	pos := sel.Position
	if sel.Name != "" {
		p, err := seg.Position(sel.Name)
		if err != nil {
			return nil, err
		}
		pos = p
	}
	if sel.Occurrence == AllOccurrences {
		return seg.AllAt(pos), nil
	}
	if sel.Occurrence > seg.Occurrences() {
		return nil, nil
	}
	return []*Field{seg.FieldAt(sel.Occurrence-1, pos)}, nil
}

// Lookup parses expr and returns the selected values as text. Absent fields
// and components render as "".
func (m *Message) Lookup(expr string) ([]string, error) {
	sel, err := ParseSelector(expr)
	if err != nil {
		return nil, err
	}
	fields, err := m.Select(sel)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		if sel.Component > 0 {
			out[i], _ = f.Component(sel.Component)
			continue
		}
		out[i] = f.String()
	}
	return out, nil
}

// Value is Lookup reduced to the first selected value.
func (m *Message) Value(expr string) (string, error) {
	values, err := m.Lookup(expr)
	if err != nil || len(values) == 0 {
		return "", err
	}
	return values[0], nil
}
