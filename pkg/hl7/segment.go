package hl7

import (
	"strings"
)

type SegmentKind int

const (
	GenericSegment SegmentKind = iota
	TypedSegment
)

func (k SegmentKind) String() string {
	if k == TypedSegment {
		return "typed"
	}
	return "generic"
}

// PositionalAccessor is implemented by every segment.
type PositionalAccessor interface {
	FieldAt(line, pos int) *Field
	AllAt(pos int) []*Field
	Occurrences() int
}

// NamedAccessor is available only for segments whose code has a field table.
type NamedAccessor interface {
	FieldNamed(name string) (*Field, error)
	AllNamed(name string) ([]*Field, error)
	Table() FieldTable
}

// Segment groups every line of one type code in physical order.
type Segment struct {
	code   string
	lines  []string
	fields [][]*Field
	table  *FieldTable
}

func newSegment(code string, bodies []string, d Delimiters, reg *Registry) *Segment {
	s := &Segment{
		code:   code,
		lines:  make([]string, 0, len(bodies)),
		fields: make([][]*Field, 0, len(bodies)),
	}
	if t, ok := reg.Lookup(code); ok {
		s.table = &t
	}
	prefix := code + string(d.Field)
	for _, body := range bodies {
		if len(body) >= len(prefix) && strings.EqualFold(body[:len(prefix)], prefix) {
			body = body[len(prefix):]
		}
		s.lines = append(s.lines, body)
		s.fields = append(s.fields, splitFields(body, d))
	}
	return s
}

func splitFields(body string, d Delimiters) []*Field {
	if body == "" {
		return nil
	}
	parts := strings.Split(body, string(d.Field))
	out := make([]*Field, len(parts))
	for i, p := range parts {
		if p != "" {
			out[i] = newField(p, d)
		}
	}
	return out
}

func (s *Segment) Code() string {
	return s.code
}

func (s *Segment) Kind() SegmentKind {
	if s.table != nil {
		return TypedSegment
	}
	return GenericSegment
}

// Named reports whether the segment supports name-based access.
func (s *Segment) Named() (NamedAccessor, bool) {
	if s.table == nil {
		return nil, false
	}
	return s, true
}

// Table returns the field table, or an empty table for generic segments.
func (s *Segment) Table() FieldTable {
	if s.table == nil {
		return FieldTable{}
	}
	return *s.table
}

func (s *Segment) Occurrences() int {
	return len(s.lines)
}

// Lines returns the per-occurrence text with the segment code removed.
func (s *Segment) Lines() []string {
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

// FieldCount is the number of field slots on a line, empty ones included.
func (s *Segment) FieldCount(line int) int {
	if line < 0 || line >= len(s.fields) {
		return 0
	}
	return len(s.fields[line])
}

// FieldAt returns the field at the 1-based position on the given 0-based
// line. Out-of-range positions, missing lines and empty slots yield nil.
func (s *Segment) FieldAt(line, pos int) *Field {
	if line < 0 || line >= len(s.fields) {
		return nil
	}
	row := s.fields[line]
	if pos < 1 || pos > len(row) {
		return nil
	}
	return row[pos-1]
}

// Field reads from the first occurrence.
func (s *Segment) Field(pos int) *Field {
	return s.FieldAt(0, pos)
}

// AllAt returns one entry per occurrence, nil where absent.
func (s *Segment) AllAt(pos int) []*Field {
	out := make([]*Field, len(s.fields))
	for i := range s.fields {
		out[i] = s.FieldAt(i, pos)
	}
	return out
}

// Position resolves a field name through the segment's table.
func (s *Segment) Position(name string) (int, error) {
	if s.table == nil {
		return 0, fieldNameError(s.code, name)
	}
	pos, ok := s.table.Index(name)
	if !ok {
		return 0, fieldNameError(s.code, name)
	}
	return pos, nil
}

// FieldNamed reads a named field from the first occurrence. A known name
// with no value returns (nil, nil).
func (s *Segment) FieldNamed(name string) (*Field, error) {
	pos, err := s.Position(name)
	if err != nil {
		return nil, err
	}
	return s.FieldAt(0, pos), nil
}

func (s *Segment) AllNamed(name string) ([]*Field, error) {
	pos, err := s.Position(name)
	if err != nil {
		return nil, err
	}
	return s.AllAt(pos), nil
}

// Equal compares code, kind and line contents.
func (s *Segment) Equal(other *Segment) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.code != other.code || s.Kind() != other.Kind() || len(s.lines) != len(other.lines) {
		return false
	}
	if s.table != nil && !s.table.Equal(*other.table) {
		return false
	}
	for i := range s.lines {
		if s.lines[i] != other.lines[i] {
			return false
		}
		if len(s.fields[i]) != len(other.fields[i]) {
			return false
		}
		for j := range s.fields[i] {
			if s.fields[i][j].String() != other.fields[i][j].String() ||
				(s.fields[i][j] == nil) != (other.fields[i][j] == nil) {
				return false
			}
		}
	}
	return true
}
