package hl7

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var segmentCodePattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{2}$`)

// FieldTable maps field names to 1-based positions within a segment line.
// Names are matched case-insensitively.
type FieldTable struct {
	names []string
	index map[string]int
}

// NewFieldTable assigns position i+1 to names[i]. Empty names leave a gap.
func NewFieldTable(names ...string) FieldTable {
	t := FieldTable{names: make([]string, len(names)), index: make(map[string]int, len(names))}
	for i, name := range names {
		n := normalizeFieldName(name)
		t.names[i] = n
		if n == "" {
			continue
		}
		if _, exists := t.index[n]; !exists {
			t.index[n] = i + 1
		}
	}
	return t
}

// FieldTableFromMap builds a table from explicit positions.
func FieldTableFromMap(positions map[string]int) (FieldTable, error) {
	size := 0
	for name, pos := range positions {
		if pos < 1 {
			return FieldTable{}, &Error{Code: ErrCodeRegistry, Message: fmt.Sprintf("field %s has invalid position %d", name, pos)}
		}
		if pos > size {
			size = pos
		}
	}
	names := make([]string, size)
	for name, pos := range positions {
		if names[pos-1] != "" {
			return FieldTable{}, &Error{Code: ErrCodeRegistry, Message: fmt.Sprintf("position %d named twice", pos)}
		}
		names[pos-1] = name
	}
	return NewFieldTable(names...), nil
}

// Index resolves a field name to its position.
func (t FieldTable) Index(name string) (int, bool) {
	pos, ok := t.index[normalizeFieldName(name)]
	return pos, ok
}

// Name returns the field name at a 1-based position, or "".
func (t FieldTable) Name(pos int) string {
	if pos < 1 || pos > len(t.names) {
		return ""
	}
	return t.names[pos-1]
}

// Names returns the names in position order; unnamed positions are "".
func (t FieldTable) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

func (t FieldTable) Len() int {
	return len(t.names)
}

func (t FieldTable) Equal(other FieldTable) bool {
	if len(t.names) != len(other.names) {
		return false
	}
	for i := range t.names {
		if t.names[i] != other.names[i] {
			return false
		}
	}
	return true
}

func normalizeFieldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Registry maps segment codes to field tables. Registration is expected to
// finish before messages are parsed concurrently; lookups take a read lock.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]FieldTable
	frozen bool
}

func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]FieldTable)}
}

// DefaultRegistry returns a new registry holding the built-in segment tables.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for code, names := range builtinTables {
		r.tables[code] = NewFieldTable(names...)
	}
	return r
}

// Register adds a table for code. Registering an identical table again is a
// no-op; a different table for a known code is rejected.
func (r *Registry) Register(code string, table FieldTable) error {
	c := strings.ToUpper(strings.TrimSpace(code))
	if !segmentCodePattern.MatchString(c) {
		return &Error{Code: ErrCodeRegistry, Message: "invalid segment code", Value: code}
	}
	if table.Len() == 0 {
		return &Error{Code: ErrCodeRegistry, Message: "empty field table", Segment: c}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tables[c]; ok {
		if existing.Equal(table) {
			return nil
		}
		return &Error{Code: ErrCodeRegistry, Message: "conflicting segment registration", Segment: c}
	}
	if r.frozen {
		return &Error{Code: ErrCodeRegistry, Message: "registry is frozen", Segment: c}
	}
	r.tables[c] = table
	return nil
}

// MustRegister is Register for package-level setup; it panics on error.
func (r *Registry) MustRegister(code string, names ...string) {
	if err := r.Register(code, NewFieldTable(names...)); err != nil {
		panic(err)
	}
}

// Lookup returns the table registered for code.
func (r *Registry) Lookup(code string) (FieldTable, bool) {
	if r == nil {
		return FieldTable{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[strings.ToUpper(code)]
	return t, ok
}

// Codes returns the registered codes in sorted order.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.tables))
	for code := range r.tables {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Freeze rejects further registrations of new codes.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Clone returns an unfrozen copy that can be extended independently.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := NewRegistry()
	for code, t := range r.tables {
		c.tables[code] = t
	}
	return c
}
