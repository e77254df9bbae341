package hl7

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// HeaderCode is the canonical type of the header segment.
const HeaderCode = "MSH"

var (
	// Feeds sometimes prepend a BOM, blanks or a numeric counter to the header.
	headerToken  = regexp.MustCompile(`^\x{FEFF}?\s*\d*MSH$`)
	headerPrefix = regexp.MustCompile(`^\x{FEFF}?\s*\d*MSH`)

	lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

// IsHeaderLine reports whether line starts a message header. The header code
// must end the line's first token, so "MSHA|..." is not a header.
func IsHeaderLine(line string) bool {
	return headerEnd(line) >= 0
}

// headerEnd returns the offset just past the header code, or -1 when line is
// not a header.
func headerEnd(line string) int {
	loc := headerPrefix.FindStringIndex(line)
	if loc == nil {
		return -1
	}
	if next, size := utf8.DecodeRuneInString(line[loc[1]:]); size > 0 && (unicode.IsLetter(next) || unicode.IsDigit(next)) {
		return -1
	}
	return loc[1]
}

// Option configures a Parser.
type Option func(*Parser)

func WithDelimiters(d Delimiters) Option {
	return func(p *Parser) {
		p.delims = d
	}
}

func WithRegistry(r *Registry) Option {
	return func(p *Parser) {
		p.registry = r
	}
}

// WithHeaderDelimiters makes the parser read delimiters from the header line
// of each message instead of using the configured set.
func WithHeaderDelimiters() Option {
	return func(p *Parser) {
		p.fromHeader = true
	}
}

// Parser holds the delimiters and registry used for every parse. It carries
// no per-message state and may be shared between goroutines.
type Parser struct {
	delims     Delimiters
	registry   *Registry
	fromHeader bool
}

func NewParser(opts ...Option) *Parser {
	p := &Parser{delims: DefaultDelimiters()}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry == nil {
		p.registry = DefaultRegistry()
	}
	return p
}

func (p *Parser) Registry() *Registry {
	return p.registry
}

func (p *Parser) Delimiters() Delimiters {
	return p.delims
}

func (p *Parser) Parse(text string) (*Message, error) {
	d := p.delims
	if p.fromHeader {
		for _, line := range splitLines(text) {
			if IsHeaderLine(line) {
				hd, err := DelimitersFromHeader(line)
				if err != nil {
					return nil, err
				}
				d = hd
				break
			}
		}
	}
	return Parse(text, d, p.registry)
}

// Message is an immutable parse of one HL7 message.
type Message struct {
	text      string
	delims    Delimiters
	lineTypes []string
	order     []string
	segments  map[string]*Segment
	controlID string
}

// Parse splits text into segments using d and resolves typed segments through
// reg. A nil registry treats every segment as generic. Parse fails when no
// header line is present or the header carries no control id.
func Parse(text string, d Delimiters, reg *Registry) (*Message, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	m := &Message{
		text:     text,
		delims:   d,
		segments: make(map[string]*Segment),
	}
	groups := make(map[string][]string)
	for _, line := range splitLines(text) {
		code, body := classify(line, d)
		m.lineTypes = append(m.lineTypes, code)
		if _, seen := groups[code]; !seen {
			m.order = append(m.order, code)
		}
		groups[code] = append(groups[code], body)
	}
	if _, ok := groups[HeaderCode]; !ok {
		return nil, ErrMissingHeader
	}
	for _, code := range m.order {
		m.segments[code] = newSegment(code, groups[code], d, reg)
	}
	id, err := controlID(m.segments[HeaderCode])
	if err != nil {
		return nil, err
	}
	m.controlID = id
	return m, nil
}

// ParseString parses with the default delimiters and built-in registry.
func ParseString(text string) (*Message, error) {
	return Parse(text, DefaultDelimiters(), DefaultRegistry())
}

func splitLines(text string) []string {
	raw := strings.Split(lineBreaks.Replace(text), "\n")
	lines := raw[:0]
	for _, line := range raw {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func classify(line string, d Delimiters) (code, body string) {
	token, body, _ := strings.Cut(line, string(d.Field))
	if headerToken.MatchString(token) {
		return HeaderCode, body
	}
	return strings.ToUpper(strings.TrimSpace(token)), body
}

func controlID(header *Segment) (string, error) {
	pos := 9
	if header.table != nil {
		if p, ok := header.table.Index("message_control_id"); ok {
			pos = p
		}
	}
	f := header.Field(pos)
	if f == nil || strings.TrimSpace(f.String()) == "" {
		return "", ErrMissingControlID
	}
	return f.String(), nil
}

// Text returns the input exactly as it was given to Parse.
func (m *Message) Text() string {
	return m.text
}

func (m *Message) String() string {
	return m.text
}

func (m *Message) ControlID() string {
	return m.controlID
}

func (m *Message) Delimiters() Delimiters {
	return m.delims
}

// LineTypes lists the type of every physical line, repeats included.
func (m *Message) LineTypes() []string {
	out := make([]string, len(m.lineTypes))
	copy(out, m.lineTypes)
	return out
}

// SegmentTypes lists each distinct type once, in order of first appearance.
func (m *Message) SegmentTypes() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Segment returns the segment for code. Absence is not an error.
func (m *Message) Segment(code string) (*Segment, bool) {
	s, ok := m.segments[strings.ToUpper(code)]
	return s, ok
}

// Segments returns the segments in first-appearance order.
func (m *Message) Segments() []*Segment {
	out := make([]*Segment, 0, len(m.order))
	for _, code := range m.order {
		out = append(out, m.segments[code])
	}
	return out
}

func (m *Message) Header() *Segment {
	return m.segments[HeaderCode]
}

// MessageType joins the message code and trigger event, e.g. "ADT^A01".
func (m *Message) MessageType() string {
	h := m.Header()
	pos := 8
	if p, err := h.Position("message_type"); err == nil {
		pos = p
	}
	f := h.Field(pos)
	if f == nil {
		return ""
	}
	code, _ := f.Component(1)
	event, ok := f.Component(2)
	if !ok || event == "" {
		return code
	}
	return code + string(m.delims.Component) + event
}

// Equal reports whether both messages parsed to the same structure.
func (m *Message) Equal(other *Message) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.text != other.text || m.controlID != other.controlID || m.delims != other.delims {
		return false
	}
	if strings.Join(m.lineTypes, "\n") != strings.Join(other.lineTypes, "\n") ||
		strings.Join(m.order, "\n") != strings.Join(other.order, "\n") {
		return false
	}
	for _, code := range m.order {
		if !m.segments[code].Equal(other.segments[code]) {
			return false
		}
	}
	return true
}
