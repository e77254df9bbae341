package parsers

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/oarkflow/hl7/pkg/hl7"
)

// MessageParser is satisfied by *hl7.Parser and by caches that wrap one.
type MessageParser interface {
	Parse(text string) (*hl7.Message, error)
}

// HL7Parser adapts the hl7 engine to the Parser interface and renders
// parsed messages as documents.
type HL7Parser struct {
	engine MessageParser
}

// NewHL7Parser creates a parser using the built-in registry and default
// delimiters unless options say otherwise.
func NewHL7Parser(opts ...hl7.Option) *HL7Parser {
	return &HL7Parser{engine: hl7.NewParser(opts...)}
}

// NewHL7ParserWith wraps an existing engine, typically a cache.
func NewHL7ParserWith(engine MessageParser) *HL7Parser {
	return &HL7Parser{engine: engine}
}

func (p *HL7Parser) Name() string {
	return "HL7"
}

// Detect checks whether the first non-blank line is a message header.
func (p *HL7Parser) Detect(data []byte) bool {
	data = bytes.TrimLeft(data, "\x0b \t\r\n")
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		data = data[:i]
	}
	return hl7.IsHeaderLine(string(data))
}

// Parse returns a *hl7.Message.
func (p *HL7Parser) Parse(data []byte) (any, error) {
	return p.ParseMessage(Unframe(data))
}

func (p *HL7Parser) ParseMessage(message string) (*hl7.Message, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("empty HL7 message")
	}
	return p.engine.Parse(message)
}

// ParseDocument parses the message and builds its document view.
func (p *HL7Parser) ParseDocument(message string) (*Document, error) {
	msg, err := p.ParseMessage(message)
	if err != nil {
		return nil, err
	}
	return NewDocument(msg), nil
}

// ToJSON renders an HL7 message directly to JSON bytes.
func (p *HL7Parser) ToJSON(message string) ([]byte, error) {
	doc, err := p.ParseDocument(message)
	if err != nil {
		return nil, err
	}
	return doc.JSON()
}

// ToXML renders an HL7 message to XML bytes.
func (p *HL7Parser) ToXML(message string) ([]byte, error) {
	doc, err := p.ParseDocument(message)
	if err != nil {
		return nil, err
	}
	return doc.XML()
}

func (p *HL7Parser) ToMsgPack(message string) ([]byte, error) {
	doc, err := p.ParseDocument(message)
	if err != nil {
		return nil, err
	}
	return doc.MsgPack()
}

// Render encodes doc in the named format: json, xml or msgpack.
func Render(doc *Document, format string) ([]byte, string, error) {
	switch strings.ToLower(format) {
	case "", "json":
		data, err := doc.JSON()
		return data, "application/json", err
	case "xml":
		data, err := doc.XML()
		return data, "application/xml", err
	case "msgpack":
		data, err := doc.MsgPack()
		return data, "application/msgpack", err
	}
	return nil, "", fmt.Errorf("unsupported render format %q", format)
}
