package parsers

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/oarkflow/json"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/oarkflow/hl7/pkg/hl7"
)

// Document is a render-friendly view of a parsed message. Each segment maps
// to one entry per occurrence; fields are keyed by name for typed segments
// and by position otherwise. Multi-component fields become string lists.
type Document struct {
	MessageType string                      `json:"message_type" msgpack:"message_type"`
	ControlID   string                      `json:"control_id" msgpack:"control_id"`
	Timestamp   time.Time                   `json:"timestamp" msgpack:"timestamp"`
	LineTypes   []string                    `json:"line_types" msgpack:"line_types"`
	Segments    map[string][]map[string]any `json:"segments" msgpack:"segments"`

	order []string
}

func NewDocument(msg *hl7.Message) *Document {
	doc := &Document{
		MessageType: msg.MessageType(),
		ControlID:   msg.ControlID(),
		LineTypes:   msg.LineTypes(),
		Segments:    make(map[string][]map[string]any),
		order:       msg.SegmentTypes(),
	}
	header := msg.Header()
	stamp := header.Field(6)
	if f, err := header.FieldNamed("date_time_of_message"); err == nil {
		stamp = f
	}
	if ts, err := stamp.AsTimestamp(); err == nil {
		doc.Timestamp = ts
	}
	for _, seg := range msg.Segments() {
		entries := make([]map[string]any, seg.Occurrences())
		for line := range entries {
			entries[line] = segmentEntry(seg, line)
		}
		doc.Segments[seg.Code()] = entries
	}
	return doc
}

func segmentEntry(seg *hl7.Segment, line int) map[string]any {
	table := seg.Table()
	entry := make(map[string]any, seg.FieldCount(line))
	for pos := 1; pos <= seg.FieldCount(line); pos++ {
		f := seg.FieldAt(line, pos)
		if f == nil {
			continue
		}
		key := table.Name(pos)
		if key == "" {
			key = strconv.Itoa(pos)
		}
		if comps := f.Components(); len(comps) > 1 {
			entry[key] = comps
		} else {
			entry[key] = f.String()
		}
	}
	return entry
}

// SegmentOrder lists segment codes in first-appearance order.
func (d *Document) SegmentOrder() []string {
	if len(d.order) == 0 {
		codes := make([]string, 0, len(d.Segments))
		for code := range d.Segments {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		return codes
	}
	return d.order
}

// Map returns the document as generic JSON data, suitable for path lookups.
func (d *Document) Map() (map[string]any, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Document) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal HL7 JSON: %w", err)
	}
	return data, nil
}

func (d *Document) MsgPack() ([]byte, error) {
	data, err := msgpack.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal HL7 msgpack: %w", err)
	}
	return data, nil
}

// XML renders segments in message order under an HL7Message root.
func (d *Document) XML() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteString(xml.Header)
	encoder := xml.NewEncoder(buf)
	encoder.Indent("", "  ")

	root := xml.StartElement{Name: xml.Name{Local: "HL7Message"}}
	if d.ControlID != "" {
		root.Attr = append(root.Attr, xml.Attr{Name: xml.Name{Local: "controlId"}, Value: d.ControlID})
	}
	if d.MessageType != "" {
		root.Attr = append(root.Attr, xml.Attr{Name: xml.Name{Local: "type"}, Value: d.MessageType})
	}
	if err := encoder.EncodeToken(root); err != nil {
		return nil, err
	}
	for _, code := range d.SegmentOrder() {
		for _, entry := range d.Segments[code] {
			if err := encodeSegment(encoder, code, entry); err != nil {
				return nil, fmt.Errorf("failed to build HL7 XML: %w", err)
			}
		}
	}
	if err := encoder.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := encoder.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeSegment(encoder *xml.Encoder, name string, fields map[string]any) error {
	start := xml.StartElement{Name: xml.Name{Local: sanitizeXMLName(name)}}
	if err := encoder.EncodeToken(start); err != nil {
		return err
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return fieldKeyLess(keys[i], keys[j]) })

	for _, key := range keys {
		fieldName := key
		if _, err := strconv.Atoi(key); err == nil {
			fieldName = "Field" + key
		}
		if err := encodeValue(encoder, fieldName, fields[key]); err != nil {
			return err
		}
	}
	return encoder.EncodeToken(start.End())
}

// fieldKeyLess orders positional keys numerically and after named ones.
func fieldKeyLess(a, b string) bool {
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	switch {
	case aErr == nil && bErr == nil:
		return ai < bi
	case aErr == nil:
		return false
	case bErr == nil:
		return true
	}
	return a < b
}

func encodeValue(encoder *xml.Encoder, name string, value any) error {
	switch v := value.(type) {
	case string:
		return encodeSimpleElement(encoder, name, v)
	case []string:
		start := xml.StartElement{Name: xml.Name{Local: sanitizeXMLName(name)}}
		if err := encoder.EncodeToken(start); err != nil {
			return err
		}
		for i, comp := range v {
			if comp == "" {
				continue
			}
			if err := encodeSimpleElement(encoder, fmt.Sprintf("Component%d", i+1), comp); err != nil {
				return err
			}
		}
		return encoder.EncodeToken(start.End())
	case nil:
		return nil
	default:
		return encodeSimpleElement(encoder, name, fmt.Sprintf("%v", v))
	}
}

func encodeSimpleElement(encoder *xml.Encoder, name, value string) error {
	start := xml.StartElement{Name: xml.Name{Local: sanitizeXMLName(name)}}
	if err := encoder.EncodeToken(start); err != nil {
		return err
	}
	if err := encoder.EncodeToken(xml.CharData([]byte(value))); err != nil {
		return err
	}
	return encoder.EncodeToken(start.End())
}

func sanitizeXMLName(name string) string {
	if name == "" {
		return "Field"
	}
	var builder strings.Builder
	runes := []rune(name)
	if !isXMLNameStart(runes[0]) {
		builder.WriteRune('_')
	}
	for _, r := range runes {
		if isXMLNameChar(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune('_')
		}
	}
	return builder.String()
}

func isXMLNameStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isXMLNameChar(r rune) bool {
	return isXMLNameStart(r) || unicode.IsDigit(r) || r == '-' || r == '.'
}
