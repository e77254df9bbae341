package transformers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oarkflow/date"

	"github.com/oarkflow/hl7/pkg/contracts"
	"github.com/oarkflow/hl7/pkg/hl7"
	"github.com/oarkflow/hl7/pkg/parsers"
	"github.com/oarkflow/hl7/pkg/utils"
)

// HL7TransformerOptions controls how HL7 transformations populate records.
// Empty input, control id, message type, timestamp and line type names fall
// back to their hl7_* defaults. SegmentsField is the only optional output:
// left empty, the segment document is not written.
type HL7TransformerOptions struct {
	InputField       string
	ControlIDField   string
	MessageTypeField string
	TimestampField   string
	LineTypesField   string
	SegmentsField    string
	// Fields maps output field names to selectors such as "PID.patient_name.1".
	Fields map[string]string
	// Parser overrides the default engine, typically with a cache.
	Parser parsers.MessageParser
}

type selectorField struct {
	name     string
	selector hl7.Selector
}

// HL7Transformer parses the raw message of a record and writes header
// metadata and selected field values back into it.
type HL7Transformer struct {
	parser *parsers.HL7Parser
	opts   HL7TransformerOptions
	fields []selectorField
}

// NewHL7Transformer builds a transformer with sane defaults.
func NewHL7Transformer(opts HL7TransformerOptions) (*HL7Transformer, error) {
	if opts.InputField == "" {
		opts.InputField = "raw_message"
	}
	if opts.ControlIDField == "" {
		opts.ControlIDField = "hl7_control_id"
	}
	if opts.MessageTypeField == "" {
		opts.MessageTypeField = "hl7_message_type"
	}
	if opts.TimestampField == "" {
		opts.TimestampField = "hl7_timestamp"
	}
	if opts.LineTypesField == "" {
		opts.LineTypesField = "hl7_line_types"
	}
	t := &HL7Transformer{opts: opts}
	if opts.Parser != nil {
		t.parser = parsers.NewHL7ParserWith(opts.Parser)
	} else {
		t.parser = parsers.NewHL7Parser()
	}
	names := make([]string, 0, len(opts.Fields))
	for name := range opts.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sel, err := hl7.ParseSelector(opts.Fields[name])
		if err != nil {
			return nil, fmt.Errorf("hl7 transformer: field %s: %w", name, err)
		}
		t.fields = append(t.fields, selectorField{name: name, selector: sel})
	}
	return t, nil
}

func (t *HL7Transformer) Name() string {
	return "HL7Transformer"
}

// Transform parses the HL7 message stored in InputField and enriches a copy
// of the record.
func (t *HL7Transformer) Transform(_ context.Context, rec utils.Record) (utils.Record, error) {
	rawMessage, ok := utils.GetString(rec, t.opts.InputField)
	if !ok {
		return rec, fmt.Errorf("hl7 transformer: missing input field %s", t.opts.InputField)
	}
	if strings.TrimSpace(rawMessage) == "" {
		return rec, fmt.Errorf("hl7 transformer: input field %s is empty", t.opts.InputField)
	}
	msg, err := t.parser.ParseMessage(rawMessage)
	if err != nil {
		return rec, fmt.Errorf("hl7 transformer: %w", err)
	}

	out := utils.CloneRecord(rec)
	out[t.opts.ControlIDField] = msg.ControlID()
	out[t.opts.MessageTypeField] = msg.MessageType()
	out[t.opts.LineTypesField] = msg.LineTypes()
	if ts, ok := messageTime(msg); ok {
		out[t.opts.TimestampField] = ts.Format(time.RFC3339)
	}
	if t.opts.SegmentsField != "" {
		out[t.opts.SegmentsField] = parsers.NewDocument(msg).Segments
	}
	for _, f := range t.fields {
		value, err := selectValue(msg, f.selector)
		if err != nil {
			return rec, fmt.Errorf("hl7 transformer: field %s: %w", f.name, err)
		}
		out[f.name] = value
	}
	return out, nil
}

// messageTime reads MSH-7, falling back to free-form dates some feeds send.
func messageTime(msg *hl7.Message) (time.Time, bool) {
	f, err := msg.Header().FieldNamed("date_time_of_message")
	if err != nil {
		f = msg.Header().Field(6)
	}
	if f == nil {
		return time.Time{}, false
	}
	if ts, err := f.AsTimestamp(); err == nil {
		return ts, true
	}
	if ts, err := date.Parse(f.String()); err == nil {
		return ts, true
	}
	return time.Time{}, false
}

// selectValue returns a string for single selections and a list when the
// selector spans every occurrence.
func selectValue(msg *hl7.Message, sel hl7.Selector) (any, error) {
	fields, err := msg.Select(sel)
	if err != nil {
		return nil, err
	}
	values := make([]string, len(fields))
	for i, f := range fields {
		if sel.Component > 0 {
			values[i], _ = f.Component(sel.Component)
		} else {
			values[i] = f.String()
		}
	}
	if sel.Occurrence == hl7.AllOccurrences {
		return values, nil
	}
	if len(values) == 0 {
		return "", nil
	}
	return values[0], nil
}

var _ contracts.Transformer = (*HL7Transformer)(nil)
