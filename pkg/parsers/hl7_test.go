package parsers

import (
	"strings"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/oarkflow/hl7/pkg/hl7"
)

const sampleHL7Message = "MSH|^~\\&|SENDING|FACILITY|RECEIVER|RECEIVER|20220301120000||ADT^A01|MSG0001|P|2.5\r" +
	"PID|1||123456^^^HOSP^MR||DOE^JANE||19800101|F|||123 MAIN ST^^CITY^ST^12345||5551234567|||S" +
	"\rPV1|1|I|WARD^101^1^^HOSP||||1234^PHYSICIAN^PRIMARY||SUR|||||||1234567" +
	"\rZPI|custom|value"

func TestParseDocumentFields(t *testing.T) {
	parser := NewHL7Parser()
	doc, err := parser.ParseDocument(sampleHL7Message)
	if err != nil {
		t.Fatalf("ParseDocument returned error: %v", err)
	}
	if doc.MessageType != "ADT^A01" || doc.ControlID != "MSG0001" {
		t.Fatalf("unexpected header values %q %q", doc.MessageType, doc.ControlID)
	}
	if !doc.Timestamp.Equal(time.Date(2022, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %v", doc.Timestamp)
	}
	msh := doc.Segments["MSH"]
	if len(msh) != 1 || msh[0]["sending_application"] != "SENDING" {
		t.Fatalf("expected friendly field names in MSH, got: %#v", msh)
	}
	name, ok := doc.Segments["PID"][0]["patient_name"].([]string)
	if !ok || name[0] != "DOE" || name[1] != "JANE" {
		t.Fatalf("expected component list for patient_name, got %#v", doc.Segments["PID"][0]["patient_name"])
	}
	if doc.Segments["ZPI"][0]["2"] != "value" {
		t.Fatalf("generic segments are keyed by position, got %#v", doc.Segments["ZPI"][0])
	}
	if strings.Join(doc.SegmentOrder(), ",") != "MSH,PID,PV1,ZPI" {
		t.Fatalf("unexpected order %v", doc.SegmentOrder())
	}
}

func TestToJSONAndToXML(t *testing.T) {
	parser := NewHL7Parser()
	jsonPayload, err := parser.ToJSON(sampleHL7Message)
	if err != nil {
		t.Fatalf("ToJSON error: %v", err)
	}
	if !strings.Contains(string(jsonPayload), "\"sending_application\"") {
		t.Fatalf("JSON payload missing friendly field names: %s", string(jsonPayload))
	}

	xmlPayload, err := parser.ToXML(sampleHL7Message)
	if err != nil {
		t.Fatalf("ToXML error: %v", err)
	}
	xmlText := string(xmlPayload)
	for _, want := range []string{"<MSH>", "<PID>", "<Component1>DOE</Component1>", "<Field2>value</Field2>", `controlId="MSG0001"`} {
		if !strings.Contains(xmlText, want) {
			t.Fatalf("XML payload missing %s: %s", want, xmlText)
		}
	}
	if strings.Index(xmlText, "<PID>") > strings.Index(xmlText, "<PV1>") {
		t.Fatalf("XML segments must follow message order")
	}
}

func TestToMsgPack(t *testing.T) {
	parser := NewHL7Parser()
	payload, err := parser.ToMsgPack(sampleHL7Message)
	if err != nil {
		t.Fatalf("ToMsgPack error: %v", err)
	}
	var decoded map[string]any
	if err := msgpack.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("msgpack decode: %v", err)
	}
	if decoded["control_id"] != "MSG0001" {
		t.Fatalf("unexpected control id %#v", decoded["control_id"])
	}
}

func TestDetect(t *testing.T) {
	hl7Parser := NewHL7Parser()
	jsonParser := NewJSONParser()
	plain := NewPlainTextParser()

	cases := map[string]string{
		"\x0b12MSH|^~\\&|A\r":    "HL7",
		`{"message":"MSH|..."}`: "JSON",
		"hello":                 "PlainText",
	}
	for input, want := range cases {
		p, err := Detect([]byte(input), hl7Parser, jsonParser, plain)
		if err != nil {
			t.Fatalf("%q: Detect returned error: %v", input, err)
		}
		if p.Name() != want {
			t.Fatalf("%q: detected %s want %s", input, p.Name(), want)
		}
	}
	if _, err := Detect([]byte("hello"), hl7Parser, jsonParser); err == nil {
		t.Fatalf("expected no parser for plain text")
	}
}

func TestUnframe(t *testing.T) {
	for in, want := range map[string]string{
		"\x0bMSH|^~\\&|A\r\x1c\r": "MSH|^~\\&|A\r",
		"\r\n\x0bMSH|A\x1c":       "MSH|A",
		"MSH|A\r":                 "MSH|A\r",
		"OBX|1|ED|\x0b":           "OBX|1|ED|\x0b",
	} {
		if got := Unframe([]byte(in)); got != want {
			t.Fatalf("Unframe(%q) = %q, want %q", in, got, want)
		}
	}
	msg, err := NewHL7Parser().Parse([]byte("\x0bMSH|^~\\&|A|B|C|D|20240101||ADT^A01|F1|P|2.5\r\x1c\r"))
	if err != nil {
		t.Fatalf("Parse returned error for framed input: %v", err)
	}
	if id := msg.(*hl7.Message).ControlID(); id != "F1" {
		t.Fatalf("unexpected control id %q", id)
	}
}

func TestParseMissingHeader(t *testing.T) {
	_, err := NewHL7Parser().ParseDocument("PID|1||123")
	if hl7.CodeOf(err) != hl7.ErrCodeMissingHeader {
		t.Fatalf("expected missing header, got %v", err)
	}
}

func TestEnvelope(t *testing.T) {
	env, err := NewJSONParser().ParseEnvelope([]byte(`{"message":"MSH|x","selectors":["PID.3"]}`))
	if err != nil {
		t.Fatalf("ParseEnvelope returned error: %v", err)
	}
	if env.Message != "MSH|x" || len(env.Selectors) != 1 {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if _, err := NewJSONParser().ParseEnvelope([]byte(`{}`)); err == nil {
		t.Fatalf("expected error for empty envelope")
	}
}

func TestRender(t *testing.T) {
	doc, err := NewHL7Parser().ParseDocument(sampleHL7Message)
	if err != nil {
		t.Fatalf("ParseDocument returned error: %v", err)
	}
	if _, ct, err := Render(doc, "xml"); err != nil || ct != "application/xml" {
		t.Fatalf("Render xml: %q %v", ct, err)
	}
	if _, _, err := Render(doc, "yaml"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}
