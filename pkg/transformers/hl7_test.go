package transformers

import (
	"context"
	"strings"
	"testing"

	"github.com/oarkflow/hl7/pkg/config"
	"github.com/oarkflow/hl7/pkg/hl7"
	"github.com/oarkflow/hl7/pkg/utils"
)

const oruMessage = "MSH|^~\\&|LAB|HOSP|EHR|HOSP|20240102083000||ORU^R01|LAB42|P|2.5\r" +
	"PID|1||555^^^HOSP^MR||ROE^RICHARD\r" +
	"OBX|1|NM|GLU^Glucose||5.4|mmol/L\r" +
	"OBX|2|NM|NA^Sodium||140|mmol/L\r"

func TestHL7TransformerEnrichesRecord(t *testing.T) {
	tr, err := NewHL7Transformer(HL7TransformerOptions{
		Fields: map[string]string{
			"patient_last": "PID.patient_name.1",
			"results":      "OBX(*).observation_value",
			"missing":      "NK1.name",
		},
		SegmentsField: "segments",
	})
	if err != nil {
		t.Fatalf("NewHL7Transformer returned error: %v", err)
	}
	in := utils.Record{"raw_message": []byte(oruMessage), "source_path": "lab.hl7"}
	out, err := tr.Transform(context.Background(), in)
	if err != nil {
		t.Fatalf("Transform returned error: %v", err)
	}
	if out["hl7_control_id"] != "LAB42" || out["hl7_message_type"] != "ORU^R01" {
		t.Fatalf("unexpected header fields %#v", out)
	}
	if out["hl7_timestamp"] != "2024-01-02T08:30:00Z" {
		t.Fatalf("unexpected timestamp %#v", out["hl7_timestamp"])
	}
	if strings.Join(out["hl7_line_types"].([]string), ",") != "MSH,PID,OBX,OBX" {
		t.Fatalf("unexpected line types %#v", out["hl7_line_types"])
	}
	if out["patient_last"] != "ROE" || out["missing"] != "" {
		t.Fatalf("unexpected selected fields %#v", out)
	}
	if strings.Join(out["results"].([]string), ",") != "5.4,140" {
		t.Fatalf("unexpected results %#v", out["results"])
	}
	if _, ok := out["segments"]; !ok {
		t.Fatalf("expected segments output")
	}
	if _, ok := in["hl7_control_id"]; ok {
		t.Fatalf("input record must not be mutated")
	}
}

func TestHL7TransformerOutputNames(t *testing.T) {
	tr, err := NewHL7Transformer(HL7TransformerOptions{ControlIDField: "msg_id"})
	if err != nil {
		t.Fatalf("NewHL7Transformer returned error: %v", err)
	}
	out, err := tr.Transform(context.Background(), utils.Record{"raw_message": oruMessage})
	if err != nil {
		t.Fatalf("Transform returned error: %v", err)
	}
	if out["msg_id"] != "LAB42" || out["hl7_message_type"] != "ORU^R01" {
		t.Fatalf("custom and default output names expected, got %#v", out)
	}
	if _, ok := out["hl7_control_id"]; ok {
		t.Fatalf("renamed control id must not also use the default name")
	}
	if _, ok := out["segments"]; ok {
		t.Fatalf("segments are only written when SegmentsField is set")
	}
}

func TestHL7TransformerErrors(t *testing.T) {
	tr, err := NewHL7Transformer(HL7TransformerOptions{})
	if err != nil {
		t.Fatalf("NewHL7Transformer returned error: %v", err)
	}
	if _, err := tr.Transform(context.Background(), utils.Record{}); err == nil {
		t.Fatalf("expected missing input error")
	}
	if _, err := tr.Transform(context.Background(), utils.Record{"raw_message": "  "}); err == nil {
		t.Fatalf("expected empty input error")
	}
	_, err = tr.Transform(context.Background(), utils.Record{"raw_message": "PID|1"})
	if hl7.CodeOf(err) != hl7.ErrCodeMissingHeader {
		t.Fatalf("expected wrapped missing header error, got %v", err)
	}
	if _, err := NewHL7Transformer(HL7TransformerOptions{Fields: map[string]string{"x": "??"}}); err == nil {
		t.Fatalf("expected selector error")
	}
}

func TestFilterTransformer(t *testing.T) {
	f, err := NewFilterTransformer("oru-only", `hl7_message_type == "ORU^R01"`)
	if err != nil {
		t.Fatalf("NewFilterTransformer returned error: %v", err)
	}
	kept, err := f.Transform(context.Background(), utils.Record{"hl7_message_type": "ORU^R01"})
	if err != nil || kept == nil {
		t.Fatalf("expected record to pass, got %v %v", kept, err)
	}
	dropped, err := f.Transform(context.Background(), utils.Record{"hl7_message_type": "ADT^A01"})
	if err != nil || dropped != nil {
		t.Fatalf("expected record to be dropped, got %v %v", dropped, err)
	}
	if _, err := NewFilterTransformer("empty", ""); err == nil {
		t.Fatalf("expected error for empty condition")
	}
	if _, err := NewFilterTransformer("broken", `hl7_message_type ==`); err == nil {
		t.Fatalf("expected parse error at construction")
	}
}

func TestFilterTransformerErrorsNameTheMessage(t *testing.T) {
	f, err := NewFilterTransformer("type-only", `hl7_message_type`)
	if err != nil {
		t.Fatalf("NewFilterTransformer returned error: %v", err)
	}
	_, err = f.Transform(context.Background(), utils.Record{"hl7_control_id": "LAB42", "hl7_message_type": "ORU^R01"})
	if err == nil || !strings.Contains(err.Error(), "message LAB42") || !strings.Contains(err.Error(), "not a boolean") {
		t.Fatalf("expected non-boolean error naming LAB42, got %v", err)
	}
	_, err = f.Transform(context.Background(), utils.Record{"hl7_message_type": "ADT^A01", "source_path": "adt.hl7", "message_index": 3})
	if err == nil || !strings.Contains(err.Error(), "adt.hl7#3") {
		t.Fatalf("expected error naming the feed position, got %v", err)
	}
}

func TestBuildTransformers(t *testing.T) {
	cfg, err := config.LoadFromString("fields:\n  patient: PID.patient_name.1\nfilters:\n  - 'patient == \"ROE\"'\n", "yaml")
	if err != nil {
		t.Fatalf("LoadFromString returned error: %v", err)
	}
	list, err := BuildTransformers(cfg, nil)
	if err != nil {
		t.Fatalf("BuildTransformers returned error: %v", err)
	}
	if len(list) != 2 || list[0].Name() != "HL7Transformer" || list[1].Name() != "filter-1" {
		t.Fatalf("unexpected transformers %v", list)
	}
	rec := utils.Record{"raw_message": oruMessage}
	for _, tr := range list {
		rec, err = tr.Transform(context.Background(), rec)
		if err != nil {
			t.Fatalf("%s returned error: %v", tr.Name(), err)
		}
	}
	if rec == nil || rec["patient"] != "ROE" {
		t.Fatalf("expected record to survive the chain, got %#v", rec)
	}
}
