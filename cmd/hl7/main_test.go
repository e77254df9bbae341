package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"testing/iotest"

	"github.com/fatih/color"

	"github.com/oarkflow/hl7/pkg/parsers"
)

const input = "MSH|^~\\&|LAB|HOSP|EHR|HOSP|20240102083000||ORU^R01|LAB1|P|2.5\r\n" +
	"PID|1||100||DOE^JANE\r\n" +
	"OBX|1|NM|GLU||5.4|mmol/L\r\n" +
	"OBX|2|NM|NA||140|mmol/L\r\n" +
	"MSH|^~\\&|LAB|HOSP|EHR|HOSP|20240102083000||ORU^R01|LAB2|P|2.5\r\n" +
	"PID|1||200||ROE^RICHARD\r\n"

func init() {
	color.NoColor = true
}

func read(t *testing.T, text string) []parsed {
	t.Helper()
	messages, err := readMessages(context.Background(), "test", strings.NewReader(text), parsers.NewHL7Parser())
	if err != nil {
		t.Fatalf("readMessages returned error: %v", err)
	}
	return messages
}

func TestWriteInspect(t *testing.T) {
	var buf bytes.Buffer
	if err := writeInspect(&buf, read(t, input)); err != nil {
		t.Fatalf("writeInspect returned error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"#1  LAB1  ORU^R01  2024-01-02 08:30:00", "OBX  x2  typed", "#2  LAB2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestWriteInspectReportsFailures(t *testing.T) {
	var buf bytes.Buffer
	messages := read(t, "MSH|^~\\&|A|B|C|D|20240101||ADT^A01||P|2.5\r\n")
	if err := writeInspect(&buf, messages); err == nil {
		t.Fatalf("expected error for unparseable message")
	}
	if !strings.Contains(buf.String(), "MISSING_CONTROL_ID") {
		t.Fatalf("expected error code in output, got %q", buf.String())
	}
}

func TestWriteValues(t *testing.T) {
	var buf bytes.Buffer
	if err := writeValues(&buf, read(t, input), []string{"PID.patient_name.1", "OBX(*).5"}); err != nil {
		t.Fatalf("writeValues returned error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "LAB1\tPID.patient_name.1\tDOE\n") || !strings.Contains(out, "LAB1\tOBX(*).5\t5.4~140\n") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "LAB2\tOBX(*).5\t\n") {
		t.Fatalf("absent segment should print an empty value:\n%s", out)
	}
}

func TestWriteConverted(t *testing.T) {
	var buf bytes.Buffer
	if err := writeConverted(&buf, read(t, input), "xml"); err != nil {
		t.Fatalf("writeConverted returned error: %v", err)
	}
	if strings.Count(buf.String(), "<HL7Message") != 2 {
		t.Fatalf("expected two XML documents:\n%s", buf.String())
	}
	if err := writeConverted(&buf, read(t, input), "csv"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestReadMessagesFailsOnTruncatedInput(t *testing.T) {
	failure := errors.New("stdin closed")
	in := io.MultiReader(strings.NewReader(input), iotest.ErrReader(failure))
	if _, err := readMessages(context.Background(), "test", in, parsers.NewHL7Parser()); !errors.Is(err, failure) {
		t.Fatalf("expected the read error, got %v", err)
	}
}

func TestScheduledRunsDoNotOverlap(t *testing.T) {
	var runs atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	scheduler, err := newScheduler("@every 1h", func() {
		runs.Add(1)
		close(started)
		<-release
	})
	if err != nil {
		t.Fatalf("newScheduler returned error: %v", err)
	}
	entries := scheduler.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected one scheduled job, got %d", len(entries))
	}
	job := entries[0].WrappedJob
	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	<-started
	job.Run()
	close(release)
	<-done
	if n := runs.Load(); n != 1 {
		t.Fatalf("expected the overlapping tick to be skipped, got %d runs", n)
	}
	if _, err := newScheduler("not a schedule", func() {}); err == nil {
		t.Fatalf("expected invalid schedule error")
	}
}
