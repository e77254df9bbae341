package hl7adapter

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/oarkflow/hl7/pkg/contracts"
	"github.com/oarkflow/hl7/pkg/utils"
)

func collect(t *testing.T, fs *FileSource, opts ...contracts.Option) []utils.Record {
	t.Helper()
	if err := fs.Setup(context.Background()); err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}
	ch, err := fs.Extract(context.Background(), opts...)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	var out []utils.Record
	for rec := range ch {
		out = append(out, rec)
	}
	return out
}

func TestFileSourceSplitsOnHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.hl7")
	content := "MSH|^~\\&|A|B|C|D|20240101||ADT^A01|1|P|2.5\r\nPID|1\r\n" +
		"\x0b12MSH|^~\\&|A|B|C|D|20240101||ADT^A01|2|P|2.5\rPID|2\r\x1c\r" +
		"MSH|^~\\&|A|B|C|D|20240101||ADT^A01|3|P|2.5\nPID|3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	records := collect(t, NewFileSource(path))
	if len(records) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(records))
	}
	second := records[1]["raw_message"].(string)
	if second != "12MSH|^~\\&|A|B|C|D|20240101||ADT^A01|2|P|2.5\rPID|2" {
		t.Fatalf("unexpected second message %q", second)
	}
	if records[2]["message_index"] != 2 || records[2]["source_path"] != path {
		t.Fatalf("unexpected metadata %#v", records[2])
	}
}

func TestFileSourceDecodesWindows1252(t *testing.T) {
	msg := "MSH|^~\\&|A|B|C|D|20240101||ADT^A01|1|P|2.5\rPID|1||||M\xfcller^J\xe9r\xf4me\r"
	records := collect(t, NewReaderSource("stdin", strings.NewReader(msg)))
	if len(records) != 1 {
		t.Fatalf("expected 1 message, got %d", len(records))
	}
	raw := records[0]["raw_message"].(string)
	if !strings.Contains(raw, "Müller^Jérôme") {
		t.Fatalf("expected decoded name, got %q", raw)
	}
}

func TestFileSourceLimitAndBlankLines(t *testing.T) {
	msg := "MSH|^~\\&|A|B|C|D|20240101||ADT^A01|1|P|2.5\rPID|1\r\r\rEVN|A01\r" +
		"MSH|^~\\&|A|B|C|D|20240101||ADT^A01|2|P|2.5\rPID|2\r"
	records := collect(t, NewReaderSource("mem", strings.NewReader(msg), WithBlankLineSplit(true)), contracts.WithLimit(2))
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[1]["raw_message"] != "EVN|A01" {
		t.Fatalf("blank line must split messages, got %q", records[1]["raw_message"])
	}
}

func TestFileSourceSetupErrors(t *testing.T) {
	if err := NewFileSource("").Setup(context.Background()); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if err := NewFileSource(filepath.Join(t.TempDir(), "missing.hl7")).Setup(context.Background()); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if err := NewReaderSource("x", strings.NewReader(""), WithEncoding("ebcdic")).Setup(context.Background()); err == nil {
		t.Fatalf("expected unsupported encoding error")
	}
}

func TestFileSourceReadsLinesLongerThanFourMegabytes(t *testing.T) {
	pdf := strings.Repeat("JVBERi0xLjQK", 5*1024*1024/12+1)
	obx := "OBX|1|ED|PDF^Report||^AP^PDF^Base64^" + pdf
	input := "MSH|^~\\&|A|B|C|D|20240101||ORU^R01|1|P|2.5\r\nPID|1\r\n" + obx + "\r\n" +
		"MSH|^~\\&|A|B|C|D|20240101||ORU^R01|2|P|2.5\r\nPID|2\r\n"
	src := NewReaderSource("mem", strings.NewReader(input))
	records := collect(t, src)
	if err := src.Err(); err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(records))
	}
	first := records[0]["raw_message"].(string)
	if !strings.HasSuffix(first, "\r"+obx) {
		t.Fatalf("first message lost its OBX line, length %d", len(first))
	}
	if !strings.HasPrefix(records[1]["raw_message"].(string), "MSH|^~\\&|A|B|C|D|20240101||ORU^R01|2|") {
		t.Fatalf("unexpected second message %q", records[1]["raw_message"])
	}
}

func TestFileSourceReportsReadErrors(t *testing.T) {
	failure := errors.New("disk detached")
	input := io.MultiReader(
		strings.NewReader("MSH|^~\\&|A|B|C|D|20240101||ADT^A01|1|P|2.5\rPID|1\r"+
			"MSH|^~\\&|A|B|C|D|20240101||ADT^A01|2|P|2.5\rPID|"),
		iotest.ErrReader(failure),
	)
	src := NewReaderSource("mem", input)
	records := collect(t, src)
	if len(records) != 1 || records[0]["raw_message"] != "MSH|^~\\&|A|B|C|D|20240101||ADT^A01|1|P|2.5\rPID|1" {
		t.Fatalf("only the complete message may be emitted, got %#v", records)
	}
	if err := src.Err(); !errors.Is(err, failure) {
		t.Fatalf("expected read error to be reported, got %v", err)
	}
}

func TestLineReaderTerminators(t *testing.T) {
	lr := newLineReader(strings.NewReader("a\rb\nc\r\n\rd"))
	var got []string
	for {
		line, err := lr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next returned error: %v", err)
		}
		got = append(got, string(line))
	}
	if strings.Join(got, ",") != "a,b,c,,d" {
		t.Fatalf("unexpected lines %q", got)
	}
}
