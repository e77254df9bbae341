package hl7adapter

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/oarkflow/log"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/oarkflow/hl7/pkg/contracts"
	"github.com/oarkflow/hl7/pkg/hl7"
	"github.com/oarkflow/hl7/pkg/utils"
)

// MLLP framing bytes: start block, end block.
const (
	mllpStart = 0x0b
	mllpEnd   = 0x1c
)

// FileSourceOption customizes HL7 file source behaviour.
type FileSourceOption func(*FileSource)

// WithBlankLineSplit toggles whether blank lines delimit messages.
func WithBlankLineSplit(enabled bool) FileSourceOption {
	return func(fs *FileSource) {
		fs.splitOnBlankLine = enabled
	}
}

// WithEncoding sets the charset used for lines that are not valid UTF-8.
// Supported names are windows-1252, iso-8859-1 and utf-8.
func WithEncoding(name string) FileSourceOption {
	return func(fs *FileSource) {
		fs.encoding = name
	}
}

// FileSource streams HL7 messages from a file, emitting full messages per record.
// A message starts at every header line; MLLP framing bytes are dropped.
type FileSource struct {
	path             string
	splitOnBlankLine bool
	encoding         string
	reader           io.Reader

	mu  sync.Mutex
	err error
}

func NewFileSource(path string, opts ...FileSourceOption) *FileSource {
	fs := &FileSource{
		path:     path,
		encoding: "windows-1252",
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// NewReaderSource reads messages from r instead of a file, e.g. stdin.
func NewReaderSource(name string, r io.Reader, opts ...FileSourceOption) *FileSource {
	fs := NewFileSource(name, opts...)
	fs.reader = r
	return fs
}

// Setup validates the source file exists and the encoding is known.
func (fs *FileSource) Setup(_ context.Context) error {
	if _, err := decoderFor(fs.encoding); err != nil {
		return err
	}
	if fs.reader != nil {
		return nil
	}
	if fs.path == "" {
		return fmt.Errorf("hl7 file source: path is empty")
	}
	_, err := os.Stat(fs.path)
	return err
}

func decoderFor(name string) (*encoding.Decoder, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "", "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "utf-8", "utf8":
		return nil, nil
	}
	return nil, fmt.Errorf("hl7 file source: unsupported encoding %q", name)
}

// Extract streams HL7 messages as utils.Record objects.
func (fs *FileSource) Extract(ctx context.Context, opts ...contracts.Option) (<-chan utils.Record, error) {
	options := contracts.ApplyOptions(opts...)
	dec, err := decoderFor(fs.encoding)
	if err != nil {
		return nil, err
	}
	var r io.ReadCloser
	if fs.reader != nil {
		r = io.NopCloser(fs.reader)
	} else {
		file, err := os.Open(fs.path)
		if err != nil {
			return nil, err
		}
		r = file
	}

	out := make(chan utils.Record)
	fs.setErr(nil)
	go func() {
		defer close(out)
		defer r.Close()

		lines := newLineReader(r)
		var builder strings.Builder
		index := 0
		stopped := false

		flush := func() {
			if builder.Len() == 0 || stopped {
				builder.Reset()
				return
			}
			message := builder.String()
			builder.Reset()
			if options.Limit > 0 && index >= options.Limit {
				stopped = true
				return
			}
			select {
			case <-ctx.Done():
				stopped = true
			case out <- utils.Record{
				"raw_message":   message,
				"source_path":   fs.path,
				"message_index": index,
			}:
				index++
			}
		}

		for !stopped {
			raw, err := lines.next()
			if err == io.EOF {
				break
			}
			if err != nil {
				// The pending message may be cut short; it is never emitted.
				err = fmt.Errorf("hl7 file source: read %s after %d messages: %w", fs.path, index, err)
				log.Printf("%v", err)
				fs.setErr(err)
				return
			}
			line := normalizeLine(raw, dec)
			if strings.TrimSpace(line) == "" {
				if fs.splitOnBlankLine {
					flush()
				}
				continue
			}
			if hl7.IsHeaderLine(line) {
				flush()
			}
			if builder.Len() > 0 {
				builder.WriteString("\r")
			}
			builder.WriteString(line)
		}
		flush()
	}()

	return out, nil
}

// Err reports the read error that ended the last Extract early, if any. It
// is valid once the record channel is closed.
func (fs *FileSource) Err() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.err
}

func (fs *FileSource) setErr(err error) {
	fs.mu.Lock()
	fs.err = err
	fs.mu.Unlock()
}

// Close implements contracts.Source.
func (fs *FileSource) Close() error {
	return nil
}

// lineReader splits input on \r, \n or \r\n. Lines have no length limit, so
// a segment carrying an embedded document is read whole.
type lineReader struct {
	r *bufio.Reader
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// next returns the following line without its terminator, or io.EOF once
// the input is exhausted.
func (lr *lineReader) next() ([]byte, error) {
	var line []byte
	for {
		if _, err := lr.r.Peek(1); err != nil {
			if err == io.EOF && len(line) > 0 {
				return line, nil
			}
			return nil, err
		}
		buf, _ := lr.r.Peek(lr.r.Buffered())
		i := bytes.IndexAny(buf, "\r\n")
		if i < 0 {
			line = append(line, buf...)
			_, _ = lr.r.Discard(len(buf))
			continue
		}
		line = append(line, buf[:i]...)
		_, _ = lr.r.Discard(i + 1)
		if buf[i] == '\r' {
			if next, err := lr.r.Peek(1); err == nil && next[0] == '\n' {
				_, _ = lr.r.Discard(1)
			}
		}
		if line == nil {
			line = []byte{}
		}
		return line, nil
	}
}

func normalizeLine(raw []byte, dec *encoding.Decoder) string {
	line := make([]byte, 0, len(raw))
	for _, b := range raw {
		if b != mllpStart && b != mllpEnd {
			line = append(line, b)
		}
	}
	if dec != nil && !utf8.Valid(line) {
		if decoded, err := dec.Bytes(line); err == nil {
			return string(decoded)
		}
		return string(bytes.ToValidUTF8(line, []byte("�")))
	}
	return string(line)
}

var (
	_ contracts.Source        = (*FileSource)(nil)
	_ contracts.ErrorReporter = (*FileSource)(nil)
)
