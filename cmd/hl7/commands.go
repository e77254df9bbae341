package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/oarkflow/hl7/pkg/adapters/hl7adapter"
	"github.com/oarkflow/hl7/pkg/hl7"
	"github.com/oarkflow/hl7/pkg/parsers"
	"github.com/oarkflow/hl7/pkg/pipeline"
	"github.com/oarkflow/hl7/pkg/utils"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	okColor     = color.New(color.FgGreen)
	errColor    = color.New(color.FgRed)
	dimColor    = color.New(color.Faint)
)

// parsed is one message read from the input, or the error it produced.
type parsed struct {
	index int
	msg   *hl7.Message
	err   error
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "" {
		return nil, fmt.Errorf("an input file is required (use - for stdin)")
	}
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// readMessages splits the input into messages and parses each one.
func readMessages(ctx context.Context, name string, r io.Reader, p *parsers.HL7Parser) ([]parsed, error) {
	src := hl7adapter.NewReaderSource(name, r)
	if err := src.Setup(ctx); err != nil {
		return nil, err
	}
	defer src.Close()
	ch, err := src.Extract(ctx)
	if err != nil {
		return nil, err
	}
	var out []parsed
	for rec := range ch {
		raw, _ := utils.GetString(rec, "raw_message")
		msg, err := p.ParseMessage(raw)
		out = append(out, parsed{index: len(out) + 1, msg: msg, err: err})
	}
	if err := src.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func loadMessages(c *cli.Context) ([]parsed, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.ParserOptions()
	if err != nil {
		return nil, err
	}
	path := c.Args().First()
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return readMessages(c.Context, path, in, parsers.NewHL7Parser(opts...))
}

func inspectAction(c *cli.Context) error {
	messages, err := loadMessages(c)
	if err != nil {
		return err
	}
	return writeInspect(os.Stdout, messages)
}

func writeInspect(w io.Writer, messages []parsed) error {
	failed := 0
	for _, p := range messages {
		if p.err != nil {
			failed++
			errColor.Fprintf(w, "#%d  %v\n", p.index, p.err)
			continue
		}
		doc := parsers.NewDocument(p.msg)
		headerColor.Fprintf(w, "#%d  %s  %s", p.index, doc.ControlID, doc.MessageType)
		if !doc.Timestamp.IsZero() {
			dimColor.Fprintf(w, "  %s", doc.Timestamp.Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintln(w)
		for _, code := range p.msg.SegmentTypes() {
			seg, _ := p.msg.Segment(code)
			fmt.Fprintf(w, "    %-4s x%d  %s\n", code, seg.Occurrences(), seg.Kind())
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d messages could not be parsed", failed, len(messages))
	}
	return nil
}

func getAction(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("usage: hl7 get FILE SELECTOR")
	}
	selectors := c.Args().Slice()[1:]
	for _, expr := range selectors {
		if _, err := hl7.ParseSelector(expr); err != nil {
			return err
		}
	}
	messages, err := loadMessages(c)
	if err != nil {
		return err
	}
	return writeValues(os.Stdout, messages, selectors)
}

func writeValues(w io.Writer, messages []parsed, selectors []string) error {
	for _, p := range messages {
		if p.err != nil {
			errColor.Fprintf(w, "#%d  %v\n", p.index, p.err)
			continue
		}
		for _, expr := range selectors {
			values, err := p.msg.Lookup(expr)
			if err != nil {
				return fmt.Errorf("message %s: %w", p.msg.ControlID(), err)
			}
			okColor.Fprintf(w, "%s", p.msg.ControlID())
			fmt.Fprintf(w, "\t%s\t%s\n", expr, strings.Join(values, "~"))
		}
	}
	return nil
}

func convertAction(c *cli.Context) error {
	messages, err := loadMessages(c)
	if err != nil {
		return err
	}
	var out io.Writer = os.Stdout
	if path := c.String("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return writeConverted(out, messages, c.String("format"))
}

// writeConverted renders each message; text formats are newline separated.
func writeConverted(w io.Writer, messages []parsed, format string) error {
	var buf bytes.Buffer
	for _, p := range messages {
		if p.err != nil {
			return fmt.Errorf("message #%d: %w", p.index, p.err)
		}
		data, _, err := parsers.Render(parsers.NewDocument(p.msg), format)
		if err != nil {
			return err
		}
		buf.Write(data)
		if format != "msgpack" {
			buf.WriteByte('\n')
		}
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// publishAction sends the raw text of each message, valid or not, so the
// consuming pipeline decides what to reject.
func publishAction(c *cli.Context) error {
	path := c.Args().First()
	in, err := openInput(path)
	if err != nil {
		return err
	}
	defer in.Close()
	src := hl7adapter.NewReaderSource(path, in)
	if err := src.Setup(c.Context); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	records, err := src.Extract(ctx)
	if err != nil {
		return err
	}
	queue := hl7adapter.NewQueueSource(c.String("url"), c.String("queue"))
	if err := queue.Setup(c.Context); err != nil {
		return err
	}
	defer queue.Close()
	sent := 0
	for rec := range records {
		raw, _ := utils.GetString(rec, "raw_message")
		if err := queue.Publish(c.Context, raw); err != nil {
			return fmt.Errorf("publish message #%d: %w", sent+1, err)
		}
		sent++
	}
	if err := src.Err(); err != nil {
		return fmt.Errorf("published %d messages before input failed: %w", sent, err)
	}
	okColor.Fprintf(os.Stderr, "published %d messages to %s\n", sent, c.String("queue"))
	return nil
}

func printSummary(w io.Writer, s pipeline.Summary, err error) {
	status := okColor
	if err != nil {
		status = errColor
	}
	status.Fprintf(w, "run %s", s.ID)
	fmt.Fprintf(w, "  extracted=%d transformed=%d filtered=%d duplicates=%d loaded=%d failed=%d in %s\n",
		s.Extracted, s.Transformed, s.Filtered, s.Duplicates, s.Loaded, s.Failed, s.Duration().Round(time.Millisecond))
	if err != nil {
		errColor.Fprintf(w, "  %v\n", err)
	}
}
