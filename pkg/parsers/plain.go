package parsers

import "bytes"

// MLLP block markers wrapping a message on the wire.
const (
	mllpStartBlock = 0x0b
	mllpEndBlock   = 0x1c
)

// PlainTextParser is the fallback for input no other parser recognises. It
// returns the text unframed, so whatever is wrong with it surfaces as an HL7
// error code once the engine sees it.
type PlainTextParser struct{}

func NewPlainTextParser() *PlainTextParser {
	return &PlainTextParser{}
}

func (p *PlainTextParser) Name() string {
	return "PlainText"
}

func (p *PlainTextParser) Detect([]byte) bool {
	return true
}

func (p *PlainTextParser) Parse(data []byte) (any, error) {
	return Unframe(data), nil
}

// Unframe strips an MLLP envelope: the start block byte and everything from
// the end block byte on. Unframed input is returned unchanged.
func Unframe(data []byte) string {
	i := bytes.IndexByte(data, mllpStartBlock)
	if i < 0 || len(bytes.TrimSpace(data[:i])) > 0 {
		return string(data)
	}
	data = data[i+1:]
	if j := bytes.LastIndexByte(data, mllpEndBlock); j >= 0 {
		data = data[:j]
	}
	return string(data)
}
