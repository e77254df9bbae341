package parsers

import (
	"fmt"
)

// Parser defines the interface for parsing different data formats
type Parser interface {
	// Parse attempts to parse the given data and returns the parsed result or an error
	Parse(data []byte) (any, error)
	// Name returns the name of the parser
	Name() string
	// Detect checks if the data matches this parser's format
	Detect(data []byte) bool
}

// Detect returns the first parser that accepts data.
func Detect(data []byte, candidates ...Parser) (Parser, error) {
	for _, p := range candidates {
		if p.Detect(data) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no parser detected the input format")
}
