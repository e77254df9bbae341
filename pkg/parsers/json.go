package parsers

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/oarkflow/json"
)

// Envelope is the JSON form accepted by the HTTP API and queue sources.
type Envelope struct {
	Message   string   `json:"message"`
	Selectors []string `json:"selectors,omitempty"`
}

// JSONParser parses JSON data
type JSONParser struct{}

// NewJSONParser creates a new JSON parser
func NewJSONParser() *JSONParser {
	return &JSONParser{}
}

// Name returns the parser name
func (p *JSONParser) Name() string {
	return "JSON"
}

// Detect checks if the data looks like a JSON object or array
func (p *JSONParser) Detect(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return false
	}
	var temp any
	return json.Unmarshal(trimmed, &temp) == nil
}

// Parse parses the JSON data
func (p *JSONParser) Parse(data []byte) (any, error) {
	var result any
	err := json.Unmarshal(data, &result)
	return result, err
}

// ParseEnvelope decodes an envelope and requires a message.
func (p *JSONParser) ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("invalid JSON envelope: %w", err)
	}
	if strings.TrimSpace(env.Message) == "" {
		return env, fmt.Errorf("JSON envelope has no message")
	}
	return env, nil
}
