package server

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/oarkflow/json"

	"github.com/oarkflow/hl7/pkg/config"
)

const adtMessage = "MSH|^~\\&|ADT|HOSP|EHR|HOSP|20240301101500||ADT^A01|CTRL7|P|2.5\r" +
	"PID|1||12345^^^HOSP^MR||DOE^JOHN^Q\r" +
	"NK1|1|DOE^JANE|SPO\r" +
	"NK1|2|DOE^JIM|CHD\r"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Cache.Enabled = true
	s, err := New(cfg, WithVersion("test"), WithoutRequestLog())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return s
}

func do(t *testing.T, s *Server, method, target, contentType, body string) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp, body := do(t, s, http.MethodGet, "/api/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["status"] != "healthy" || got["version"] != "test" {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestParseRawAndEnvelope(t *testing.T) {
	s := newTestServer(t)
	envelope, _ := json.Marshal(map[string]string{"message": adtMessage})
	for _, tc := range []struct {
		contentType string
		body        string
	}{
		{"text/plain", adtMessage},
		{"application/json", string(envelope)},
		{"application/hl7-v2", "\x0b" + adtMessage + "\x1c\r"},
	} {
		resp, body := do(t, s, http.MethodPost, "/api/parse", tc.contentType, tc.body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status %d: %s", resp.StatusCode, body)
		}
		var doc map[string]any
		if err := json.Unmarshal(body, &doc); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if doc["control_id"] != "CTRL7" || doc["message_type"] != "ADT^A01" {
			t.Fatalf("unexpected document %s", body)
		}
		segments := doc["segments"].(map[string]any)
		if len(segments["NK1"].([]any)) != 2 {
			t.Fatalf("expected two NK1 occurrences, got %s", body)
		}
	}
}

func TestParsePath(t *testing.T) {
	s := newTestServer(t)
	resp, body := do(t, s, http.MethodPost, "/api/parse?path=message_type", "text/plain", adtMessage)
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte(`"ADT^A01"`)) {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, body)
	}
	resp, _ = do(t, s, http.MethodPost, "/api/parse?path=nope.nothing", "text/plain", adtMessage)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown path, got %d", resp.StatusCode)
	}
}

func TestParseErrorsMapToCodes(t *testing.T) {
	s := newTestServer(t)
	resp, body := do(t, s, http.MethodPost, "/api/parse", "text/plain", "PID|1||12345\r")
	if resp.StatusCode != http.StatusUnprocessableEntity || !bytes.Contains(body, []byte("MISSING_HEADER")) {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, body)
	}
	resp, body = do(t, s, http.MethodPost, "/api/parse", "text/plain", "MSH|^~\\&|A|B|C|D|20240101||ADT^A01||P|2.5\r")
	if resp.StatusCode != http.StatusUnprocessableEntity || !bytes.Contains(body, []byte("MISSING_CONTROL_ID")) {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, body)
	}
	resp, _ = do(t, s, http.MethodPost, "/api/parse", "text/plain", "   ")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", resp.StatusCode)
	}
}

func TestQuery(t *testing.T) {
	s := newTestServer(t)
	payload, _ := json.Marshal(map[string]any{
		"message":   adtMessage,
		"selectors": []string{"PID.patient_name.2", "NK1(*).name.1", "OBX.observation_value"},
	})
	resp, body := do(t, s, http.MethodPost, "/api/query", "application/json", string(payload))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, body)
	}
	var got QueryResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ControlID != "CTRL7" {
		t.Fatalf("unexpected control id %q", got.ControlID)
	}
	if strings.Join(got.Values["PID.patient_name.2"], ",") != "JOHN" {
		t.Fatalf("unexpected PID value %v", got.Values)
	}
	if strings.Join(got.Values["NK1(*).name.1"], ",") != "DOE,DOE" {
		t.Fatalf("unexpected NK1 values %v", got.Values)
	}
	if len(got.Values["OBX.observation_value"]) != 0 {
		t.Fatalf("absent segment must yield no values, got %v", got.Values)
	}

	payload, _ = json.Marshal(map[string]any{"message": adtMessage, "selectors": []string{"PID.not_a_field"}})
	resp, body = do(t, s, http.MethodPost, "/api/query", "application/json", string(payload))
	if resp.StatusCode != http.StatusBadRequest || !bytes.Contains(body, []byte("UNSUPPORTED_FIELD_NAME")) {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, body)
	}
}

func TestRenderFormats(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		format      string
		contentType string
		status      int
	}{
		{"json", "application/json", http.StatusOK},
		{"xml", "application/xml", http.StatusOK},
		{"msgpack", "application/msgpack", http.StatusOK},
		{"yaml", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp, body := do(t, s, http.MethodPost, "/api/render?format="+tt.format, "text/plain", adtMessage)
		if resp.StatusCode != tt.status {
			t.Fatalf("%s: unexpected status %d: %s", tt.format, resp.StatusCode, body)
		}
		if tt.contentType != "" && resp.Header.Get("Content-Type") != tt.contentType {
			t.Fatalf("%s: unexpected content type %q", tt.format, resp.Header.Get("Content-Type"))
		}
	}
}

func TestSegmentsAndMetrics(t *testing.T) {
	s := newTestServer(t)
	resp, body := do(t, s, http.MethodGet, "/api/segments", "", "")
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte(`"PID"`)) {
		t.Fatalf("unexpected segments response %d %s", resp.StatusCode, body)
	}
	do(t, s, http.MethodPost, "/api/parse", "text/plain", adtMessage)
	resp, body = do(t, s, http.MethodGet, "/metrics", "", "")
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte(`hl7_parse_total{result="ok"} 1`)) {
		t.Fatalf("unexpected metrics %d %s", resp.StatusCode, body)
	}
}
