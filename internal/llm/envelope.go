package llm

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// errorEnvelope is the {"error":{...}} body the generation APIs send on
// failure. Some gateways send it with a 2xx status.
type errorEnvelope struct {
	Error *struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
		Status  string          `json:"status"`
		Type    string          `json:"type"`
	} `json:"error"`
}

// decodeErrorEnvelope returns the APIError described by raw, or nil when raw
// carries no error message. A non-numeric code (OpenAI sends strings) is left
// as 0.
func decodeErrorEnvelope(provider Provider, raw []byte) *APIError {
	var env errorEnvelope
	if json.Unmarshal(raw, &env) != nil || env.Error == nil {
		return nil
	}
	msg := strings.TrimSpace(env.Error.Message)
	if msg == "" {
		return nil
	}
	out := &APIError{Provider: string(provider), Message: msg, Status: env.Error.Status}
	if out.Status == "" {
		out.Status = env.Error.Type
	}
	code := strings.Trim(string(env.Error.Code), `"`)
	if n, err := strconv.Atoi(code); err == nil {
		out.Code = n
	}
	return out
}

// envelopeSniffer records an error envelope found in a 2xx response body.
// The body is handed on unchanged.
type envelopeSniffer struct {
	provider Provider
	next     http.RoundTripper
	found    *APIError
}

func (s *envelopeSniffer) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := s.next.RoundTrip(req)
	if err != nil || resp.Body == nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, err
	}
	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	if found := decodeErrorEnvelope(s.provider, raw); found != nil {
		s.found = found
	}
	return resp, nil
}

// sniffingClient copies base with its transport wrapped by an
// envelopeSniffer. One sniffer serves one call.
func sniffingClient(provider Provider, base *http.Client) (*http.Client, *envelopeSniffer) {
	var hc http.Client
	if base != nil {
		hc = *base
	}
	next := hc.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	sniffer := &envelopeSniffer{provider: provider, next: next}
	hc.Transport = sniffer
	return &hc, sniffer
}
