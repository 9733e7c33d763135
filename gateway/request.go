package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
)

// Request describes one outbound API call. Exactly one of Body and
// Multipart may be set.
type Request struct {
	// Method is the HTTP method; defaults to GET when empty.
	Method string
	// Path is resolved against the gateway's base URL.
	Path string
	// Query parameters appended to the target URL.
	Query url.Values
	// Header entries merged into the outgoing request.
	Header http.Header
	// Body is JSON-encoded when non-nil.
	Body any
	// Multipart, when non-nil, is streamed as multipart/form-data. The
	// content-type header is derived from the writer so the boundary is
	// always correct; callers must not set it themselves.
	Multipart *Multipart
	// AuthRequired attaches the bearer credential and enables the
	// fail-fast missing-credential policy.
	AuthRequired bool
}

// Multipart is a form payload with optional file parts.
type Multipart struct {
	Fields map[string]string
	Files  []File
}

// File is one file part of a multipart payload.
type File struct {
	// Field is the form field name.
	Field string
	// Name is the file name reported to the server.
	Name string
	// Content is read fully while encoding the request.
	Content io.Reader
}

// Envelope is the response body shape of the back-office REST contract.
// Every endpoint, success or failure, is expected to answer with it.
type Envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Success *bool           `json:"success,omitempty"`
}

// Result is a successful call's decoded outcome.
type Result struct {
	Status  int
	Message string
	Data    json.RawMessage
}

// Decode unmarshals the result's data payload into v.
func (r *Result) Decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}
