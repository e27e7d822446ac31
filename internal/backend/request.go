package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/angeloszaimis/api-proxy/internal/resolver"
)

const (
	ContentTypeJSON = "application/json;charset=UTF-8"
	AcceptJSON      = "application/json"

	// DefaultMaxBodyBytes matches the limit the proxy has always applied to
	// JSON bodies.
	DefaultMaxBodyBytes = 100 << 10
)

// OutboundRequest is everything needed to issue one upstream call.
type OutboundRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// HTTPRequest materializes the outbound request bound to ctx.
func (o *OutboundRequest) HTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(o.Body) > 0 {
		body = bytes.NewReader(o.Body)
	}

	req, err := http.NewRequestWithContext(ctx, o.Method, o.URL, body)
	if err != nil {
		return nil, err
	}
	req.Header = o.Header.Clone()

	return req, nil
}

// BodyError reports an inbound body that could not be turned into an
// outbound one.
type BodyError struct {
	StatusCode int
	Err        error
}

func (e *BodyError) Error() string {
	return e.Err.Error()
}

func (e *BodyError) Unwrap() error {
	return e.Err
}

type Builder struct {
	maxBodyBytes int64
}

func NewBuilder(maxBodyBytes int64) *Builder {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Builder{maxBodyBytes: maxBodyBytes}
}

// Build derives the outbound request from the resolved target and the
// inbound request. Only the bearer token, Accept and, for JSON bodies,
// Content-Type are sent; no inbound header or query string is forwarded.
func (b *Builder) Build(target resolver.Target, r *http.Request) (*OutboundRequest, error) {
	out := &OutboundRequest{
		Method: r.Method,
		URL:    target.URL,
		Header: make(http.Header),
	}

	if token := strings.TrimSpace(target.Token); token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}

	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		body, err := b.readJSONBody(r)
		if err != nil {
			return nil, err
		}
		if len(body) > 0 {
			out.Body = body
			out.Header.Set("Content-Type", ContentTypeJSON)
		}
	}

	out.Header.Set("Accept", AcceptJSON)

	return out, nil
}

// readJSONBody returns the compacted JSON body, or nil when the request has
// no JSON body or the body is an empty object or array.
func (b *Builder) readJSONBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody || !isJSON(r.Header.Get("Content-Type")) {
		return nil, nil
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, b.maxBodyBytes+1))
	if err != nil {
		return nil, &BodyError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(raw)) > b.maxBodyBytes {
		return nil, &BodyError{
			StatusCode: http.StatusRequestEntityTooLarge,
			Err:        fmt.Errorf("body exceeds %d bytes", b.maxBodyBytes),
		}
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if raw[0] != '{' && raw[0] != '[' {
		return nil, &BodyError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("body must be a JSON object or array")}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return nil, &BodyError{StatusCode: http.StatusBadRequest, Err: err}
	}

	switch compact.String() {
	case "{}", "[]":
		return nil, nil
	}

	return compact.Bytes(), nil
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
