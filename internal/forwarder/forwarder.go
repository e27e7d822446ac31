package forwarder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/angeloszaimis/api-proxy/internal/backend"
	"github.com/angeloszaimis/api-proxy/pkg/logger"
)

const copyBufferSize = 32 * 1024

// hopHeaders are connection-scoped and never relayed.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Proxy-Connection":    true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// Result describes the outcome of one forwarded request.
type Result struct {
	StatusCode int
	Bytes      int64
	Duration   time.Duration
	// Err is the transport error when no upstream response was received.
	Err *backend.TransportError
}

type Forwarder struct {
	client backend.Doer
	logger *slog.Logger
}

func New(client backend.Doer, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		client: client,
		logger: logger,
	}
}

// Forward issues out and streams the upstream response into w. The
// outbound call is bound to the inbound request context.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, out *backend.OutboundRequest) Result {
	start := time.Now()
	log := logger.FromContext(r.Context(), f.logger)

	req, err := out.HTTPRequest(r.Context())
	if err != nil {
		return f.fail(w, log, out, backend.Classify(err), start)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			log.Info("Caller went away before upstream responded",
				slog.String("method", out.Method),
				slog.String("url", out.URL))
			return Result{Duration: time.Since(start), Err: backend.Classify(err)}
		}
		return f.fail(w, log, out, backend.Classify(err), start)
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	n, err := stream(w, resp.Body)
	if err != nil {
		// Headers are already sent; the caller sees a truncated body.
		log.Warn("Response relay interrupted",
			slog.String("method", out.Method),
			slog.String("url", out.URL),
			slog.Int64("bytes", n),
			slog.Any("err", err))
	}

	return Result{
		StatusCode: resp.StatusCode,
		Bytes:      n,
		Duration:   time.Since(start),
	}
}

func (f *Forwarder) fail(w http.ResponseWriter, log *slog.Logger, out *backend.OutboundRequest, te *backend.TransportError, start time.Time) Result {
	code := te.Kind.StatusCode()

	log.Error("Proxy error",
		slog.String("method", out.Method),
		slog.String("url", out.URL),
		slog.String("kind", te.Kind.String()),
		slog.Int("status", code),
		slog.Any("err", te.Err))

	WriteText(w, code, "Proxy error: "+te.Error())

	return Result{
		StatusCode: code,
		Duration:   time.Since(start),
		Err:        te,
	}
}

// WriteText writes a plain-text response with the exact body given.
func WriteText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	io.WriteString(w, body)
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if hopHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// stream copies body into w, flushing after every chunk so the caller sees
// bytes as the upstream produces them. A slow caller blocks Write, which in
// turn stops reads from the upstream.
func stream(w http.ResponseWriter, body io.Reader) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, copyBufferSize)

	var written int64
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			m, err := w.Write(buf[:n])
			written += int64(m)
			if err != nil {
				return written, err
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return written, err
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
