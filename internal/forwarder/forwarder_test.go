package forwarder_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"syscall"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/api-proxy/internal/backend"
	"github.com/angeloszaimis/api-proxy/internal/forwarder"
)

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

func failingDoer(err error) backend.Doer {
	return doerFunc(func(req *http.Request) (*http.Response, error) {
		return nil, &url.Error{Op: req.Method, URL: req.URL.String(), Err: err}
	})
}

var _ = Describe("Forwarder", func() {
	var (
		log *slog.Logger
		out *backend.OutboundRequest
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelError + 1,
		}))
		out = &backend.OutboundRequest{
			Method: http.MethodGet,
			URL:    "http://pulsar:8080/admin/v2/clusters",
			Header: http.Header{"Accept": {"application/json"}},
		}
	})

	Describe("failure mapping", func() {
		forward := func(err error) (*httptest.ResponseRecorder, forwarder.Result) {
			f := forwarder.New(failingDoer(err), log)
			w := httptest.NewRecorder()
			res := f.Forward(w, httptest.NewRequest(http.MethodGet, "/api/admin/v2/clusters", nil), out)
			return w, res
		}

		It("should map connection refused to 504", func() {
			w, res := forward(&net.OpError{Op: "dial", Net: "tcp", Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}})
			Expect(w.Code).To(Equal(http.StatusGatewayTimeout))
			Expect(w.Body.String()).To(HavePrefix("Proxy error: "))
			Expect(w.Body.String()).To(ContainSubstring("connection refused"))
			Expect(res.Err.Kind).To(Equal(backend.KindConnectionRefused))
		})

		It("should map an unresolvable host to 502", func() {
			w, res := forward(&net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: "pulsar", IsNotFound: true}})
			Expect(w.Code).To(Equal(http.StatusBadGateway))
			Expect(w.Body.String()).To(HavePrefix("Proxy error: "))
			Expect(res.StatusCode).To(Equal(http.StatusBadGateway))
		})

		It("should map other errors to 500 with the message", func() {
			w, res := forward(errors.New("tls: handshake failure"))
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).To(Equal(`Proxy error: GET "http://pulsar:8080/admin/v2/clusters": tls: handshake failure`))
			Expect(w.Header().Get("Content-Type")).To(Equal("text/plain; charset=utf-8"))
			Expect(res.Err.Kind).To(Equal(backend.KindOther))
		})

		It("should report an invalid url as a proxy error", func() {
			called := false
			f := forwarder.New(doerFunc(func(*http.Request) (*http.Response, error) {
				called = true
				return nil, nil
			}), log)
			out.URL = "http://[::1/x"

			w := httptest.NewRecorder()
			f.Forward(w, httptest.NewRequest(http.MethodGet, "/api/x", nil), out)
			Expect(called).To(BeFalse())
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).To(HavePrefix("Proxy error: "))
		})

		It("should not write a response when the caller is gone", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			f := forwarder.New(doerFunc(func(req *http.Request) (*http.Response, error) {
				return nil, &url.Error{Op: "Get", URL: out.URL, Err: req.Context().Err()}
			}), log)

			w := httptest.NewRecorder()
			res := f.Forward(w, httptest.NewRequest(http.MethodGet, "/api/x", nil).WithContext(ctx), out)
			Expect(w.Body.Len()).To(Equal(0))
			Expect(res.StatusCode).To(Equal(0))
			Expect(res.Err).NotTo(BeNil())
		})
	})

	Describe("relaying", func() {
		var (
			upstream *httptest.Server
			received *http.Request
			body     []byte
		)

		BeforeEach(func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				received = r
				body, _ = io.ReadAll(r.Body)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Connection", "close")
				w.Header().Set("X-Pulsar-Broker", "broker-0")
				w.WriteHeader(http.StatusCreated)
				w.Write([]byte(`{"ok":true}`))
			}))
		})

		AfterEach(func() {
			upstream.Close()
		})

		It("should relay status, body and end-to-end headers", func() {
			client, err := backend.NewClient(nil)
			Expect(err).NotTo(HaveOccurred())
			f := forwarder.New(client, log)

			out.Method = http.MethodPut
			out.URL = upstream.URL + "/admin/v2/tenants/t1"
			out.Body = []byte(`{"a":1}`)
			out.Header.Set("Content-Type", backend.ContentTypeJSON)

			w := httptest.NewRecorder()
			res := f.Forward(w, httptest.NewRequest(http.MethodPut, "/api/admin/v2/tenants/t1", nil), out)

			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(w.Body.String()).To(Equal(`{"ok":true}`))
			Expect(w.Header().Get("X-Pulsar-Broker")).To(Equal("broker-0"))
			Expect(w.Header()).NotTo(HaveKey("Connection"))
			Expect(res.StatusCode).To(Equal(http.StatusCreated))
			Expect(res.Bytes).To(Equal(int64(11)))
			Expect(res.Err).To(BeNil())

			Expect(received.Method).To(Equal(http.MethodPut))
			Expect(received.URL.Path).To(Equal("/admin/v2/tenants/t1"))
			Expect(received.Header.Get("Content-Type")).To(Equal("application/json;charset=UTF-8"))
			Expect(received.Header.Get("Accept")).To(Equal("application/json"))
			Expect(string(body)).To(Equal(`{"a":1}`))
		})

		It("should relay upstream error statuses unchanged", func() {
			failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"reason":"exists"}`))
			}))
			defer failing.Close()

			client, _ := backend.NewClient(nil)
			f := forwarder.New(client, log)
			out.URL = failing.URL

			w := httptest.NewRecorder()
			f.Forward(w, httptest.NewRequest(http.MethodGet, "/api/", nil), out)
			Expect(w.Code).To(Equal(http.StatusConflict))
			Expect(w.Body.String()).To(Equal(`{"reason":"exists"}`))
		})
	})

	Describe("streaming", func() {
		It("should deliver chunks before the upstream finishes", func() {
			release := make(chan struct{})
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("first"))
				w.(http.Flusher).Flush()
				<-release
				w.Write([]byte("second"))
			}))
			defer upstream.Close()

			client, _ := backend.NewClient(nil)
			f := forwarder.New(client, log)
			front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				f.Forward(w, r, &backend.OutboundRequest{
					Method: http.MethodGet,
					URL:    upstream.URL,
					Header: http.Header{},
				})
			}))
			defer front.Close()

			resp, err := http.Get(front.URL)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			firstChunk := make(chan string, 1)
			go func() {
				defer GinkgoRecover()
				buf := make([]byte, 5)
				_, err := io.ReadFull(resp.Body, buf)
				Expect(err).NotTo(HaveOccurred())
				firstChunk <- string(buf)
			}()

			Eventually(firstChunk).Should(Receive(Equal("first")))

			close(release)
			rest, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(rest)).To(Equal("second"))
		})
	})

	Describe("WriteText", func() {
		It("should write the exact body", func() {
			w := httptest.NewRecorder()
			forwarder.WriteText(w, http.StatusBadRequest, "Unable to connect. Reason: missing query parameter")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(w.Body.String()).To(Equal("Unable to connect. Reason: missing query parameter"))
		})
	})
})
