package healthcheck_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/api-proxy/internal/backend"
	"github.com/angeloszaimis/api-proxy/internal/healthcheck"
	"github.com/angeloszaimis/api-proxy/internal/metrics"
	"github.com/angeloszaimis/api-proxy/internal/registry"
)

const healthPath = "/admin/v2/brokers/health"

var _ = Describe("Healthcheck", func() {
	var (
		log       *slog.Logger
		client    *backend.Client
		up        atomic.Bool
		auth      atomic.Value
		broker    *httptest.Server
		collector *metrics.Collector
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))

		var err error
		client, err = backend.NewClient(nil)
		Expect(err).NotTo(HaveOccurred())

		up.Store(true)
		auth.Store("")
		broker = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth.Store(r.Header.Get("Authorization"))
			if r.URL.Path != healthPath || !up.Load() {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("ok"))
		}))

		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(10, log)
		collector.Start(ctx)
	})

	AfterEach(func() {
		cancel()
		broker.Close()
	})

	Describe("Check", func() {
		It("should report a healthy connection and send its token", func() {
			checker := healthcheck.New(client, healthPath, time.Second, nil, log)
			conn := registry.Connection{Name: "local", URL: broker.URL + "/", Token: " secret\n"}

			Expect(checker.Check(ctx, conn)).To(BeTrue())
			Expect(auth.Load()).To(Equal("Bearer secret"))
		})

		It("should omit the authorization header without a token", func() {
			checker := healthcheck.New(client, healthPath, time.Second, nil, log)
			Expect(checker.Check(ctx, registry.Connection{Name: "local", URL: broker.URL})).To(BeTrue())
			Expect(auth.Load()).To(Equal(""))
		})

		It("should report a non-2xx answer as unhealthy", func() {
			up.Store(false)
			checker := healthcheck.New(client, healthPath, time.Second, nil, log)
			Expect(checker.Check(ctx, registry.Connection{Name: "local", URL: broker.URL})).To(BeFalse())
		})

		It("should report an unreachable connection as unhealthy", func() {
			addr := broker.URL
			broker.Close()

			checker := healthcheck.New(client, healthPath, time.Second, nil, log)
			Expect(checker.Check(ctx, registry.Connection{Name: "local", URL: addr})).To(BeFalse())
		})
	})

	Describe("Run", func() {
		healthOf := func(name string) func() *bool {
			return func() *bool {
				return collector.Snapshot().Targets[name].Healthy
			}
		}

		It("should publish the initial state and later transitions", func() {
			checker := healthcheck.New(client, healthPath, 20*time.Millisecond, collector, log)
			go checker.Run(ctx, registry.Connection{Name: "local", URL: broker.URL})

			Eventually(healthOf("local")).Should(HaveValue(BeTrue()))

			up.Store(false)
			Eventually(healthOf("local")).Should(HaveValue(BeFalse()))

			up.Store(true)
			Eventually(healthOf("local")).Should(HaveValue(BeTrue()))
		})

		It("should probe every connection passed to Start", func() {
			other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer other.Close()

			checker := healthcheck.New(client, healthPath, 20*time.Millisecond, collector, log)
			checker.Start(ctx, []registry.Connection{
				{Name: "a", URL: broker.URL},
				{Name: "b", URL: other.URL},
			})

			Eventually(healthOf("a")).Should(HaveValue(BeTrue()))
			Eventually(healthOf("b")).Should(HaveValue(BeFalse()))
		})

		It("should stop when the context is cancelled", func() {
			checker := healthcheck.New(client, healthPath, 10*time.Millisecond, nil, log)

			runCtx, stop := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				checker.Run(runCtx, registry.Connection{Name: "local", URL: broker.URL})
				close(done)
			}()

			stop()
			Eventually(done).Should(BeClosed())
		})
	})
})
