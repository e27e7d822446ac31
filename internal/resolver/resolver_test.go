package resolver_test

import (
	"errors"
	"net/http"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/api-proxy/internal/registry"
	"github.com/angeloszaimis/api-proxy/internal/resolver"
)

var _ = Describe("Resolver", func() {
	var r *resolver.Resolver

	BeforeEach(func() {
		reg, err := registry.New([]registry.Connection{
			{Name: "prod", URL: "https://pulsar.prod:8443", FctWorkerURL: "https://functions.prod:6751", Token: "  secret\n"},
			{Name: "notoken", URL: "http://localhost:8080"},
		})
		Expect(err).NotTo(HaveOccurred())
		r = resolver.New(reg)
	})

	Context("with an explicit url", func() {
		It("should append the path suffix", func() {
			target, err := r.Resolve(http.MethodGet, "admin/v2/clusters", url.Values{"u": {"http://other:8080"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(target.URL).To(Equal("http://other:8080/admin/v2/clusters"))
			Expect(target.Token).To(BeEmpty())
			Expect(target.Connection).To(BeEmpty())
		})

		It("should carry the explicit token", func() {
			target, err := r.Resolve(http.MethodGet, "x", url.Values{"u": {"http://other"}, "t": {"tok"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(target.Token).To(Equal("tok"))
		})

		It("should take precedence over a connection name", func() {
			target, err := r.Resolve(http.MethodGet, "x", url.Values{"u": {"http://other"}, "n": {"prod"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(target.URL).To(Equal("http://other/x"))
			Expect(target.Token).To(BeEmpty())
		})

		It("should ignore the registry entirely", func() {
			target, err := r.Resolve(http.MethodGet, "x", url.Values{"u": {"http://other"}, "n": {"missing"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(target.URL).To(Equal("http://other/x"))
		})

		It("should keep an empty suffix as a trailing slash", func() {
			target, err := r.Resolve(http.MethodGet, "", url.Values{"u": {"http://other"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(target.URL).To(Equal("http://other/"))
		})
	})

	Context("with a connection name", func() {
		It("should use the connection url and trimmed token", func() {
			target, err := r.Resolve(http.MethodPut, "admin/v2/tenants/t1", url.Values{"n": {"prod"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(target.URL).To(Equal("https://pulsar.prod:8443/admin/v2/tenants/t1"))
			Expect(target.Token).To(Equal("secret"))
			Expect(target.Connection).To(Equal("prod"))
		})

		It("should use the function worker url when e=fct", func() {
			target, err := r.Resolve(http.MethodGet, "admin/v3/functions", url.Values{"n": {"prod"}, "e": {"fct"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(target.URL).To(Equal("https://functions.prod:6751/admin/v3/functions"))
		})

		It("should ignore unknown mode values", func() {
			target, err := r.Resolve(http.MethodGet, "x", url.Values{"n": {"prod"}, "e": {"FCT"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(target.URL).To(Equal("https://pulsar.prod:8443/x"))
		})

		It("should fail for an unknown name", func() {
			_, err := r.Resolve(http.MethodGet, "x", url.Values{"n": {"staging"}})
			var resErr *resolver.ResolutionError
			Expect(errors.As(err, &resErr)).To(BeTrue())
			Expect(resErr.Reason).To(Equal(`no connection named "staging"`))
		})
	})

	Context("without parameters", func() {
		It("should fail with missing query parameter", func() {
			_, err := r.Resolve(http.MethodGet, "x", url.Values{})
			var resErr *resolver.ResolutionError
			Expect(errors.As(err, &resErr)).To(BeTrue())
			Expect(resErr.Reason).To(Equal("missing query parameter"))
		})

		It("should treat empty values as absent", func() {
			_, err := r.Resolve(http.MethodGet, "x", url.Values{"u": {""}, "n": {""}})
			var resErr *resolver.ResolutionError
			Expect(errors.As(err, &resErr)).To(BeTrue())
			Expect(resErr.Reason).To(Equal(resolver.ReasonNoParam))
		})
	})

	It("should be idempotent", func() {
		query := url.Values{"n": {"prod"}, "e": {"fct"}}
		first, err1 := r.Resolve(http.MethodGet, "a/b", query)
		second, err2 := r.Resolve(http.MethodGet, "a/b", query)
		Expect(err1).NotTo(HaveOccurred())
		Expect(err2).NotTo(HaveOccurred())
		Expect(first).To(Equal(second))
	})
})
