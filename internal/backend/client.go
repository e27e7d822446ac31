package backend

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/angeloszaimis/api-proxy/internal/tlsidentity"
)

const maxRedirects = 10

// Doer executes a single HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues upstream requests and classifies transport failures.
type Client struct {
	http *http.Client
}

// NewClient builds the upstream client. When identity is complete the
// client certificate is presented on every TLS connection and the server
// hostname is not checked; otherwise the default TLS verification applies.
// No overall timeout is set: a slow upstream holds only its own request.
func NewClient(identity *tlsidentity.Identity) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// Relay upstream bytes as sent.
	transport.DisableCompression = true

	if identity.Complete() {
		tlsConfig, err := identity.ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("build tls config: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
	}

	return &Client{
		http: &http.Client{
			Transport:     transport,
			CheckRedirect: followSafeRedirects,
		},
	}, nil
}

// Do executes req. Failures are returned as *TransportError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, Classify(err)
	}
	return resp, nil
}

// followSafeRedirects follows redirects for GET and HEAD only; any other
// method gets the redirect response relayed as is.
func followSafeRedirects(req *http.Request, via []*http.Request) error {
	if method := via[0].Method; method != http.MethodGet && method != http.MethodHead {
		return http.ErrUseLastResponse
	}
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}
	return nil
}
