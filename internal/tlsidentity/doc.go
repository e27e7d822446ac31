// Package tlsidentity loads the client certificate material the proxy
// presents to upstream servers and builds the matching TLS configuration.
//
// Upstreams live on a private network where their certificate subject does
// not match the name the proxy dials, so the configuration verifies the
// server chain against the configured CA while skipping only the hostname
// comparison.
package tlsidentity
