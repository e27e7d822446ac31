// Package forwarder executes outbound requests and relays the upstream
// response to the caller as it arrives.
//
// When no upstream response is received the failure is reported with a
// status code derived from the transport error kind:
//
//   - connection refused: 504
//   - host name not resolved: 502
//   - anything else: 500
//
// Every failure body reads "Proxy error: " followed by the error text.
package forwarder
