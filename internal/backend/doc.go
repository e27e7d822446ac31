// Package backend builds the outbound request for a resolved target and
// executes it against the upstream. Transport failures are classified into
// a small set of kinds so callers can map them to response codes without
// inspecting error text.
package backend
