// Package healthcheck periodically probes the configured upstream
// connections and reports availability changes to the log and the metrics
// collector. Probing never affects how requests are forwarded.
package healthcheck
