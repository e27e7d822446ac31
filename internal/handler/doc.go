// Package handler implements the gateway's HTTP entry point. It strips the
// mount prefix, resolves the upstream target, builds the outbound request
// and hands it to the forwarder, reporting every step to the metrics
// collector.
package handler
