// Package registry holds the static list of named upstream connections.
// The registry is built once at startup and never mutated, so lookups are
// safe from any number of goroutines without locking.
package registry
