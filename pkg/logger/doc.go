// Package logger builds the process-wide slog logger: text output for local
// environments, JSON in prod, with the environment attached to every record.
package logger
