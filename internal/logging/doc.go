// Package logging builds the process logger from configuration.
//
// The logger is a thin wrapper around log/slog; pass Logger.Logger to
// library code that accepts a *slog.Logger.
package logging
