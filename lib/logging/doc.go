// Package logging provides the shared log setup for observatory control
// daemons: structured slog output with UTC timestamps and a named logger
// per daemon, so that interleaved logs from a whole site stay
// attributable and comparable.
package logging
