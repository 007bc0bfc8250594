// Package observability builds the process logger. Every component takes a
// *zap.Logger; this package turns LOG_LEVEL and LOG_FORMAT into one.
package observability
