// Package apperr defines the error taxonomy shared by every ingestion
// component, so the loop can decide retry/drop/abort behavior with
// errors.As instead of string matching.
package apperr

import "fmt"

// ConfigError is fatal and only ever raised before the ingestion loop starts.
type ConfigError struct {
	Field string
	Cause error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Field, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// SinkTransientError wraps a sink failure the caller should retry.
type SinkTransientError struct {
	Op    string
	Cause error
}

func (e *SinkTransientError) Error() string {
	return fmt.Sprintf("sink transient error during %s: %v", e.Op, e.Cause)
}

func (e *SinkTransientError) Unwrap() error { return e.Cause }

// SinkFatalError wraps a sink failure that should drop the record and move on.
type SinkFatalError struct {
	Op    string
	Cause error
}

func (e *SinkFatalError) Error() string {
	return fmt.Sprintf("sink fatal error during %s: %v", e.Op, e.Cause)
}

func (e *SinkFatalError) Unwrap() error { return e.Cause }

// StreamError signals the Stream Client's subscription has ended; it
// carries no retriable/non-retriable split because every StreamError
// triggers the same reconnect-and-backoff transition in the loop.
type StreamError struct {
	Cause error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error: %v", e.Cause)
}

func (e *StreamError) Unwrap() error { return e.Cause }

// EnrichmentError wraps a failure to fetch transaction detail. Retriable
// covers timeouts and 5xx; non-retriable covers 4xx and malformed payloads.
type EnrichmentError struct {
	Signature string
	Retriable bool
	Cause     error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrichment error for %s (retriable=%t): %v", e.Signature, e.Retriable, e.Cause)
}

func (e *EnrichmentError) Unwrap() error { return e.Cause }

// ParseError is always record-local: the offending transaction is dropped
// and counted, the loop continues.
type ParseError struct {
	Signature string
	Cause     error
}

func (e *ParseError) Error() string {
	if e.Signature == "" {
		return fmt.Sprintf("parse error: %v", e.Cause)
	}
	return fmt.Sprintf("parse error for %s: %v", e.Signature, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }
