// Package sse provides a minimal, purpose-built SSE (Server-Sent Events)
// decoder for the wavetap event feeds. It turns a long-lived HTTP response
// body into a lazy sequence of parsed events, while surfacing out-of-band
// transport log lines verbatim instead of treating them as protocol data.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event represents a single parsed SSE event, delimited by a blank line
// in the upstream byte stream.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	// An empty string means the default "message" type per the SSE spec.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n" (per the SSE spec, multiple data fields are joined
	// with a single newline).
	Data string

	// ID is the last event ID seen on the stream. Per the SSE spec the
	// id persists across events until the server sends a new one.
	ID string

	// Retry is the reconnection hint from the most recent valid "retry:"
	// field, in milliseconds. Zero when the server never sent one.
	// Reconnection is not honored by this client; the value is carried
	// for observability only.
	Retry int
}
