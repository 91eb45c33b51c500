package sse

import (
	"bufio"
	"io"
	"strings"

	"go.uber.org/zap"
)

// LogMarker prefixes out-of-band diagnostic lines that the server
// interleaves on the event transport. Such lines are not SSE fields and
// are re-emitted verbatim on the decoder's log writer.
const LogMarker = "[wavetap]"

// Decoder reads SSE events from a source io.Reader. It is a lazy,
// non-restartable sequence: each call to Next consumes input until one
// complete event (terminated by a blank line) is available.
//
// Protocol irregularities (unknown fields, non-numeric retry values) are
// logged and skipped; they never abort decoding.
type Decoder struct {
	scanner *bufio.Scanner
	logs    io.Writer
	logger  *zap.Logger

	// current accumulates fields for the event being built in the current scan.
	data    strings.Builder
	typ     string
	lastID  string
	retryMS int
}

// NewDecoder returns a Decoder that parses SSE events from the src
// io.Reader. Out-of-band log lines (prefixed with LogMarker) are written
// verbatim to logs; pass nil to discard them.
func NewDecoder(src io.Reader, logs io.Writer, logger *zap.Logger) *Decoder {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if logs == nil {
		logs = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Decoder{
		scanner: scanner,
		logs:    logs,
		logger:  logger,
	}
}

// Next returns the next parsed SSE event from the scanner. It blocks until a
// complete event is available (terminated by a blank line in the stream).
// Next returns nil, nil when the source is exhausted.
//
// An event whose data buffer is empty at dispatch time is silently
// discarded per the protocol; Next keeps scanning for the next one.
func (d *Decoder) Next() (*Event, error) {
	for d.scanner.Scan() {
		raw := d.scanner.Text()

		// Interleaved transport diagnostics are not protocol data.
		// Re-emit them verbatim and keep the current event intact.
		if strings.HasPrefix(raw, LogMarker) {
			if _, err := io.WriteString(d.logs, raw+"\n"); err != nil {
				return nil, err
			}
			continue
		}

		// A blank line signals the end of the current event.
		if raw == "" {
			if ev := d.dispatch(); ev != nil {
				return ev, nil
			}
			continue
		}

		// Lines starting with ':' are comments. Skip them in Event parsing.
		if strings.HasPrefix(raw, ":") {
			continue
		}

		d.parseLine(raw)
	}

	if err := d.scanner.Err(); err != nil {
		return nil, err
	}

	// Source exhausted without a terminating blank line: any half-built
	// event is discarded per the EventSource processing model.
	return nil, nil
}

// dispatch finalizes the accumulated event. It returns nil when the data
// buffer is empty, resetting state without emitting.
func (d *Decoder) dispatch() *Event {
	defer func() {
		d.data.Reset()
		d.typ = ""
	}()

	if d.data.Len() == 0 {
		return nil
	}

	// Each data line was appended with a trailing newline; strip the
	// last one so "data: a\ndata: b\n\n" yields "a\nb".
	payload := strings.TrimSuffix(d.data.String(), "\n")

	return &Event{
		Type:  d.typ,
		Data:  payload,
		ID:    d.lastID,
		Retry: d.retryMS,
	}
}

// parseLine processes a single non-empty, non-comment SSE line and
// accumulates the field into the current event.
//
// Per the SSE spec, a line has the form "field:value" where the first
// space after the colon is optional and stripped if present. A line with
// no colon is a field name with an empty value.
func (d *Decoder) parseLine(line string) {
	var field, value string

	if before, after, ok := strings.Cut(line, ":"); ok {
		field = before
		// Strip a single leading space after the colon, per spec.
		value = strings.TrimPrefix(after, " ")
	} else {
		field = line
	}

	switch field {
	case "data":
		d.data.WriteString(value)
		d.data.WriteString("\n")
	case "event":
		d.typ = value
	case "id":
		d.lastID = value
	case "retry":
		ms, ok := parseRetry(value)
		if !ok {
			d.logger.Warn("ignoring non-numeric SSE retry value",
				zap.String("value", value),
			)
			return
		}
		// Recorded but never acted on: this client does not reconnect.
		d.retryMS = ms
	default:
		d.logger.Warn("ignoring unknown SSE field",
			zap.String("field", field),
		)
	}
}

// parseRetry parses a retry value, which must be all ASCII digits.
func parseRetry(s string) (int, bool) {
	if s == "" {
		return 0, false
	}

	ms := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		ms = ms*10 + int(r-'0')
	}

	return ms, true
}
