// Package merge runs the uplink and downlink event feeds for one device
// concurrently and presents a single, approximately time-ordered output
// stream.
//
// Only the initial burst of historical matches is sorted: lines arriving
// within a fixed aggregation window are buffered, ordered by the
// timestamp inside each payload, and emitted in one pass. Everything
// after the window is relayed live in first-arrival order, because a
// live tail cannot be buffered for a point-in-time sort.
package merge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wavetapco/wavetap/pkg/sse"
)

// Origin tags which feed a record came from.
type Origin int

const (
	OriginUp Origin = iota
	OriginDown
)

func (o Origin) String() string {
	if o == OriginUp {
		return "UP"
	}
	return "DOWN"
}

// Record is one tagged output line. Records exist only inside the
// aggregation buffer; after the window they are written through
// directly.
type Record struct {
	Origin Origin
	Line   string
}

// Pipeline opens one origin's long-lived event stream. Open must honor
// ctx: cancelling it has to unblock any pending read on the returned
// body.
type Pipeline struct {
	Origin Origin
	Open   func(ctx context.Context) (io.ReadCloser, error)
}

// FetchError reports a feed that failed or died instantly at startup.
type FetchError struct {
	Origin Origin
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s feed: %v", e.Origin, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

const (
	defaultWindow    = 2 * time.Second
	defaultGrace     = 500 * time.Millisecond
	defaultQueueSize = 256
)

// Config configures a Merger.
type Config struct {
	// Window is the aggregation interval that catches the initial
	// burst of historical matches. Ignored when Sort is false.
	Window time.Duration

	// Grace is how long after startup a feed's termination is treated
	// as a request failure rather than end-of-data.
	Grace time.Duration

	// QueueSize is the capacity of the shared relay channel.
	QueueSize int

	// Sort enables the aggregation window and sort pass. When false
	// both feeds are relayed live, interleaved in first-arrival order.
	Sort bool

	// Logs receives out-of-band transport log lines verbatim.
	Logs io.Writer

	Logger *zap.Logger
}

// Merger orchestrates two feed pipelines into one ordered sink.
type Merger struct {
	config Config
	logger *zap.Logger
}

// New creates a Merger, applying defaults for unset config fields.
func New(config Config) *Merger {
	if config.Window <= 0 {
		config.Window = defaultWindow
	}
	if config.Grace <= 0 {
		config.Grace = defaultGrace
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Merger{
		config: config,
		logger: logger,
	}
}

// pipeResult is one pipeline's terminal status.
type pipeResult struct {
	origin Origin
	err    error
}

// Run fetches both feeds until they end, an error occurs, or ctx is
// cancelled. It returns only after every spawned goroutine has been
// joined and the underlying connections are torn down, so no orphaned
// work survives cancellation. Teardown is idempotent: repeated
// cancellation is safe.
func (m *Merger) Run(ctx context.Context, up, down Pipeline, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)

	recs := make(chan Record, m.config.QueueSize)
	results := make(chan pipeResult, 2)

	var wg sync.WaitGroup
	for _, p := range []Pipeline{up, down} {
		wg.Add(1)
		go func(p Pipeline) {
			defer wg.Done()
			results <- pipeResult{origin: p.Origin, err: m.runPipeline(ctx, p, recs)}
		}(p)
	}

	// The relay closes once both pipelines are done, which terminates
	// the drain loops below.
	go func() {
		wg.Wait()
		close(recs)
	}()

	// Exhaustive join on every exit path: cancel first so pipeline
	// sends and reads unblock, then wait for full termination.
	defer func() {
		cancel()
		wg.Wait()
	}()

	started := time.Now()

	if m.config.Sort {
		buffered, err := m.aggregate(ctx, recs, results, started)
		if err != nil {
			return err
		}
		if err := m.emitSorted(out, buffered); err != nil {
			return err
		}
	}

	return m.relay(ctx, recs, results, started, out)
}

// runPipeline opens one feed, decodes its SSE stream, and relays every
// payload line into the shared sink.
func (m *Merger) runPipeline(ctx context.Context, p Pipeline, out chan<- Record) error {
	body, err := p.Open(ctx)
	if err != nil {
		return err
	}
	defer body.Close()

	m.logger.Debug("feed pipeline started", zap.Stringer("origin", p.Origin))

	dec := sse.NewDecoder(body, m.config.Logs, m.logger)
	for {
		ev, err := dec.Next()
		if err != nil {
			// A cancelled context surfaces as a read error on the
			// body; report it as cancellation, not a feed failure.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if ev == nil {
			m.logger.Debug("feed pipeline ended", zap.Stringer("origin", p.Origin))
			return nil
		}

		for _, line := range strings.Split(ev.Data, "\n") {
			if line == "" {
				continue
			}
			select {
			case out <- Record{Origin: p.Origin, Line: line}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// aggregate drains the sink for the aggregation window and returns the
// buffered records. A pipeline failure, or a pipeline dying inside the
// startup grace period, aborts the merge.
func (m *Merger) aggregate(ctx context.Context, recs <-chan Record, results <-chan pipeResult, started time.Time) ([]Record, error) {
	timer := time.NewTimer(m.config.Window)
	defer timer.Stop()

	var buffered []Record
	for {
		select {
		case rec, ok := <-recs:
			if !ok {
				// Both pipelines ended before the window elapsed;
				// whatever arrived is the complete historical set.
				return buffered, nil
			}
			buffered = append(buffered, rec)

		case res := <-results:
			if err := m.checkResult(ctx, res, started); err != nil {
				return nil, err
			}

		case <-timer.C:
			return buffered, nil

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// emitSorted stable-sorts the buffered burst by payload timestamp and
// writes it out. Ties keep original arrival order.
func (m *Merger) emitSorted(out io.Writer, buffered []Record) error {
	type keyed struct {
		rec Record
		ts  time.Time
	}

	keyedRecs := make([]keyed, 0, len(buffered))
	for _, rec := range buffered {
		ts, err := extractTimestamp(rec.Line)
		if err != nil {
			// The merge assumes well-formed payloads; a payload we
			// cannot key would silently corrupt the ordering, so
			// fail loudly instead.
			return fmt.Errorf("sorting %s record: %w", rec.Origin, err)
		}
		keyedRecs = append(keyedRecs, keyed{rec: rec, ts: ts})
	}

	sort.SliceStable(keyedRecs, func(i, j int) bool {
		return keyedRecs[i].ts.Before(keyedRecs[j].ts)
	})

	m.logger.Debug("aggregation window sorted", zap.Int("records", len(keyedRecs)))

	for _, k := range keyedRecs {
		if err := writeRecord(out, k.rec); err != nil {
			return err
		}
	}

	return nil
}

// relay passes records through untransformed until both pipelines
// terminate or ctx is cancelled.
func (m *Merger) relay(ctx context.Context, recs <-chan Record, results <-chan pipeResult, started time.Time, out io.Writer) error {
	for {
		select {
		case rec, ok := <-recs:
			if !ok {
				return m.drainResults(ctx, results, started)
			}
			if err := writeRecord(out, rec); err != nil {
				return err
			}

		case res := <-results:
			if err := m.checkResult(ctx, res, started); err != nil {
				return err
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// drainResults collects any terminal statuses still pending after the
// relay channel closed.
func (m *Merger) drainResults(ctx context.Context, results <-chan pipeResult, started time.Time) error {
	for {
		select {
		case res := <-results:
			if err := m.checkResult(ctx, res, started); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// checkResult inspects one pipeline's terminal status. Any feed error
// aborts the whole merge; a clean exit inside the grace period is
// treated as a request failure since a feed that dies instantly
// indicates the fetch never worked.
func (m *Merger) checkResult(ctx context.Context, res pipeResult, started time.Time) error {
	err := res.err

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ctx.Err()
	}

	if err != nil {
		return &FetchError{Origin: res.origin, Err: err}
	}

	if time.Since(started) < m.config.Grace {
		return &FetchError{Origin: res.origin, Err: errors.New("feed ended immediately after start")}
	}

	return nil
}

func writeRecord(out io.Writer, rec Record) error {
	_, err := fmt.Fprintf(out, "%-4s %s\n", rec.Origin, rec.Line)
	return err
}

// payloadEnvelope is the minimal shape needed to key a record for the
// sort pass.
type payloadEnvelope struct {
	Time string `json:"time"`
}

// extractTimestamp pulls the ISO-8601 timestamp out of an event payload.
func extractTimestamp(line string) (time.Time, error) {
	var env payloadEnvelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return time.Time{}, fmt.Errorf("parsing payload: %w", err)
	}

	if env.Time == "" {
		return time.Time{}, errors.New("payload missing time field")
	}

	ts, err := time.Parse(time.RFC3339Nano, env.Time)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing payload time %q: %w", env.Time, err)
	}

	return ts, nil
}
