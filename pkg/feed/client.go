// Package feed opens authenticated long-lived connections to the
// device-telemetry event endpoints and queues downlink packets.
//
// A feed request either streams SSE (follow mode, no until bound) or
// returns a one-shot JSON document (historical range with an explicit
// until). The client does not retry: a failed fetch is reported to the
// caller, who decides whether the whole invocation dies.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConnectionError is a transport-level failure opening or validating a
// feed request. It is fatal to the pipeline that hit it.
type ConnectionError struct {
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feed: %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("feed: %s: status %d: %s", e.URL, e.Status, e.Body)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TokenSource supplies a valid access token before each request.
type TokenSource interface {
	Get(ctx context.Context) (string, error)
}

// Filters are the caller-specified query filters for a feed request.
type Filters struct {
	Since  time.Time
	Until  time.Time
	Follow bool
}

// query renders the filters as URL query parameters.
func (f Filters) query() url.Values {
	q := url.Values{}

	if !f.Since.IsZero() {
		q.Set("since", f.Since.UTC().Format(time.RFC3339))
	}
	if !f.Until.IsZero() {
		q.Set("until", f.Until.UTC().Format(time.RFC3339))
	}
	if f.Follow {
		q.Set("follow", "true")
	}

	return q
}

// Client issues authenticated requests against the telemetry API.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	logger  *zap.Logger

	// correlationID tags every request of one invocation so server-side
	// logs can be tied back to a single CLI run.
	correlationID string
}

// NewClient creates a feed client for the given API base URL.
// The provided http.Client must not set an overall timeout: feed
// connections are long-lived by design. Cancellation happens through
// request contexts instead.
func NewClient(baseURL string, tokens TokenSource, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		tokens:        tokens,
		http:          httpClient,
		logger:        logger,
		correlationID: uuid.NewString(),
	}
}

// UplinkPath and DownlinkPath name the two event feeds for a device.
func UplinkPath(deviceEUI string) string {
	return "/devices/" + url.PathEscape(deviceEUI) + "/uplinks"
}

func DownlinkPath(deviceEUI string) string {
	return "/devices/" + url.PathEscape(deviceEUI) + "/downlinks"
}

// newRequest builds an authenticated request for the given path.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	accessToken, err := c.tokens.Get(ctx)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, &ConnectionError{URL: u, Err: err}
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("X-Correlation-ID", c.correlationID)

	return req, nil
}

// OpenStream opens one long-lived SSE feed request and returns its body.
// The caller owns the body; cancelling ctx unblocks any pending read and
// tears down the underlying connection.
func (c *Client) OpenStream(ctx context.Context, path string, filters Filters) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, filters.query(), nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	// Ask intermediaries not to buffer the long-lived response.
	req.Header.Set("X-Accel-Buffering", "no")

	c.logger.Debug("opening event stream",
		zap.String("url", req.URL.String()),
		zap.String("correlation_id", c.correlationID),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ConnectionError{URL: req.URL.String(), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &ConnectionError{
			URL:    req.URL.String(),
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
		}
	}

	return resp.Body, nil
}

// FetchDocument fetches a historical range as a one-shot JSON document
// (explicit until bound, no follow).
func (c *Client) FetchDocument(ctx context.Context, path string, filters Filters) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, filters.query(), nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ConnectionError{URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{URL: req.URL.String(), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ConnectionError{
			URL:    req.URL.String(),
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
		}
	}

	return body, nil
}

// downlinkBody is the submit endpoint's JSON:API-shaped request body.
type downlinkBody struct {
	Data downlinkData `json:"data"`
}

type downlinkData struct {
	Type       string             `json:"type"`
	Attributes downlinkAttributes `json:"attributes"`
}

type downlinkAttributes struct {
	FPort      int    `json:"fPort"`
	Confirmed  bool   `json:"confirmed"`
	FRMPayload string `json:"frmPayload"`
}

// EncodeDownlink renders the downlink submit body for the given packet.
func EncodeDownlink(port int, confirmed bool, payload string) ([]byte, error) {
	return json.Marshal(downlinkBody{
		Data: downlinkData{
			Type: "downlink-packet",
			Attributes: downlinkAttributes{
				FPort:      port,
				Confirmed:  confirmed,
				FRMPayload: payload,
			},
		},
	})
}

// SubmitDownlink queues a downlink packet for the device.
func (c *Client) SubmitDownlink(ctx context.Context, deviceEUI string, port int, confirmed bool, payload string) error {
	body, err := EncodeDownlink(port, confirmed, payload)
	if err != nil {
		return fmt.Errorf("encoding downlink: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, DownlinkPath(deviceEUI), nil, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &ConnectionError{URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ConnectionError{
			URL:    req.URL.String(),
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(respBody)),
		}
	}

	return nil
}
