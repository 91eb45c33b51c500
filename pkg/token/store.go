package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wavetapco/wavetap/pkg/filelock"
)

// AuthError is a fatal authentication failure: the token endpoint was
// unreachable, returned an error body, or returned a response missing
// required fields. The raw response body is carried for diagnosis.
type AuthError struct {
	Op   string
	Body string
	Err  error
}

func (e *AuthError) Error() string {
	msg := "auth: " + e.Op
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" {
		msg += " (response: " + e.Body + ")"
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Config holds everything the Store needs to reach the authorization
// endpoint and locate the shared cache.
type Config struct {
	// TokenURL is the authorization endpoint for the
	// client-credentials grant.
	TokenURL string

	// Audience is sent with the grant request when non-empty.
	Audience string

	// ClientID and ClientSecret authenticate the grant request via
	// HTTP basic auth.
	ClientID     string
	ClientSecret string

	// CachePath is the shared token cache file. The companion lock
	// file lives next to it.
	CachePath string

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client

	// Now overrides the clock, mainly for tests.
	Now func() time.Time

	Logger *zap.Logger
}

// Store owns the cached token. It is constructed once per invocation
// with injected cache-location configuration; there is no ambient state.
// The cache file itself is shared across processes and guarded by a
// cross-process file lock.
type Store struct {
	config Config
	http   *http.Client
	now    func() time.Time
	logger *zap.Logger
}

// NewStore creates a Store for the given configuration.
func NewStore(config Config) *Store {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		config: config,
		http:   httpClient,
		now:    now,
		logger: logger,
	}
}

// newLock returns a fresh lock handle on the cache's companion lock
// file. Each acquisition gets its own file descriptor so concurrent
// callers within one process serialize the same way separate processes
// do.
func (s *Store) newLock() *filelock.Lock {
	return filelock.New(s.config.CachePath+".lock", s.logger)
}

// Get returns a valid access token. The fast path (fresh cached token)
// makes zero network calls; otherwise exactly one refresh round trip is
// issued under the cross-process lock.
func (s *Store) Get(ctx context.Context) (string, error) {
	lock := s.newLock()
	if err := lock.Acquire(); err != nil {
		return "", fmt.Errorf("acquiring token lock: %w", err)
	}
	defer func() { _ = lock.Release() }()

	if tok := s.readCache(); tok.Valid(s.now()) {
		s.logger.Debug("token cache hit",
			zap.Time("expires_on", tok.ExpiresAt()),
		)
		return tok.AccessToken, nil
	}

	tok, err := s.refreshLocked(ctx)
	if err != nil {
		return "", err
	}

	return tok.AccessToken, nil
}

// Refresh forces a new token: the cached record is invalidated and one
// grant round trip is issued regardless of cached validity.
func (s *Store) Refresh(ctx context.Context) (*Token, error) {
	lock := s.newLock()
	if err := lock.Acquire(); err != nil {
		return nil, fmt.Errorf("acquiring token lock: %w", err)
	}
	defer func() { _ = lock.Release() }()

	if err := os.Remove(s.config.CachePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("invalidating token cache: %w", err)
	}

	return s.refreshLocked(ctx)
}

// Cached returns the persisted token record without touching the
// network. Returns nil when the cache is absent or malformed.
func (s *Store) Cached() *Token {
	lock := s.newLock()
	if err := lock.Acquire(); err != nil {
		return nil
	}
	defer func() { _ = lock.Release() }()

	return s.readCache()
}

// readCache loads the persisted record. A missing or corrupt record is a
// cache miss, not an error: the cache is silently rebuilt on refresh.
func (s *Store) readCache() *Token {
	data, err := os.ReadFile(s.config.CachePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("token cache unreadable, treating as miss", zap.Error(err))
		}
		return nil
	}

	tok, err := DecodeCache(data)
	if err != nil {
		s.logger.Debug("token cache malformed, treating as miss", zap.Error(err))
		return nil
	}

	return tok
}

// tokenResponse is the authorization endpoint's JSON response. A
// successful grant carries the first four fields; a rejected grant
// carries error/error_description instead.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`

	ErrorCode        string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// refreshLocked issues the client-credentials grant and persists the
// resulting record. Caller must hold the lock.
func (s *Store) refreshLocked(ctx context.Context) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if s.config.Audience != "" {
		form.Set("audience", s.config.Audience)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthError{Op: "building token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.config.ClientID, s.config.ClientSecret)

	s.logger.Debug("refreshing token", zap.String("endpoint", s.config.TokenURL))

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, &AuthError{Op: "contacting token endpoint", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AuthError{Op: "reading token response", Err: err}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &AuthError{Op: "parsing token response", Body: string(body), Err: err}
	}

	if tr.ErrorCode != "" || tr.ErrorDescription != "" {
		return nil, &AuthError{
			Op:  "token endpoint rejected grant",
			Err: fmt.Errorf("%s: %s", tr.ErrorCode, tr.ErrorDescription),
		}
	}

	if tr.AccessToken == "" || tr.TokenType == "" || tr.ExpiresIn == 0 || tr.RefreshToken == "" {
		return nil, &AuthError{
			Op:   "token response missing required fields",
			Body: string(body),
		}
	}

	acquiredOn := s.now().Unix()
	tok := &Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		ExpiresIn:    tr.ExpiresIn,
		AcquiredOn:   acquiredOn,
		ExpiresOn:    acquiredOn + tr.ExpiresIn,
		RefreshToken: tr.RefreshToken,
	}

	if err := s.persist(tok); err != nil {
		return nil, err
	}

	s.logger.Debug("token refreshed",
		zap.Time("expires_on", tok.ExpiresAt()),
	)

	return tok, nil
}

// persist atomically replaces the cache record (write-new-then-rename)
// so concurrent readers never observe a partial record.
func (s *Store) persist(tok *Token) error {
	dir := filepath.Dir(s.config.CachePath)

	tmpFile, err := os.CreateTemp(dir, "token-cache-*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}

	if err := tmpFile.Chmod(0o600); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp cache file: %w", err)
	}

	if _, err := tmpFile.Write(EncodeCache(tok)); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("writing temp cache file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp cache file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), s.config.CachePath); err != nil {
		return fmt.Errorf("persisting token cache: %w", err)
	}

	return nil
}
