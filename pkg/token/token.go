// Package token manages the OAuth2 client-credentials token shared by
// every wavetap invocation: acquiring it from the authorization endpoint,
// caching it on disk, and serializing refreshes across processes.
package token

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Token is the cached access token record. The cache file is key-value
// text, one entry per line, shared across unrelated process invocations.
type Token struct {
	AccessToken  string
	TokenType    string
	ExpiresIn    int64
	AcquiredOn   int64
	ExpiresOn    int64
	RefreshToken string
}

// Valid reports whether the token is still usable at the given instant.
func (t *Token) Valid(now time.Time) bool {
	return t != nil && now.Unix() < t.ExpiresOn
}

// ExpiresAt returns the expiry as a time.Time.
func (t *Token) ExpiresAt() time.Time {
	return time.Unix(t.ExpiresOn, 0)
}

// Cache record keys. "aquired_on" is the historical on-disk spelling;
// changing it would invalidate every existing cache.
const (
	keyAccessToken  = "access_token"
	keyExpiresIn    = "expires_in"
	keyAcquiredOn   = "aquired_on"
	keyExpiresOn    = "expires_on"
	keyRefreshToken = "refresh_token"

	// token_type is written for completeness but is not required for a
	// cache hit: older caches never stored it.
	keyTokenType = "token_type"
)

// EncodeCache renders the token as the key-value cache record.
func EncodeCache(t *Token) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "%s=%s\n", keyAccessToken, t.AccessToken)
	if t.TokenType != "" {
		fmt.Fprintf(&b, "%s=%s\n", keyTokenType, t.TokenType)
	}
	fmt.Fprintf(&b, "%s=%d\n", keyExpiresIn, t.ExpiresIn)
	fmt.Fprintf(&b, "%s=%d\n", keyAcquiredOn, t.AcquiredOn)
	fmt.Fprintf(&b, "%s=%d\n", keyExpiresOn, t.ExpiresOn)
	fmt.Fprintf(&b, "%s=%s\n", keyRefreshToken, t.RefreshToken)

	return []byte(b.String())
}

// DecodeCache parses a cache record. Any missing or malformed required
// field returns an error; callers treat that as a cache miss, never as a
// fatal condition.
func DecodeCache(data []byte) (*Token, error) {
	fields := make(map[string]string)

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("malformed cache line %q", line)
		}
		fields[key] = value
	}

	for _, key := range []string{keyAccessToken, keyExpiresIn, keyAcquiredOn, keyExpiresOn, keyRefreshToken} {
		if fields[key] == "" {
			return nil, fmt.Errorf("cache record missing %s", key)
		}
	}

	expiresIn, err := strconv.ParseInt(fields[keyExpiresIn], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", keyExpiresIn, err)
	}

	acquiredOn, err := strconv.ParseInt(fields[keyAcquiredOn], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", keyAcquiredOn, err)
	}

	expiresOn, err := strconv.ParseInt(fields[keyExpiresOn], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", keyExpiresOn, err)
	}

	return &Token{
		AccessToken:  fields[keyAccessToken],
		TokenType:    fields[keyTokenType],
		ExpiresIn:    expiresIn,
		AcquiredOn:   acquiredOn,
		ExpiresOn:    expiresOn,
		RefreshToken: fields[keyRefreshToken],
	}, nil
}
