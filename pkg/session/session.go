// Package session assembles the authenticated API client for one CLI
// invocation: stored credentials, the shared token store, and the feed
// client wired together from resolved configuration.
package session

import (
	"errors"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/wavetapco/wavetap/pkg/credentials"
	"github.com/wavetapco/wavetap/pkg/dotdir"
	"github.com/wavetapco/wavetap/pkg/feed"
	"github.com/wavetapco/wavetap/pkg/token"
)

// tokenCacheFile is the shared token cache inside the .wavetap/
// directory. Its companion lock file gets a ".lock" suffix.
const tokenCacheFile = "token.cache"

// ErrNoCredentials is returned when no client id/secret pair has been
// stored yet.
var ErrNoCredentials = errors.New("no stored credentials; run 'wavetap auth login' first")

// Options carries the resolved configuration a session needs.
type Options struct {
	APIURL    string
	TokenURL  string
	Audience  string
	ConfigDir string
	Logger    *zap.Logger
}

// Session is one invocation's view of the network API.
type Session struct {
	Tokens *token.Store
	Client *feed.Client
}

// New builds a Session. It fails fast when credentials are missing so
// the user sees a clear remediation instead of a 401 later.
func New(opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	credMgr, err := credentials.NewManager(opts.ConfigDir)
	if err != nil {
		return nil, err
	}

	creds, err := credMgr.Load()
	if err != nil {
		return nil, err
	}

	if !creds.Configured() {
		return nil, ErrNoCredentials
	}

	ddm := dotdir.NewManager()
	target, err := ddm.Target(opts.ConfigDir)
	if err != nil {
		return nil, err
	}

	tokens := token.NewStore(token.Config{
		TokenURL:     opts.TokenURL,
		Audience:     opts.Audience,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		CachePath:    filepath.Join(target, tokenCacheFile),
		Logger:       logger,
	})

	// No overall client timeout: feed connections are long-lived and
	// are torn down through request contexts instead.
	client := feed.NewClient(opts.APIURL, tokens, &http.Client{}, logger)

	return &Session{
		Tokens: tokens,
		Client: client,
	}, nil
}
