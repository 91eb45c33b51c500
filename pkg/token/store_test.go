package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Store", func() {
	var (
		tmpDir    string
		cachePath string
		calls     atomic.Int64
		server    *httptest.Server
		now       time.Time
	)

	grantResponse := `{
		"access_token": "fresh-token",
		"token_type": "Bearer",
		"expires_in": 3600,
		"refresh_token": "fresh-refresh"
	}`

	newStore := func(handler http.HandlerFunc) *Store {
		server = httptest.NewServer(handler)
		DeferCleanup(server.Close)

		return NewStore(Config{
			TokenURL:     server.URL,
			Audience:     "https://network.example/",
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			CachePath:    cachePath,
			HTTPClient:   server.Client(),
			Now:          func() time.Time { return now },
		})
	}

	grantHandler := func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(grantResponse))
	}

	writeCache := func(tok *Token) {
		Expect(os.WriteFile(cachePath, EncodeCache(tok), 0o600)).To(Succeed())
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		cachePath = filepath.Join(tmpDir, "token.cache")
		calls.Store(0)
		now = time.Unix(1756100000, 0)
	})

	Describe("Get", func() {
		Context("with a fresh cached token", func() {
			It("makes zero network calls", func() {
				writeCache(&Token{
					AccessToken:  "cached-token",
					ExpiresIn:    3600,
					AcquiredOn:   now.Unix() - 100,
					ExpiresOn:    now.Unix() + 3500,
					RefreshToken: "cached-refresh",
				})

				store := newStore(grantHandler)

				accessToken, err := store.Get(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(accessToken).To(Equal("cached-token"))
				Expect(calls.Load()).To(BeZero())
			})
		})

		Context("with an expired cached token", func() {
			It("issues exactly one refresh round trip", func() {
				writeCache(&Token{
					AccessToken:  "stale-token",
					ExpiresIn:    3600,
					AcquiredOn:   now.Unix() - 7200,
					ExpiresOn:    now.Unix() - 3600,
					RefreshToken: "stale-refresh",
				})

				store := newStore(grantHandler)

				accessToken, err := store.Get(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(accessToken).To(Equal("fresh-token"))
				Expect(calls.Load()).To(Equal(int64(1)))
			})

			It("persists the new record with a derived expiry", func() {
				store := newStore(grantHandler)

				_, err := store.Get(context.Background())
				Expect(err).NotTo(HaveOccurred())

				data, err := os.ReadFile(cachePath)
				Expect(err).NotTo(HaveOccurred())

				tok, err := DecodeCache(data)
				Expect(err).NotTo(HaveOccurred())
				Expect(tok.AcquiredOn).To(Equal(now.Unix()))
				Expect(tok.ExpiresOn).To(Equal(tok.AcquiredOn + tok.ExpiresIn))
			})
		})

		Context("with a corrupt cache file", func() {
			It("treats it as a miss and refreshes", func() {
				Expect(os.WriteFile(cachePath, []byte("garbage\n"), 0o600)).To(Succeed())

				store := newStore(grantHandler)

				accessToken, err := store.Get(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(accessToken).To(Equal("fresh-token"))
				Expect(calls.Load()).To(Equal(int64(1)))
			})
		})

		Context("with concurrent callers", func() {
			It("serializes on the lock so only one caller refreshes", func() {
				store := newStore(grantHandler)

				var wg sync.WaitGroup
				for i := 0; i < 4; i++ {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()

						accessToken, err := store.Get(context.Background())
						Expect(err).NotTo(HaveOccurred())
						Expect(accessToken).To(Equal("fresh-token"))
					}()
				}
				wg.Wait()

				Expect(calls.Load()).To(Equal(int64(1)))
			})
		})

		Context("when the endpoint rejects the grant", func() {
			It("returns an AuthError carrying the rejection", func() {
				store := newStore(func(w http.ResponseWriter, _ *http.Request) {
					calls.Add(1)
					w.WriteHeader(http.StatusUnauthorized)
					_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"bad secret"}`))
				})

				_, err := store.Get(context.Background())

				var authErr *AuthError
				Expect(err).To(BeAssignableToTypeOf(authErr))
				Expect(err.Error()).To(ContainSubstring("invalid_client"))
				Expect(err.Error()).To(ContainSubstring("bad secret"))
			})
		})

		Context("when the response is missing required fields", func() {
			It("returns an AuthError carrying the raw body", func() {
				store := newStore(func(w http.ResponseWriter, _ *http.Request) {
					calls.Add(1)
					_, _ = w.Write([]byte(`{"access_token":"only-this"}`))
				})

				_, err := store.Get(context.Background())

				var authErr *AuthError
				Expect(err).To(BeAssignableToTypeOf(authErr))
				Expect(err.Error()).To(ContainSubstring("only-this"))
			})
		})

		It("sends the client-credentials grant with basic auth", func() {
			var gotGrant, gotAudience string
			var gotUser, gotPass string
			var basicOK bool

			store := newStore(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				Expect(r.ParseForm()).To(Succeed())
				gotGrant = r.PostForm.Get("grant_type")
				gotAudience = r.PostForm.Get("audience")
				gotUser, gotPass, basicOK = r.BasicAuth()
				_, _ = w.Write([]byte(grantResponse))
			})

			_, err := store.Get(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(gotGrant).To(Equal("client_credentials"))
			Expect(gotAudience).To(Equal("https://network.example/"))
			Expect(basicOK).To(BeTrue())
			Expect(gotUser).To(Equal("client-id"))
			Expect(gotPass).To(Equal("client-secret"))
		})
	})

	Describe("Refresh", func() {
		It("forces a round trip even when the cache is fresh", func() {
			writeCache(&Token{
				AccessToken:  "cached-token",
				ExpiresIn:    3600,
				AcquiredOn:   now.Unix(),
				ExpiresOn:    now.Unix() + 3600,
				RefreshToken: "cached-refresh",
			})

			store := newStore(grantHandler)

			tok, err := store.Refresh(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(tok.AccessToken).To(Equal("fresh-token"))
			Expect(calls.Load()).To(Equal(int64(1)))
		})
	})

	Describe("Cached", func() {
		It("returns nil when no cache exists", func() {
			store := newStore(grantHandler)
			Expect(store.Cached()).To(BeNil())
			Expect(calls.Load()).To(BeZero())
		})

		It("returns the persisted record without network access", func() {
			writeCache(&Token{
				AccessToken:  "cached-token",
				ExpiresIn:    3600,
				AcquiredOn:   now.Unix(),
				ExpiresOn:    now.Unix() + 3600,
				RefreshToken: "cached-refresh",
			})

			store := newStore(grantHandler)

			tok := store.Cached()
			Expect(tok).NotTo(BeNil())
			Expect(tok.AccessToken).To(Equal("cached-token"))
			Expect(calls.Load()).To(BeZero())
		})
	})
})
