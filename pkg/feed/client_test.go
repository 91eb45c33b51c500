package feed

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestFeed(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Feed Client Suite")
}

// staticTokens is a TokenSource returning a fixed token.
type staticTokens struct {
	token string
	err   error
}

func (s *staticTokens) Get(_ context.Context) (string, error) {
	return s.token, s.err
}

var _ = Describe("Client", func() {
	var (
		server  *httptest.Server
		handler http.HandlerFunc
	)

	newClient := func() *Client {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
		DeferCleanup(server.Close)

		return NewClient(server.URL, &staticTokens{token: "test-token"}, server.Client(), nil)
	}

	Describe("feed paths", func() {
		It("names the uplink and downlink feeds for a device", func() {
			Expect(UplinkPath("ffffffffff00001b")).To(Equal("/devices/ffffffffff00001b/uplinks"))
			Expect(DownlinkPath("ffffffffff00001b")).To(Equal("/devices/ffffffffff00001b/downlinks"))
		})

		It("escapes hostile device identifiers", func() {
			Expect(UplinkPath("a/b")).To(Equal("/devices/a%2Fb/uplinks"))
		})
	})

	Describe("OpenStream", func() {
		It("sends an authenticated event-stream request", func() {
			var gotAuth, gotAccept, gotCorrelation string

			handler = func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				gotAccept = r.Header.Get("Accept")
				gotCorrelation = r.Header.Get("X-Correlation-ID")
				_, _ = w.Write([]byte("data: hello\n\n"))
			}

			client := newClient()

			body, err := client.OpenStream(context.Background(), UplinkPath("dev1"), Filters{})
			Expect(err).NotTo(HaveOccurred())
			defer body.Close()

			Expect(gotAuth).To(Equal("Bearer test-token"))
			Expect(gotAccept).To(Equal("text/event-stream"))
			Expect(gotCorrelation).NotTo(BeEmpty())
		})

		It("uses one correlation id for every request of an invocation", func() {
			seen := make(map[string]bool)

			handler = func(w http.ResponseWriter, r *http.Request) {
				seen[r.Header.Get("X-Correlation-ID")] = true
			}

			client := newClient()

			for i := 0; i < 3; i++ {
				body, err := client.OpenStream(context.Background(), UplinkPath("dev1"), Filters{})
				Expect(err).NotTo(HaveOccurred())
				_ = body.Close()
			}

			Expect(seen).To(HaveLen(1))
		})

		It("renders filters as query parameters", func() {
			var gotQuery map[string][]string

			handler = func(w http.ResponseWriter, r *http.Request) {
				gotQuery = r.URL.Query()
			}

			client := newClient()

			since := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
			until := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

			body, err := client.OpenStream(context.Background(), UplinkPath("dev1"), Filters{
				Since: since,
				Until: until,
			})
			Expect(err).NotTo(HaveOccurred())
			_ = body.Close()

			Expect(gotQuery).To(HaveKeyWithValue("since", []string{"2026-08-25T10:00:00Z"}))
			Expect(gotQuery).To(HaveKeyWithValue("until", []string{"2026-08-26T10:00:00Z"}))
			Expect(gotQuery).NotTo(HaveKey("follow"))
		})

		It("sets follow=true in follow mode", func() {
			var gotFollow string

			handler = func(w http.ResponseWriter, r *http.Request) {
				gotFollow = r.URL.Query().Get("follow")
			}

			client := newClient()

			body, err := client.OpenStream(context.Background(), UplinkPath("dev1"), Filters{Follow: true})
			Expect(err).NotTo(HaveOccurred())
			_ = body.Close()

			Expect(gotFollow).To(Equal("true"))
		})

		It("returns a ConnectionError with the body on a non-200 status", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte("device not visible to this client"))
			}

			client := newClient()

			_, err := client.OpenStream(context.Background(), UplinkPath("dev1"), Filters{})

			var connErr *ConnectionError
			Expect(errors.As(err, &connErr)).To(BeTrue())
			Expect(connErr.Status).To(Equal(http.StatusForbidden))
			Expect(connErr.Body).To(Equal("device not visible to this client"))
		})

		It("propagates token source failures without a request", func() {
			handler = func(_ http.ResponseWriter, _ *http.Request) {
				Fail("no request expected")
			}

			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handler(w, r)
			}))
			DeferCleanup(server.Close)

			client := NewClient(server.URL, &staticTokens{err: errors.New("auth broken")}, server.Client(), nil)

			_, err := client.OpenStream(context.Background(), UplinkPath("dev1"), Filters{})
			Expect(err).To(MatchError(ContainSubstring("auth broken")))
		})
	})

	Describe("FetchDocument", func() {
		It("requests JSON and returns the raw document", func() {
			var gotAccept string

			handler = func(w http.ResponseWriter, r *http.Request) {
				gotAccept = r.Header.Get("Accept")
				_, _ = w.Write([]byte(`{"data":[]}`))
			}

			client := newClient()

			doc, err := client.FetchDocument(context.Background(), UplinkPath("dev1"), Filters{})
			Expect(err).NotTo(HaveOccurred())
			Expect(string(doc)).To(Equal(`{"data":[]}`))
			Expect(gotAccept).To(Equal("application/json"))
		})

		It("returns a ConnectionError on a non-200 status", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte("no such device"))
			}

			client := newClient()

			_, err := client.FetchDocument(context.Background(), UplinkPath("dev1"), Filters{})

			var connErr *ConnectionError
			Expect(errors.As(err, &connErr)).To(BeTrue())
			Expect(connErr.Status).To(Equal(http.StatusNotFound))
		})
	})

	Describe("EncodeDownlink", func() {
		It("renders the submit body shape exactly", func() {
			body, err := EncodeDownlink(1, false, "0101")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal(`{"data":{"type":"downlink-packet","attributes":{"fPort":1,"confirmed":false,"frmPayload":"0101"}}}`))
		})
	})

	Describe("SubmitDownlink", func() {
		It("posts the packet to the downlink feed", func() {
			var gotMethod, gotPath, gotContentType, gotBody string

			handler = func(w http.ResponseWriter, r *http.Request) {
				gotMethod = r.Method
				gotPath = r.URL.Path
				gotContentType = r.Header.Get("Content-Type")
				raw, _ := io.ReadAll(r.Body)
				gotBody = string(raw)
				w.WriteHeader(http.StatusAccepted)
			}

			client := newClient()

			Expect(client.SubmitDownlink(context.Background(), "dev1", 12, true, "deadbeef")).To(Succeed())

			Expect(gotMethod).To(Equal(http.MethodPost))
			Expect(gotPath).To(Equal("/devices/dev1/downlinks"))
			Expect(gotContentType).To(Equal("application/json"))
			Expect(gotBody).To(Equal(`{"data":{"type":"downlink-packet","attributes":{"fPort":12,"confirmed":true,"frmPayload":"deadbeef"}}}`))
		})

		It("returns a ConnectionError on rejection", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte("fPort out of range"))
			}

			client := newClient()

			err := client.SubmitDownlink(context.Background(), "dev1", 0, false, "0101")

			var connErr *ConnectionError
			Expect(errors.As(err, &connErr)).To(BeTrue())
			Expect(connErr.Body).To(Equal("fPort out of range"))
		})
	})
})
