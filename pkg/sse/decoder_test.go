package sse

import (
	"bytes"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestSSE(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "SSE Decoder Suite")
}

var _ = Describe("Decoder", func() {
	var logs *bytes.Buffer

	BeforeEach(func() {
		logs = &bytes.Buffer{}
	})

	Describe("Next", func() {
		Context("with standard SSE events", func() {
			It("parses a single event", func() {
				src := strings.NewReader("data: hello world\n\n")
				d := NewDecoder(src, logs, nil)

				ev, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("hello world"))
				Expect(ev.Type).To(BeEmpty())
				Expect(ev.ID).To(BeEmpty())

				ev, err = d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})

			It("parses multiple events", func() {
				src := strings.NewReader("data: first\n\ndata: second\n\n")
				d := NewDecoder(src, logs, nil)

				ev1, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev1.Data).To(Equal("first"))

				ev2, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev2.Data).To(Equal("second"))

				ev3, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev3).To(BeNil())
			})

			It("parses event type", func() {
				src := strings.NewReader("event: uplink\ndata: {\"time\":\"2026-08-25T10:00:00Z\"}\n\n")
				d := NewDecoder(src, logs, nil)

				ev, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Type).To(Equal("uplink"))
				Expect(ev.Data).To(Equal("{\"time\":\"2026-08-25T10:00:00Z\"}"))
			})

			It("joins multiple data lines with newline", func() {
				src := strings.NewReader("data: a\ndata: b\n\n")
				d := NewDecoder(src, logs, nil)

				ev, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("a\nb"))
			})

			It("resets event type between events", func() {
				src := strings.NewReader("event: uplink\ndata: one\n\ndata: two\n\n")
				d := NewDecoder(src, logs, nil)

				ev1, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev1.Type).To(Equal("uplink"))

				ev2, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev2.Type).To(BeEmpty())
				Expect(ev2.Data).To(Equal("two"))
			})
		})

		Context("with event IDs", func() {
			It("parses the id field", func() {
				src := strings.NewReader("id: 42\ndata: hello\n\n")
				d := NewDecoder(src, logs, nil)

				ev, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.ID).To(Equal("42"))
			})

			It("persists the last seen id across events", func() {
				src := strings.NewReader("id: 7\ndata: first\n\ndata: second\n\n")
				d := NewDecoder(src, logs, nil)

				ev1, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev1.ID).To(Equal("7"))

				ev2, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev2.ID).To(Equal("7"))
			})

			It("replaces the persisted id when a new one arrives", func() {
				src := strings.NewReader("id: 1\ndata: a\n\nid: 2\ndata: b\n\n")
				d := NewDecoder(src, logs, nil)

				ev1, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev1.ID).To(Equal("1"))

				ev2, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev2.ID).To(Equal("2"))
			})
		})

		Context("with retry fields", func() {
			It("records a numeric retry value", func() {
				src := strings.NewReader("retry: 3000\ndata: hello\n\n")
				d := NewDecoder(src, logs, nil)

				ev, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Retry).To(Equal(3000))
			})

			It("ignores a non-numeric retry value", func() {
				src := strings.NewReader("retry: soon\ndata: hello\n\n")
				d := NewDecoder(src, logs, nil)

				ev, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Retry).To(BeZero())
				Expect(ev.Data).To(Equal("hello"))
			})
		})

		Context("with empty data", func() {
			It("does not dispatch an event with an empty data buffer", func() {
				src := strings.NewReader("event: ping\n\ndata: real\n\n")
				d := NewDecoder(src, logs, nil)

				ev, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("real"))
			})

			It("dispatches when a data field is present but empty", func() {
				// "data:" contributes an empty line to the buffer, which
				// still counts as data.
				src := strings.NewReader("data:\n\n")
				d := NewDecoder(src, logs, nil)

				ev, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).NotTo(BeNil())
				Expect(ev.Data).To(BeEmpty())
			})

			It("returns nil on input with only blank lines", func() {
				src := strings.NewReader("\n\n\n")
				d := NewDecoder(src, logs, nil)

				ev, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})
		})

		Context("with comments and unknown fields", func() {
			It("skips comment lines", func() {
				src := strings.NewReader(": keep-alive\ndata: hello\n\n")
				d := NewDecoder(src, logs, nil)

				ev, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("hello"))
			})

			It("continues past unknown fields", func() {
				src := strings.NewReader("foo: bar\ndata: hello\n\n")
				d := NewDecoder(src, logs, nil)

				ev, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("hello"))
			})

			It("treats a colon-less line as a field with empty value", func() {
				src := strings.NewReader("data\ndata: hello\n\n")
				d := NewDecoder(src, logs, nil)

				ev, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("\nhello"))
			})

			It("handles data with no space after the colon", func() {
				src := strings.NewReader("data:no-space\n\n")
				d := NewDecoder(src, logs, nil)

				ev, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("no-space"))
			})
		})

		Context("with out-of-band log lines", func() {
			It("re-emits marker lines verbatim on the log writer", func() {
				src := strings.NewReader(LogMarker + " connected upstream\ndata: hello\n\n")
				d := NewDecoder(src, logs, nil)

				ev, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("hello"))
				Expect(logs.String()).To(Equal(LogMarker + " connected upstream\n"))
			})

			It("does not disturb the event being accumulated", func() {
				src := strings.NewReader("data: a\n" + LogMarker + " mid-event notice\ndata: b\n\n")
				d := NewDecoder(src, logs, nil)

				ev, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("a\nb"))
				Expect(logs.String()).To(ContainSubstring("mid-event notice"))
			})
		})

		Context("at end of stream", func() {
			It("returns nil on empty input", func() {
				src := strings.NewReader("")
				d := NewDecoder(src, logs, nil)

				ev, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})

			It("discards a half-built event with no terminating blank line", func() {
				src := strings.NewReader("data: unterminated")
				d := NewDecoder(src, logs, nil)

				ev, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})
		})
	})
})
