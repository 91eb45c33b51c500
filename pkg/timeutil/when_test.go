package timeutil

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestTimeutil(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Timeutil Suite")
}

var _ = Describe("ParseWhen", func() {
	It("parses RFC3339", func() {
		got, err := ParseWhen("2026-08-25T10:30:00Z")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)))
	})

	It("parses RFC3339 with a numeric offset", func() {
		got, err := ParseWhen("2026-08-25T10:30:00+02:00")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.UTC()).To(Equal(time.Date(2026, 8, 25, 8, 30, 0, 0, time.UTC)))
	})

	It("parses a date with seconds in local time", func() {
		got, err := ParseWhen("2026-08-25 10:30:45")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(time.Date(2026, 8, 25, 10, 30, 45, 0, time.Local)))
	})

	It("parses a date with minute precision in local time", func() {
		got, err := ParseWhen("2026-08-25 10:30")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(time.Date(2026, 8, 25, 10, 30, 0, 0, time.Local)))
	})

	It("parses a bare date as local midnight", func() {
		got, err := ParseWhen("2026-08-25")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(time.Date(2026, 8, 25, 0, 0, 0, 0, time.Local)))
	})

	It("rejects unrecognized input", func() {
		_, err := ParseWhen("yesterday")
		Expect(err).To(MatchError(ContainSubstring("unrecognized time")))
	})

	It("rejects the empty string", func() {
		_, err := ParseWhen("")
		Expect(err).To(HaveOccurred())
	})
})
