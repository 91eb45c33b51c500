package dotdir

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestDotdir(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Dotdir Suite")
}

var _ = Describe("Manager", func() {
	Describe("Target", func() {
		It("prefers the provided override", func() {
			override := filepath.Join(GinkgoT().TempDir(), "custom")

			target, err := NewManager().Target(override)
			Expect(err).NotTo(HaveOccurred())
			Expect(target).To(Equal(override))
		})

		It("creates the override directory when missing", func() {
			override := filepath.Join(GinkgoT().TempDir(), "created", "nested")

			target, err := NewManager().Target(override)
			Expect(err).NotTo(HaveOccurred())

			info, err := os.Stat(target)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.IsDir()).To(BeTrue())
		})

		It("returns an absolute path", func() {
			override := filepath.Join(GinkgoT().TempDir(), "abs-check")

			target, err := NewManager().Target(override)
			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.IsAbs(target)).To(BeTrue())
		})
	})
})
