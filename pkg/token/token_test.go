package token

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Token", func() {
	Describe("Valid", func() {
		It("is valid before expiry", func() {
			now := time.Now()
			tok := &Token{ExpiresOn: now.Unix() + 60}
			Expect(tok.Valid(now)).To(BeTrue())
		})

		It("is invalid at expiry", func() {
			now := time.Now()
			tok := &Token{ExpiresOn: now.Unix()}
			Expect(tok.Valid(now)).To(BeFalse())
		})

		It("is invalid when nil", func() {
			var tok *Token
			Expect(tok.Valid(time.Now())).To(BeFalse())
		})
	})

	Describe("the cache record", func() {
		It("round-trips a full token", func() {
			tok := &Token{
				AccessToken:  "abc123",
				TokenType:    "Bearer",
				ExpiresIn:    3600,
				AcquiredOn:   1756100000,
				ExpiresOn:    1756103600,
				RefreshToken: "refresh456",
			}

			decoded, err := DecodeCache(EncodeCache(tok))
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded).To(Equal(tok))
		})

		It("writes the historical aquired_on key", func() {
			tok := &Token{
				AccessToken:  "abc",
				ExpiresIn:    60,
				AcquiredOn:   100,
				ExpiresOn:    160,
				RefreshToken: "ref",
			}

			Expect(string(EncodeCache(tok))).To(ContainSubstring("aquired_on=100\n"))
		})

		It("decodes records without token_type", func() {
			record := "access_token=abc\nexpires_in=60\naquired_on=100\nexpires_on=160\nrefresh_token=ref\n"

			tok, err := DecodeCache([]byte(record))
			Expect(err).NotTo(HaveOccurred())
			Expect(tok.AccessToken).To(Equal("abc"))
			Expect(tok.TokenType).To(BeEmpty())
		})

		It("rejects a record missing a required field", func() {
			record := "access_token=abc\nexpires_in=60\n"

			_, err := DecodeCache([]byte(record))
			Expect(err).To(HaveOccurred())
		})

		It("rejects a record with a malformed line", func() {
			record := "access_token=abc\nnot a key value line\n"

			_, err := DecodeCache([]byte(record))
			Expect(err).To(HaveOccurred())
		})

		It("rejects a record with a non-numeric timestamp", func() {
			record := "access_token=abc\nexpires_in=60\naquired_on=yesterday\nexpires_on=160\nrefresh_token=ref\n"

			_, err := DecodeCache([]byte(record))
			Expect(err).To(HaveOccurred())
		})
	})
})
