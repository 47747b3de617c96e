package security

import (
	"crypto/rand"
	"crypto/subtle"
)

// codeAlphabet has 32 symbols without look-alikes (0/O, 1/I), so a byte
// modulo its length is unbiased.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RandomCode returns n characters from codeAlphabet, e.g. an order suffix.
func RandomCode(n int) string {
	if n <= 0 {
		return ""
	}
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}

// SecretsEqual compares two shared secrets in constant time. Empty secrets
// never match.
func SecretsEqual(provided, expected string) bool {
	if provided == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
