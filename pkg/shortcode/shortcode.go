// Package shortcode generates the compact shareable codes that address
// patient statements without authentication. Codes draw from a fixed
// alphabet that excludes visually ambiguous characters (0/O, 1/I) so they
// survive being read over the phone or typed from paper.
package shortcode

import (
	"crypto/rand"
	"fmt"
)

// Alphabet is the full set of characters a short code may contain.
const Alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// DefaultLength is the code length used for statement short codes.
const DefaultLength = 8

// New returns a random code of the given length. Codes are case-sensitive
// and compared exactly; callers must not fold case before lookup.
func New(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(buf), nil
}

// Valid reports whether s has the given length and contains only characters
// from the code alphabet.
func Valid(s string, length int) bool {
	if length <= 0 {
		length = DefaultLength
	}
	if len(s) != length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !inAlphabet(s[i]) {
			return false
		}
	}
	return true
}

func inAlphabet(c byte) bool {
	for i := 0; i < len(Alphabet); i++ {
		if Alphabet[i] == c {
			return true
		}
	}
	return false
}
