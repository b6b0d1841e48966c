// Package idgen draws short numeric codes from crypto/rand.
package idgen

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Digits returns n independent, uniformly random decimal digits.
func Digits(n int) (string, error) {
	return digitsFrom(rand.Reader, n)
}

// Six returns a 6-digit code. It is the shape of appointment numbers and OTPs.
func Six() (string, error) {
	return Digits(6)
}

func digitsFrom(r io.Reader, n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			// 250 is the largest multiple of 10 below 256; rejecting the
			// rest keeps each digit uniform.
			if b >= 250 {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
