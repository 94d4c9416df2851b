// Package codegen produces the unguessable identifiers and secrets used by
// the initiation pipeline: invitation codes, PINs, membership codes, and
// membership keys. All randomness comes from crypto/rand.
package codegen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// InvitationCodeLength is the default length of an invitation code.
	InvitationCodeLength = 18
	// PINDigits is the default number of digits in an invitation PIN.
	PINDigits = 4

	alphanumerics = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	digits        = "0123456789"

	membershipCodePrefix   = "MEMBER-"
	membershipCodeHexBytes = 3
	membershipKeyBytes     = 32
)

// Code returns a random alphanumeric string of length n, suitable for a
// public-facing invitation code.
func Code(n int) (string, error) {
	return randomString(n, alphanumerics)
}

// PIN returns a random numeric secret with the given number of digits.
func PIN(n int) (string, error) {
	return randomString(n, digits)
}

// MembershipCode returns a public membership identifier of the form
// MEMBER-XXXXXX (upper-case hex).
func MembershipCode() (string, error) {
	b := make([]byte, membershipCodeHexBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate membership code: %w", err)
	}
	return membershipCodePrefix + strings.ToUpper(hex.EncodeToString(b)), nil
}

// MembershipKey returns the secret membership credential: 32 random bytes,
// hex encoded.
func MembershipKey() (string, error) {
	b := make([]byte, membershipKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate membership key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// randomString picks n characters from charset without modulo bias: bytes
// outside the largest multiple of len(charset) are discarded and redrawn.
func randomString(n int, charset string) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("length must be positive, got %d", n)
	}
	max := byte(256 - 256%len(charset))
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= max {
				continue
			}
			out = append(out, charset[int(b)%len(charset)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
