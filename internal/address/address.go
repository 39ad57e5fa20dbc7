// Package address cleans and validates EVM account addresses before they are
// sent for checking. Checksummed (EIP-55) input is verified, lower- or
// upper-case input is accepted as is.
package address

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/crypto/sha3"
)

var (
	ErrInvalidFormat = errors.New("expected 0x-prefixed 40 hex chars")
	ErrBadChecksum   = errors.New("EIP-55 checksum mismatch")
)

var shape = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Normalize trims and lower-cases s for comparisons and set membership.
func Normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Clean drops every character that is not a letter, digit or underscore, which
// strips separators, quotes and stray whitespace from pasted or uploaded lists.
func Clean(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// Validate checks the address shape and, for mixed-case input, its checksum.
func Validate(s string) error {
	if !shape.MatchString(s) {
		return fmt.Errorf("%q: %w", s, ErrInvalidFormat)
	}
	body := s[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return nil
	}
	want, _ := Checksum(s)
	if s != want {
		return fmt.Errorf("%q: %w", s, ErrBadChecksum)
	}
	return nil
}

// Checksum returns the EIP-55 mixed-case encoding of s.
func Checksum(s string) (string, error) {
	if !shape.MatchString(s) {
		return "", fmt.Errorf("%q: %w", s, ErrInvalidFormat)
	}
	lower := strings.ToLower(s[2:])
	h := keccak256([]byte(lower))
	out := make([]byte, 0, 42)
	out = append(out, '0', 'x')
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		// Nibble i of the hash decides the case of hex letter i.
		nibble := h[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if c >= 'a' && c <= 'f' && nibble&0x0f >= 8 {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out), nil
}

func keccak256(b []byte) []byte {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(b)
	return hasher.Sum(nil)
}

// Rejected is an input that did not survive Partition.
type Rejected struct {
	Input  string `json:"input"`
	Reason string `json:"reason"`
}

// Partition cleans and validates every input. Valid addresses are returned
// once each (case-insensitively) in first-seen order, the rest with a reason.
func Partition(in []string) (valid []string, rejected []Rejected) {
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		a := Clean(raw)
		if err := Validate(a); err != nil {
			reason := ErrInvalidFormat.Error()
			if errors.Is(err, ErrBadChecksum) {
				reason = ErrBadChecksum.Error()
			}
			rejected = append(rejected, Rejected{Input: raw, Reason: reason})
			continue
		}
		k := Normalize(a)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		valid = append(valid, a)
	}
	return valid, rejected
}
