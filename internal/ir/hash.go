package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainWindow is the domain prefix for window digests. It changes with
// FormatVersion, so digests of different encodings never collide.
const DomainWindow = "allocaudit/window/v" + FormatVersion

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// WindowDigest computes the content-addressed digest of an event sequence.
// Order matters: the same events in a different order hash differently.
func WindowDigest(events []Event) (string, error) {
	records := make([]any, len(events))
	for i, e := range events {
		records[i] = ToRecord(e).canonicalValue()
	}
	canonical, err := MarshalCanonical(records)
	if err != nil {
		return "", fmt.Errorf("WindowDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainWindow, canonical), nil
}

// MustWindowDigest is like WindowDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustWindowDigest(events []Event) string {
	digest, err := WindowDigest(events)
	if err != nil {
		panic(err)
	}
	return digest
}
