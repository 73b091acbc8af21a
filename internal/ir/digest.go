package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests.
// The version suffix leaves room for a future algorithm change.
const (
	DomainRecord = "recordstore/record/v1"
	DomainState  = "recordstore/state/v1"
)

// hashWithDomain computes a SHA-256 hash with domain separation:
// SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest returns the hex SHA-256 of v's canonical JSON under domain.
// Values that are Equal have the same digest: 2 and 2.0 both encode as 2
// and object keys are sorted.
func Digest(domain string, v any) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return hashWithDomain(domain, data), nil
}

// RecordDigest is Digest under DomainRecord.
func RecordDigest(record any) (string, error) {
	return Digest(DomainRecord, record)
}

// StateDigest digests an ordered list of records. Order matters.
func StateDigest[T any](records []T) (string, error) {
	return Digest(DomainState, records)
}
