package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRequest = "marksheet/request/v1"
	DomainResult  = "marksheet/result/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte separator
// prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RequestFingerprint computes a stable identity for a request body.
// Used as the idempotency key when the transport envelope carries no
// request identifier: the same logical body always fingerprints the
// same regardless of whitespace, key order, or string normalization.
func RequestFingerprint(body Value) (string, error) {
	canonical, err := MarshalCanonical(body)
	if err != nil {
		return "", fmt.Errorf("RequestFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRequest, canonical), nil
}

// ResultDigest computes a stable identity for a query result set.
// Useful for verifying that repeated evaluation of the same batch
// produced identical output.
func ResultDigest(result Value) (string, error) {
	canonical, err := MarshalCanonical(result)
	if err != nil {
		return "", fmt.Errorf("ResultDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainResult, canonical), nil
}

// MustRequestFingerprint is like RequestFingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRequestFingerprint(body Value) string {
	fp, err := RequestFingerprint(body)
	if err != nil {
		panic(err)
	}
	return fp
}
