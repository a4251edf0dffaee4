// Package ir defines the value tree that validated record batches are
// represented as, along with canonical JSON serialization and
// content-addressed fingerprints.
//
// Values form a closed set: Null, Str, Num, Bool, Array, Object, plus
// OrderedObject for evaluator output where key order is declared rather
// than sorted. The sealed interface keeps type switches exhaustive.
//
// Canonical serialization (MarshalCanonical) sorts map keys by UTF-16
// code units and NFC-normalizes strings, so the same logical value
// always produces the same bytes. Request fingerprints are built on it.
package ir
