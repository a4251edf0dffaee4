package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestFingerprintStable(t *testing.T) {
	body := Object{
		"result": Array{
			Object{
				"name":       Str("Amara"),
				"attendance": Num(40),
			},
		},
	}

	fp1, err := RequestFingerprint(body)
	require.NoError(t, err)
	fp2, err := RequestFingerprint(body)
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 64) // hex-encoded SHA-256
}

func TestRequestFingerprintIgnoresByteLayout(t *testing.T) {
	// Same logical body, different whitespace and key order.
	a, err := Decode([]byte(`{"result":[{"name":"Amara","attendance":40}]}`))
	require.NoError(t, err)
	b, err := Decode([]byte("{\n  \"result\": [ {\"attendance\": 40, \"name\": \"Amara\"} ]\n}"))
	require.NoError(t, err)

	fpA, err := RequestFingerprint(a)
	require.NoError(t, err)
	fpB, err := RequestFingerprint(b)
	require.NoError(t, err)

	assert.Equal(t, fpA, fpB)
}

func TestRequestFingerprintDiffersOnContent(t *testing.T) {
	a := Object{"result": Array{Object{"name": Str("Amara")}}}
	b := Object{"result": Array{Object{"name": Str("Bilal")}}}

	fpA := MustRequestFingerprint(a)
	fpB := MustRequestFingerprint(b)

	assert.NotEqual(t, fpA, fpB)
}

func TestDomainSeparation(t *testing.T) {
	// The same payload hashed as a request and as a result must not
	// collide.
	v := Object{"name": Str("Amara")}

	req, err := RequestFingerprint(v)
	require.NoError(t, err)
	res, err := ResultDigest(v)
	require.NoError(t, err)

	assert.NotEqual(t, req, res)
}
