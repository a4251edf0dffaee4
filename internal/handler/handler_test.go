package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marklange/marksheet/internal/expr"
	"github.com/marklange/marksheet/internal/guard"
	"github.com/marklange/marksheet/internal/schema"
)

const testBody = `{"result":[
  {"name":"Amara","subject":{"science":90,"maths":70,"result":"pass"},"attendance":40},
  {"name":"Bilal","subject":{"science":100,"maths":50,"result":"fail"},"attendance":90},
  {"name":"Chen","subject":{"science":60,"maths":100,"result":"pass"},"attendance":85}
]}`

// newTestHandler builds a handler over a fresh in-memory guard with
// sequential trace ids, so response bodies are deterministic.
func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	v, err := schema.NewValidator()
	require.NoError(t, err)

	n := 0
	return New(
		v,
		expr.DefaultSet(),
		guard.New(guard.NewMemoryStore()),
		slog.New(slog.NewJSONHandler(io.Discard, nil)),
	).WithTraceIDFunc(func() string {
		n++
		return fmt.Sprintf("trace-%04d", n)
	})
}

func decodeBody(t *testing.T, resp Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Body, &out))
	return out
}

func TestHandleSuccess(t *testing.T) {
	h := newTestHandler(t)

	resp := h.Handle(Envelope{RequestID: "req-1", Body: []byte(testBody)})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "trace-0001", body["traceId"])

	queries, ok := body["queries"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"Amara", "Bilal", "Chen"}, queries["studentNames"])
	assert.Equal(t, []any{float64(90), float64(100), float64(60)}, queries["scienceMarks"])
	assert.Equal(t, []any{"Amara", "Bilal"}, queries["scienceAbove80"])
	assert.Equal(t, []any{"Amara", "Chen"}, queries["passedStudents"])
	assert.Equal(t, []any{"Amara"}, queries["passedLowAttendance"])
	assert.Equal(t, []any{"Bilal", "Chen"}, queries["perfectScore"])
	assert.Equal(t, []any{
		map[string]any{"Name": "Amara", "Result": "pass"},
		map[string]any{"Name": "Bilal", "Result": "fail"},
		map[string]any{"Name": "Chen", "Result": "pass"},
	}, queries["nameAndResult"])
}

func TestHandleDuplicateByRequestID(t *testing.T) {
	h := newTestHandler(t)

	first := h.Handle(Envelope{RequestID: "req-42", Body: []byte(testBody)})
	require.Equal(t, http.StatusOK, first.StatusCode)

	second := h.Handle(Envelope{RequestID: "req-42", Body: []byte(testBody)})
	require.Equal(t, http.StatusOK, second.StatusCode)

	body := decodeBody(t, second)
	assert.Equal(t, "already processed", body["status"])
	assert.Equal(t, "req-42", body["requestId"])
	assert.NotContains(t, body, "queries")
}

func TestHandleDuplicateIgnoresPayloadDifference(t *testing.T) {
	// Deduplication keys on the request id alone; a retry with a changed
	// payload is still the same logical request.
	h := newTestHandler(t)

	h.Handle(Envelope{RequestID: "req-42", Body: []byte(testBody)})

	other := `{"result":[{"name":"Dana","subject":{"science":10,"maths":20,"result":"fail"},"attendance":5}]}`
	resp := h.Handle(Envelope{RequestID: "req-42", Body: []byte(other)})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "already processed", body["status"])
}

func TestHandleFingerprintDedupe(t *testing.T) {
	// Without a request id the canonical body fingerprint is the key, so
	// whitespace and key-order differences do not defeat deduplication.
	h := newTestHandler(t)

	a := `{"result":[{"name":"Amara","subject":{"science":90,"maths":70,"result":"pass"},"attendance":40}]}`
	b := `{ "result": [ {"attendance": 40, "name": "Amara", "subject": {"maths": 70, "result": "pass", "science": 90}} ] }`

	first := h.Handle(Envelope{Body: []byte(a)})
	require.Equal(t, http.StatusOK, first.StatusCode)
	assert.Contains(t, decodeBody(t, first), "queries")

	second := h.Handle(Envelope{Body: []byte(b)})
	require.Equal(t, http.StatusOK, second.StatusCode)
	body := decodeBody(t, second)
	assert.Equal(t, "already processed", body["status"])
	assert.NotEmpty(t, body["requestId"])
}

func TestHandleFingerprintDistinguishesContent(t *testing.T) {
	h := newTestHandler(t)

	a := `{"result":[{"name":"Amara","subject":{"science":90,"maths":70,"result":"pass"},"attendance":40}]}`
	b := `{"result":[{"name":"Bilal","subject":{"science":90,"maths":70,"result":"pass"},"attendance":40}]}`

	first := h.Handle(Envelope{Body: []byte(a)})
	second := h.Handle(Envelope{Body: []byte(b)})

	assert.Contains(t, decodeBody(t, first), "queries")
	assert.Contains(t, decodeBody(t, second), "queries")
}

func TestHandleMissingBody(t *testing.T) {
	h := newTestHandler(t)

	resp := h.Handle(Envelope{RequestID: "req-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "missing request body", decodeBody(t, resp)["error"])
}

func TestHandleMalformedBody(t *testing.T) {
	h := newTestHandler(t)

	resp := h.Handle(Envelope{RequestID: "req-1", Body: []byte(`{"result":`)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "malformed request body", decodeBody(t, resp)["error"])
}

func TestHandleMissingResultField(t *testing.T) {
	h := newTestHandler(t)

	resp := h.Handle(Envelope{RequestID: "req-1", Body: []byte(`{"other":[]}`)})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "schema violation", body["error"])
	details, ok := body["details"].([]any)
	require.True(t, ok)
	require.Len(t, details, 1)
	assert.Equal(t, "result", details[0].(map[string]any)["path"])
}

func TestHandleSchemaViolation(t *testing.T) {
	h := newTestHandler(t)

	bad := `{"result":[{"name":"Amara","subject":{"science":120,"maths":70,"result":"pass"},"attendance":40}]}`
	resp := h.Handle(Envelope{RequestID: "req-1", Body: []byte(bad)})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "schema violation", body["error"])
	details, ok := body["details"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, details)
}

func TestHandleRejectedRequestStaysRetryable(t *testing.T) {
	// A request that failed validation is never marked processed, so a
	// corrected retry under the same id runs for real.
	h := newTestHandler(t)

	bad := `{"result":[{"name":"Amara","subject":{"science":120,"maths":70,"result":"pass"},"attendance":40}]}`
	resp := h.Handle(Envelope{RequestID: "req-1", Body: []byte(bad)})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = h.Handle(Envelope{RequestID: "req-1", Body: []byte(testBody)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, decodeBody(t, resp), "queries")
}

func TestHandleEmptyBatch(t *testing.T) {
	h := newTestHandler(t)

	resp := h.Handle(Envelope{RequestID: "req-1", Body: []byte(`{"result":[]}`)})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	queries := decodeBody(t, resp)["queries"].(map[string]any)
	for name, result := range queries {
		assert.Equal(t, []any{}, result, "query %q", name)
	}
}

func TestHandleDeterministic(t *testing.T) {
	// The same batch under distinct request ids yields byte-identical
	// query results.
	h := newTestHandler(t)

	first := h.Handle(Envelope{RequestID: "req-1", Body: []byte(testBody)})
	second := h.Handle(Envelope{RequestID: "req-2", Body: []byte(testBody)})

	var a, b struct {
		Queries json.RawMessage `json:"queries"`
	}
	require.NoError(t, json.Unmarshal(first.Body, &a))
	require.NoError(t, json.Unmarshal(second.Body, &b))
	assert.Equal(t, string(a.Queries), string(b.Queries))
}

func TestHandleGuardFailure(t *testing.T) {
	v, err := schema.NewValidator()
	require.NoError(t, err)

	h := New(
		v,
		expr.DefaultSet(),
		guard.New(brokenStore{}),
		slog.New(slog.NewJSONHandler(io.Discard, nil)),
	).WithTraceIDFunc(func() string { return "trace-err" })

	resp := h.Handle(Envelope{RequestID: "req-1", Body: []byte(testBody)})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal error", decodeBody(t, resp)["error"])
}

type brokenStore struct{}

func (brokenStore) Contains(string) (bool, error) { return false, fmt.Errorf("store down") }
func (brokenStore) Insert(string) error           { return fmt.Errorf("store down") }

func TestHandleMarkFailureStillSucceeds(t *testing.T) {
	// Losing the dedupe mark must not fail a request whose evaluation
	// already succeeded.
	v, err := schema.NewValidator()
	require.NoError(t, err)

	h := New(
		v,
		expr.DefaultSet(),
		guard.New(insertFailStore{}),
		slog.New(slog.NewJSONHandler(io.Discard, nil)),
	).WithTraceIDFunc(func() string { return "trace-mark" })

	resp := h.Handle(Envelope{RequestID: "req-1", Body: []byte(testBody)})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, decodeBody(t, resp), "queries")
}

type insertFailStore struct{}

func (insertFailStore) Contains(string) (bool, error) { return false, nil }
func (insertFailStore) Insert(string) error           { return fmt.Errorf("disk full") }
