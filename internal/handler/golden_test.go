package handler

import (
	"net/http"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// Golden coverage is limited to bodies this package fully controls.
// CUE violation text is asserted loosely in handler_test.go instead.

func TestGoldenSuccessBody(t *testing.T) {
	h := newTestHandler(t)

	resp := h.Handle(Envelope{RequestID: "req-1", Body: []byte(testBody)})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	g := goldie.New(t)
	g.Assert(t, "success_body", resp.Body)
}

func TestGoldenDuplicateAckBody(t *testing.T) {
	h := newTestHandler(t)

	h.Handle(Envelope{RequestID: "req-42", Body: []byte(testBody)})
	resp := h.Handle(Envelope{RequestID: "req-42", Body: []byte(testBody)})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	g := goldie.New(t)
	g.Assert(t, "duplicate_ack_body", resp.Body)
}

func TestGoldenMissingBodyError(t *testing.T) {
	h := newTestHandler(t)

	resp := h.Handle(Envelope{RequestID: "req-1"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	g := goldie.New(t)
	g.Assert(t, "missing_body_error", resp.Body)
}

func TestGoldenMissingResultError(t *testing.T) {
	h := newTestHandler(t)

	resp := h.Handle(Envelope{RequestID: "req-1", Body: []byte(`{"other":[]}`)})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	g := goldie.New(t)
	g.Assert(t, "missing_result_error", resp.Body)
}
