// Package handler processes request envelopes end to end: decode,
// schema validation, idempotency check, query evaluation, response
// shaping.
//
// Error taxonomy: a malformed body or schema violation is a client
// error carrying enough detail to correct the request; a duplicate
// request is not an error and acknowledges without re-evaluating; an
// operand-shape mismatch during evaluation is an opaque server error,
// logged but never leaked.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"

	"github.com/marklange/marksheet/internal/expr"
	"github.com/marklange/marksheet/internal/guard"
	"github.com/marklange/marksheet/internal/ir"
	"github.com/marklange/marksheet/internal/schema"
)

// Handler evaluates the fixed query set over validated batches.
// It holds no per-request state and is safe for concurrent use; the
// guard serializes its own store access.
type Handler struct {
	validator  *schema.Validator
	queries    *expr.Set
	guard      *guard.Guard
	log        *slog.Logger
	newTraceID func() string
}

// New creates a Handler. A nil logger defaults to JSON logging on
// stderr so transport output stays clean.
func New(v *schema.Validator, queries *expr.Set, g *guard.Guard, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return &Handler{
		validator:  v,
		queries:    queries,
		guard:      g,
		log:        log,
		newTraceID: uuid.NewString,
	}
}

// WithTraceIDFunc overrides trace id generation. Tests use a fixed
// function for deterministic response bodies.
func (h *Handler) WithTraceIDFunc(fn func() string) *Handler {
	h.newTraceID = fn
	return h
}

// Handle runs one envelope through the full pipeline and always
// returns a well-formed Response.
func (h *Handler) Handle(env Envelope) Response {
	traceID := h.newTraceID()
	log := h.log.With("trace_id", traceID)

	if len(env.Body) == 0 {
		log.Warn("request rejected", "reason", "missing body")
		return h.clientError(traceID, "missing request body")
	}

	var body requestBody
	if err := json.Unmarshal(env.Body, &body); err != nil {
		log.Warn("request rejected", "reason", "malformed body", "error", err)
		return h.clientError(traceID, "malformed request body")
	}

	if body.Result == nil {
		log.Warn("request rejected", "reason", "missing result field")
		return h.schemaError(traceID, []schema.FieldError{
			{Path: "result", Message: "required field is missing"},
		})
	}

	batch, fieldErrs := h.validator.ValidateBatch(body.Result)
	if len(fieldErrs) > 0 {
		log.Warn("request rejected", "reason", "schema violation", "violations", len(fieldErrs))
		return h.schemaError(traceID, fieldErrs)
	}

	key, resp := h.idempotencyKey(env, traceID, log)
	if resp != nil {
		return *resp
	}

	process, err := h.guard.ShouldProcess(key)
	if err != nil {
		log.Error("guard check failed", "error", err)
		return h.serverError(traceID)
	}
	if !process {
		log.Info("duplicate request acknowledged", "key", key)
		return h.duplicateAck(traceID, key)
	}

	results, err := h.queries.Run(batch)
	if err != nil {
		// Shape mismatch is a configuration-class defect: the same
		// expressions against the same batch cannot succeed on retry.
		// Surface an opaque server error; the detail stays in the log.
		log.Error("query evaluation failed", "error", err, "shape_mismatch", expr.IsShapeMismatch(err))
		return h.serverError(traceID)
	}

	// Mark only after successful evaluation so a failed request stays
	// retryable. A mark failure loses dedupe for this key but must not
	// fail a request whose evaluation already succeeded.
	if err := h.guard.MarkProcessed(key); err != nil {
		log.Warn("failed to mark request processed", "key", key, "error", err)
	}

	log.Info("batch evaluated", "records", len(batch), "queries", h.queries.Len())
	return h.success(traceID, results)
}

// idempotencyKey resolves the guard key for an envelope: the caller's
// request id when present, otherwise the canonical fingerprint of the
// body. The Response return is non-nil only on fingerprint failure.
func (h *Handler) idempotencyKey(env Envelope, traceID string, log *slog.Logger) (string, *Response) {
	if env.RequestID != "" {
		return env.RequestID, nil
	}

	decoded, err := ir.Decode(env.Body)
	if err != nil {
		// Unreachable after a successful Unmarshal, but fail closed.
		log.Error("body fingerprint decode failed", "error", err)
		resp := h.serverError(traceID)
		return "", &resp
	}
	fp, err := ir.RequestFingerprint(decoded)
	if err != nil {
		log.Error("body fingerprint failed", "error", err)
		resp := h.serverError(traceID)
		return "", &resp
	}
	return fp, nil
}

func (h *Handler) success(traceID string, results ir.OrderedObject) Response {
	return h.respond(http.StatusOK, ir.OrderedObject{
		{Key: "traceId", Val: ir.Str(traceID)},
		{Key: "queries", Val: results},
	})
}

func (h *Handler) duplicateAck(traceID, key string) Response {
	return h.respond(http.StatusOK, ir.OrderedObject{
		{Key: "traceId", Val: ir.Str(traceID)},
		{Key: "status", Val: ir.Str(statusAlreadyProcessed)},
		{Key: "requestId", Val: ir.Str(key)},
	})
}

func (h *Handler) clientError(traceID, message string) Response {
	return h.respond(http.StatusBadRequest, ir.OrderedObject{
		{Key: "traceId", Val: ir.Str(traceID)},
		{Key: "error", Val: ir.Str(message)},
	})
}

func (h *Handler) schemaError(traceID string, fieldErrs []schema.FieldError) Response {
	details := make(ir.Array, len(fieldErrs))
	for i, fe := range fieldErrs {
		details[i] = ir.OrderedObject{
			{Key: "path", Val: ir.Str(fe.Path)},
			{Key: "message", Val: ir.Str(fe.Message)},
		}
	}
	return h.respond(http.StatusUnprocessableEntity, ir.OrderedObject{
		{Key: "traceId", Val: ir.Str(traceID)},
		{Key: "error", Val: ir.Str("schema violation")},
		{Key: "details", Val: details},
	})
}

func (h *Handler) serverError(traceID string) Response {
	return h.respond(http.StatusInternalServerError, ir.OrderedObject{
		{Key: "traceId", Val: ir.Str(traceID)},
		{Key: "error", Val: ir.Str("internal error")},
	})
}

func (h *Handler) respond(status int, body ir.Value) Response {
	data, err := ir.Marshal(body)
	if err != nil {
		// Response shaping failed; emit a minimal hand-built body
		// rather than nothing.
		h.log.Error("response marshal failed", "error", err)
		return Response{
			StatusCode: http.StatusInternalServerError,
			Body:       json.RawMessage(`{"error":"internal error"}`),
		}
	}
	return Response{StatusCode: status, Body: data}
}
