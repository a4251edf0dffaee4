package handler

import "encoding/json"

// Envelope is the transport-neutral inbound request: an optional
// request identifier used as the idempotency key, and a JSON body
// carrying the record batch under "result".
//
// When RequestID is empty the handler derives a key from the
// canonical fingerprint of the body, so byte-level differences in
// whitespace or key order do not defeat deduplication.
type Envelope struct {
	RequestID string          `json:"requestId,omitempty"`
	Body      json.RawMessage `json:"body"`
}

// Response is the transport-neutral outbound reply.
type Response struct {
	StatusCode int             `json:"statusCode"`
	Body       json.RawMessage `json:"body"`
}

// requestBody is the expected shape of Envelope.Body.
type requestBody struct {
	Result json.RawMessage `json:"result"`
}

// Body status strings, part of the response contract.
const (
	statusAlreadyProcessed = "already processed"
)
