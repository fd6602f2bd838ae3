package session

import "encoding/json"

// MessageKind discriminates frames on the relay.
type MessageKind string

const (
	// KindJoin marks a side entering the session room. Purely
	// informational; the handshake is driven by announces.
	KindJoin MessageKind = "join"

	// KindAnnounce carries a side's public key, and on the approver
	// side the sealed token bundle.
	KindAnnounce MessageKind = "announce"

	// KindRequest carries a sealed request from requester to approver.
	KindRequest MessageKind = "request"

	// KindResponse carries a sealed response from approver to requester.
	KindResponse MessageKind = "response"
)

// WireMessage is a single relay frame. The relay can read the kind,
// the session id and the announcing public key; request, response and
// bundle payloads are sealed envelopes.
type WireMessage struct {
	Kind      MessageKind `json:"kind"`
	SessionID string      `json:"session_id"`
	PublicKey []byte      `json:"public_key,omitempty"`
	Bundle    *Envelope   `json:"bundle,omitempty"`
	Envelope  *Envelope   `json:"envelope,omitempty"`
}

// announceBundle is the plaintext interior of the approver's announce:
// the minted session token plus the approver identity.
type announceBundle struct {
	Token     *Token    `json:"token"`
	Address   string    `json:"address"`
	ChainType ChainType `json:"chain_type"`
	ChainID   string    `json:"chain_id,omitempty"`
}

// requestBody is the plaintext interior of a sealed request.
type requestBody struct {
	ID        string          `json:"id"`
	Type      RequestType     `json:"type"`
	ChainType ChainType       `json:"chain_type"`
	ChainID   string          `json:"chain_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Token     *Token          `json:"token"`
	Timestamp int64           `json:"timestamp_ms"`
}

// responseBody is the plaintext interior of a sealed response.
type responseBody struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ResponseError  `json:"error,omitempty"`
}

const (
	statusSuccess = "success"
	statusError   = "error"
)

// ResponseError is the machine-readable failure half of a response.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ResponseError) Error() string {
	return e.Code + ": " + e.Message
}

// Error codes carried in ResponseError.Code.
const (
	CodeInvalidToken     = "invalid_token"
	CodeStaleRequest     = "stale_request"
	CodeDuplicateRequest = "duplicate_request"
	CodeChainMismatch    = "chain_mismatch"
	CodeUnsupported      = "unsupported_operation"
	CodeUserRejected     = "user_rejected"
	CodeSigningFailed    = "signing_failed"
	CodeMalformedRequest = "malformed_request"
)

// Response is the approver's answer to one request, as delivered to the
// requester. Err is non-nil for explicit protocol-level failures; the
// request itself still completed.
type Response struct {
	RequestID string
	Result    json.RawMessage
	Err       *ResponseError
}

// errorResponse builds a sealed-ready error response for a request id.
func errorResponse(id, code, message string) *responseBody {
	return &responseBody{
		ID:     id,
		Status: statusError,
		Error:  &ResponseError{Code: code, Message: message},
	}
}

// successResponse builds a sealed-ready success response.
func successResponse(id string, result json.RawMessage) *responseBody {
	return &responseBody{
		ID:     id,
		Status: statusSuccess,
		Result: result,
	}
}
