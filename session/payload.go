package session

import (
	"encoding/json"
	"fmt"
)

// RequestType names a signing operation. The set is closed per protocol
// version; unknown types decode to a generic payload and are rejected
// at dispatch time, not at parse time.
type RequestType string

const (
	RequestSignMessage     RequestType = "sign_message"
	RequestSignTransaction RequestType = "sign_transaction"
	RequestSendTransaction RequestType = "send_transaction"
)

// SignMessagePayload asks the approver to sign an arbitrary message.
type SignMessagePayload struct {
	Message string `json:"message"`
}

// SignTransactionPayload asks the approver to sign a chain transaction.
// The transaction body stays opaque to the protocol.
type SignTransactionPayload struct {
	Transaction json.RawMessage `json:"transaction"`
}

// SendTransactionPayload asks the approver to sign and broadcast a
// transaction, returning its hash.
type SendTransactionPayload struct {
	Transaction json.RawMessage `json:"transaction"`
}

// GenericPayload is the fallback for request types this version does
// not know. It keeps the raw bytes so a gate can still show or log
// what was asked before rejecting it.
type GenericPayload struct {
	Data json.RawMessage
}

// decodePayload turns the raw payload of a request into its typed
// shape, validating the fields a given type requires. Untyped data
// never crosses this boundary into validation or signing code.
func decodePayload(t RequestType, raw json.RawMessage) (any, error) {
	switch t {
	case RequestSignMessage:
		var p SignMessagePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("bad sign_message payload: %w", err)
		}
		if p.Message == "" {
			return nil, fmt.Errorf("sign_message payload missing message")
		}
		return &p, nil

	case RequestSignTransaction:
		var p SignTransactionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("bad sign_transaction payload: %w", err)
		}
		if len(p.Transaction) == 0 {
			return nil, fmt.Errorf("sign_transaction payload missing transaction")
		}
		return &p, nil

	case RequestSendTransaction:
		var p SendTransactionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("bad send_transaction payload: %w", err)
		}
		if len(p.Transaction) == 0 {
			return nil, fmt.Errorf("send_transaction payload missing transaction")
		}
		return &p, nil

	default:
		return &GenericPayload{Data: raw}, nil
	}
}
