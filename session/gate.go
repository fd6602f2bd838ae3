package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PendingRequest is the content of the approver's single pending slot,
// handed to the host UI through EventRequestPending.
type PendingRequest struct {
	ID         string
	Type       RequestType
	ChainType  ChainType
	ChainID    string
	Payload    any
	Raw        json.RawMessage
	ReceivedAt time.Time
}

// approvalGate holds at most one pending request per session. A newly
// validated request replaces any previous occupant: the freshest ask
// wins, and the replaced request is answered by its requester-side
// timeout. The slot has no timer of its own unless a pending TTL is
// configured; an approval UI may stay open indefinitely.
type approvalGate struct {
	guard *replayGuard
	ttl   time.Duration
	log   zerolog.Logger

	mu      sync.Mutex
	pending *PendingRequest
}

func newApprovalGate(guard *replayGuard, ttl time.Duration, log zerolog.Logger) *approvalGate {
	return &approvalGate{guard: guard, ttl: ttl, log: log}
}

// submit validates an already-decrypted request. On success the
// request takes the pending slot and is returned; on any violation the
// explicit error response to transmit is returned instead. By this
// point the peer has proven it holds the shared secret, so naming the
// violated check leaks nothing (unlike decryption failures, which are
// dropped silently before ever reaching the gate).
//
// Checks run in order: timestamp freshness, duplicate suppression,
// token presence, token field validation, token signature, chain-type
// match, payload shape.
func (g *approvalGate) submit(env *Envelope, body *requestBody, expect TokenExpectations, verifier TokenVerifier, signerChain ChainType, now time.Time) (*PendingRequest, *responseBody) {
	if ok, reason := g.guard.checkFresh(body.Timestamp, now); !ok {
		g.log.Warn().Str("request_id", body.ID).Str("reason", reason).
			Msg("Rejecting stale request")
		return nil, errorResponse(body.ID, CodeStaleRequest, reason)
	}

	if ok, reason := g.guard.checkDuplicate(env); !ok {
		return nil, errorResponse(body.ID, CodeDuplicateRequest, reason)
	}

	if body.Token == nil {
		return nil, errorResponse(body.ID, CodeInvalidToken, "session token missing")
	}

	if ok, reason := body.Token.Validate(expect, g.guard.window, g.guard.skew, now); !ok {
		g.log.Warn().Str("request_id", body.ID).Str("reason", reason).
			Msg("Rejecting request with invalid session token")
		return nil, errorResponse(body.ID, CodeInvalidToken, reason)
	}

	if verifier != nil {
		if err := verifier.VerifyToken(body.Token); err != nil {
			g.log.Warn().Err(err).Str("request_id", body.ID).
				Msg("Rejecting request with bad token signature")
			return nil, errorResponse(body.ID, CodeInvalidToken, "token signature invalid")
		}
	}

	if body.ChainType != signerChain {
		reason := fmt.Sprintf("signer is %s, request wants %s", signerChain, body.ChainType)
		return nil, errorResponse(body.ID, CodeChainMismatch, reason)
	}

	payload, err := decodePayload(body.Type, body.Payload)
	if err != nil {
		return nil, errorResponse(body.ID, CodeMalformedRequest, err.Error())
	}

	p := &PendingRequest{
		ID:         body.ID,
		Type:       body.Type,
		ChainType:  body.ChainType,
		ChainID:    body.ChainID,
		Payload:    payload,
		Raw:        body.Payload,
		ReceivedAt: now,
	}

	g.mu.Lock()
	if g.pending != nil {
		g.log.Info().
			Str("replaced", g.pending.ID).
			Str("request_id", p.ID).
			Msg("New request replacing pending slot")
	}
	g.pending = p
	g.mu.Unlock()

	return p, nil
}

// approve resolves the pending slot by dispatching to the signer
// capability for the request's operation type. Signing failures are
// converted into error responses: a request is never left unanswered
// because the signer failed.
func (g *approvalGate) approve(ctx context.Context, id string, signer TokenSigner) (*responseBody, error) {
	p, err := g.claim(id)
	if err != nil {
		return nil, err
	}
	return g.dispatch(ctx, p, signer), nil
}

// reject resolves the pending slot with an error response carrying the
// given or default reason.
func (g *approvalGate) reject(id, reason string) (*responseBody, error) {
	p, err := g.claim(id)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "request rejected by user"
	}
	return errorResponse(p.ID, CodeUserRejected, reason), nil
}

// claim validates the id against the slot, enforces the pending TTL
// and empties the slot.
func (g *approvalGate) claim(id string) (*PendingRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil || g.pending.ID != id {
		return nil, ErrNoSuchPendingRequest
	}

	p := g.pending
	g.pending = nil

	if g.ttl > 0 && time.Since(p.ReceivedAt) > g.ttl {
		g.log.Info().Str("request_id", p.ID).Dur("ttl", g.ttl).
			Msg("Pending request expired before resolution")
		return nil, ErrRequestExpired
	}
	return p, nil
}

// current returns the occupant of the pending slot, if any.
func (g *approvalGate) current() *PendingRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// clear empties the slot at session teardown.
func (g *approvalGate) clear() {
	g.mu.Lock()
	g.pending = nil
	g.mu.Unlock()
}

func (g *approvalGate) dispatch(ctx context.Context, p *PendingRequest, signer TokenSigner) *responseBody {
	switch payload := p.Payload.(type) {
	case *SignMessagePayload:
		sig, err := signer.SignMessage(ctx, []byte(payload.Message))
		if err != nil {
			g.log.Error().Err(err).Str("request_id", p.ID).
				Msg("Signer failed on sign_message")
			return errorResponse(p.ID, CodeSigningFailed, "signing failed")
		}
		return successResponse(p.ID, signatureResult(sig))

	case *SignTransactionPayload:
		ts, ok := signer.(TransactionSigner)
		if !ok {
			return errorResponse(p.ID, CodeUnsupported, "signer does not support sign_transaction")
		}
		sig, err := ts.SignTransaction(ctx, payload.Transaction)
		if err != nil {
			g.log.Error().Err(err).Str("request_id", p.ID).
				Msg("Signer failed on sign_transaction")
			return errorResponse(p.ID, CodeSigningFailed, "signing failed")
		}
		return successResponse(p.ID, signatureResult(sig))

	case *SendTransactionPayload:
		sender, ok := signer.(TransactionSender)
		if !ok {
			return errorResponse(p.ID, CodeUnsupported, "signer does not support send_transaction")
		}
		hash, err := sender.SendTransaction(ctx, payload.Transaction)
		if err != nil {
			g.log.Error().Err(err).Str("request_id", p.ID).
				Msg("Signer failed on send_transaction")
			return errorResponse(p.ID, CodeSigningFailed, "transaction send failed")
		}
		return successResponse(p.ID, hashResult(hash))

	default:
		return errorResponse(p.ID, CodeUnsupported, fmt.Sprintf("unknown request type %q", p.Type))
	}
}

func signatureResult(sig string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"signature": sig})
	return data
}

func hashResult(hash string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"hash": hash})
	return data
}
