package session

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// gateFixture wires an approval gate with a minted token and matching
// expectations, the way an approver engine would after handshake.
type gateFixture struct {
	gate   *approvalGate
	signer *testSigner
	token  *Token
	expect TokenExpectations
}

func newGateFixture(t *testing.T, ttl time.Duration) *gateFixture {
	t.Helper()

	signer := newTestSigner(t)
	params := testTokenParams()

	tok, err := MintToken(context.Background(), signer, params)
	if err != nil {
		t.Fatalf("MintToken failed: %v", err)
	}

	guard := newReplayGuard(5*time.Minute, time.Minute, zerolog.Nop())
	return &gateFixture{
		gate:   newApprovalGate(guard, ttl, zerolog.Nop()),
		signer: signer,
		token:  tok,
		expect: TokenExpectations{
			SessionID:    params.SessionID,
			Address:      signer.addr,
			ChainType:    ChainEd25519,
			RelayURL:     params.RelayURL,
			RequesterKey: params.RequesterKey,
		},
	}
}

// request builds a sealed-request stand-in: the decrypted body plus a
// synthetic envelope with a fresh nonce for duplicate detection.
func (f *gateFixture) request(t *testing.T, id string, reqType RequestType, payload any) (*Envelope, *requestBody) {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal payload failed: %v", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		t.Fatalf("rand.Read failed: %v", err)
	}

	body := &requestBody{
		ID:        id,
		Type:      reqType,
		ChainType: ChainEd25519,
		Payload:   raw,
		Token:     f.token,
		Timestamp: time.Now().UnixMilli(),
	}
	env := &Envelope{Ciphertext: []byte(id), Nonce: nonce, Timestamp: body.Timestamp}
	return env, body
}

func (f *gateFixture) submit(env *Envelope, body *requestBody) (*PendingRequest, *responseBody) {
	return f.gate.submit(env, body, f.expect, &testVerifier{pub: f.signer.pub}, ChainEd25519, time.Now())
}

func TestApprovalGate_SubmitAndApprove(t *testing.T) {
	f := newGateFixture(t, 0)

	env, body := f.request(t, "req-1", RequestSignMessage, &SignMessagePayload{Message: "hello"})
	pending, errResp := f.submit(env, body)
	if errResp != nil {
		t.Fatalf("Expected submit to succeed, got %s: %s", errResp.Error.Code, errResp.Error.Message)
	}
	if pending.ID != "req-1" {
		t.Errorf("Expected pending id req-1, got %q", pending.ID)
	}
	if f.gate.current() == nil {
		t.Fatal("Expected pending slot occupied after submit")
	}

	resp, err := f.gate.approve(context.Background(), "req-1", f.signer)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if resp.Status != statusSuccess {
		t.Fatalf("Expected success response, got %s", resp.Status)
	}

	var result map[string]string
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("Unmarshal result failed: %v", err)
	}
	sig, err := base64.StdEncoding.DecodeString(result["signature"])
	if err != nil {
		t.Fatalf("Decode signature failed: %v", err)
	}
	if !ed25519.Verify(f.signer.pub, []byte("hello"), sig) {
		t.Error("Approved signature does not verify against the signer key")
	}

	if f.gate.current() != nil {
		t.Error("Expected pending slot emptied after approve")
	}
}

func TestApprovalGate_Reject(t *testing.T) {
	f := newGateFixture(t, 0)

	env, body := f.request(t, "req-1", RequestSignMessage, &SignMessagePayload{Message: "hello"})
	if _, errResp := f.submit(env, body); errResp != nil {
		t.Fatalf("submit failed: %s", errResp.Error.Message)
	}

	resp, err := f.gate.reject("req-1", "")
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if resp.Status != statusError || resp.Error.Code != CodeUserRejected {
		t.Errorf("Expected user_rejected error response, got %+v", resp)
	}
	if resp.Error.Message == "" {
		t.Error("Expected a default rejection message")
	}

	if _, err := f.gate.reject("req-1", ""); !errors.Is(err, ErrNoSuchPendingRequest) {
		t.Errorf("Expected ErrNoSuchPendingRequest on second reject, got %v", err)
	}
}

func TestApprovalGate_StaleRequest(t *testing.T) {
	f := newGateFixture(t, 0)

	env, body := f.request(t, "req-1", RequestSignMessage, &SignMessagePayload{Message: "hello"})
	body.Timestamp = time.Now().Add(-10 * time.Minute).UnixMilli()

	_, errResp := f.submit(env, body)
	if errResp == nil || errResp.Error.Code != CodeStaleRequest {
		t.Errorf("Expected stale_request rejection, got %+v", errResp)
	}
	if f.gate.current() != nil {
		t.Error("Rejected request must not occupy the pending slot")
	}
}

func TestApprovalGate_DuplicateEnvelope(t *testing.T) {
	f := newGateFixture(t, 0)

	env, body := f.request(t, "req-1", RequestSignMessage, &SignMessagePayload{Message: "hello"})
	if _, errResp := f.submit(env, body); errResp != nil {
		t.Fatalf("First submit failed: %s", errResp.Error.Message)
	}

	_, errResp := f.submit(env, body)
	if errResp == nil || errResp.Error.Code != CodeDuplicateRequest {
		t.Errorf("Expected duplicate_request rejection, got %+v", errResp)
	}

	// The original occupant survives a replayed duplicate.
	if cur := f.gate.current(); cur == nil || cur.ID != "req-1" {
		t.Error("Expected original request still pending after duplicate")
	}
}

func TestApprovalGate_TokenChecks(t *testing.T) {
	f := newGateFixture(t, 0)

	// Missing token
	env, body := f.request(t, "req-1", RequestSignMessage, &SignMessagePayload{Message: "hello"})
	body.Token = nil
	_, errResp := f.submit(env, body)
	if errResp == nil || errResp.Error.Code != CodeInvalidToken {
		t.Errorf("Expected invalid_token for missing token, got %+v", errResp)
	}

	// Token bound to another session
	env, body = f.request(t, "req-2", RequestSignMessage, &SignMessagePayload{Message: "hello"})
	wrongSession := *f.token
	wrongSession.SessionID = "11111111-2222-3333-4444-555566667777"
	body.Token = &wrongSession
	_, errResp = f.submit(env, body)
	if errResp == nil || errResp.Error.Code != CodeInvalidToken {
		t.Errorf("Expected invalid_token for session mismatch, got %+v", errResp)
	}

	// Forged signature
	env, body = f.request(t, "req-3", RequestSignMessage, &SignMessagePayload{Message: "hello"})
	forged := *f.token
	forged.Signature = base64.StdEncoding.EncodeToString(make([]byte, ed25519.SignatureSize))
	body.Token = &forged
	_, errResp = f.submit(env, body)
	if errResp == nil || errResp.Error.Code != CodeInvalidToken {
		t.Errorf("Expected invalid_token for forged signature, got %+v", errResp)
	}
}

func TestApprovalGate_ChainMismatch(t *testing.T) {
	f := newGateFixture(t, 0)

	env, body := f.request(t, "req-1", RequestSignMessage, &SignMessagePayload{Message: "hello"})
	body.ChainType = ChainEVM

	_, errResp := f.submit(env, body)
	if errResp == nil || errResp.Error.Code != CodeChainMismatch {
		t.Errorf("Expected chain_mismatch rejection, got %+v", errResp)
	}
}

func TestApprovalGate_MalformedPayload(t *testing.T) {
	f := newGateFixture(t, 0)

	env, body := f.request(t, "req-1", RequestSignMessage, &SignMessagePayload{})
	_, errResp := f.submit(env, body)
	if errResp == nil || errResp.Error.Code != CodeMalformedRequest {
		t.Errorf("Expected malformed_request for empty message, got %+v", errResp)
	}
}

func TestApprovalGate_Replacement(t *testing.T) {
	f := newGateFixture(t, 0)

	env1, body1 := f.request(t, "req-1", RequestSignMessage, &SignMessagePayload{Message: "first"})
	if _, errResp := f.submit(env1, body1); errResp != nil {
		t.Fatalf("First submit failed: %s", errResp.Error.Message)
	}

	env2, body2 := f.request(t, "req-2", RequestSignMessage, &SignMessagePayload{Message: "second"})
	if _, errResp := f.submit(env2, body2); errResp != nil {
		t.Fatalf("Second submit failed: %s", errResp.Error.Message)
	}

	if cur := f.gate.current(); cur == nil || cur.ID != "req-2" {
		t.Fatal("Expected second request to replace the pending slot")
	}

	// The replaced request can no longer be approved.
	if _, err := f.gate.approve(context.Background(), "req-1", f.signer); !errors.Is(err, ErrNoSuchPendingRequest) {
		t.Errorf("Expected ErrNoSuchPendingRequest for replaced request, got %v", err)
	}

	resp, err := f.gate.approve(context.Background(), "req-2", f.signer)
	if err != nil {
		t.Fatalf("approve of current request failed: %v", err)
	}
	if resp.Status != statusSuccess {
		t.Errorf("Expected success for current request, got %s", resp.Status)
	}
}

func TestApprovalGate_PendingTTL(t *testing.T) {
	f := newGateFixture(t, 50*time.Millisecond)

	env, body := f.request(t, "req-1", RequestSignMessage, &SignMessagePayload{Message: "hello"})
	if _, errResp := f.submit(env, body); errResp != nil {
		t.Fatalf("submit failed: %s", errResp.Error.Message)
	}

	time.Sleep(100 * time.Millisecond)

	if _, err := f.gate.approve(context.Background(), "req-1", f.signer); !errors.Is(err, ErrRequestExpired) {
		t.Errorf("Expected ErrRequestExpired after TTL, got %v", err)
	}
	if f.gate.current() != nil {
		t.Error("Expected expired request removed from the slot")
	}
}

// messageOnlySigner deliberately lacks the transaction capabilities.
type messageOnlySigner struct {
	s *testSigner
}

func (m *messageOnlySigner) Address() string      { return m.s.addr }
func (m *messageOnlySigner) ChainType() ChainType { return ChainEd25519 }
func (m *messageOnlySigner) SignMessage(ctx context.Context, msg []byte) (string, error) {
	return m.s.SignMessage(ctx, msg)
}

func TestApprovalGate_CapabilityDispatch(t *testing.T) {
	f := newGateFixture(t, 0)
	tx := json.RawMessage(`{"to":"0xabc","value":"0x1"}`)

	// sign_transaction with a full signer succeeds
	env, body := f.request(t, "req-1", RequestSignTransaction, &SignTransactionPayload{Transaction: tx})
	if _, errResp := f.submit(env, body); errResp != nil {
		t.Fatalf("submit failed: %s", errResp.Error.Message)
	}
	resp, err := f.gate.approve(context.Background(), "req-1", f.signer)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if resp.Status != statusSuccess {
		t.Errorf("Expected sign_transaction success, got %+v", resp.Error)
	}

	// sign_transaction with a message-only signer is unsupported
	env, body = f.request(t, "req-2", RequestSignTransaction, &SignTransactionPayload{Transaction: tx})
	if _, errResp := f.submit(env, body); errResp != nil {
		t.Fatalf("submit failed: %s", errResp.Error.Message)
	}
	resp, err = f.gate.approve(context.Background(), "req-2", &messageOnlySigner{s: f.signer})
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if resp.Status != statusError || resp.Error.Code != CodeUnsupported {
		t.Errorf("Expected unsupported_operation, got %+v", resp)
	}

	// send_transaction without a sender capability is unsupported
	env, body = f.request(t, "req-3", RequestSendTransaction, &SendTransactionPayload{Transaction: tx})
	if _, errResp := f.submit(env, body); errResp != nil {
		t.Fatalf("submit failed: %s", errResp.Error.Message)
	}
	resp, err = f.gate.approve(context.Background(), "req-3", f.signer)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if resp.Status != statusError || resp.Error.Code != CodeUnsupported {
		t.Errorf("Expected unsupported_operation for send_transaction, got %+v", resp)
	}
}

func TestApprovalGate_SigningFailure(t *testing.T) {
	f := newGateFixture(t, 0)

	env, body := f.request(t, "req-1", RequestSignMessage, &SignMessagePayload{Message: "hello"})
	if _, errResp := f.submit(env, body); errResp != nil {
		t.Fatalf("submit failed: %s", errResp.Error.Message)
	}

	f.signer.failSign = true
	resp, err := f.gate.approve(context.Background(), "req-1", f.signer)
	if err != nil {
		t.Fatalf("approve returned an error instead of an error response: %v", err)
	}
	if resp.Status != statusError || resp.Error.Code != CodeSigningFailed {
		t.Errorf("Expected signing_failed response, got %+v", resp)
	}
}
