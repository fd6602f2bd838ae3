// Package main provides an end-to-end test for the session protocol
// over a live relay: requester and approver run in-process, the relay
// is real NATS.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mesmerverse/walletbridge/relay"
	"github.com/mesmerverse/walletbridge/session"
	"github.com/mesmerverse/walletbridge/signer"
	"github.com/mesmerverse/walletbridge/storage"
)

func main() {
	cfg, err := relay.LoadConfig(os.Getenv("RELAY_CONFIG"))
	if err != nil {
		fmt.Printf("❌ Failed to load relay config: %v\n", err)
		os.Exit(1)
	}
	if url := os.Getenv("RELAY_URL"); url != "" {
		cfg.URL = url
	}
	if creds := os.Getenv("RELAY_CREDS"); creds != "" {
		cfg.CredentialsFile = creds
	}

	fmt.Println("=== WalletBridge Session E2E Test ===")
	fmt.Printf("Relay URL: %s\n\n", cfg.URL)

	transport, err := relay.Dial(cfg)
	if err != nil {
		fmt.Printf("❌ Failed to connect to relay: %v\n", err)
		os.Exit(1)
	}
	defer transport.Close()
	fmt.Println("✓ Connected to relay")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	passed := 0
	failed := 0

	// Test 1: handshake + approved sign_message
	if testSignMessageFlow(ctx, transport) {
		passed++
	} else {
		failed++
	}

	// Test 2: explicit rejection
	if testRejectFlow(ctx, transport) {
		passed++
	} else {
		failed++
	}

	fmt.Println("\n=== Test Summary ===")
	fmt.Printf("Passed: %d\n", passed)
	fmt.Printf("Failed: %d\n", failed)

	if failed > 0 {
		os.Exit(1)
	}
}

// newPair builds a requester and an approver registry sharing one
// relay connection.
func newPair(transport session.Transport) (*session.Registry, *session.Registry, *signer.Ed25519Signer, error) {
	identity, err := signer.NewEd25519Signer()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("signer: %w", err)
	}
	verifiers := signer.NewVerifiers()

	requester, err := session.NewRegistry(&session.Config{
		Role:      session.RoleRequester,
		Transport: transport,
		Storage:   storage.NewMemory(),
		Verifier:  verifiers,
		AppURL:    "https://e2e.walletbridge.test",
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("requester registry: %w", err)
	}

	approver, err := session.NewRegistry(&session.Config{
		Role:      session.RoleApprover,
		Transport: transport,
		Storage:   storage.NewMemory(),
		Signer:    identity,
		Verifier:  verifiers,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("approver registry: %w", err)
	}

	return requester, approver, identity, nil
}

func waitEvent(eng *session.Engine, want session.EventType, timeout time.Duration) (session.Event, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-eng.Events():
			if ev.Type == want {
				return ev, true
			}
		case <-deadline:
			return session.Event{}, false
		}
	}
}

// testSignMessageFlow runs the whole happy path: create → bootstrap →
// sign_message → approve → verify the returned signature.
func testSignMessageFlow(ctx context.Context, transport session.Transport) bool {
	fmt.Println("\n--- Test 1: Sign Message Flow ---")

	requester, approver, identity, err := newPair(transport)
	if err != nil {
		fmt.Printf("❌ Setup failed: %v\n", err)
		return false
	}
	defer requester.Close()
	defer approver.Close()

	reqEng, uri, err := requester.CreateSession(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to create session: %v\n", err)
		return false
	}
	fmt.Printf("→ Created session %s\n", reqEng.SessionID())

	appEng, err := approver.Bootstrap(ctx, uri)
	if err != nil {
		fmt.Printf("❌ Failed to bootstrap from URI: %v\n", err)
		return false
	}
	fmt.Println("→ Approver bootstrapped from URI")

	if _, ok := waitEvent(reqEng, session.EventConnected, 5*time.Second); !ok {
		fmt.Println("❌ Timeout waiting for requester handshake")
		return false
	}
	fmt.Println("✓ Handshake complete")

	token := reqEng.Token()
	if token == nil || token.Address != identity.Address() {
		fmt.Println("❌ Requester token missing or bound to wrong address")
		return false
	}
	fmt.Printf("✓ Session token bound to %s\n", token.Address)

	message := "e2e approval check"
	type outcome struct {
		resp *session.Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := reqEng.SendRequest(ctx, session.RequestSignMessage, &session.SignMessagePayload{Message: message})
		done <- outcome{resp, err}
	}()

	ev, ok := waitEvent(appEng, session.EventRequestPending, 5*time.Second)
	if !ok {
		fmt.Println("❌ Timeout waiting for pending request")
		return false
	}
	fmt.Printf("← Approver received request %s\n", ev.Request.ID)

	if err := appEng.Approve(ctx, ev.Request.ID); err != nil {
		fmt.Printf("❌ Approve failed: %v\n", err)
		return false
	}
	fmt.Println("→ Approved")

	var out outcome
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		fmt.Println("❌ Timeout waiting for response")
		return false
	case <-ctx.Done():
		fmt.Println("❌ Context cancelled")
		return false
	}
	if out.err != nil {
		fmt.Printf("❌ SendRequest failed: %v\n", out.err)
		return false
	}
	if out.resp.Err != nil {
		fmt.Printf("❌ Request rejected: %v\n", out.resp.Err)
		return false
	}

	var result struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(out.resp.Result, &result); err != nil {
		fmt.Printf("❌ Malformed result: %v\n", err)
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(result.Signature)
	if err != nil {
		fmt.Printf("❌ Signature is not base64: %v\n", err)
		return false
	}
	if !ed25519.Verify(identity.PublicKey(), []byte(message), sig) {
		fmt.Println("❌ Signature does not verify")
		return false
	}

	fmt.Println("✓ Signature verified")
	return true
}

// testRejectFlow verifies an explicit rejection reaches the requester
// as a user_rejected response, not an error.
func testRejectFlow(ctx context.Context, transport session.Transport) bool {
	fmt.Println("\n--- Test 2: Reject Flow ---")

	requester, approver, _, err := newPair(transport)
	if err != nil {
		fmt.Printf("❌ Setup failed: %v\n", err)
		return false
	}
	defer requester.Close()
	defer approver.Close()

	reqEng, uri, err := requester.CreateSession(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to create session: %v\n", err)
		return false
	}
	appEng, err := approver.Bootstrap(ctx, uri)
	if err != nil {
		fmt.Printf("❌ Failed to bootstrap from URI: %v\n", err)
		return false
	}
	if _, ok := waitEvent(reqEng, session.EventConnected, 5*time.Second); !ok {
		fmt.Println("❌ Timeout waiting for requester handshake")
		return false
	}
	fmt.Println("✓ Handshake complete")

	type outcome struct {
		resp *session.Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := reqEng.SendRequest(ctx, session.RequestSignMessage, &session.SignMessagePayload{Message: "deny me"})
		done <- outcome{resp, err}
	}()

	ev, ok := waitEvent(appEng, session.EventRequestPending, 5*time.Second)
	if !ok {
		fmt.Println("❌ Timeout waiting for pending request")
		return false
	}
	if err := appEng.Reject(ctx, ev.Request.ID, "e2e says no"); err != nil {
		fmt.Printf("❌ Reject failed: %v\n", err)
		return false
	}
	fmt.Println("→ Rejected")

	var out outcome
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		fmt.Println("❌ Timeout waiting for response")
		return false
	}
	if out.err != nil {
		fmt.Printf("❌ SendRequest failed: %v\n", out.err)
		return false
	}
	if out.resp.Err == nil || out.resp.Err.Code != session.CodeUserRejected {
		fmt.Printf("❌ Expected user_rejected, got %+v\n", out.resp)
		return false
	}
	if out.resp.Err.Message != "e2e says no" {
		fmt.Printf("❌ Rejection reason lost: %q\n", out.resp.Err.Message)
		return false
	}

	fmt.Println("✓ Rejection delivered with reason")
	return true
}
