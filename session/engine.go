package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
)

// Engine drives one session through its lifecycle: transport join,
// handshake, request/response dispatch, reconnect and teardown. One
// engine per session id; engines share nothing but the registry map.
//
// All inbound traffic is handled by a single read loop goroutine, so
// per-session processing is sequential. Public methods may be called
// from any goroutine.
type Engine struct {
	cfg   *Config
	store *Store
	log   zerolog.Logger

	ledger *requestLedger // requester side
	gate   *approvalGate  // approver side

	events chan Event

	mu        sync.Mutex
	state     State
	sessionID string
	relayURL  string
	appURL    string
	crypto    *EncryptionContext
	peer      Peer // the approver identity; own identity on the approver side
	token     *Token
	room      Room
	stopRead  chan struct{}
}

func newEngine(cfg *Config, sessionID string, store *Store) *Engine {
	logger := cfg.Logger.With().
		Str("session_id", sessionID).
		Str("role", string(cfg.Role)).
		Logger()

	e := &Engine{
		cfg:       cfg,
		store:     store,
		log:       logger,
		events:    make(chan Event, cfg.EventBuffer),
		state:     StateIdle,
		sessionID: sessionID,
	}

	if cfg.Role == RoleRequester {
		e.ledger = newRequestLedger(logger)
	} else {
		guard := newReplayGuard(cfg.ReplayWindow, cfg.ClockSkew, logger)
		e.gate = newApprovalGate(guard, cfg.PendingRequestTTL, logger)
	}
	return e
}

// SessionID returns the session id this engine drives.
func (e *Engine) SessionID() string { return e.sessionID }

// Role returns the engine's side of the protocol.
func (e *Engine) Role() Role { return e.cfg.Role }

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Events delivers this engine's notifications. The channel is closed
// by Close. Slow consumers lose events rather than blocking the
// protocol; drops are logged.
func (e *Engine) Events() <-chan Event { return e.events }

// Token returns the session token, nil before the handshake completes.
func (e *Engine) Token() *Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.token
}

// Pending returns the approver's pending request, if any.
func (e *Engine) Pending() *PendingRequest {
	if e.gate == nil {
		return nil
	}
	return e.gate.current()
}

// Info returns a snapshot of the session metadata.
func (e *Engine) Info() Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Info{
		SessionID: e.sessionID,
		Role:      e.cfg.Role,
		State:     e.state,
		RelayURL:  e.relayURL,
		AppURL:    e.appURL,
		Peer:      e.peer,
	}
}

// create opens a brand-new requester session: fresh keypair, relay
// join, own-key announce. Returns the connection URI to hand to the
// approver out of band. The session stays Handshaking until the
// approver's announce arrives.
func (e *Engine) create(ctx context.Context) (string, error) {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: create requires an idle engine", ErrInvalidState)
	}
	e.state = StateHandshaking
	e.mu.Unlock()

	kp, err := GenerateKeyPair()
	if err != nil {
		e.setState(StateIdle)
		return "", err
	}

	e.mu.Lock()
	e.crypto = NewEncryptionContext(kp)
	e.relayURL = e.cfg.Transport.URL()
	e.appURL = e.cfg.AppURL
	e.mu.Unlock()

	e.persist(ctx, false)

	room, err := e.joinWithRetry(ctx)
	if err != nil {
		e.setState(StateIdle)
		return "", err
	}
	e.attachRoom(room)

	announce := &WireMessage{Kind: KindAnnounce, SessionID: e.sessionID, PublicKey: kp.Public}
	if err := room.Send(ctx, announce); err != nil {
		e.log.Warn().Err(err).Msg("Failed to announce own key - peer will still see the URI")
	}

	uri := &ConnectionURI{
		Version:   ProtocolVersion,
		SessionID: e.sessionID,
		RelayURL:  e.relayURL,
		PublicKey: kp.Public,
		AppURL:    e.cfg.AppURL,
	}

	e.log.Info().Msg("Session created - waiting for approver")
	return uri.Encode()
}

// bootstrap consumes a decoded connection URI on the approver side.
// One round trip: join, mint the token, send the announce with the
// sealed bundle, and mark Connected without waiting for any ack - the
// token signature is the authentication, not a protocol acknowledgement.
func (e *Engine) bootstrap(ctx context.Context, uri *ConnectionURI) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return fmt.Errorf("%w: bootstrap requires an idle engine", ErrInvalidState)
	}
	e.state = StateHandshaking
	e.mu.Unlock()

	kp, err := GenerateKeyPair()
	if err != nil {
		e.setState(StateIdle)
		return err
	}

	crypto := NewEncryptionContext(kp)
	if err := crypto.BindPeer(uri.PublicKey); err != nil {
		e.setState(StateIdle)
		return fmt.Errorf("failed to bind requester key: %w", err)
	}

	e.mu.Lock()
	e.crypto = crypto
	e.relayURL = uri.RelayURL
	e.appURL = uri.AppURL
	e.mu.Unlock()

	e.persist(ctx, false)

	room, err := e.joinWithRetry(ctx)
	if err != nil {
		e.setState(StateIdle)
		return err
	}
	e.attachRoom(room)

	token, err := MintToken(ctx, e.cfg.Signer, TokenParams{
		SessionID:    e.sessionID,
		AppURL:       uri.AppURL,
		RelayURL:     uri.RelayURL,
		RequesterKey: base64.StdEncoding.EncodeToString(uri.PublicKey),
	})
	if err != nil {
		e.detachRoom()
		e.setState(StateIdle)
		return err
	}

	peer := Peer{
		Address:   e.cfg.Signer.Address(),
		ChainType: e.cfg.Signer.ChainType(),
		ChainID:   e.cfg.ChainID,
	}

	if err := e.sendAnnounce(ctx, room, token, peer); err != nil {
		e.detachRoom()
		e.setState(StateIdle)
		return err
	}

	e.mu.Lock()
	e.token = token
	e.peer = peer
	e.state = StateConnected
	e.mu.Unlock()

	e.persist(ctx, true)
	e.emit(Event{Type: EventConnected})
	e.log.Info().Str("address", peer.Address).Msg("Session connected")
	return nil
}

// SendRequest seals a signing request, transmits it and waits for the
// correlated response, the request timeout, or ctx cancellation.
// Requester side only.
func (e *Engine) SendRequest(ctx context.Context, reqType RequestType, payload any) (*Response, error) {
	if e.cfg.Role != RoleRequester {
		return nil, fmt.Errorf("%w: send is a requester operation", ErrInvalidState)
	}

	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if e.state != StateConnected {
		e.mu.Unlock()
		return nil, ErrNotConnected
	}
	room := e.room
	crypto := e.crypto
	token := e.token
	peer := e.peer
	e.mu.Unlock()

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	p := e.ledger.add(reqType, e.cfg.RequestTimeout)

	body := &requestBody{
		ID:        p.id,
		Type:      reqType,
		ChainType: peer.ChainType,
		ChainID:   peer.ChainID,
		Payload:   raw,
		Token:     token,
		Timestamp: time.Now().UnixMilli(),
	}

	env, err := crypto.Seal(body)
	if err != nil {
		e.ledger.take(p.id)
		return nil, err
	}

	msg := &WireMessage{Kind: KindRequest, SessionID: e.sessionID, Envelope: env}
	if err := room.Send(ctx, msg); err != nil {
		e.ledger.take(p.id)
		return nil, fmt.Errorf("failed to transmit request: %w", err)
	}

	e.log.Debug().Str("request_id", p.id).Str("type", string(reqType)).
		Msg("Request transmitted")

	select {
	case <-ctx.Done():
		e.ledger.take(p.id)
		return nil, ctx.Err()
	case res := <-p.done:
		if res.err != nil {
			return nil, res.err
		}
		return res.resp, nil
	}
}

// Approve resolves the pending request by invoking the signer and
// transmits the sealed response. Approver side only.
func (e *Engine) Approve(ctx context.Context, requestID string) error {
	room, err := e.approverRoom()
	if err != nil {
		return err
	}

	resp, err := e.gate.approve(ctx, requestID, e.cfg.Signer)
	if err != nil {
		return err
	}

	if err := e.sendSealedResponse(ctx, room, resp); err != nil {
		return err
	}
	e.log.Info().Str("request_id", requestID).Str("status", resp.Status).
		Msg("Request answered")
	return nil
}

// Reject resolves the pending request with an error response carrying
// the given or default reason. Approver side only.
func (e *Engine) Reject(ctx context.Context, requestID, reason string) error {
	room, err := e.approverRoom()
	if err != nil {
		return err
	}

	resp, err := e.gate.reject(requestID, reason)
	if err != nil {
		return err
	}

	if err := e.sendSealedResponse(ctx, room, resp); err != nil {
		return err
	}
	e.log.Info().Str("request_id", requestID).Msg("Request rejected")
	return nil
}

// Reconnect re-establishes the transport for a connected session,
// typically one restored from storage. The reconnecting state is
// entered before the first transport action and left only when the
// rejoin fully completes, so transport drops in between are expected
// noise and never surface as disconnects. On failure the session
// stays logically connected and the stored record is untouched; the
// caller may retry.
func (e *Engine) Reconnect(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case StateClosed:
		e.mu.Unlock()
		return ErrSessionClosed
	case StateConnected:
	default:
		e.mu.Unlock()
		return fmt.Errorf("%w: reconnect requires a connected session", ErrInvalidState)
	}
	e.state = StateReconnecting
	oldRoom := e.room
	e.room = nil
	stop := e.stopRead
	e.stopRead = nil
	crypto := e.crypto
	token := e.token
	peer := e.peer
	e.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if oldRoom != nil {
		_ = oldRoom.Leave()
	}

	room, err := e.joinWithRetry(ctx)
	if err != nil {
		e.setState(StateConnected)
		return fmt.Errorf("reconnect failed: %w", err)
	}
	e.attachRoom(room)

	if e.cfg.Role == RoleApprover {
		err = e.sendAnnounce(ctx, room, token, peer)
	} else {
		announce := &WireMessage{Kind: KindAnnounce, SessionID: e.sessionID, PublicKey: crypto.PublicKey()}
		err = room.Send(ctx, announce)
	}
	if err != nil {
		e.setState(StateConnected)
		return fmt.Errorf("reconnect announce failed: %w", err)
	}

	e.setState(StateConnected)
	e.persist(ctx, true)
	e.emit(Event{Type: EventConnected})
	e.log.Info().Msg("Session reconnected")
	return nil
}

// Disconnect tears the session down: wipes key material, removes the
// stored record, cancels pending work and emits a disconnected event.
// The engine remains queryable until Close.
func (e *Engine) Disconnect(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return ErrSessionClosed
	}
	if e.state == StateDisconnected {
		e.mu.Unlock()
		return nil
	}
	e.state = StateDisconnected
	room := e.room
	e.room = nil
	stop := e.stopRead
	e.stopRead = nil
	crypto := e.crypto
	e.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if room != nil {
		_ = room.Leave()
	}
	if e.ledger != nil {
		e.ledger.clearAll(ErrConnectionClosed)
	}
	if e.gate != nil {
		e.gate.clear()
	}
	if crypto != nil {
		crypto.Wipe()
	}
	e.store.Delete(ctx, e.sessionID)

	e.emit(Event{Type: EventDisconnected})
	e.log.Info().Msg("Session disconnected")
	return nil
}

// Close finalizes the engine and closes its event channel. A still
// connected engine is shut down quietly: the stored record survives so
// the session can be restored later, which makes Close the right call
// at process shutdown (use Disconnect to end a session for good).
func (e *Engine) Close() {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	e.state = StateClosed
	room := e.room
	e.room = nil
	stop := e.stopRead
	e.stopRead = nil
	e.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if room != nil {
		_ = room.Leave()
	}
	if e.ledger != nil {
		e.ledger.clearAll(ErrConnectionClosed)
	}

	e.mu.Lock()
	close(e.events)
	e.mu.Unlock()
}

// restore rebuilds engine state from a stored record. The engine comes
// back logically connected; Reconnect rejoins the transport.
func (e *Engine) restore(rec *Record) error {
	kp := &KeyPair{Public: rec.PublicKey, Private: rec.PrivateKey}
	crypto := NewEncryptionContext(kp)
	if len(rec.PeerPublicKey) > 0 {
		if err := crypto.BindPeer(rec.PeerPublicKey); err != nil {
			return fmt.Errorf("failed to rebind peer key: %w", err)
		}
	}

	e.mu.Lock()
	e.crypto = crypto
	e.relayURL = rec.RelayURL
	e.appURL = rec.AppURL
	e.peer = Peer{Address: rec.PeerAddress, ChainType: rec.ChainType, ChainID: rec.ChainID}
	e.token = rec.Token
	e.state = StateConnected
	e.mu.Unlock()
	return nil
}

// --- inbound dispatch ---

func (e *Engine) attachRoom(room Room) {
	stop := make(chan struct{})
	e.mu.Lock()
	e.room = room
	e.stopRead = stop
	e.mu.Unlock()
	go e.readLoop(room, stop)
}

func (e *Engine) detachRoom() {
	e.mu.Lock()
	room := e.room
	e.room = nil
	stop := e.stopRead
	e.stopRead = nil
	e.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if room != nil {
		_ = room.Leave()
	}
}

func (e *Engine) readLoop(room Room, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case msg, ok := <-room.Messages():
			if !ok {
				return
			}
			e.handleMessage(msg)
		case err, ok := <-room.Down():
			if ok {
				e.handleTransportDown(err)
			}
			return
		}
	}
}

func (e *Engine) handleMessage(msg *WireMessage) {
	if msg == nil || msg.SessionID != e.sessionID {
		return
	}

	switch msg.Kind {
	case KindJoin:
		e.log.Debug().Msg("Peer joined session room")
	case KindAnnounce:
		e.handleAnnounce(msg)
	case KindRequest:
		if e.cfg.Role != RoleApprover {
			e.log.Debug().Msg("Dropping request frame on requester side")
			return
		}
		e.handleRequest(msg)
	case KindResponse:
		if e.cfg.Role != RoleRequester {
			e.log.Debug().Msg("Dropping response frame on approver side")
			return
		}
		e.handleResponse(msg)
	default:
		e.log.Debug().Str("kind", string(msg.Kind)).Msg("Dropping unknown message kind")
	}
}

// handleAnnounce binds the peer key. On the requester side the first
// announce completes the handshake: open the bundle, store the token
// verbatim (validation is the approver's job at request time) and go
// Connected. Re-announces after either side reconnects are idempotent.
func (e *Engine) handleAnnounce(msg *WireMessage) {
	if len(msg.PublicKey) == 0 {
		return
	}

	e.mu.Lock()
	crypto := e.crypto
	e.mu.Unlock()
	if crypto == nil {
		return
	}

	if err := crypto.BindPeer(msg.PublicKey); err != nil {
		if errors.Is(err, ErrAlreadyBound) {
			e.log.Warn().Msg("SECURITY: Announce with conflicting public key ignored")
		} else {
			e.log.Warn().Err(err).Msg("Failed to bind announced key")
		}
		return
	}

	if e.cfg.Role == RoleApprover {
		e.log.Debug().Msg("Requester announce observed")
		return
	}

	if msg.Bundle == nil {
		e.log.Debug().Msg("Announce without bundle - waiting for the real one")
		return
	}

	var bundle announceBundle
	if err := crypto.Open(msg.Bundle, &bundle); err != nil {
		e.log.Warn().Err(err).Msg("Dropping announce with undecryptable bundle")
		return
	}
	if bundle.Token == nil {
		e.log.Warn().Msg("Dropping announce bundle without token")
		return
	}

	e.mu.Lock()
	if e.token == nil {
		e.token = bundle.Token
		e.peer = Peer{Address: bundle.Address, ChainType: bundle.ChainType, ChainID: bundle.ChainID}
	}
	justConnected := e.state == StateHandshaking
	if justConnected {
		e.state = StateConnected
	}
	peer := e.peer
	e.mu.Unlock()

	if justConnected {
		e.persist(context.Background(), true)
		e.emit(Event{Type: EventConnected})
		e.log.Info().Str("address", peer.Address).Msg("Session connected")
	}
}

// handleRequest decrypts and validates an inbound request. Envelopes
// that do not decrypt are dropped silently - no reply, no oracle. All
// later violations produce explicit sealed error responses via the
// gate.
func (e *Engine) handleRequest(msg *WireMessage) {
	e.mu.Lock()
	state := e.state
	crypto := e.crypto
	room := e.room
	relayURL := e.relayURL
	peer := e.peer
	e.mu.Unlock()

	if state != StateConnected || crypto == nil || !crypto.Bound() || msg.Envelope == nil {
		return
	}

	var body requestBody
	if err := crypto.Open(msg.Envelope, &body); err != nil {
		e.log.Warn().Msg("Dropping undecryptable request envelope")
		return
	}

	expect := TokenExpectations{
		SessionID:    e.sessionID,
		Address:      peer.Address,
		ChainType:    peer.ChainType,
		RelayURL:     relayURL,
		RequesterKey: base64.StdEncoding.EncodeToString(crypto.PeerKey()),
	}

	pending, reject := e.gate.submit(msg.Envelope, &body, expect, e.cfg.Verifier, e.cfg.Signer.ChainType(), time.Now())
	if reject != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.sendSealedResponse(ctx, room, reject)
		return
	}

	e.emit(Event{Type: EventRequestPending, Request: pending})
	e.log.Info().Str("request_id", pending.ID).Str("type", string(pending.Type)).
		Msg("Request pending approval")
}

func (e *Engine) handleResponse(msg *WireMessage) {
	e.mu.Lock()
	crypto := e.crypto
	e.mu.Unlock()

	if crypto == nil || !crypto.Bound() || msg.Envelope == nil {
		return
	}

	var body responseBody
	if err := crypto.Open(msg.Envelope, &body); err != nil {
		e.log.Warn().Msg("Dropping undecryptable response envelope")
		return
	}

	resp := &Response{RequestID: body.ID, Result: body.Result, Err: body.Error}
	if body.Status != statusSuccess && resp.Err == nil {
		resp.Err = &ResponseError{Code: "unknown_error", Message: "peer reported failure"}
	}
	e.ledger.resolve(body.ID, resp)
}

func (e *Engine) handleTransportDown(cause error) {
	e.mu.Lock()
	if e.state == StateReconnecting {
		e.mu.Unlock()
		e.log.Debug().AnErr("cause", cause).
			Msg("Transport drop during reconnect - suppressed")
		return
	}
	if e.state != StateConnected && e.state != StateHandshaking {
		e.mu.Unlock()
		return
	}
	e.state = StateDisconnected
	room := e.room
	e.room = nil
	e.stopRead = nil
	crypto := e.crypto
	e.mu.Unlock()

	e.log.Warn().AnErr("cause", cause).Msg("Transport lost - session disconnected")

	if room != nil {
		_ = room.Leave()
	}
	if e.ledger != nil {
		e.ledger.clearAll(ErrConnectionClosed)
	}
	if e.gate != nil {
		e.gate.clear()
	}
	if crypto != nil {
		crypto.Wipe()
	}
	e.store.Delete(context.Background(), e.sessionID)

	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	e.emit(Event{Type: EventDisconnected, Reason: reason})
}

// --- helpers ---

func (e *Engine) approverRoom() (Room, error) {
	if e.cfg.Role != RoleApprover {
		return nil, fmt.Errorf("%w: approve/reject are approver operations", ErrInvalidState)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateClosed:
		return nil, ErrSessionClosed
	case StateConnected:
		return e.room, nil
	default:
		return nil, ErrNotConnected
	}
}

func (e *Engine) sendAnnounce(ctx context.Context, room Room, token *Token, peer Peer) error {
	e.mu.Lock()
	crypto := e.crypto
	e.mu.Unlock()

	env, err := crypto.Seal(&announceBundle{
		Token:     token,
		Address:   peer.Address,
		ChainType: peer.ChainType,
		ChainID:   peer.ChainID,
	})
	if err != nil {
		return fmt.Errorf("failed to seal announce bundle: %w", err)
	}

	msg := &WireMessage{
		Kind:      KindAnnounce,
		SessionID: e.sessionID,
		PublicKey: crypto.PublicKey(),
		Bundle:    env,
	}
	if err := room.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to transmit announce: %w", err)
	}
	return nil
}

func (e *Engine) sendSealedResponse(ctx context.Context, room Room, body *responseBody) error {
	e.mu.Lock()
	crypto := e.crypto
	e.mu.Unlock()

	env, err := crypto.Seal(body)
	if err != nil {
		return fmt.Errorf("failed to seal response: %w", err)
	}

	msg := &WireMessage{Kind: KindResponse, SessionID: e.sessionID, Envelope: env}
	if err := room.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to transmit response: %w", err)
	}
	return nil
}

func (e *Engine) joinWithRetry(ctx context.Context) (Room, error) {
	b := &backoff.Backoff{
		Min:    e.cfg.ReconnectWaitMin,
		Max:    e.cfg.ReconnectWaitMax,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.ConnectAttempts; attempt++ {
		room, err := e.cfg.Transport.Join(ctx, e.sessionID, e.cfg.Role)
		if err == nil {
			return room, nil
		}
		lastErr = err
		e.log.Warn().Err(err).Int("attempt", attempt).Msg("Relay join failed")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return nil, fmt.Errorf("relay join failed after %d attempts: %w", e.cfg.ConnectAttempts, lastErr)
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// persist snapshots the session to storage. Storage failures are
// logged inside Store and never fail the session.
func (e *Engine) persist(ctx context.Context, connected bool) {
	if e.store == nil {
		return
	}

	e.mu.Lock()
	kp := e.crypto.Export()
	rec := &Record{
		SessionID:     e.sessionID,
		Role:          e.cfg.Role,
		RelayURL:      e.relayURL,
		AppURL:        e.appURL,
		PublicKey:     kp.Public,
		PrivateKey:    kp.Private,
		PeerPublicKey: e.crypto.PeerKey(),
		PeerAddress:   e.peer.Address,
		ChainType:     e.peer.ChainType,
		ChainID:       e.peer.ChainID,
		Token:         e.token,
		Connected:     connected,
	}
	e.mu.Unlock()

	e.store.Save(ctx, rec)
	kp.Wipe()
}

// emit delivers an event without ever blocking the protocol. The
// channel check runs under the engine lock so no event is sent after
// Close.
func (e *Engine) emit(ev Event) {
	ev.SessionID = e.sessionID
	ev.Time = time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return
	}

	select {
	case e.events <- ev:
	default:
		e.log.Warn().Str("event", string(ev.Type)).
			Msg("Event channel full - dropping event")
	}
}
