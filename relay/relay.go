// Package relay is the NATS-backed transport behind session.Transport.
//
// One NATS connection carries any number of session rooms. A room is a
// pair of subjects under the session's space:
//
//	SessionSpace.<session-id>.forRequester
//	SessionSpace.<session-id>.forApprover
//
// Each side subscribes to its own subject and publishes to the peer's,
// so a room only ever delivers frames addressed to this role. The relay
// sees opaque envelopes; it cannot read or forge session traffic.
//
// Transient connection drops are absorbed by the NATS client's own
// reconnect loop and never surface to sessions. Only a permanently
// closed connection fans out to each room's Down channel.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mesmerverse/walletbridge/session"
)

// roomBuffer is the per-room inbound queue. Frames beyond it are
// dropped; the protocol correlates by id and tolerates loss.
const roomBuffer = 64

// Relay implements session.Transport over a single NATS connection.
type Relay struct {
	conn *nats.Conn
	url  string

	mu     sync.Mutex
	rooms  map[string]*room
	closed bool
}

// Dial connects to the relay described by cfg.
func Dial(cfg Config) (*Relay, error) {
	r := &Relay{
		url:   cfg.URL,
		rooms: make(map[string]*room),
	}

	opts := []nats.Option{
		nats.Name("walletbridge"),
		nats.ReconnectWait(time.Duration(cfg.ReconnectWait) * time.Millisecond),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Relay disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("Relay reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			r.connectionClosed(nc)
		}),
	}

	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err == nil {
			opts = append(opts, nats.UserCredentials(cfg.CredentialsFile))
		}
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}

	r.conn = conn
	return r, nil
}

// URL returns the configured relay endpoint. It is bound into
// connection URIs and session tokens, so it is the configured address,
// not whichever cluster member the client happens to be connected to.
func (r *Relay) URL() string {
	return r.url
}

// Join subscribes to the role's inbound subject and announces presence
// with a join marker on the peer subject.
func (r *Relay) Join(ctx context.Context, sessionID string, role session.Role) (session.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("relay connection is closed")
	}
	key := roomKey(sessionID, role)
	if _, exists := r.rooms[key]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("already joined session %s as %s", sessionID, role)
	}
	r.mu.Unlock()

	rm := &room{
		relay:       r,
		key:         key,
		sessionID:   sessionID,
		sendSubject: subjectFor(sessionID, peerOf(role)),
		msgs:        make(chan *session.WireMessage, roomBuffer),
		down:        make(chan error, 1),
	}

	inbound := subjectFor(sessionID, role)
	sub, err := r.conn.Subscribe(inbound, func(m *nats.Msg) {
		var wire session.WireMessage
		if err := json.Unmarshal(m.Data, &wire); err != nil {
			log.Warn().Err(err).Str("subject", m.Subject).Msg("Dropping malformed relay frame")
			return
		}
		select {
		case rm.msgs <- &wire:
		default:
			log.Warn().Str("subject", m.Subject).Msg("Room channel full, dropping message")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", inbound, err)
	}
	rm.sub = sub

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		sub.Unsubscribe()
		return nil, fmt.Errorf("relay connection is closed")
	}
	r.rooms[key] = rm
	r.mu.Unlock()

	log.Debug().Str("subject", inbound).Msg("Joined session room")

	join := &session.WireMessage{Kind: session.KindJoin, SessionID: sessionID}
	if err := rm.publish(join); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to publish join marker")
	}

	return rm, nil
}

// Close leaves all rooms and closes the NATS connection. Rooms do not
// receive Down signals for a deliberate close.
func (r *Relay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.rooms = make(map[string]*room)
	r.mu.Unlock()

	for _, rm := range rooms {
		rm.sub.Unsubscribe()
	}
	r.conn.Close()
}

// connectionClosed runs when the NATS connection is permanently gone:
// reconnect attempts exhausted or an unrecoverable error. Every open
// room learns about it through its Down channel.
func (r *Relay) connectionClosed(nc *nats.Conn) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.rooms = make(map[string]*room)
	r.mu.Unlock()

	cause := nc.LastError()
	if cause == nil {
		cause = nats.ErrConnectionClosed
	}
	log.Warn().Err(cause).Int("rooms", len(rooms)).Msg("Relay connection closed")

	for _, rm := range rooms {
		select {
		case rm.down <- cause:
		default:
		}
	}
}

func (r *Relay) removeRoom(key string) {
	r.mu.Lock()
	delete(r.rooms, key)
	r.mu.Unlock()
}

// room is one joined session room.
type room struct {
	relay       *Relay
	key         string
	sessionID   string
	sendSubject string
	sub         *nats.Subscription
	msgs        chan *session.WireMessage
	down        chan error
	leaveOnce   sync.Once
}

// Send publishes a frame to the peer side of the room.
func (rm *room) Send(ctx context.Context, msg *session.WireMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return rm.publish(msg)
}

func (rm *room) publish(msg *session.WireMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := rm.relay.conn.Publish(rm.sendSubject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", rm.sendSubject, err)
	}
	return nil
}

// Messages delivers inbound frames for this role.
func (rm *room) Messages() <-chan *session.WireMessage {
	return rm.msgs
}

// Down signals permanent connection loss.
func (rm *room) Down() <-chan error {
	return rm.down
}

// Leave unsubscribes from the room. Safe to call more than once.
func (rm *room) Leave() error {
	var err error
	rm.leaveOnce.Do(func() {
		err = rm.sub.Unsubscribe()
		rm.relay.removeRoom(rm.key)
		log.Debug().Str("session_id", rm.sessionID).Msg("Left session room")
	})
	return err
}

func subjectFor(sessionID string, role session.Role) string {
	switch role {
	case session.RoleRequester:
		return fmt.Sprintf("SessionSpace.%s.forRequester", sessionID)
	default:
		return fmt.Sprintf("SessionSpace.%s.forApprover", sessionID)
	}
}

func peerOf(role session.Role) session.Role {
	if role == session.RoleRequester {
		return session.RoleApprover
	}
	return session.RoleRequester
}

// roomKey distinguishes the two sides of one session so a single relay
// connection can host both, as the in-process harness does.
func roomKey(sessionID string, role session.Role) string {
	return sessionID + "/" + string(role)
}
