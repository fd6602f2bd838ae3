package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Registry owns every live engine for one role, keyed by session id.
// It is the only state shared across sessions; engines themselves are
// independent. There are no process-wide instances: each host creates
// its own registry with its own config.
type Registry struct {
	cfg   *Config
	store *Store
	log   zerolog.Logger

	mu      sync.RWMutex
	engines map[string]*Engine
	closed  bool
}

// NewRegistry validates the config, applies defaults and returns an
// empty registry.
func NewRegistry(cfg *Config) (*Registry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := cfg.withDefaults()
	return &Registry{
		cfg:     c,
		store:   NewStore(c.Storage, *c.Logger),
		log:     *c.Logger,
		engines: make(map[string]*Engine),
	}, nil
}

// CreateSession opens a new requester session and returns its engine
// together with the connection URI to hand to an approver out of band.
func (r *Registry) CreateSession(ctx context.Context) (*Engine, string, error) {
	if r.cfg.Role != RoleRequester {
		return nil, "", fmt.Errorf("%w: create is a requester operation", ErrInvalidState)
	}

	id := uuid.NewString()
	eng := newEngine(r.cfg, id, r.store)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, "", ErrSessionClosed
	}
	r.engines[id] = eng
	r.mu.Unlock()

	uri, err := eng.create(ctx)
	if err != nil {
		r.remove(id)
		eng.Close()
		return nil, "", err
	}
	return eng, uri, nil
}

// Bootstrap consumes a connection URI on the approver side and drives
// the handshake to completion.
func (r *Registry) Bootstrap(ctx context.Context, uri string) (*Engine, error) {
	if r.cfg.Role != RoleApprover {
		return nil, fmt.Errorf("%w: bootstrap is an approver operation", ErrInvalidState)
	}

	decoded, err := DecodeURI(uri)
	if err != nil {
		return nil, err
	}

	eng := newEngine(r.cfg, decoded.SessionID, r.store)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if _, exists := r.engines[decoded.SessionID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("session %s already exists", decoded.SessionID)
	}
	r.engines[decoded.SessionID] = eng
	r.mu.Unlock()

	if err := eng.bootstrap(ctx, decoded); err != nil {
		r.remove(decoded.SessionID)
		eng.Close()
		return nil, err
	}
	return eng, nil
}

// Get returns the engine for a session id.
func (r *Registry) Get(sessionID string) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eng, ok := r.engines[sessionID]
	return eng, ok
}

// Sessions lists the ids of every live engine.
func (r *Registry) Sessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	return ids
}

// Disconnect ends a session for good: stored record removed, keys
// wiped, engine closed and dropped from the registry.
func (r *Registry) Disconnect(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	eng, ok := r.engines[sessionID]
	delete(r.engines, sessionID)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown session %s", sessionID)
	}
	err := eng.Disconnect(ctx)
	eng.Close()
	return err
}

// RestoreAll loads every stored record for this role and rebuilds the
// engines of previously-connected sessions. Approver engines only emit
// a restorable event and wait for an explicit Reconnect, since their
// signing capability had to be re-supplied through the config and the
// host may want to confirm before going live. Requester engines
// reconnect immediately when AutoReconnect is set; they need no
// external secret to resume.
func (r *Registry) RestoreAll(ctx context.Context) ([]*Engine, error) {
	if r.store == nil {
		return nil, ErrStorageDisabled
	}

	var restored []*Engine
	for _, rec := range r.store.LoadAll(ctx) {
		if rec.Role != r.cfg.Role {
			continue
		}
		if !rec.Connected {
			r.log.Debug().Str("session_id", rec.SessionID).
				Msg("Skipping never-connected session record")
			continue
		}

		eng := newEngine(r.cfg, rec.SessionID, r.store)

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return restored, ErrSessionClosed
		}
		if _, exists := r.engines[rec.SessionID]; exists {
			r.mu.Unlock()
			continue
		}
		r.engines[rec.SessionID] = eng
		r.mu.Unlock()

		if err := eng.restore(rec); err != nil {
			r.log.Warn().Err(err).Str("session_id", rec.SessionID).
				Msg("Failed to restore session - skipping")
			r.remove(rec.SessionID)
			eng.Close()
			continue
		}

		if r.cfg.Role == RoleRequester && r.cfg.AutoReconnect {
			if err := eng.Reconnect(ctx); err != nil {
				r.log.Warn().Err(err).Str("session_id", rec.SessionID).
					Msg("Auto-reconnect failed - session stays restorable")
				eng.emit(Event{Type: EventRestorable})
			}
		} else {
			eng.emit(Event{Type: EventRestorable})
		}

		restored = append(restored, eng)
	}

	r.log.Info().Int("restored", len(restored)).Msg("Session restore completed")
	return restored, nil
}

// Close shuts every engine down without touching stored records, so
// sessions can be restored on the next start. Use Disconnect to end
// individual sessions for good.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	engines := r.engines
	r.engines = make(map[string]*Engine)
	r.mu.Unlock()

	for _, eng := range engines {
		eng.Close()
	}
}

func (r *Registry) remove(sessionID string) {
	r.mu.Lock()
	delete(r.engines, sessionID)
	r.mu.Unlock()
}
