package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// requestResult is what a waiting SendRequest call receives: either
// the peer's response or a terminal error.
type requestResult struct {
	resp *Response
	err  error
}

// pendingRequest is one in-flight requester-side request.
type pendingRequest struct {
	id        string
	reqType   RequestType
	createdAt time.Time
	done      chan requestResult
	timer     *time.Timer
}

// requestLedger correlates responses to in-flight requests by id. The
// transport may reorder messages freely; matching is id-keyed, so
// ordering never matters. Each entry carries its own timeout timer;
// cancellation is purely local and no message is sent to the peer.
type requestLedger struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
	log     zerolog.Logger
}

func newRequestLedger(log zerolog.Logger) *requestLedger {
	return &requestLedger{
		pending: make(map[string]*pendingRequest),
		log:     log,
	}
}

// add registers a fresh request id with a timeout. When the timer
// fires the entry rejects with ErrRequestTimeout and is removed.
func (l *requestLedger) add(reqType RequestType, timeout time.Duration) *pendingRequest {
	p := &pendingRequest{
		id:        uuid.NewString(),
		reqType:   reqType,
		createdAt: time.Now(),
		done:      make(chan requestResult, 1),
	}

	l.mu.Lock()
	p.timer = time.AfterFunc(timeout, func() { l.fail(p.id, ErrRequestTimeout) })
	l.pending[p.id] = p
	l.mu.Unlock()
	return p
}

// resolve completes a request with the peer's response and cancels its
// timer. Late responses for unknown ids are logged and dropped; a
// response to an already timed-out request is normal, not an error.
func (l *requestLedger) resolve(id string, resp *Response) {
	p := l.take(id)
	if p == nil {
		l.log.Debug().Str("request_id", id).
			Msg("Dropping response for unknown request id")
		return
	}
	p.done <- requestResult{resp: resp}
}

// fail completes a request with an error.
func (l *requestLedger) fail(id string, err error) {
	if p := l.take(id); p != nil {
		p.done <- requestResult{err: err}
	}
}

// take removes and returns an entry, stopping its timer.
func (l *requestLedger) take(id string) *pendingRequest {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pending[id]
	if !ok {
		return nil
	}
	delete(l.pending, id)
	p.timer.Stop()
	return p
}

// clearAll rejects every outstanding request, used at session teardown.
func (l *requestLedger) clearAll(err error) {
	l.mu.Lock()
	pending := l.pending
	l.pending = make(map[string]*pendingRequest)
	l.mu.Unlock()

	for _, p := range pending {
		p.timer.Stop()
		p.done <- requestResult{err: err}
	}
	if len(pending) > 0 {
		l.log.Debug().Int("cleared", len(pending)).
			Msg("Cleared outstanding requests")
	}
}

func (l *requestLedger) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
