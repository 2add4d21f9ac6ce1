// Package subscription tracks the live-update listeners connected to this
// process. It keeps no history: a client that reconnects catches up from
// the durable notification records.
package subscription

import (
	"sync"

	"github.com/google/uuid"
)

// Message is one live update pushed to a listener.
type Message struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	ReservationID string `json:"reservation_id"`
	Payload       []byte `json:"-"`
}

// Handle is one open session of a user. Read messages from C until it is
// closed by Unsubscribe.
type Handle struct {
	ID     string
	UserID string
	C      <-chan Message

	ch chan Message
}

// Registry maps users to their open handles. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	users  map[string]map[string]*Handle
	buffer int
}

// NewRegistry creates an empty registry. buffer is the per-handle queue
// length; a handle whose queue is full misses live messages.
func NewRegistry(buffer int) *Registry {
	if buffer < 1 {
		buffer = 1
	}
	return &Registry{
		users:  make(map[string]map[string]*Handle),
		buffer: buffer,
	}
}

// Subscribe opens a new handle for userID.
func (r *Registry) Subscribe(userID string) *Handle {
	ch := make(chan Message, r.buffer)
	h := &Handle{ID: uuid.NewString(), UserID: userID, C: ch, ch: ch}

	r.mu.Lock()
	defer r.mu.Unlock()
	handles, ok := r.users[userID]
	if !ok {
		handles = make(map[string]*Handle)
		r.users[userID] = handles
	}
	handles[h.ID] = h
	return h
}

// Unsubscribe removes h and closes its channel. Calling it twice is harmless.
func (r *Registry) Unsubscribe(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handles, ok := r.users[h.UserID]
	if !ok {
		return
	}
	if _, ok := handles[h.ID]; !ok {
		return
	}
	delete(handles, h.ID)
	close(h.ch)
	if len(handles) == 0 {
		delete(r.users, h.UserID)
	}
}

// Publish offers msg to every handle of userID without blocking and
// returns how many accepted it.
func (r *Registry) Publish(userID string, msg Message) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, h := range r.users[userID] {
		select {
		case h.ch <- msg:
			delivered++
		default:
		}
	}
	return delivered
}

// Connected reports how many handles userID has open.
func (r *Registry) Connected(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}
