package session

import (
	"sync"
	"time"

	"cacviun/internal/models"
)

// FlowTTL is how long a started registration or password reset waits for
// its verification code.
const FlowTTL = 15 * time.Minute

// Flow is the state carried between the steps of a code-verified flow.
// Password is held in memory only and never written to the session file.
type Flow struct {
	Type     models.CodeType
	Name     string
	Email    string
	Password string
	Started  time.Time
}

// FlowStore keeps at most one pending flow per session id.
type FlowStore struct {
	mu    sync.Mutex
	flows map[string]*Flow
	ttl   time.Duration
	now   func() time.Time
}

func NewFlowStore(ttl time.Duration) *FlowStore {
	if ttl <= 0 {
		ttl = FlowTTL
	}
	return &FlowStore{
		flows: make(map[string]*Flow),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Begin replaces any pending flow of sid.
func (fs *FlowStore) Begin(sid string, f Flow) {
	f.Started = fs.now()
	fs.mu.Lock()
	fs.flows[sid] = &f
	fs.mu.Unlock()
}

// Pending returns the unexpired flow of the given type for sid.
func (fs *FlowStore) Pending(sid string, typ models.CodeType) (Flow, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, ok := fs.flows[sid]
	if !ok || f.Type != typ {
		return Flow{}, false
	}
	if fs.now().Sub(f.Started) > fs.ttl {
		delete(fs.flows, sid)
		return Flow{}, false
	}
	return *f, true
}

// Finish drops the pending flow of sid.
func (fs *FlowStore) Finish(sid string) {
	fs.mu.Lock()
	delete(fs.flows, sid)
	fs.mu.Unlock()
}

// Len returns the number of pending flows.
func (fs *FlowStore) Len() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.flows)
}

// Cleanup removes expired flows (call periodically)
func (fs *FlowStore) Cleanup() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := fs.now()
	for sid, f := range fs.flows {
		if now.Sub(f.Started) > fs.ttl {
			delete(fs.flows, sid)
		}
	}
}
