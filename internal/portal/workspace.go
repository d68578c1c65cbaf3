package portal

import (
	"sync"
	"time"

	"github.com/medly/medly-portal/internal/booking"
	"github.com/medly/medly-portal/internal/notify"
	"github.com/medly/medly-portal/internal/schedule"
)

// workspace holds the in-process workflow state of one session. It lives on
// the replica that served the session and is rebuilt from scratch elsewhere.
type workspace struct {
	notes *notify.Recorder

	mu       sync.Mutex
	booking  *booking.Workflow
	schedule *schedule.Manager
	lastSeen time.Time
}

func (ws *workspace) drain() []notify.Notification {
	if ws == nil {
		return nil
	}
	return ws.notes.Drain()
}

func (ws *workspace) bookingWorkflow(build func() *booking.Workflow) *booking.Workflow {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.booking == nil {
		ws.booking = build()
	}
	return ws.booking
}

// discardBooking drops the booking workflow if it is still wf.
func (ws *workspace) discardBooking(wf *booking.Workflow) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.booking == wf {
		ws.booking = nil
	}
}

func (ws *workspace) scheduleManager(build func() *schedule.Manager) *schedule.Manager {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.schedule == nil {
		ws.schedule = build()
	}
	return ws.schedule
}

type registry struct {
	mu    sync.Mutex
	items map[string]*workspace
	idle  time.Duration
	now   func() time.Time
}

func newRegistry(idle time.Duration, now func() time.Time) *registry {
	return &registry{
		items: make(map[string]*workspace),
		idle:  idle,
		now:   now,
	}
}

// get returns the workspace of sessionID, creating it on first use. Idle
// workspaces of other sessions are evicted on the way.
func (r *registry) get(sessionID string) *workspace {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.idle > 0 {
		for id, ws := range r.items {
			if id != sessionID && now.Sub(ws.lastSeen) > r.idle {
				delete(r.items, id)
			}
		}
	}

	ws, ok := r.items[sessionID]
	if !ok {
		ws = &workspace{notes: notify.NewRecorder()}
		r.items[sessionID] = ws
	}
	ws.lastSeen = now
	return ws
}

func (r *registry) drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, sessionID)
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
