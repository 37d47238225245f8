package auditfake

import (
	"context"
	"sync"

	"github.com/fleetdesk/authcore/audit"
)

var _ audit.Recorder = (*CaptureRecorder)(nil)

// CaptureRecorder collects events in memory for test assertions.
type CaptureRecorder struct {
	events []audit.Event
	lock   sync.Mutex
}

func NewCaptureRecorder() *CaptureRecorder {
	return &CaptureRecorder{}
}

func (r *CaptureRecorder) Record(_ context.Context, event audit.Event) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything recorded so far.
func (r *CaptureRecorder) Events() []audit.Event {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]audit.Event, len(r.events))
	copy(out, r.events)
	return out
}

// CountKind returns how many recorded events have the given kind.
func (r *CaptureRecorder) CountKind(kind audit.Kind) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
