package supervisor

import (
	"sync"
	"time"
)

// State is the supervisor's position in its loop.
type State string

const (
	Connecting State = "connecting"
	Subscribed State = "subscribed"
	Recovering State = "recovering"
)

// Status is a point-in-time view of the supervisor, served on /healthz.
type Status struct {
	State           State     `json:"state"`
	Chain           string    `json:"chain,omitempty"`
	Variant         string    `json:"variant,omitempty"`
	Sessions        uint64    `json:"sessions"`
	LastError       string    `json:"last_error,omitempty"`
	LastErrorKind   string    `json:"last_error_kind,omitempty"`
	ConnectFailures int       `json:"connect_failures"`
	Since           time.Time `json:"since"`
}

type statusTracker struct {
	mu     sync.Mutex
	status Status
}

func (t *statusTracker) enter(s State, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.State != s {
		t.status.State = s
		t.status.Since = now
	}
}

func (t *statusTracker) sessionStarted(chain, variant string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Chain = chain
	t.status.Variant = variant
	t.status.Sessions++
}

func (t *statusTracker) sessionEnded(k Kind, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.LastErrorKind = k.String()
	t.status.LastError = ""
	if err != nil {
		t.status.LastError = err.Error()
	}
}

func (t *statusTracker) snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}
