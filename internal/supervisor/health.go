package supervisor

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// unreachableThreshold is the number of consecutive failed connection
// attempts after which the node is reported unreachable.
const unreachableThreshold = 10

// connHealth tracks consecutive connection failures. The acquirer writes it
// while the status server reads it, so fields are guarded by mu.
type connHealth struct {
	mu          sync.Mutex
	log         *log.Entry
	failures    int
	lastErr     string
	lastFail    time.Time
	unreachable bool
}

func newConnHealth(logger *log.Entry) *connHealth {
	return &connHealth{log: logger}
}

func (h *connHealth) recordFailure(err error, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
	h.lastErr = err.Error()
	h.lastFail = now
	if h.failures >= unreachableThreshold && !h.unreachable {
		h.unreachable = true
		h.log.Warnf("Node unreachable after %d attempts (last error: %s)", h.failures, h.lastErr)
	}
}

func (h *connHealth) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unreachable {
		h.log.Infof("Node reachable again after %d failed attempts", h.failures)
	}
	h.failures = 0
	h.lastErr = ""
	h.unreachable = false
}

// snapshot returns the consecutive failure count and the last error.
func (h *connHealth) snapshot() (failures int, lastErr string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures, h.lastErr
}
