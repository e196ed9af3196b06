package supervisor

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"github.com/turboflakes/skipper/internal/runtime"
	"github.com/turboflakes/skipper/internal/substrate"
)

// ConnectRetryDelay is the fixed wait between connection attempts.
const ConnectRetryDelay = 6 * time.Second

const (
	undefinedChain   = "Chain undefined"
	undefinedName    = "Node name undefined"
	undefinedVersion = "Node version undefined"
)

// Node is a live connection to a Substrate node.
type Node interface {
	runtime.Chain
	SystemChain(ctx context.Context) (string, error)
	SystemName(ctx context.Context) (string, error)
	SystemVersion(ctx context.Context) (string, error)
	SystemProperties(ctx context.Context) (substrate.Properties, error)
	Close() error
}

// DialFunc opens a connection to url.
type DialFunc func(ctx context.Context, url string) (Node, error)

// DialSubstrate is the DialFunc backed by the websocket client.
func DialSubstrate(ctx context.Context, url string) (Node, error) {
	c, err := substrate.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Identity is what the node reports about itself right after connecting.
type Identity struct {
	Chain   string
	Name    string
	Version string
}

// Acquirer connects to one endpoint, retrying forever.
type Acquirer struct {
	URL     string
	Dial    DialFunc
	Clock   clock.Clock
	Log     *log.Entry
	Metrics *Metrics

	health *connHealth
}

// Acquire returns a connected node. Connection failures are logged and
// retried every ConnectRetryDelay against the same URL; the only error
// returned is the cancellation of ctx.
func (a *Acquirer) Acquire(ctx context.Context) (Node, Identity, error) {
	for {
		node, err := a.Dial(ctx, a.URL)
		if err == nil {
			if a.health != nil {
				a.health.recordSuccess()
			}
			id := a.identify(ctx, node)
			a.Log.Infof("Connected to %s network using %s * Substrate node %s v%s",
				id.Chain, a.URL, id.Name, id.Version)
			return node, id, nil
		}
		if ctx.Err() != nil {
			return nil, Identity{}, ctx.Err()
		}

		a.Log.Error(err)
		a.Metrics.connectFailed()
		if a.health != nil {
			a.health.recordFailure(err, a.Clock.Now())
		}
		a.Log.Infof("Awaiting for connection using %s", a.URL)
		if err := sleep(ctx, a.Clock, ConnectRetryDelay); err != nil {
			return nil, Identity{}, err
		}
	}
}

func (a *Acquirer) identify(ctx context.Context, node Node) Identity {
	id := Identity{Chain: undefinedChain, Name: undefinedName, Version: undefinedVersion}
	if v, err := node.SystemChain(ctx); err == nil && v != "" {
		id.Chain = v
	}
	if v, err := node.SystemName(ctx); err == nil && v != "" {
		id.Name = v
	}
	if v, err := node.SystemVersion(ctx); err == nil && v != "" {
		id.Version = v
	}
	return id
}

// sleep waits d on clk, returning early with ctx's error on cancellation.
func sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	t := clk.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
