package runtime

import (
	"context"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/turboflakes/skipper/internal/config"
	"github.com/turboflakes/skipper/internal/hook"
	"github.com/turboflakes/skipper/internal/ss58"
	"github.com/turboflakes/skipper/internal/substrate"
)

const unsubscribeTimeout = 5 * time.Second

// Chain is the node access the watcher needs.
type Chain interface {
	GetStorage(ctx context.Context, key substrate.StorageKey) ([]byte, error)
	SubscribeStorage(ctx context.Context, keys ...substrate.StorageKey) (*substrate.Subscription, error)
}

// Notifier delivers operator messages.
type Notifier interface {
	Send(ctx context.Context, message, formatted string) error
}

// HookRunner verifies and runs hook scripts.
type HookRunner interface {
	Verify(name, path string)
	Invoke(ctx context.Context, name, path string, args ...string) error
}

// Env is everything a subscription routine uses. Format is the address
// display convention of the current session.
type Env struct {
	Chain    Chain
	Notifier Notifier
	Hooks    HookRunner
	Paths    config.HooksConfig
	Stashes  []string
	Format   ss58.Format
	Log      *log.Entry
}

// Run runs the subscription routine of v until the stream ends, an error
// occurs, or ctx is cancelled. A stream that ends because the connection
// closed returns an error wrapping substrate.ErrSubscriptionEnded.
func Run(ctx context.Context, v Variant, env Env) error {
	switch v {
	case Polkadot:
		return runPolkadot(ctx, env)
	case Kusama:
		return runKusama(ctx, env)
	case Westend:
		return runWestend(ctx, env)
	}
	return fmt.Errorf("runtime: no subscription routine for %s", v)
}

func runPolkadot(ctx context.Context, env Env) error {
	return newWatcher(Polkadot, env).run(ctx)
}

func runKusama(ctx context.Context, env Env) error {
	return newWatcher(Kusama, env).run(ctx)
}

func runWestend(ctx context.Context, env Env) error {
	return newWatcher(Westend, env).run(ctx)
}

type stash struct {
	id      ss58.AccountID
	address string
}

// watcher follows Session.CurrentIndex and fires hooks at session and era
// boundaries. Its state lives for one supervisor session only.
type watcher struct {
	variant Variant
	env     Env
	log     *log.Entry
	stashes []stash

	session     uint32
	haveSession bool

	plannedEra     uint32
	havePlannedEra bool
}

func newWatcher(v Variant, env Env) *watcher {
	logger := env.Log
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &watcher{
		variant: v,
		env:     env,
		log:     logger.WithField("runtime", v.String()),
	}
}

func (w *watcher) run(ctx context.Context) error {
	for _, name := range hook.Names {
		w.env.Hooks.Verify(name, w.hookPath(name))
	}

	if err := w.loadStashes(); err != nil {
		return err
	}
	if len(w.stashes) == 0 {
		w.log.Warn("No stashes configured, hooks will not run")
	}

	sub, err := w.env.Chain.SubscribeStorage(ctx, substrate.SessionCurrentIndex)
	if err != nil {
		return fmt.Errorf("subscribing to session changes: %w", err)
	}
	defer func() {
		uctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
		defer cancel()
		if err := sub.Unsubscribe(uctx); err != nil {
			w.log.Debugf("Unsubscribing %s: %v", sub.ID(), err)
		}
	}()

	w.log.Infof("Subscribed to %s session changes", w.variant)
	w.log.Debugf("Session subscription id %s", sub.ID())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-sub.Notifications():
			if !ok {
				if err := sub.Err(); err != nil {
					return err
				}
				return substrate.ErrSubscriptionEnded
			}
			set, err := substrate.DecodeChangeSet(raw)
			if err != nil {
				return err
			}
			value, found := set.Lookup(substrate.SessionCurrentIndex)
			if !found || value == nil {
				continue
			}
			index, err := substrate.DecodeU32(value)
			if err != nil {
				return fmt.Errorf("decoding session index: %w", err)
			}
			if err := w.onSession(ctx, index, set.Block); err != nil {
				return err
			}
		}
	}
}

func (w *watcher) loadStashes() error {
	w.stashes = w.stashes[:0]
	for _, addr := range w.env.Stashes {
		id, _, err := ss58.Decode(addr)
		if err != nil {
			return fmt.Errorf("stash %q: %w", addr, err)
		}
		s := stash{id: id, address: w.env.Format.Encode(id)}
		w.log.Debugf("Watching stash %s (%s)", s.address, id.Hex())
		w.stashes = append(w.stashes, s)
	}
	return nil
}

func (w *watcher) onSession(ctx context.Context, index uint32, block string) error {
	if w.haveSession && index == w.session {
		return nil
	}
	first := !w.haveSession
	w.session, w.haveSession = index, true

	activeEra, err := w.readEra(ctx, substrate.StakingActiveEra)
	if err != nil {
		return fmt.Errorf("reading active era: %w", err)
	}
	currentEra, err := w.readEra(ctx, substrate.StakingCurrentEra)
	if err != nil {
		return fmt.Errorf("reading current era: %w", err)
	}

	if first {
		w.log.Infof("Current session %d in era %d", index, activeEra)
		return nil
	}
	w.log.Infof("New session %d in era %d at block %s", index, activeEra, block)

	era, session := strconv.FormatUint(uint64(activeEra), 10), strconv.FormatUint(uint64(index), 10)
	for _, s := range w.stashes {
		if err := w.env.Hooks.Invoke(ctx, hook.NewSession, w.env.Paths.NewSession, s.address, era, session); err != nil {
			return err
		}
	}

	if currentEra > activeEra && !(w.havePlannedEra && w.plannedEra == currentEra) {
		w.plannedEra, w.havePlannedEra = currentEra, true
		return w.onEraPlanned(ctx, currentEra, index)
	}
	return nil
}

// onEraPlanned runs once per planned era, when Session.QueuedKeys holds the
// validator set of the next era.
func (w *watcher) onEraPlanned(ctx context.Context, nextEra, index uint32) error {
	raw, err := w.env.Chain.GetStorage(ctx, substrate.SessionQueuedKeys)
	if err != nil {
		return fmt.Errorf("reading queued keys: %w", err)
	}
	var queued []ss58.AccountID
	if raw != nil {
		if queued, err = substrate.DecodeAccountVec(raw); err != nil {
			return fmt.Errorf("decoding queued keys: %w", err)
		}
	}
	inSet := make(map[ss58.AccountID]bool, len(queued))
	for _, id := range queued {
		inSet[id] = true
	}
	w.log.Infof("Era %d planned with %d validators", nextEra, len(queued))

	era, session := strconv.FormatUint(uint64(nextEra), 10), strconv.FormatUint(uint64(index), 10)
	for _, s := range w.stashes {
		name, path, status, icon := hook.InactiveNextEra, w.env.Paths.InactiveNextEra, "inactive", "🔴"
		if inSet[s.id] {
			name, path, status, icon = hook.ActiveNextEra, w.env.Paths.ActiveNextEra, "active", "🟢"
		}

		if err := w.env.Hooks.Invoke(ctx, name, path, s.address, era, session); err != nil {
			return err
		}

		message := fmt.Sprintf("%s will be %s in era %d on %s", s.address, status, nextEra, w.variant)
		formatted := fmt.Sprintf("%s <code>%s</code> will be <b>%s</b> in era %d on %s<br/>",
			icon, s.address, status, nextEra, w.variant)
		if err := w.env.Notifier.Send(ctx, message, formatted); err != nil {
			return fmt.Errorf("notifying era %d status: %w", nextEra, err)
		}
	}
	return nil
}

func (w *watcher) readEra(ctx context.Context, key substrate.StorageKey) (uint32, error) {
	raw, err := w.env.Chain.GetStorage(ctx, key)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	return substrate.DecodeU32(raw)
}

func (w *watcher) hookPath(name string) string {
	switch name {
	case hook.NewSession:
		return w.env.Paths.NewSession
	case hook.ActiveNextEra:
		return w.env.Paths.ActiveNextEra
	case hook.InactiveNextEra:
		return w.env.Paths.InactiveNextEra
	}
	return ""
}
