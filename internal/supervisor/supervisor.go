// Package supervisor keeps one subscription session alive against a node,
// rebuilding it after every failure.
//
// Each iteration acquires a connection, selects the runtime from the node's
// address format, authenticates a notification sink and runs the runtime's
// subscription. The result is classified into a Kind that decides the wait
// before the next iteration: one second after a closed stream or a failed
// notification, the configured error interval after anything else.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"github.com/turboflakes/skipper/internal/config"
	"github.com/turboflakes/skipper/internal/runtime"
	"github.com/turboflakes/skipper/internal/ss58"
)

// RestartDelay is the wait before reconnecting after a closed stream or a
// skipped notification.
const RestartDelay = time.Second

// Sink delivers operator notifications.
type Sink interface {
	Authenticate(ctx context.Context) error
	Send(ctx context.Context, message, formatted string) error
}

// RunFunc runs the subscription of one runtime variant.
type RunFunc func(ctx context.Context, v runtime.Variant, env runtime.Env) error

// Session is one connected node with its selected runtime. SelectErr is set
// when the node's address format matched no supported runtime. Token is the
// symbol the node reports, or the runtime's own when it reports none.
type Session struct {
	Node      Node
	Identity  Identity
	Variant   runtime.Variant
	SelectErr error
	Format    ss58.Format
	Token     string
	Sink      Sink
}

// Options wires a Supervisor. Dial, NewSink and Hooks are required.
type Options struct {
	Config  config.Config
	Version string
	// Announce sends a start-up notification on the first session.
	Announce bool

	Dial    DialFunc
	NewSink func(config.MatrixConfig) Sink
	Hooks   runtime.HookRunner
	Run     RunFunc
	Host    func(ctx context.Context) string
	Clock   clock.Clock
	Metrics *Metrics
	Log     *log.Entry
}

type Supervisor struct {
	opts   Options
	cfg    config.Config
	clock  clock.Clock
	log    *log.Entry
	acq    *Acquirer
	health *connHealth
	status statusTracker

	announced bool
}

func New(opts Options) *Supervisor {
	if opts.Run == nil {
		opts.Run = runtime.Run
	}
	if opts.Host == nil {
		opts.Host = HostDescription
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Log == nil {
		opts.Log = log.NewEntry(log.StandardLogger())
	}

	s := &Supervisor{
		opts:   opts,
		cfg:    opts.Config,
		clock:  opts.Clock,
		log:    opts.Log,
		health: newConnHealth(opts.Log),
	}
	s.acq = &Acquirer{
		URL:     opts.Config.SubstrateWsURL,
		Dial:    opts.Dial,
		Clock:   opts.Clock,
		Log:     opts.Log,
		Metrics: opts.Metrics,
		health:  s.health,
	}
	s.status.enter(Connecting, s.clock.Now())
	return s
}

// Status returns a snapshot of the supervisor state.
func (s *Supervisor) Status() Status {
	st := s.status.snapshot()
	st.ConnectFailures, _ = s.health.snapshot()
	return st
}

// Run loops until ctx is cancelled, which is the only way it returns.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		sess, err := s.connect(ctx)
		if err != nil {
			return err
		}

		result := s.subscribe(ctx, sess)
		sess.Node.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := s.recover(ctx, sess, result); err != nil {
			return err
		}
	}
}

func (s *Supervisor) connect(ctx context.Context) (*Session, error) {
	s.status.enter(Connecting, s.clock.Now())

	node, id, err := s.acq.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	props, err := node.SystemProperties(ctx)
	if err != nil {
		s.log.Warnf("Reading chain properties: %v", err)
	}
	prefix := props.SS58Prefix()

	sess := &Session{
		Node:     node,
		Identity: id,
		Format:   ss58.Format(prefix),
		Token:    props.TokenSymbol,
		Sink:     countingSink{Sink: s.opts.NewSink(s.cfg.Matrix), metrics: s.opts.Metrics},
	}
	sess.Variant, sess.SelectErr = runtime.FromPrefix(prefix)
	if sess.Token == "" && sess.SelectErr == nil {
		sess.Token = sess.Variant.Token()
	}
	s.log.Infof("Chain properties * ss58 prefix %d * token %s with %d decimals", prefix, sess.Token, props.TokenDecimals)

	if err := sess.Sink.Authenticate(ctx); err != nil {
		s.log.Errorf("Notification sink unavailable: %v", err)
	}

	if s.opts.Announce && !s.announced {
		s.announced = true
		s.announce(ctx, sess)
	}
	return sess, nil
}

func (s *Supervisor) announce(ctx context.Context, sess *Session) {
	host := s.opts.Host(ctx)
	message := fmt.Sprintf("skipper v%s started on %s for %s (%s)", s.opts.Version, host, sess.Identity.Chain, sess.Token)
	formatted := fmt.Sprintf("💙 <code>skipper v%s</code> started on <i>%s</i> for <b>%s</b> (%s)<br/>",
		s.opts.Version, host, sess.Identity.Chain, sess.Token)
	if err := sess.Sink.Send(ctx, message, formatted); err != nil {
		s.log.Errorf("Start-up notification not sent: %v", err)
	}
}

func (s *Supervisor) subscribe(ctx context.Context, sess *Session) error {
	variant := ""
	if sess.SelectErr == nil {
		variant = sess.Variant.String()
	}
	s.status.sessionStarted(sess.Identity.Chain, variant)
	s.status.enter(Subscribed, s.clock.Now())
	s.opts.Metrics.sessionStarted()

	if sess.SelectErr != nil {
		return sess.SelectErr
	}

	return s.opts.Run(ctx, sess.Variant, runtime.Env{
		Chain:    sess.Node,
		Notifier: sess.Sink,
		Hooks:    s.opts.Hooks,
		Paths:    s.cfg.Hooks,
		Stashes:  s.cfg.Stashes,
		Format:   sess.Format,
		Log:      s.log,
	})
}

// recover waits out a finished session according to the kind of its result.
func (s *Supervisor) recover(ctx context.Context, sess *Session, result error) error {
	kind := Classify(result)
	s.status.sessionEnded(kind, result)
	s.status.enter(Recovering, s.clock.Now())
	s.opts.Metrics.restarted(kind)

	switch kind {
	case SubscriptionEnded:
		if result != nil {
			s.log.Warnf("Subscription ended: %v", result)
		} else {
			s.log.Warn("Subscription ended")
		}
		return sleep(ctx, s.clock, RestartDelay)

	case NotificationFailed:
		s.log.Warnf("Matrix message skipped! (%v)", result)
		return sleep(ctx, s.clock, RestartDelay)

	default:
		s.log.Error(result)
		minutes := s.cfg.ErrorInterval
		message := fmt.Sprintf("On hold for %d min! (%v)", minutes, result)
		formatted := fmt.Sprintf("<br/>🚨 An error was raised -> <code>skipper</code> on hold for %d min while rescue is on the way 🚁 🚒 🚑 🚓<br/><code>%v</code><br/><br/>",
			minutes, result)
		if err := sess.Sink.Send(ctx, message, formatted); err != nil {
			s.log.Errorf("On hold notification not sent: %v", err)
		}
		return sleep(ctx, s.clock, s.cfg.Cooldown())
	}
}

// countingSink records every send in the notification metrics.
type countingSink struct {
	Sink
	metrics *Metrics
}

func (c countingSink) Send(ctx context.Context, message, formatted string) error {
	err := c.Sink.Send(ctx, message, formatted)
	c.metrics.notified(err)
	return err
}
