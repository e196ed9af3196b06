// Package substrate is a minimal JSON-RPC client for Substrate nodes over
// websocket: request/response calls, subscriptions, and the handful of
// storage items the watcher reads.
package substrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
	readLimit          = 16 << 20
	subscriptionBuffer = 128
)

var (
	// ErrClosed is returned by calls made on, or interrupted by, a closed connection.
	ErrClosed = errors.New("substrate: connection closed")
	// ErrSubscriptionEnded marks a subscription stream that stopped because
	// the connection went away, not because of a fault in its payload.
	ErrSubscriptionEnded = errors.New("subscription finished")
	// ErrSubscriptionOverflow terminates a subscription whose consumer fell
	// too far behind.
	ErrSubscriptionOverflow = errors.New("substrate: subscription buffer overflow")
)

// Client is one websocket connection to a node.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex // serialises all conn writes (requests, pings)

	mu       sync.Mutex
	nextID   uint64
	pending  map[uint64]*pendingCall // nil once closed
	subs     map[string]*Subscription
	closeErr error

	closeOnce  sync.Once
	cancelPing context.CancelFunc
}

type pendingCall struct {
	ch  chan *message
	sub *Subscription // registered by the read loop when the call succeeds
}

// Dial connects to the node at url.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	conn.SetReadLimit(readLimit)

	pingCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:       conn,
		pending:    make(map[uint64]*pendingCall),
		subs:       make(map[string]*Subscription),
		cancelPing: cancel,
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))

	go c.readLoop()
	go c.pingLoop(pingCtx)
	return c, nil
}

// Close ends the connection. Pending calls fail with ErrClosed and open
// subscriptions end with ErrSubscriptionEnded.
func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

// Call invokes method and decodes the result into result, which may be nil.
func (c *Client) Call(ctx context.Context, method string, result interface{}, params ...interface{}) error {
	msg, err := c.roundTrip(ctx, method, params, nil)
	if err != nil {
		return err
	}
	if result == nil || len(msg.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Result, result); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}
	return nil
}

// Subscribe opens a subscription with method. unsubscribe names the method
// used by Subscription.Unsubscribe.
func (c *Client) Subscribe(ctx context.Context, method, unsubscribe string, params ...interface{}) (*Subscription, error) {
	sub := &Subscription{
		client:      c,
		unsubscribe: unsubscribe,
		ch:          make(chan json.RawMessage, subscriptionBuffer),
	}
	if _, err := c.roundTrip(ctx, method, params, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (c *Client) roundTrip(ctx context.Context, method string, params []interface{}, sub *Subscription) (*message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params == nil {
		params = []interface{}{}
	}

	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return nil, c.closedErr()
	}
	c.nextID++
	id := c.nextID
	p := &pendingCall{ch: make(chan *message, 1), sub: sub}
	c.pending[id] = p
	c.mu.Unlock()

	req := request{JSONRPC: jsonRPCVersion, ID: id, Method: method, Params: params}
	if err := c.write(req); err != nil {
		c.forget(id)
		return nil, fmt.Errorf("sending %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case msg, ok := <-p.ch:
		if !ok {
			return nil, c.closedErr()
		}
		if msg.Error != nil {
			return nil, fmt.Errorf("%s: %w", method, msg.Error)
		}
		return msg, nil
	}
}

func (c *Client) write(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		delete(c.pending, id)
	}
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeErr == nil || errors.Is(c.closeErr, ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("%w: %v", ErrClosed, c.closeErr)
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch {
		case msg.ID != nil:
			c.handleResponse(&msg)
		case msg.Params != nil:
			c.handleNotification(&msg)
		}
	}
}

func (c *Client) handleResponse(msg *message) {
	c.mu.Lock()
	p, ok := c.pending[*msg.ID]
	if ok {
		delete(c.pending, *msg.ID)
		// Register before delivering so that notifications following the
		// response on the wire find their subscription.
		if p.sub != nil && msg.Error == nil {
			p.sub.id = subscriptionID(msg.Result)
			c.subs[p.sub.id] = p.sub
		}
	}
	c.mu.Unlock()

	if ok {
		p.ch <- msg
	}
}

func (c *Client) handleNotification(msg *message) {
	id := subscriptionID(msg.Params.Subscription)

	c.mu.Lock()
	sub := c.subs[id]
	c.mu.Unlock()
	if sub == nil {
		return
	}

	if !sub.deliver(msg.Params.Result) {
		c.removeSub(sub)
		sub.finish(ErrSubscriptionOverflow)
	}
}

func (c *Client) removeSub(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[sub.id] == sub {
		delete(c.subs, sub.id)
	}
}

// pingLoop sends periodic pings until ctx is cancelled or a write fails.
func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeErr = cause
		pending := c.pending
		subs := c.subs
		c.pending = nil
		c.subs = make(map[string]*Subscription)
		c.mu.Unlock()

		c.cancelPing()
		c.conn.Close()

		for _, p := range pending {
			close(p.ch)
		}
		for _, s := range subs {
			s.finish(fmt.Errorf("%w: %v", ErrSubscriptionEnded, cause))
		}
	})
}

// Subscription receives the raw results of a node subscription.
type Subscription struct {
	client      *Client
	id          string
	unsubscribe string
	ch          chan json.RawMessage

	mu     sync.Mutex
	closed bool
	err    error
}

// ID returns the node-assigned subscription id.
func (s *Subscription) ID() string { return s.id }

// Notifications yields each notification result. The channel is closed when
// the subscription ends; Err then tells why.
func (s *Subscription) Notifications() <-chan json.RawMessage { return s.ch }

// Err returns nil while the subscription is open or after Unsubscribe, and
// the terminating error otherwise.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Unsubscribe stops delivery and asks the node to drop the subscription.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	s.client.removeSub(s)
	s.finish(nil)
	if s.unsubscribe == "" {
		return nil
	}
	return s.client.Call(ctx, s.unsubscribe, nil, s.id)
}

func (s *Subscription) deliver(result json.RawMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- result:
		return true
	default:
		return false
	}
}

func (s *Subscription) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
}
