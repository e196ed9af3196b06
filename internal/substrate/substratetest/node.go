// Package substratetest provides an in-process fake Substrate node speaking
// the websocket JSON-RPC subset used by skipper.
package substratetest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/turboflakes/skipper/internal/substrate"
)

// Node is a fake node. The zero identity reports a local Westend dev node.
type Node struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu         sync.Mutex
	chain      string
	name       string
	version    string
	properties map[string]interface{}
	storage    map[substrate.StorageKey][]byte
	failing    map[string]bool
	conns      map[*nodeConn]struct{}
	nextSub    int
	blocks     int
	calls      map[string]int
}

type nodeConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	subs    map[string][]substrate.StorageKey
}

// New starts a fake node that is shut down when the test ends.
func New(t testing.TB) *Node {
	t.Helper()
	n := &Node{
		chain:      "Westend",
		name:       "Parity Polkadot",
		version:    "1.0.0-test",
		properties: map[string]interface{}{"ss58Format": 42, "tokenDecimals": 12, "tokenSymbol": "WND"},
		storage:    make(map[substrate.StorageKey][]byte),
		failing:    make(map[string]bool),
		conns:      make(map[*nodeConn]struct{}),
		calls:      make(map[string]int),
	}
	n.srv = httptest.NewServer(http.HandlerFunc(n.serveWS))
	t.Cleanup(n.Close)
	return n
}

// URL is the ws:// endpoint of the node.
func (n *Node) URL() string {
	return "ws" + strings.TrimPrefix(n.srv.URL, "http")
}

func (n *Node) SetIdentity(chain, name, version string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.chain, n.name, n.version = chain, name, version
}

// SetProperties replaces the system_properties result.
func (n *Node) SetProperties(props map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.properties = props
}

// Fail makes every call to method answer with an RPC error.
func (n *Node) Fail(method string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failing[method] = true
}

// Calls returns how many times method was requested.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// SetStorage sets a value without notifying subscribers.
func (n *Node) SetStorage(key substrate.StorageKey, value []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.storage[key] = value
}

// PushStorage sets a value and notifies every subscription watching key.
func (n *Node) PushStorage(key substrate.StorageKey, value []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.storage[key] = value
	n.blocks++
	for c := range n.conns {
		for id, keys := range c.subs {
			for _, k := range keys {
				if k == key {
					c.notify(id, n.changeSetLocked([]substrate.StorageKey{key}))
				}
			}
		}
	}
}

// Subscriptions counts the open storage subscriptions.
func (n *Node) Subscriptions() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for c := range n.conns {
		total += len(c.subs)
	}
	return total
}

// WaitSubscriptions blocks until at least want subscriptions are open.
func (n *Node) WaitSubscriptions(t testing.TB, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if n.Subscriptions() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d subscriptions, have %d", want, n.Subscriptions())
}

// DropConnections closes every client connection, as a restarting node would.
func (n *Node) DropConnections() {
	n.mu.Lock()
	conns := make([]*nodeConn, 0, len(n.conns))
	for c := range n.conns {
		conns = append(conns, c)
	}
	n.conns = make(map[*nodeConn]struct{})
	n.mu.Unlock()

	for _, c := range conns {
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "node restarting"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
	}
}

func (n *Node) Close() {
	n.DropConnections()
	n.srv.Close()
}

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func (n *Node) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &nodeConn{conn: conn, subs: make(map[string][]substrate.StorageKey)}

	n.mu.Lock()
	n.conns[c] = struct{}{}
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		delete(n.conns, c)
		n.mu.Unlock()
		conn.Close()
	}()

	for {
		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		n.handle(c, req)
	}
}

func (n *Node) handle(c *nodeConn, req rpcRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.calls[req.Method]++
	if n.failing[req.Method] {
		c.respondError(req.ID, -32000, "injected failure")
		return
	}

	switch req.Method {
	case "system_chain":
		c.respond(req.ID, n.chain)
	case "system_name":
		c.respond(req.ID, n.name)
	case "system_version":
		c.respond(req.ID, n.version)
	case "system_properties":
		c.respond(req.ID, n.properties)
	case "state_getStorage":
		var key substrate.StorageKey
		if len(req.Params) == 0 || json.Unmarshal(req.Params[0], &key) != nil {
			c.respondError(req.ID, -32602, "invalid params")
			return
		}
		if v, ok := n.storage[key]; ok {
			c.respond(req.ID, "0x"+hex.EncodeToString(v))
		} else {
			c.respond(req.ID, nil)
		}
	case "state_subscribeStorage":
		var keys []substrate.StorageKey
		if len(req.Params) == 0 || json.Unmarshal(req.Params[0], &keys) != nil {
			c.respondError(req.ID, -32602, "invalid params")
			return
		}
		n.nextSub++
		id := fmt.Sprintf("sub-%d", n.nextSub)
		c.respond(req.ID, id)
		c.notify(id, n.changeSetLocked(keys))
		c.subs[id] = keys
	case "state_unsubscribeStorage":
		var id string
		if len(req.Params) > 0 {
			json.Unmarshal(req.Params[0], &id)
		}
		_, ok := c.subs[id]
		delete(c.subs, id)
		c.respond(req.ID, ok)
	default:
		c.respondError(req.ID, -32601, "Method not found")
	}
}

func (n *Node) changeSetLocked(keys []substrate.StorageKey) map[string]interface{} {
	changes := make([][]interface{}, 0, len(keys))
	for _, k := range keys {
		var value interface{}
		if v, ok := n.storage[k]; ok {
			value = "0x" + hex.EncodeToString(v)
		}
		changes = append(changes, []interface{}{k, value})
	}
	return map[string]interface{}{
		"block":   fmt.Sprintf("0x%064x", n.blocks),
		"changes": changes,
	}
}

func (c *nodeConn) respond(id json.RawMessage, result interface{}) {
	c.write(map[string]interface{}{"jsonrpc": "2.0", "id": id, "result": result})
}

func (c *nodeConn) respondError(id json.RawMessage, code int, msg string) {
	c.write(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   map[string]interface{}{"code": code, "message": msg},
	})
}

func (c *nodeConn) notify(id string, result interface{}) {
	c.write(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "state_storage",
		"params":  map[string]interface{}{"subscription": id, "result": result},
	})
}

func (c *nodeConn) write(v interface{}) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	c.conn.WriteJSON(v)
}
