package substrate_test

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turboflakes/skipper/internal/substrate"
	"github.com/turboflakes/skipper/internal/substrate/substratetest"
)

func dial(t *testing.T, node *substratetest.Node) *substrate.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := substrate.Dial(ctx, node.URL())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func nextChange(t *testing.T, sub *substrate.Subscription) substrate.StorageChangeSet {
	t.Helper()
	select {
	case raw, ok := <-sub.Notifications():
		require.True(t, ok, "subscription closed early: %v", sub.Err())
		set, err := substrate.DecodeChangeSet(raw)
		require.NoError(t, err)
		return set
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
		return substrate.StorageChangeSet{}
	}
}

func TestSystemIdentity(t *testing.T) {
	node := substratetest.New(t)
	node.SetIdentity("Polkadot", "Parity Polkadot", "1.2.3")
	c := dial(t, node)
	ctx := context.Background()

	chain, err := c.SystemChain(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Polkadot", chain)

	name, err := c.SystemName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Parity Polkadot", name)

	version, err := c.SystemVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", version)
}

func TestSystemProperties(t *testing.T) {
	node := substratetest.New(t)
	c := dial(t, node)

	props, err := c.SystemProperties(context.Background())
	require.NoError(t, err)
	require.NotNil(t, props.SS58Format)
	assert.Equal(t, uint16(42), props.SS58Prefix())
	assert.Equal(t, "WND", props.TokenSymbol)
	assert.Equal(t, 12, props.TokenDecimals)

	node.SetProperties(map[string]interface{}{"tokenSymbol": []string{"ACA", "AUSD"}})
	props, err = c.SystemProperties(context.Background())
	require.NoError(t, err)
	assert.Nil(t, props.SS58Format)
	assert.Equal(t, uint16(0), props.SS58Prefix())
	assert.Equal(t, "ACA", props.TokenSymbol)
}

func TestCallRPCError(t *testing.T) {
	node := substratetest.New(t)
	node.Fail("system_chain")
	c := dial(t, node)

	_, err := c.SystemChain(context.Background())
	require.Error(t, err)

	var rpcErr *substrate.RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32000, rpcErr.Code)
	assert.Contains(t, err.Error(), "system_chain")
}

func TestGetStorage(t *testing.T) {
	node := substratetest.New(t)
	node.SetStorage(substrate.SessionCurrentIndex, u32(1234))
	c := dial(t, node)
	ctx := context.Background()

	v, err := c.GetStorage(ctx, substrate.SessionCurrentIndex)
	require.NoError(t, err)
	idx, err := substrate.DecodeU32(v)
	require.NoError(t, err)
	assert.Equal(t, uint32(1234), idx)

	v, err = c.GetStorage(ctx, substrate.StakingActiveEra)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSubscribeStorageDeliversInitialAndChanges(t *testing.T) {
	node := substratetest.New(t)
	node.SetStorage(substrate.SessionCurrentIndex, u32(7))
	c := dial(t, node)

	sub, err := c.SubscribeStorage(context.Background(), substrate.SessionCurrentIndex)
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID())

	initial := nextChange(t, sub)
	v, ok := initial.Lookup(substrate.SessionCurrentIndex)
	require.True(t, ok)
	assert.Equal(t, u32(7), v)

	node.PushStorage(substrate.SessionCurrentIndex, u32(8))
	next := nextChange(t, sub)
	v, ok = next.Lookup(substrate.SessionCurrentIndex)
	require.True(t, ok)
	assert.Equal(t, u32(8), v)
}

func TestSubscriptionEndsWhenNodeDrops(t *testing.T) {
	node := substratetest.New(t)
	c := dial(t, node)

	sub, err := c.SubscribeStorage(context.Background(), substrate.SessionCurrentIndex)
	require.NoError(t, err)
	nextChange(t, sub)

	node.DropConnections()

	select {
	case _, ok := <-sub.Notifications():
		for ok {
			_, ok = <-sub.Notifications()
		}
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not end")
	}
	assert.ErrorIs(t, sub.Err(), substrate.ErrSubscriptionEnded)

	_, err = c.SystemChain(context.Background())
	assert.ErrorIs(t, err, substrate.ErrClosed)
}

func TestUnsubscribe(t *testing.T) {
	node := substratetest.New(t)
	c := dial(t, node)

	sub, err := c.SubscribeStorage(context.Background(), substrate.SessionCurrentIndex)
	require.NoError(t, err)
	node.WaitSubscriptions(t, 1)

	require.NoError(t, sub.Unsubscribe(context.Background()))
	assert.NoError(t, sub.Err())
	assert.Equal(t, 0, node.Subscriptions())
}

func TestCallHonoursContext(t *testing.T) {
	node := substratetest.New(t)
	c := dial(t, node)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.SystemChain(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := substrate.Dial(ctx, "ws://127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ws://127.0.0.1:1")
}
