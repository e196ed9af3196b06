package substrate

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// StorageKey is a hex-encoded ("0x...") storage key.
type StorageKey string

// Storage items read by the watcher.
var (
	SessionCurrentIndex = PlainStorageKey("Session", "CurrentIndex")
	SessionQueuedKeys   = PlainStorageKey("Session", "QueuedKeys")
	StakingActiveEra    = PlainStorageKey("Staking", "ActiveEra")
	StakingCurrentEra   = PlainStorageKey("Staking", "CurrentEra")
)

// Twox128 is the 128-bit xxhash used for pallet and item prefixes: two
// xxhash64 digests with seeds 0 and 1, each little endian.
func Twox128(data []byte) []byte {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out[:8], xxhash.Sum64(data))
	d := xxhash.NewWithSeed(1)
	d.Write(data)
	binary.LittleEndian.PutUint64(out[8:], d.Sum64())
	return out
}

// PlainStorageKey is the key of a storage value without map hashers.
func PlainStorageKey(pallet, item string) StorageKey {
	key := append(Twox128([]byte(pallet)), Twox128([]byte(item))...)
	return StorageKey("0x" + hex.EncodeToString(key))
}

// GetStorage returns the raw SCALE value at key, or nil when it is unset.
func (c *Client) GetStorage(ctx context.Context, key StorageKey) ([]byte, error) {
	var value *string
	if err := c.Call(ctx, "state_getStorage", &value, key); err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}
	return decodeHex(*value)
}

// SubscribeStorage subscribes to changes of keys. Each notification decodes
// with DecodeChangeSet; the node sends the current values first.
func (c *Client) SubscribeStorage(ctx context.Context, keys ...StorageKey) (*Subscription, error) {
	return c.Subscribe(ctx, "state_subscribeStorage", "state_unsubscribeStorage", keys)
}

// StorageChangeSet is one state_storage notification.
type StorageChangeSet struct {
	Block   string
	Changes []StorageChange
}

// StorageChange is a key with its new value; Value is nil when the key was removed.
type StorageChange struct {
	Key   StorageKey
	Value []byte
}

// Lookup returns the value for key and whether the change set mentions it.
func (s StorageChangeSet) Lookup(key StorageKey) ([]byte, bool) {
	for _, ch := range s.Changes {
		if strings.EqualFold(string(ch.Key), string(key)) {
			return ch.Value, true
		}
	}
	return nil, false
}

// DecodeChangeSet parses a state_subscribeStorage notification result.
func DecodeChangeSet(raw json.RawMessage) (StorageChangeSet, error) {
	var wire struct {
		Block   string      `json:"block"`
		Changes [][]*string `json:"changes"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return StorageChangeSet{}, fmt.Errorf("decoding storage change set: %w", err)
	}

	set := StorageChangeSet{Block: wire.Block}
	for _, pair := range wire.Changes {
		if len(pair) != 2 || pair[0] == nil {
			return StorageChangeSet{}, fmt.Errorf("decoding storage change set: malformed change %v", pair)
		}
		ch := StorageChange{Key: StorageKey(*pair[0])}
		if pair[1] != nil {
			v, err := decodeHex(*pair[1])
			if err != nil {
				return StorageChangeSet{}, err
			}
			ch.Value = v
		}
		set.Changes = append(set.Changes, ch)
	}
	return set, nil
}

func decodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decoding hex value: %w", err)
	}
	return b, nil
}
