package ss58

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known development account //Alice.
const alicePub = "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"

func alice(t *testing.T) AccountID {
	t.Helper()
	raw, err := hex.DecodeString(alicePub)
	require.NoError(t, err)
	var id AccountID
	copy(id[:], raw)
	return id
}

func TestEncodeKnownAddresses(t *testing.T) {
	id := alice(t)
	assert.Equal(t, "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY", Generic.Encode(id))
	assert.Equal(t, "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5", Polkadot.Encode(id))
}

func TestDecodeKnownAddress(t *testing.T) {
	id, format, err := Decode("15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5")
	require.NoError(t, err)
	assert.Equal(t, Polkadot, format)
	assert.Equal(t, "0x"+alicePub, id.Hex())
}

func TestTwoBytePrefix(t *testing.T) {
	id := alice(t)
	for _, f := range []Format{64, 255, 1284, 16383} {
		addr := f.Encode(id)
		got, format, err := Decode(addr)
		require.NoError(t, err, "format %d", f)
		assert.Equal(t, f, format)
		assert.Equal(t, id, got)
	}
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	addr := []byte(Generic.Encode(alice(t)))
	// Swap the last character for a different valid base58 digit.
	if addr[len(addr)-1] == 'A' {
		addr[len(addr)-1] = 'B'
	} else {
		addr[len(addr)-1] = 'A'
	}
	_, _, err := Decode(string(addr))
	assert.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := Decode("not-base58-0OIl")
	assert.Error(t, err)

	_, _, err = Decode("")
	assert.Error(t, err)

	_, _, err = Decode("3yQ") // valid base58, far too short
	assert.ErrorIs(t, err, ErrLength)
}
