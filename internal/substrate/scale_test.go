package substrate

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageKeys(t *testing.T) {
	assert.Equal(t, "26aa394eea5630e07c48ae0c9558cef7", hexString(Twox128([]byte("System"))))

	assert.Equal(t,
		StorageKey("0xcec5070d609dd3497f72bde07fc96ba072763800a36a99fdfc7c10f6415f6ee6"),
		SessionCurrentIndex)
	assert.Equal(t,
		StorageKey("0x5f3e4907f716ac89b6347d15ececedca487df464e44a534ba6b0cbb32407b587"),
		StakingActiveEra)
	assert.Equal(t,
		StorageKey("0x5f3e4907f716ac89b6347d15ececedca0b6a45321efae92aea15e0740ec7afe7"),
		StakingCurrentEra)
}

func hexString(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, digits[c>>4], digits[c&0x0f])
	}
	return string(out)
}

func TestDecodeCompact(t *testing.T) {
	tests := []struct {
		in   []byte
		want uint64
		n    int
	}{
		{[]byte{0x00}, 0, 1},
		{[]byte{0x04}, 1, 1},
		{[]byte{0xfc}, 63, 1},
		{[]byte{0x01, 0x01}, 64, 2},
		{[]byte{0xfd, 0xff}, 16383, 2},
		{[]byte{0x02, 0x00, 0x01, 0x00}, 16384, 4},
		{[]byte{0xfe, 0xff, 0xff, 0xff}, 1<<30 - 1, 4},
		{[]byte{0x03, 0x00, 0x00, 0x00, 0x40}, 1 << 30, 5},
	}
	for _, tt := range tests {
		got, n, err := DecodeCompact(tt.in)
		require.NoError(t, err, "input %x", tt.in)
		assert.Equal(t, tt.want, got, "input %x", tt.in)
		assert.Equal(t, tt.n, n, "input %x", tt.in)
	}

	_, _, err := DecodeCompact(nil)
	assert.ErrorIs(t, err, ErrShortInput)
	_, _, err = DecodeCompact([]byte{0x01})
	assert.ErrorIs(t, err, ErrShortInput)
}

func TestDecodeU32(t *testing.T) {
	v, err := DecodeU32([]byte{0xd2, 0x04, 0x00, 0x00, 0xff})
	require.NoError(t, err)
	assert.Equal(t, uint32(1234), v)

	_, err = DecodeU32([]byte{1, 2})
	assert.ErrorIs(t, err, ErrShortInput)
}

func TestDecodeAccountVec(t *testing.T) {
	a := bytes.Repeat([]byte{0xaa}, 32)
	b := bytes.Repeat([]byte{0xbb}, 32)
	keys := bytes.Repeat([]byte{0x11}, 5*32+33)

	var payload []byte
	payload = append(payload, 2<<2) // compact(2)
	payload = append(payload, a...)
	payload = append(payload, keys...)
	payload = append(payload, b...)
	payload = append(payload, keys...)

	ids, err := DecodeAccountVec(payload)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, a, ids[0][:])
	assert.Equal(t, b, ids[1][:])

	empty, err := DecodeAccountVec([]byte{0x00})
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = DecodeAccountVec(payload[:len(payload)-1])
	assert.Error(t, err)

	_, err = DecodeAccountVec([]byte{2 << 2, 1, 2, 3, 4})
	assert.Error(t, err)
}
