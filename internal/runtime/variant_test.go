package runtime

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turboflakes/skipper/internal/ss58"
)

func TestFromPrefix(t *testing.T) {
	tests := []struct {
		prefix uint16
		want   Variant
		token  string
	}{
		{0, Polkadot, "DOT"},
		{2, Kusama, "KSM"},
		{42, Westend, "WND"},
	}
	for _, tt := range tests {
		v, err := FromPrefix(tt.prefix)
		require.NoError(t, err)
		assert.Equal(t, tt.want, v)
		assert.Equal(t, tt.token, v.Token())
		assert.Equal(t, ss58.Format(tt.prefix), v.Format())
	}
}

func TestFromPrefixUnsupported(t *testing.T) {
	for _, prefix := range []uint16{1, 5, 7, 43, 1284} {
		_, err := FromPrefix(prefix)
		var unsupported *UnsupportedError
		require.True(t, errors.As(err, &unsupported), "prefix %d", prefix)
		assert.Equal(t, prefix, unsupported.Prefix)
	}
}

func TestVariantString(t *testing.T) {
	assert.Equal(t, "Polkadot", Polkadot.String())
	assert.Equal(t, "Kusama", Kusama.String())
	assert.Equal(t, "Westend", Westend.String())
	assert.Equal(t, "Variant(9)", Variant(9).String())
}
