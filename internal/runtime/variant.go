// Package runtime selects the supported network from the connected chain's
// address format and runs that network's session and era subscription.
package runtime

import (
	"fmt"

	"github.com/turboflakes/skipper/internal/ss58"
)

// Variant is one of the supported networks. The set is closed; every switch
// over it lists all three.
type Variant int

const (
	Polkadot Variant = iota
	Kusama
	Westend
)

// UnsupportedError reports an address format with no matching network.
type UnsupportedError struct {
	Prefix uint16
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported runtime: no network uses ss58 prefix %d", e.Prefix)
}

// FromPrefix maps an SS58 prefix to its network. Prefixes other than 0, 2
// and 42 are rejected with *UnsupportedError rather than defaulted.
func FromPrefix(prefix uint16) (Variant, error) {
	switch ss58.Format(prefix) {
	case ss58.Polkadot:
		return Polkadot, nil
	case ss58.Kusama:
		return Kusama, nil
	case ss58.Generic:
		return Westend, nil
	}
	return 0, &UnsupportedError{Prefix: prefix}
}

func (v Variant) String() string {
	switch v {
	case Polkadot:
		return "Polkadot"
	case Kusama:
		return "Kusama"
	case Westend:
		return "Westend"
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// Format is the address format the network renders accounts with.
func (v Variant) Format() ss58.Format {
	switch v {
	case Kusama:
		return ss58.Kusama
	case Westend:
		return ss58.Generic
	}
	return ss58.Polkadot
}

// Token is the network's native token symbol.
func (v Variant) Token() string {
	switch v {
	case Polkadot:
		return "DOT"
	case Kusama:
		return "KSM"
	case Westend:
		return "WND"
	}
	return ""
}
