// Package ss58 encodes and decodes Substrate SS58 account addresses.
//
// The address format (network prefix) is a plain value: callers pass the
// Format of the chain they are connected to instead of setting a default.
package ss58

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// Format is an SS58 network prefix.
type Format uint16

const (
	Polkadot Format = 0
	Kusama   Format = 2
	Generic  Format = 42
)

// AccountID is a 32-byte public key.
type AccountID [32]byte

func (a AccountID) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

var (
	ErrChecksum = errors.New("ss58: invalid checksum")
	ErrLength   = errors.New("ss58: unsupported address length")
)

var checksumPrefix = []byte("SS58PRE")

// Encode renders id in this format.
func (f Format) Encode(id AccountID) string {
	prefix := f.prefixBytes()
	payload := make([]byte, 0, len(prefix)+len(id)+2)
	payload = append(payload, prefix...)
	payload = append(payload, id[:]...)
	sum := checksum(payload)
	payload = append(payload, sum[:2]...)
	return base58.Encode(payload)
}

func (f Format) prefixBytes() []byte {
	if f < 64 {
		return []byte{byte(f)}
	}
	// Two-byte form: 14 bits of prefix spread over both bytes with the
	// 0b01 marker in the top bits of the first byte.
	first := byte((f&0b0000_0000_1111_1100)>>2) | 0b0100_0000
	second := byte(f>>8) | byte(f&0b0000_0000_0000_0011)<<6
	return []byte{first, second}
}

// Decode parses an SS58 address holding a 32-byte account id.
func Decode(address string) (AccountID, Format, error) {
	var id AccountID

	raw, err := base58.Decode(address)
	if err != nil {
		return id, 0, fmt.Errorf("ss58: %w", err)
	}
	if len(raw) == 0 {
		return id, 0, ErrLength
	}

	var format Format
	var prefixLen int
	switch {
	case raw[0] < 64:
		format = Format(raw[0])
		prefixLen = 1
	case raw[0] < 128:
		if len(raw) < 2 {
			return id, 0, ErrLength
		}
		lower := (raw[0] << 2) | (raw[1] >> 6)
		upper := raw[1] & 0b0011_1111
		format = Format(lower) | Format(upper)<<8
		prefixLen = 2
	default:
		return id, 0, fmt.Errorf("ss58: reserved prefix byte %d", raw[0])
	}

	if len(raw) != prefixLen+len(id)+2 {
		return id, 0, ErrLength
	}

	body := raw[:len(raw)-2]
	sum := checksum(body)
	if !bytes.Equal(sum[:2], raw[len(raw)-2:]) {
		return id, 0, ErrChecksum
	}

	copy(id[:], body[prefixLen:])
	return id, format, nil
}

func checksum(payload []byte) [64]byte {
	buf := make([]byte, 0, len(checksumPrefix)+len(payload))
	buf = append(buf, checksumPrefix...)
	buf = append(buf, payload...)
	return blake2b.Sum512(buf)
}
