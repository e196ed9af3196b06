package substrate

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/turboflakes/skipper/internal/ss58"
)

var ErrShortInput = errors.New("scale: input too short")

// DecodeU32 reads a little-endian u32 from the start of b.
func DecodeU32(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, ErrShortInput
	}
	return binary.LittleEndian.Uint32(b), nil
}

// DecodeCompact reads a SCALE compact integer and returns it with the number
// of bytes consumed.
func DecodeCompact(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrShortInput
	}
	switch b[0] & 0b11 {
	case 0b00:
		return uint64(b[0] >> 2), 1, nil
	case 0b01:
		if len(b) < 2 {
			return 0, 0, ErrShortInput
		}
		return uint64(binary.LittleEndian.Uint16(b) >> 2), 2, nil
	case 0b10:
		if len(b) < 4 {
			return 0, 0, ErrShortInput
		}
		return uint64(binary.LittleEndian.Uint32(b) >> 2), 4, nil
	default:
		n := int(b[0]>>2) + 4
		if n > 8 {
			return 0, 0, fmt.Errorf("scale: compact integer of %d bytes does not fit in 64 bits", n)
		}
		if len(b) < 1+n {
			return 0, 0, ErrShortInput
		}
		var v uint64
		for i := n; i >= 1; i-- {
			v = v<<8 | uint64(b[i])
		}
		return v, 1 + n, nil
	}
}

// DecodeAccountVec decodes a Vec<(AccountId32, T)> where every T has the
// same encoded width, such as Session.QueuedKeys. The width of T is derived
// from the payload length, so runtimes with different session key sets
// decode alike.
func DecodeAccountVec(b []byte) ([]ss58.AccountID, error) {
	count, n, err := DecodeCompact(b)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	rest := b[n:]
	if count > uint64(len(rest)) || uint64(len(rest))%count != 0 {
		return nil, fmt.Errorf("scale: %d bytes do not split into %d entries", len(rest), count)
	}
	width := len(rest) / int(count)
	if width < len(ss58.AccountID{}) {
		return nil, fmt.Errorf("scale: entry width %d shorter than an account id", width)
	}

	ids := make([]ss58.AccountID, count)
	for i := range ids {
		copy(ids[i][:], rest[i*width:])
	}
	return ids, nil
}
