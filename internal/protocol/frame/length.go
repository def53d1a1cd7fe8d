package frame

import (
	"math/bits"

	"github.com/danmuck/bottle/internal/protocol"
)

// Length classes, by the top bits of the leading byte.
const (
	maxSmall  = 1<<6 - 1
	maxMedium = 1<<14 - 1
	maxLarge  = 1<<21 - 1

	minPowerOfTwo = 1 << 7
	maxPowerOfTwo = 1 << 38
)

// MaxLength is the largest frame length the codec can represent. On 32-bit
// platforms lengths are further capped by int.
const MaxLength int64 = maxPowerOfTwo

// EncodeLength returns the length prefix for a frame of n bytes.
func EncodeLength(n int) ([]byte, error) {
	return AppendLength(make([]byte, 0, 3), n)
}

// AppendLength appends the length prefix for n to dst. Exact powers of two
// from 128 up always take the one-byte form, even inside the medium and large
// ranges.
func AppendLength(dst []byte, n int) ([]byte, error) {
	switch {
	case n < 0:
		return dst, protocol.Configf("frame: negative length %d", n)
	case isPowerOfTwo(n) && n >= minPowerOfTwo && uint64(n) <= maxPowerOfTwo:
		return append(dst, 0xe0+byte(bits.TrailingZeros64(uint64(n))-7)), nil
	case n <= maxSmall:
		return append(dst, byte(n)), nil
	case n <= maxMedium:
		return append(dst, 0x80|byte(n&0x3f), byte(n>>6)), nil
	case n <= maxLarge:
		return append(dst, 0xc0|byte(n&0x1f), byte((n>>5)&0xff), byte(n>>13)), nil
	default:
		return dst, protocol.Configf("frame: length %d has no encoding", n)
	}
}

// LengthLength is the total width of a length prefix, given its leading byte.
func LengthLength(lead byte) int {
	switch {
	case lead&0x80 == 0:
		return 1
	case lead&0xc0 == 0x80:
		return 2
	case lead&0xe0 == 0xc0:
		return 3
	default:
		return 1
	}
}

// DecodeLength reconstructs a frame length from a complete prefix.
func DecodeLength(b []byte) (int, error) {
	if len(b) == 0 || len(b) < LengthLength(b[0]) {
		return 0, protocol.Truncatedf("frame: short length prefix")
	}
	lead := b[0]
	switch {
	case lead&0xc0 == 0:
		return int(lead), nil
	case lead&0xc0 == 0x40:
		return 0, protocol.Violationf("frame: invalid length byte 0x%02x", lead)
	case lead&0xc0 == 0x80:
		return int(lead&0x3f) | int(b[1])<<6, nil
	case lead&0xe0 == 0xc0:
		return int(lead&0x1f) | int(b[1])<<5 | int(b[2])<<13, nil
	default:
		shift := int(lead&0x1f) + 7
		if shift >= bits.UintSize-1 {
			return 0, protocol.Violationf("frame: length 2^%d does not fit in int", shift)
		}
		return 1 << shift, nil
	}
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// splitLength picks how much of a chunk of n bytes goes into the next frame.
// Anything the wire format can't describe in one frame is cut into 1 MiB
// frames and a remainder.
func splitLength(n int) int {
	if n <= maxLarge || (isPowerOfTwo(n) && uint64(n) <= maxPowerOfTwo) {
		return n
	}
	return 1 << 20
}
