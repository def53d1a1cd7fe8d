// Package bottlecap encodes the fixed preamble ("cap") of every bottle.
//
// Layout:
//
//	f0 9f 8d bc                magic
//	vv                         version (0)
//	ff                         flags (0)
//	ll                         header length, low 8 bits
//	tl                         type<<4 | header length>>8
//	...                        packed header
//	cc cc cc cc                CRC32-IEEE of all of the above, little-endian
package bottlecap

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/danmuck/bottle/internal/protocol"
	"github.com/danmuck/bottle/internal/protocol/header"
	"github.com/danmuck/bottle/internal/protocol/source"
)

const (
	Version = 0

	fixedLen = 8
	crcLen   = 4
)

// Magic is the UTF-8 encoding of U+1F37C, the baby bottle emoji.
var Magic = [4]byte{0xf0, 0x9f, 0x8d, 0xbc}

var (
	ErrBadMagic           = fmt.Errorf("%w: bad magic", protocol.ErrCapValidation)
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported version", protocol.ErrCapValidation)
	ErrInvalidFlags       = fmt.Errorf("%w: invalid flags", protocol.ErrCapValidation)
	ErrChecksumMismatch   = fmt.Errorf("%w: CRC mismatch", protocol.ErrCapValidation)
)

// Cap is a bottle's type and header. It is not modified after construction.
type Cap struct {
	Type   protocol.Type
	Flags  uint8
	Header *header.Header
}

func New(t protocol.Type, h *header.Header) *Cap {
	if h == nil {
		h = header.New()
	}
	return &Cap{Type: t, Header: h}
}

// Encode returns the cap bytes, including the checksum trailer.
func (c *Cap) Encode() ([]byte, error) {
	if c.Type > protocol.MaxType {
		return nil, protocol.Configf("cap: type %d out of range", c.Type)
	}
	if c.Flags != 0 {
		return nil, protocol.Configf("cap: unsupported flags 0x%02x", c.Flags)
	}
	hb, err := c.Header.Pack()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, fixedLen+len(hb)+crcLen)
	buf = append(buf, Magic[:]...)
	buf = append(buf, Version, c.Flags, byte(len(hb)&0xff), byte(c.Type)<<4|byte(len(hb)>>8))
	buf = append(buf, hb...)
	buf = binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
	return buf, nil
}

// Read parses and validates a cap. Each check that fails reports its own
// error; input that ends early is truncation.
func Read(src *source.Source) (*Cap, error) {
	fixed := make([]byte, fixedLen)
	if err := src.ReadFull(fixed, "cap"); err != nil {
		return nil, err
	}
	if [4]byte(fixed[0:4]) != Magic {
		return nil, fmt.Errorf("%w: % x", ErrBadMagic, fixed[0:4])
	}
	if fixed[4] != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, fixed[4])
	}
	if fixed[5] != 0 {
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidFlags, fixed[5])
	}
	headerLen := int(fixed[6]) | int(fixed[7]&0x03)<<8
	t := protocol.Type(fixed[7] >> 4)

	rest := make([]byte, headerLen+crcLen)
	if err := src.ReadFull(rest, "cap header"); err != nil {
		return nil, err
	}
	hb := rest[:headerLen]
	want := binary.LittleEndian.Uint32(rest[headerLen:])
	crc := crc32.NewIEEE()
	crc.Write(fixed)
	crc.Write(hb)
	if got := crc.Sum32(); got != want {
		return nil, fmt.Errorf("%w: got %08x, want %08x", ErrChecksumMismatch, got, want)
	}

	h, err := header.Unpack(hb)
	if err != nil {
		return nil, err
	}
	return &Cap{Type: t, Header: h}, nil
}

func (c *Cap) String() string {
	return fmt.Sprintf("Cap(%s, %s)", c.Type, c.Header)
}
