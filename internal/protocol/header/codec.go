package header

import (
	"encoding/binary"

	"github.com/danmuck/bottle/internal/protocol"
)

// Pack encodes the header. It fails before writing anything if the result
// would exceed MaxBytes or any field can't be represented.
func (h *Header) Pack() ([]byte, error) {
	size := h.Size()
	if size > MaxBytes {
		return nil, protocol.Configf("header: too large (%d > %d)", size, MaxBytes)
	}
	if h == nil {
		return []byte{}, nil
	}
	for _, f := range h.Fields {
		if f.ID > MaxID {
			return nil, protocol.Configf("header: field id out of range: %d", f.ID)
		}
		if _, ok := payloadWidth[f.Type]; !ok {
			return nil, protocol.Configf("header: field %d has unknown type %d", f.ID, f.Type)
		}
		if f.Type == TypeString && len(f.Str) > MaxStringBytes {
			return nil, protocol.Configf("header: string field %d too long (%d > %d)", f.ID, len(f.Str), MaxStringBytes)
		}
		if f.Type.isInt() && f.Int > maxFor(f.Type) {
			return nil, protocol.Configf("header: %s field %d can't hold %d", f.Type, f.ID, f.Int)
		}
	}

	buf := make([]byte, 0, size)
	for _, f := range h.Fields {
		buf = append(buf, byte(f.Type)<<4|f.ID)
		switch f.Type {
		case TypeFlag:
		case TypeU8:
			buf = append(buf, byte(f.Int))
		case TypeU16:
			buf = binary.LittleEndian.AppendUint16(buf, uint16(f.Int))
		case TypeU32:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(f.Int))
		case TypeU64:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(f.Int))
			buf = binary.LittleEndian.AppendUint32(buf, uint32(f.Int>>32))
		case TypeString:
			buf = append(buf, byte(len(f.Str)))
			buf = append(buf, f.Str...)
		}
	}
	return buf, nil
}

// Unpack decodes a packed header, keeping fields in wire order.
func Unpack(data []byte) (*Header, error) {
	h := New()
	for i := 0; i < len(data); {
		t := Type(data[i] >> 4)
		f := Field{Type: t, ID: data[i] & 0x0f}
		i++

		width, ok := payloadWidth[t]
		if !ok {
			return nil, protocol.Violationf("header: unknown field type %d at offset %d", t, i-1)
		}
		if i+width > len(data) {
			return nil, protocol.Truncatedf("header: %s field %d needs %d bytes at offset %d", t, f.ID, width, i)
		}
		switch t {
		case TypeFlag:
		case TypeU8:
			f.Int = uint64(data[i])
		case TypeU16:
			f.Int = uint64(binary.LittleEndian.Uint16(data[i:]))
		case TypeU32:
			f.Int = uint64(binary.LittleEndian.Uint32(data[i:]))
		case TypeU64:
			lo := binary.LittleEndian.Uint32(data[i:])
			hi := binary.LittleEndian.Uint32(data[i+4:])
			f.Int = uint64(hi)<<32 | uint64(lo)
		case TypeString:
			n := int(data[i])
			if i+1+n > len(data) {
				return nil, protocol.Truncatedf("header: string field %d needs %d bytes at offset %d", f.ID, n, i+1)
			}
			f.Str = string(data[i+1 : i+1+n])
			i += n
		}
		i += width
		h.Fields = append(h.Fields, f)
	}
	return h, nil
}

func maxFor(t Type) uint64 {
	switch t {
	case TypeU8:
		return 0xff
	case TypeU16:
		return 0xffff
	case TypeU32:
		return 0xffffffff
	default:
		return ^uint64(0)
	}
}
