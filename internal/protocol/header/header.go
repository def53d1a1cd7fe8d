// Package header is the typed key/value block carried in every bottle cap.
//
// Each field is one descriptor byte (type<<4 | id) followed by a payload
// whose width depends on the type. Ids run 0-15 and are unique per type, so
// U8(0) and S(0) are different fields. A packed header never exceeds
// MaxBytes.
package header

import (
	"fmt"
	"math"
	"strings"

	"github.com/danmuck/bottle/internal/protocol"
)

// MaxBytes is the largest packed header a cap can carry.
const MaxBytes = 1023

// MaxID is the largest field id.
const MaxID = 15

// MaxStringBytes is the largest string payload.
const MaxStringBytes = 255

// Type is the high nybble of a field descriptor.
type Type uint8

const (
	TypeU8     Type = 0
	TypeU16    Type = 1
	TypeU32    Type = 2
	TypeU64    Type = 3
	TypeFlag   Type = 8
	TypeString Type = 9
)

// payloadWidth is the fixed part of each type's payload. Strings add their
// length on top of the length byte.
var payloadWidth = map[Type]int{
	TypeU8:     1,
	TypeU16:    2,
	TypeU32:    4,
	TypeU64:    8,
	TypeFlag:   0,
	TypeString: 1,
}

func (t Type) isInt() bool {
	return t <= TypeU64
}

func (t Type) String() string {
	switch t {
	case TypeU8:
		return "U8"
	case TypeU16:
		return "U16"
	case TypeU32:
		return "U32"
	case TypeU64:
		return "U64"
	case TypeFlag:
		return "F"
	case TypeString:
		return "S"
	default:
		return fmt.Sprintf("T%d", uint8(t))
	}
}

// Field is one header entry. Int holds every integer type; Str holds
// strings.
type Field struct {
	Type Type
	ID   uint8
	Int  uint64
	Str  string
}

func (f Field) String() string {
	switch {
	case f.Type.isInt():
		return fmt.Sprintf("%s(%d)=%d", f.Type, f.ID, f.Int)
	case f.Type == TypeFlag:
		return fmt.Sprintf("F(%d)", f.ID)
	case f.Type == TypeString:
		return fmt.Sprintf("S(%d)=%q", f.ID, f.Str)
	default:
		return fmt.Sprintf("%s(%d)", f.Type, f.ID)
	}
}

func (f Field) size() int {
	n := 1 + payloadWidth[f.Type]
	if f.Type == TypeString {
		n += len(f.Str)
	}
	return n
}

// Header is an ordered list of fields. The zero value is an empty header.
type Header struct {
	Fields []Field
}

func New() *Header {
	return &Header{}
}

// AddFlag appends a flag field.
func (h *Header) AddFlag(id uint8) *Header {
	h.Fields = append(h.Fields, Field{Type: TypeFlag, ID: id})
	return h
}

// AddInt appends an integer field in the narrowest width that holds v.
// Negative values are rejected.
func (h *Header) AddInt(id uint8, v int64) error {
	if v < 0 {
		return protocol.Configf("header: field %d: negative integer %d", id, v)
	}
	h.AddUint(id, uint64(v))
	return nil
}

// AddUint appends an integer field in the narrowest width that holds v.
func (h *Header) AddUint(id uint8, v uint64) *Header {
	var t Type
	switch {
	case v <= math.MaxUint8:
		t = TypeU8
	case v <= math.MaxUint16:
		t = TypeU16
	case v <= math.MaxUint32:
		t = TypeU32
	default:
		t = TypeU64
	}
	h.Fields = append(h.Fields, Field{Type: t, ID: id, Int: v})
	return h
}

// AddString appends a string field.
func (h *Header) AddString(id uint8, s string) *Header {
	h.Fields = append(h.Fields, Field{Type: TypeString, ID: id, Str: s})
	return h
}

// GetFlag reports whether flag id is present.
func (h *Header) GetFlag(id uint8) bool {
	_, ok := h.find(id, func(t Type) bool { return t == TypeFlag })
	return ok
}

// GetUint returns the first integer field with this id, whatever its width.
func (h *Header) GetUint(id uint8) (uint64, bool) {
	f, ok := h.find(id, Type.isInt)
	if !ok {
		return 0, false
	}
	return f.Int, true
}

// GetInt is GetUint for values that fit in an int64. A U64 beyond
// math.MaxInt64 reports absent; use GetUint for those.
func (h *Header) GetInt(id uint8) (int64, bool) {
	v, ok := h.GetUint(id)
	if !ok || v > math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

// GetString returns the first string field with this id.
func (h *Header) GetString(id uint8) (string, bool) {
	f, ok := h.find(id, func(t Type) bool { return t == TypeString })
	if !ok {
		return "", false
	}
	return f.Str, true
}

func (h *Header) find(id uint8, match func(Type) bool) (Field, bool) {
	if h == nil {
		return Field{}, false
	}
	for _, f := range h.Fields {
		if f.ID == id && match(f.Type) {
			return f, true
		}
	}
	return Field{}, false
}

// Size is the packed size in bytes.
func (h *Header) Size() int {
	if h == nil {
		return 0
	}
	n := 0
	for _, f := range h.Fields {
		n += f.size()
	}
	return n
}

func (h *Header) String() string {
	if h == nil {
		return "Header()"
	}
	parts := make([]string, 0, len(h.Fields))
	for _, f := range h.Fields {
		parts = append(parts, f.String())
	}
	return "Header(" + strings.Join(parts, ", ") + ")"
}
