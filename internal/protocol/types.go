package protocol

import "fmt"

// Type is the 4-bit bottle type code carried in every cap.
type Type uint8

const (
	TypeFile       Type = 0
	TypeSigned     Type = 1
	TypeEncrypted  Type = 3
	TypeCompressed Type = 4

	// MaxType is the largest type code a cap can carry.
	MaxType Type = 15
)

func (t Type) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeSigned:
		return "signed"
	case TypeEncrypted:
		return "encrypted"
	case TypeCompressed:
		return "compressed"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Sub-stream markers. A marker is only ever read between sub-streams, never
// where a frame length is expected.
const (
	MarkerRaw    byte = 0x40
	MarkerBottle byte = 0x80
	MarkerEnd    byte = 0xc0
)
