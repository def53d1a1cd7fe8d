package header

import (
	"fmt"

	"github.com/danmuck/bottle/internal/protocol"
)

// FieldSpec declares a field a bottle type knows about. Integer specs match
// any integer width.
type FieldSpec struct {
	ID       uint8
	Type     Type
	Required bool
}

// Schema lists the known fields of one bottle type's header.
type Schema struct {
	Name   string
	Fields []FieldSpec
}

// MissingFieldError indicates a required field was not present.
type MissingFieldError struct {
	Schema string
	Type   Type
	ID     uint8
}

func (e MissingFieldError) Error() string {
	return fmt.Sprintf("protocol: %s header missing required field %s(%d)", e.Schema, e.Type, e.ID)
}

func (e MissingFieldError) Unwrap() error {
	return protocol.ErrViolation
}

// Validate checks that every required field is present. Unknown fields are
// allowed so newer writers stay readable.
func (s Schema) Validate(h *Header) error {
	for _, fs := range s.Fields {
		if !fs.Required {
			continue
		}
		var ok bool
		switch {
		case fs.Type.isInt():
			_, ok = h.GetUint(fs.ID)
		case fs.Type == TypeFlag:
			ok = h.GetFlag(fs.ID)
		case fs.Type == TypeString:
			_, ok = h.GetString(fs.ID)
		}
		if !ok {
			return MissingFieldError{Schema: s.Name, Type: fs.Type, ID: fs.ID}
		}
	}
	return nil
}

// Unknown returns the fields the schema doesn't declare.
func (s Schema) Unknown(h *Header) []Field {
	if h == nil {
		return nil
	}
	var out []Field
	for _, f := range h.Fields {
		known := false
		for _, fs := range s.Fields {
			if fs.ID == f.ID && (fs.Type == f.Type || (fs.Type.isInt() && f.Type.isInt())) {
				known = true
				break
			}
		}
		if !known {
			out = append(out, f)
		}
	}
	return out
}
