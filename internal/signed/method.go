package signed

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/danmuck/bottle/internal/protocol"
)

// Method identifies the digest algorithm of a signed bottle.
type Method uint8

const (
	SHA256 Method = iota
	SHA512
	BLAKE3
)

var methodNames = map[Method]string{
	SHA256: "sha256",
	SHA512: "sha512",
	BLAKE3: "blake3",
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("method(%d)", uint8(m))
}

// New returns a fresh hash for m.
func (m Method) New() (hash.Hash, error) {
	switch m {
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, protocol.Configf("signed: unknown hash method %d", uint8(m))
	}
}

// ParseMethod accepts the names printed by Method.String.
func ParseMethod(s string) (Method, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return SHA256, nil
	}
	for m, n := range methodNames {
		if n == name {
			return m, nil
		}
	}
	return 0, protocol.Configf("signed: unknown hash method %q", s)
}
