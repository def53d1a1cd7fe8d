// Package encrypted carries a serialized bottle through age encryption. The
// header lists the recipients' public keys so a reader can tell which
// identity it needs.
package encrypted

import (
	"context"
	"fmt"
	"io"
	"os"

	"filippo.io/age"

	"github.com/danmuck/bottle/internal/bottle"
	"github.com/danmuck/bottle/internal/protocol"
	"github.com/danmuck/bottle/internal/protocol/header"
)

// Method is the encryption scheme, stored as U8(0) in the header.
type Method uint8

const Age Method = 0

const fieldMethod = 0

// MaxRecipients is how many X25519 keys fit in a header alongside the
// method. Recipient keys occupy string ids 0 through MaxRecipients-1.
const MaxRecipients = 15

var Schema = header.Schema{
	Name: "encrypted",
	Fields: []header.FieldSpec{
		{ID: fieldMethod, Type: header.TypeU8, Required: true},
	},
}

// Write encrypts r, a serialized bottle, to every recipient. Recipients are
// age X25519 public keys ("age1...").
func Write(r io.Reader, recipients ...string) (*bottle.Bottle, error) {
	if len(recipients) == 0 {
		return nil, protocol.Configf("encrypted: at least one recipient is required")
	}
	if len(recipients) > MaxRecipients {
		return nil, protocol.Configf("encrypted: %d recipients, at most %d fit in a header", len(recipients), MaxRecipients)
	}
	parsed := make([]age.Recipient, 0, len(recipients))
	hdr := header.New().AddUint(fieldMethod, uint64(Age))
	for i, key := range recipients {
		rcpt, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, protocol.Configf("encrypted: parsing recipient key %q: %v", key, err)
		}
		parsed = append(parsed, rcpt)
		hdr.AddString(uint8(i), key)
	}
	body := bottle.Transform(r, func(w io.Writer) (io.WriteCloser, error) {
		return age.Encrypt(w, parsed...)
	})
	return bottle.Seal(protocol.TypeEncrypted, hdr, body), nil
}

// Recipients lists the public keys recorded in an encrypted bottle's header.
func Recipients(b *bottle.Bottle) []string {
	var out []string
	for id := uint8(0); id < MaxRecipients; id++ {
		if key, ok := b.Header().GetString(id); ok {
			out = append(out, key)
		}
	}
	return out
}

// Read opens an encrypted bottle with any of identities. Close the returned
// envelope once Inner is consumed.
func Read(ctx context.Context, b *bottle.Bottle, identities ...age.Identity) (*bottle.Envelope, error) {
	if b.Type() != protocol.TypeEncrypted {
		return nil, protocol.Violationf("encrypted: expected %s bottle, got %s", protocol.TypeEncrypted, b.Type())
	}
	if err := Schema.Validate(b.Header()); err != nil {
		return nil, err
	}
	if m, _ := b.Header().GetUint(fieldMethod); m != uint64(Age) {
		return nil, protocol.Violationf("encrypted: unknown method %d", m)
	}
	if len(identities) == 0 {
		return nil, protocol.Configf("encrypted: no identities to decrypt with")
	}
	return bottle.Open(ctx, b, protocol.TypeEncrypted, func(raw io.Reader) (io.Reader, error) {
		return age.Decrypt(raw, identities...)
	})
}

// LoadIdentities reads age identities ("AGE-SECRET-KEY-1...") from a file,
// one per line, in the format written by age-keygen.
func LoadIdentities(path string) ([]age.Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ids, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("encrypted: parse %s: %w", path, err)
	}
	return ids, nil
}
