package encrypted

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"

	"github.com/danmuck/bottle/internal/bottle"
	"github.com/danmuck/bottle/internal/protocol"
	"github.com/danmuck/bottle/internal/protocol/header"
	"github.com/danmuck/bottle/internal/testutil/testlog"
)

func newIdentity(t *testing.T) *age.X25519Identity {
	t.Helper()
	id, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	return id
}

func encrypt(t *testing.T, payload string, recipients ...string) []byte {
	t.Helper()
	inner := bottle.New(protocol.TypeFile, nil, bottle.Raw(strings.NewReader(payload)))
	b, err := Write(inner.Encoder(0), recipients...)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	var buf bytes.Buffer
	if _, err := b.WriteTo(&buf); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	alice, bob := newIdentity(t), newIdentity(t)
	data := encrypt(t, "attack at dawn", alice.Recipient().String(), bob.Recipient().String())
	if bytes.Contains(data, []byte("attack at dawn")) {
		t.Fatalf("plaintext visible in encrypted bottle")
	}

	outer, err := bottle.Read(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got := Recipients(outer)
	if len(got) != 2 || got[0] != alice.Recipient().String() || got[1] != bob.Recipient().String() {
		t.Fatalf("unexpected recipients %v", got)
	}

	env, err := Read(ctx, outer, bob)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	raw, err := env.Inner.NextRaw(ctx)
	if err != nil {
		t.Fatalf("inner raw: %v", err)
	}
	body, err := io.ReadAll(raw)
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if string(body) != "attack at dawn" {
		t.Fatalf("unexpected payload %q", body)
	}
	if err := env.Inner.End(ctx); err != nil {
		t.Fatalf("inner end: %v", err)
	}
	if err := env.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestWrongIdentity(t *testing.T) {
	testlog.Start(t)
	alice, eve := newIdentity(t), newIdentity(t)
	data := encrypt(t, "secret", alice.Recipient().String())
	outer, err := bottle.Read(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	_, err = Read(context.Background(), outer, eve)
	var noMatch *age.NoIdentityMatchError
	if !errors.As(err, &noMatch) {
		t.Fatalf("expected NoIdentityMatchError, got %v", err)
	}
	if outer.State() != bottle.StateFailed {
		t.Fatalf("expected outer bottle failed, got %s", outer.State())
	}
}

func TestWriteValidatesRecipients(t *testing.T) {
	testlog.Start(t)
	if _, err := Write(strings.NewReader("")); !errors.Is(err, protocol.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for no recipients, got %v", err)
	}
	if _, err := Write(strings.NewReader(""), "age1notakey"); !errors.Is(err, protocol.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for bad key, got %v", err)
	}
	keys := make([]string, MaxRecipients+1)
	for i := range keys {
		keys[i] = newIdentity(t).Recipient().String()
	}
	if _, err := Write(strings.NewReader(""), keys...); !errors.Is(err, protocol.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for too many recipients, got %v", err)
	}
}

func TestMaxRecipientsFitHeader(t *testing.T) {
	testlog.Start(t)
	keys := make([]string, MaxRecipients)
	for i := range keys {
		keys[i] = newIdentity(t).Recipient().String()
	}
	b, err := Write(strings.NewReader(""), keys...)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := b.Cap.Encode(); err != nil {
		t.Fatalf("cap with %d recipients: %v", MaxRecipients, err)
	}
}

func TestReadRejectsUnknownMethod(t *testing.T) {
	testlog.Start(t)
	id := newIdentity(t)
	for _, v := range []uint64{1, 256} {
		b := bottle.Seal(protocol.TypeEncrypted, header.New().AddUint(fieldMethod, v), strings.NewReader("x"))
		var buf bytes.Buffer
		if _, err := b.WriteTo(&buf); err != nil {
			t.Fatalf("serialize: %v", err)
		}
		outer, err := bottle.Read(&buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if _, err := Read(context.Background(), outer, id); !errors.Is(err, protocol.ErrViolation) {
			t.Fatalf("method %d: expected ErrViolation, got %v", v, err)
		}
	}
}

func TestReadRequiresIdentity(t *testing.T) {
	testlog.Start(t)
	data := encrypt(t, "x", newIdentity(t).Recipient().String())
	outer, err := bottle.Read(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := Read(context.Background(), outer); !errors.Is(err, protocol.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestLoadIdentities(t *testing.T) {
	testlog.Start(t)
	id := newIdentity(t)
	path := filepath.Join(t.TempDir(), "key.txt")
	content := "# created: test\n# public key: " + id.Recipient().String() + "\n" + id.String() + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write identity: %v", err)
	}
	ids, err := LoadIdentities(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 identity, got %d", len(ids))
	}
	if _, err := LoadIdentities(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
