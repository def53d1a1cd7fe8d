package inspect

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/danmuck/bottle/internal/bottle"
	"github.com/danmuck/bottle/internal/codec"
	"github.com/danmuck/bottle/internal/compressed"
	"github.com/danmuck/bottle/internal/protocol"
	"github.com/danmuck/bottle/internal/protocol/header"
	"github.com/danmuck/bottle/internal/signed"
	"github.com/danmuck/bottle/internal/testutil/testlog"
)

func reread(t *testing.T, b *bottle.Bottle) *bottle.Bottle {
	t.Helper()
	var buf bytes.Buffer
	if _, err := b.WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := bottle.Read(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return out
}

func sampleTree() *bottle.Bottle {
	inner := bottle.New(protocol.TypeFile, header.New().AddString(0, "a.txt"), bottle.Raw(strings.NewReader("cat")))
	return bottle.New(10, header.New().AddUint(1, 150).AddFlag(2),
		bottle.Raw(strings.NewReader("hello")),
		inner,
	)
}

func TestWalk(t *testing.T) {
	testlog.Start(t)
	node, err := Walk(context.Background(), reread(t, sampleTree()), Options{})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if node.Kind != KindBottle || node.Type != "type(10)" || len(node.Header) != 2 {
		t.Fatalf("unexpected root %+v", node)
	}
	if node.Header[0].Value != uint64(150) || node.Header[1].Value != true {
		t.Fatalf("unexpected header fields %+v", node.Header)
	}
	if len(node.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(node.Children))
	}
	raw := node.Children[0]
	if raw.Kind != KindRaw || raw.Bytes != 5 || raw.Frames != 1 {
		t.Fatalf("unexpected raw node %+v", raw)
	}
	nested := node.Children[1]
	if nested.Type != "file" || nested.Header[0].Value != "a.txt" || len(nested.Children) != 1 {
		t.Fatalf("unexpected nested node %+v", nested)
	}
}

func TestWalkExpandsEnvelopes(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	inner := bottle.New(protocol.TypeFile, nil, bottle.Raw(strings.NewReader(strings.Repeat("z", 4096))))
	comp, err := compressed.Write(inner.Encoder(0), compressed.Zstd)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	sig, err := signed.Write(comp.Encoder(0), signed.SignOptions{})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	node, err := Walk(ctx, reread(t, sig), Options{Expand: true})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if node.Type != "signed" || node.Verified != "OK" || len(node.Children) != 1 {
		t.Fatalf("unexpected signed node %+v", node)
	}
	c := node.Children[0]
	if c.Type != "compressed" || len(c.Children) != 1 {
		t.Fatalf("unexpected compressed node %+v", c)
	}
	f := c.Children[0]
	if f.Type != "file" || len(f.Children) != 1 || f.Children[0].Bytes != 4096 {
		t.Fatalf("unexpected file node %+v", f)
	}
}

func TestWalkWithoutExpand(t *testing.T) {
	testlog.Start(t)
	inner := bottle.New(protocol.TypeFile, nil)
	comp, err := compressed.Write(inner.Encoder(0), compressed.LZ4)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	node, err := Walk(context.Background(), reread(t, comp), Options{})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(node.Children) != 1 || node.Children[0].Kind != KindRaw {
		t.Fatalf("expected one raw child, got %+v", node.Children)
	}
}

func TestRenderText(t *testing.T) {
	testlog.Start(t)
	node, err := Walk(context.Background(), reread(t, sampleTree()), Options{})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	var buf bytes.Buffer
	if err := Render(&buf, node, FormatText); err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "type(10) [U8(1)=150, F(2)]\n" +
		"  raw: 5 bytes in 1 frames\n" +
		"  file [S(0)=\"a.txt\"]\n" +
		"    raw: 3 bytes in 1 frames\n"
	if buf.String() != want {
		t.Fatalf("unexpected text:\n%s", buf.String())
	}
}

func TestRenderStructured(t *testing.T) {
	testlog.Start(t)
	node, err := Walk(context.Background(), reread(t, sampleTree()), Options{})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}

	var js bytes.Buffer
	if err := Render(&js, node, FormatJSON); err != nil {
		t.Fatalf("json: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if decoded["kind"] != "bottle" || len(decoded["children"].([]any)) != 2 {
		t.Fatalf("unexpected json %s", js.String())
	}

	var y bytes.Buffer
	if err := Render(&y, node, FormatYAML); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if !strings.HasPrefix(y.String(), "kind: bottle\n") || !strings.Contains(y.String(), "value: a.txt") {
		t.Fatalf("unexpected yaml:\n%s", y.String())
	}

	var c bytes.Buffer
	if err := Render(&c, node, FormatCBOR); err != nil {
		t.Fatalf("cbor: %v", err)
	}
	var back Node
	if err := codec.Unmarshal(c.Bytes(), &back); err != nil {
		t.Fatalf("cbor decode: %v", err)
	}
	if back.Kind != KindBottle || len(back.Children) != 2 || back.Children[0].Bytes != 5 {
		t.Fatalf("unexpected cbor round trip %+v", back)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "JSON": FormatJSON, "yaml": FormatYAML, "cbor": FormatCBOR} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
