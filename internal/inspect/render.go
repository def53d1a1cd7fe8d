package inspect

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danmuck/bottle/internal/codec"
	"github.com/danmuck/bottle/internal/protocol"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCBOR Format = "cbor"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML, FormatCBOR:
		return f, nil
	default:
		return "", protocol.Configf("inspect: unknown format %q", s)
	}
}

// Render writes node to w in the given format.
func Render(w io.Writer, node *Node, format Format) error {
	switch format {
	case FormatText, "":
		return renderText(w, node, 0)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(node)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(node); err != nil {
			return err
		}
		return enc.Close()
	case FormatCBOR:
		data, err := codec.Marshal(node)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return protocol.Configf("inspect: unknown format %q", format)
	}
}

func renderText(w io.Writer, node *Node, depth int) error {
	indent := strings.Repeat("  ", depth)
	var line string
	switch node.Kind {
	case KindRaw:
		line = fmt.Sprintf("%sraw: %d bytes in %d frames", indent, node.Bytes, node.Frames)
	default:
		parts := make([]string, 0, len(node.Header))
		for _, f := range node.Header {
			switch v := f.Value.(type) {
			case bool:
				parts = append(parts, fmt.Sprintf("%s(%d)", f.Type, f.ID))
			case string:
				parts = append(parts, fmt.Sprintf("%s(%d)=%q", f.Type, f.ID, v))
			default:
				parts = append(parts, fmt.Sprintf("%s(%d)=%v", f.Type, f.ID, v))
			}
		}
		line = fmt.Sprintf("%s%s [%s]", indent, node.Type, strings.Join(parts, ", "))
		if node.Verified != "" {
			line += " verified=" + node.Verified
		}
	}
	if _, err := fmt.Fprintln(w, line); err != nil {
		return err
	}
	for _, child := range node.Children {
		if err := renderText(w, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}
