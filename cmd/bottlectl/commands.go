package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"filippo.io/age"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/danmuck/bottle/internal/bottle"
	"github.com/danmuck/bottle/internal/compressed"
	"github.com/danmuck/bottle/internal/config"
	"github.com/danmuck/bottle/internal/encrypted"
	"github.com/danmuck/bottle/internal/inspect"
	"github.com/danmuck/bottle/internal/protocol"
	"github.com/danmuck/bottle/internal/protocol/buffered"
	"github.com/danmuck/bottle/internal/protocol/frame"
	"github.com/danmuck/bottle/internal/protocol/header"
	"github.com/danmuck/bottle/internal/protocol/source"
	"github.com/danmuck/bottle/internal/signed"
)

// EnvSSHPassphrase holds the passphrase for an encrypted sign.key.
const EnvSSHPassphrase = "BOTTLE_SSH_PASSPHRASE"

var errNotVerified = errors.New("signed bottle did not verify")

func (a *app) frameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "frame [file]",
		Short: "Frame a byte stream with length prefixes and a terminator",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.pipe(args, func(in io.Reader, out io.Writer) error {
				bs := a.cfg.Frame.BlockSize
				enc := frame.NewEncoder(buffered.NewReader(in, bs), bs)
				if _, err := io.Copy(out, enc); err != nil {
					return err
				}
				log.Debug().Int64("frames", enc.Frames()).Int64("bytes", enc.Bytes()).Msg("framed")
				return nil
			})
		},
	}
}

func (a *app) unframeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unframe [file]",
		Short: "Decode a framed byte stream up to its terminator",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.pipe(args, func(in io.Reader, out io.Writer) error {
				_, err := io.Copy(out, frame.NewDecoder(source.New(in)))
				return err
			})
		},
	}
}

func (a *app) packCmd() *cobra.Command {
	var (
		typeCode uint8
		strs     []string
		ints     []string
		flags    []uint
	)
	cmd := &cobra.Command{
		Use:   "pack [file...]",
		Short: "Pack each input as a raw stream of a new bottle",
		Long: `pack writes a bottle whose raw sub-streams are the given files, in order.
With no files, stdin becomes the single raw stream.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if typeCode > uint8(protocol.MaxType) {
				return fmt.Errorf("--type must be 0-%d", protocol.MaxType)
			}
			hdr, err := buildHeader(strs, ints, flags)
			if err != nil {
				return err
			}
			bs := a.cfg.Frame.BlockSize
			var streams []bottle.Stream
			if len(args) == 0 {
				streams = append(streams, bottle.Raw(buffered.NewReader(a.stdin, bs)))
			}
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				streams = append(streams, bottle.Raw(buffered.NewReader(f, bs)))
			}
			return a.writeBottle(bottle.New(protocol.Type(typeCode), hdr, streams...))
		},
	}
	cmd.Flags().Uint8Var(&typeCode, "type", uint8(protocol.TypeFile), "bottle type code (0-15)")
	cmd.Flags().StringArrayVar(&strs, "string", nil, "string header field, id=value")
	cmd.Flags().StringArrayVar(&ints, "int", nil, "integer header field, id=value")
	cmd.Flags().UintSliceVar(&flags, "flag", nil, "flag header field ids")
	return cmd
}

func buildHeader(strs, ints []string, flags []uint) (*header.Header, error) {
	h := header.New()
	for _, kv := range strs {
		id, value, err := splitField(kv)
		if err != nil {
			return nil, err
		}
		h.AddString(id, value)
	}
	for _, kv := range ints {
		id, value, err := splitField(kv)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("--int %s: %w", kv, err)
		}
		if err := h.AddInt(id, n); err != nil {
			return nil, err
		}
	}
	for _, id := range flags {
		if id > header.MaxID {
			return nil, fmt.Errorf("--flag %d: id must be 0-%d", id, header.MaxID)
		}
		h.AddFlag(uint8(id))
	}
	if _, err := h.Pack(); err != nil {
		return nil, err
	}
	return h, nil
}

func splitField(kv string) (uint8, string, error) {
	idText, value, ok := strings.Cut(kv, "=")
	if !ok {
		return 0, "", fmt.Errorf("header field %q: expected id=value", kv)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(idText), 10, 8)
	if err != nil || id > header.MaxID {
		return 0, "", fmt.Errorf("header field %q: id must be 0-%d", kv, header.MaxID)
	}
	return uint8(id), value, nil
}

// writeBottle serializes b to the output.
func (a *app) writeBottle(b *bottle.Bottle) error {
	return a.emit(func(out io.Writer) error {
		enc := b.Encoder(a.cfg.Frame.BlockSize)
		if _, err := io.Copy(out, enc); err != nil {
			return err
		}
		log.Debug().Stringer("bottle", b).Int64("bytes", enc.Written()).Msg("bottle written")
		return nil
	})
}

func (a *app) readBottle(args []string) (*bottle.Bottle, io.Closer, error) {
	in, err := a.input(args)
	if err != nil {
		return nil, nil, err
	}
	b, err := bottle.Read(in)
	if err != nil {
		in.Close()
		return nil, nil, err
	}
	return b, in, nil
}

func (a *app) extractCmd() *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Write one top-level sub-stream: a raw payload or a nested bottle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, in, err := a.readBottle(args)
			if err != nil {
				return err
			}
			defer in.Close()
			for i := 0; ; i++ {
				s, err := b.Next(ctx)
				if errors.Is(err, io.EOF) {
					return fmt.Errorf("bottle has %d sub-streams, no index %d", i, index)
				}
				if err != nil {
					return err
				}
				if i != index {
					if err := bottle.Discard(ctx, s); err != nil {
						return err
					}
					continue
				}
				switch s := s.(type) {
				case *bottle.RawStream:
					err = a.emit(func(out io.Writer) error {
						_, err := io.Copy(out, s)
						return err
					})
				case *bottle.Bottle:
					err = a.writeBottle(s)
				}
				if err != nil {
					return err
				}
				return bottle.Discard(ctx, b)
			}
		},
	}
	cmd.Flags().IntVar(&index, "stream", 0, "zero-based sub-stream index")
	return cmd
}

func (a *app) inspectCmd() *cobra.Command {
	var (
		format     string
		expand     bool
		identity   string
		authorized string
	)
	cmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Describe the structure of a bottle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := inspect.ParseFormat(format)
			if err != nil {
				return err
			}
			opts := inspect.Options{Expand: expand}
			if expand {
				if opts.Identities, err = a.identities(identity, false); err != nil {
					return err
				}
				if opts.Verify, err = a.verifyOptions(authorized); err != nil {
					return err
				}
			}
			b, in, err := a.readBottle(args)
			if err != nil {
				return err
			}
			defer in.Close()
			node, err := inspect.Walk(cmd.Context(), b, opts)
			if err != nil {
				return err
			}
			return a.emit(func(out io.Writer) error {
				return inspect.Render(out, node, f)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "text | json | yaml | cbor")
	cmd.Flags().BoolVar(&expand, "expand", false, "open compressed, signed and (with an identity) encrypted bottles")
	cmd.Flags().StringVar(&identity, "identity", "", "age identity file (overrides encrypt.identity_file)")
	cmd.Flags().StringVar(&authorized, "authorized-keys", "", "trusted SSH keys (overrides sign.authorized_keys)")
	return cmd
}

func (a *app) signCmd() *cobra.Command {
	var hashName, key string
	cmd := &cobra.Command{
		Use:   "sign [file]",
		Short: "Wrap a serialized bottle in a signed bottle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if hashName == "" {
				hashName = a.cfg.Sign.Hash
			}
			method, err := signed.ParseMethod(hashName)
			if err != nil {
				return err
			}
			if key == "" {
				key = a.cfg.Sign.Key
			}
			opts := signed.SignOptions{Hash: method}
			if key != "" {
				s, err := signed.LoadSSHSigner(key, []byte(os.Getenv(EnvSSHPassphrase)))
				if err != nil {
					return err
				}
				opts = s.Options(method)
			}
			in, err := a.input(args)
			if err != nil {
				return err
			}
			defer in.Close()
			b, err := signed.Write(in, opts)
			if err != nil {
				return err
			}
			return a.writeBottle(b)
		},
	}
	cmd.Flags().StringVar(&hashName, "hash", "", "sha256 | sha512 | blake3 (overrides sign.hash)")
	cmd.Flags().StringVar(&key, "key", "", "SSH private key (overrides sign.key)")
	return cmd
}

func (a *app) verifyOptions(authorized string) (signed.VerifyOptions, error) {
	if authorized == "" {
		authorized = a.cfg.Sign.AuthorizedKeys
		if _, err := os.Stat(authorized); authorized == "" || err != nil {
			return signed.VerifyOptions{}, nil
		}
	}
	v, err := signed.LoadAuthorizedKeys(authorized)
	if err != nil {
		return signed.VerifyOptions{}, err
	}
	return v.Options(), nil
}

func (a *app) verifyCmd() *cobra.Command {
	var authorized string
	cmd := &cobra.Command{
		Use:   "verify [file]",
		Short: "Check a signed bottle and write the bottle inside it",
		Long: `verify writes the inner bottle as it is read, then checks the digest and
signature. It exits non-zero when the result is not OK; by then the inner
bottle has already been written.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts, err := a.verifyOptions(authorized)
			if err != nil {
				return err
			}
			b, in, err := a.readBottle(args)
			if err != nil {
				return err
			}
			defer in.Close()
			vb, err := signed.Read(ctx, b, opts)
			if err != nil {
				return err
			}
			if err := a.writeBottle(vb.Inner); err != nil {
				return err
			}
			v, err := vb.Verify(ctx)
			if err != nil {
				return err
			}
			event := log.Info()
			if v.Status != signed.StatusOK {
				event = log.Error()
			}
			event.Stringer("method", vb.Method).Str("signed_by", v.SignedBy).Stringer("status", v.Status).Str("reason", v.Reason).Msg("verify")
			if v.Status != signed.StatusOK {
				return fmt.Errorf("%w: %s", errNotVerified, v)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&authorized, "authorized-keys", "", "trusted SSH keys (overrides sign.authorized_keys)")
	return cmd
}

func (a *app) compressCmd() *cobra.Command {
	var methodName string
	cmd := &cobra.Command{
		Use:   "compress [file]",
		Short: "Wrap a serialized bottle in a compressed bottle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if methodName == "" {
				methodName = a.cfg.Compress.Method
			}
			method, err := compressed.ParseMethod(methodName)
			if err != nil {
				return err
			}
			in, err := a.input(args)
			if err != nil {
				return err
			}
			defer in.Close()
			b, err := compressed.Write(in, method)
			if err != nil {
				return err
			}
			return a.writeBottle(b)
		},
	}
	cmd.Flags().StringVar(&methodName, "method", "", "snappy | zstd | lz4 (overrides compress.method)")
	return cmd
}

func (a *app) decompressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decompress [file]",
		Short: "Write the bottle inside a compressed bottle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, in, err := a.readBottle(args)
			if err != nil {
				return err
			}
			defer in.Close()
			env, err := compressed.Read(ctx, b)
			if err != nil {
				return err
			}
			if err := a.writeBottle(env.Inner); err != nil {
				return err
			}
			return env.Close(ctx)
		},
	}
}

func (a *app) encryptCmd() *cobra.Command {
	var recipients []string
	cmd := &cobra.Command{
		Use:   "encrypt [file]",
		Short: "Wrap a serialized bottle in an age-encrypted bottle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(recipients) == 0 {
				recipients = a.cfg.Encrypt.Recipients
			}
			in, err := a.input(args)
			if err != nil {
				return err
			}
			defer in.Close()
			b, err := encrypted.Write(in, recipients...)
			if err != nil {
				return err
			}
			return a.writeBottle(b)
		},
	}
	cmd.Flags().StringArrayVarP(&recipients, "recipient", "r", nil, "age public key (overrides encrypt.recipients)")
	return cmd
}

func (a *app) identities(path string, required bool) ([]age.Identity, error) {
	if path == "" {
		path = a.cfg.Encrypt.IdentityFile
	}
	if path == "" {
		if required {
			return nil, fmt.Errorf("no age identity: set encrypt.identity_file or --identity")
		}
		return nil, nil
	}
	return encrypted.LoadIdentities(path)
}

func (a *app) decryptCmd() *cobra.Command {
	var identity string
	cmd := &cobra.Command{
		Use:   "decrypt [file]",
		Short: "Write the bottle inside an encrypted bottle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ids, err := a.identities(identity, true)
			if err != nil {
				return err
			}
			b, in, err := a.readBottle(args)
			if err != nil {
				return err
			}
			defer in.Close()
			env, err := encrypted.Read(ctx, b, ids...)
			if err != nil {
				return err
			}
			if err := a.writeBottle(env.Inner); err != nil {
				return err
			}
			return env.Close(ctx)
		},
	}
	cmd.Flags().StringVarP(&identity, "identity", "i", "", "age identity file (overrides encrypt.identity_file)")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.emit(func(out io.Writer) error {
				return config.Encode(out, a.cfg)
			})
		},
	}
}
