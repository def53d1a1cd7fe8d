package signed

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"

	"github.com/danmuck/bottle/internal/codec"
)

// sshBlob is the signed form of a digest: the digest itself plus an SSH
// signature over it.
type sshBlob struct {
	Digest    []byte `cbor:"digest"`
	Format    string `cbor:"format"`
	Signature []byte `cbor:"signature"`
}

// SSHSigner signs digests with an SSH private key. The signer identity is
// the key's SHA256 fingerprint.
type SSHSigner struct {
	key ssh.Signer
}

func NewSSHSigner(key ssh.Signer) *SSHSigner {
	return &SSHSigner{key: key}
}

// LoadSSHSigner reads a private key file, decrypting it if passphrase is set.
func LoadSSHSigner(path string, passphrase []byte) (*SSHSigner, error) {
	if path == "" {
		return nil, fmt.Errorf("signed: ssh key path is required")
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var key ssh.Signer
	if len(passphrase) > 0 {
		key, err = ssh.ParsePrivateKeyWithPassphrase(pem, passphrase)
	} else {
		key, err = ssh.ParsePrivateKey(pem)
	}
	if err != nil {
		return nil, fmt.Errorf("signed: parse %s: %w", path, err)
	}
	return NewSSHSigner(key), nil
}

func (s *SSHSigner) SignedBy() string {
	return ssh.FingerprintSHA256(s.key.PublicKey())
}

func (s *SSHSigner) Sign(digest []byte) ([]byte, error) {
	sig, err := s.key.Sign(rand.Reader, digest)
	if err != nil {
		return nil, err
	}
	return codec.Marshal(sshBlob{Digest: digest, Format: sig.Format, Signature: sig.Blob})
}

// Options returns sign options that hash with method and sign with s.
func (s *SSHSigner) Options(method Method) SignOptions {
	return SignOptions{Hash: method, SignedBy: s.SignedBy(), Signer: s.Sign}
}

// SSHVerifier checks blobs made by SSHSigner against a set of trusted
// public keys, looked up by fingerprint.
type SSHVerifier struct {
	keys map[string]ssh.PublicKey
}

func NewSSHVerifier(keys ...ssh.PublicKey) *SSHVerifier {
	v := &SSHVerifier{keys: make(map[string]ssh.PublicKey, len(keys))}
	for _, k := range keys {
		v.keys[ssh.FingerprintSHA256(k)] = k
	}
	return v
}

// LoadAuthorizedKeys reads trusted keys in authorized_keys format.
func LoadAuthorizedKeys(path string) (*SSHVerifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var keys []ssh.PublicKey
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		key, _, _, _, err := ssh.ParseAuthorizedKey(text)
		if err != nil {
			return nil, fmt.Errorf("signed: %s:%d: %w", path, line, err)
		}
		keys = append(keys, key)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return NewSSHVerifier(keys...), nil
}

// Len is the number of trusted keys.
func (v *SSHVerifier) Len() int {
	return len(v.keys)
}

func (v *SSHVerifier) Verify(blob []byte, signedBy string) ([]byte, error) {
	key, ok := v.keys[signedBy]
	if !ok {
		return nil, fmt.Errorf("unknown signer %s", signedBy)
	}
	var b sshBlob
	if err := codec.Unmarshal(blob, &b); err != nil {
		return nil, fmt.Errorf("malformed signature: %w", err)
	}
	if err := key.Verify(b.Digest, &ssh.Signature{Format: b.Format, Blob: b.Signature}); err != nil {
		return nil, fmt.Errorf("bad signature from %s: %w", signedBy, err)
	}
	return b.Digest, nil
}

// Options returns verify options backed by v.
func (v *SSHVerifier) Options() VerifyOptions {
	return VerifyOptions{Verifier: v.Verify}
}
