package config

import (
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Encode writes cfg as TOML, including keys left at their defaults.
func Encode(w io.Writer, cfg Config) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	return enc.Encode(cfg)
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(Template), 0o600)
}

// Template is a commented starting point for bottlectl.toml.
const Template = `[log]
# trace | debug | info | warn | error | off
level = "info"
timestamp = true
no_color = false

[frame]
# bytes read per frame when packing raw streams
block_size = 65536

[sign]
# sha256 | sha512 | blake3
hash = "sha256"
# SSH private key used by "bottlectl sign"; leave empty for an unsigned digest
key = ""
# trusted signers for "bottlectl verify", in authorized_keys format
authorized_keys = "~/.ssh/authorized_keys"

[compress]
# snappy | zstd | lz4
method = "zstd"

[encrypt]
recipients = []
# age identities for "bottlectl decrypt", as written by age-keygen
identity_file = ""

[metrics]
# serve Prometheus metrics while a command runs, e.g. "127.0.0.1:9464"
addr = ""
`
