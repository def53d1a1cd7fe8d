// Package config loads bottlectl settings from TOML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/bottle/internal/compressed"
	"github.com/danmuck/bottle/internal/logging"
	"github.com/danmuck/bottle/internal/protocol/frame"
	"github.com/danmuck/bottle/internal/signed"
)

// MaxBlockSize bounds frame.block_size so a single read stays in memory.
const MaxBlockSize = 16 << 20

type Config struct {
	Log      LogConfig      `toml:"log"`
	Frame    FrameConfig    `toml:"frame"`
	Sign     SignConfig     `toml:"sign"`
	Compress CompressConfig `toml:"compress"`
	Encrypt  EncryptConfig  `toml:"encrypt"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

type LogConfig struct {
	Level     string `toml:"level"`
	Timestamp bool   `toml:"timestamp"`
	NoColor   bool   `toml:"no_color"`
}

type FrameConfig struct {
	BlockSize int `toml:"block_size"`
}

type SignConfig struct {
	Hash           string `toml:"hash"`
	Key            string `toml:"key"`
	AuthorizedKeys string `toml:"authorized_keys"`
}

type CompressConfig struct {
	Method string `toml:"method"`
}

type EncryptConfig struct {
	Recipients   []string `toml:"recipients"`
	IdentityFile string   `toml:"identity_file"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info", Timestamp: true},
		Frame:    FrameConfig{BlockSize: frame.DefaultBlockSize},
		Sign:     SignConfig{Hash: signed.SHA256.String()},
		Compress: CompressConfig{Method: compressed.Zstd.String()},
	}
}

// Load overlays the keys defined in path onto Default and validates the
// result. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "timestamp") {
		cfg.Log.Timestamp = raw.Log.Timestamp
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}
	if meta.IsDefined("frame", "block_size") {
		cfg.Frame.BlockSize = raw.Frame.BlockSize
	}
	if meta.IsDefined("sign", "hash") {
		cfg.Sign.Hash = strings.TrimSpace(raw.Sign.Hash)
	}
	if meta.IsDefined("sign", "key") {
		cfg.Sign.Key = expandHome(raw.Sign.Key)
	}
	if meta.IsDefined("sign", "authorized_keys") {
		cfg.Sign.AuthorizedKeys = expandHome(raw.Sign.AuthorizedKeys)
	}
	if meta.IsDefined("compress", "method") {
		cfg.Compress.Method = strings.TrimSpace(raw.Compress.Method)
	}
	if meta.IsDefined("encrypt", "recipients") {
		cfg.Encrypt.Recipients = normalize(raw.Encrypt.Recipients)
	}
	if meta.IsDefined("encrypt", "identity_file") {
		cfg.Encrypt.IdentityFile = expandHome(raw.Encrypt.IdentityFile)
	}
	if meta.IsDefined("metrics", "addr") {
		cfg.Metrics.Addr = strings.TrimSpace(raw.Metrics.Addr)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if _, ok := logging.ParseLevel(cfg.Log.Level); !ok {
		return fmt.Errorf("log.level %q is not a known level", cfg.Log.Level)
	}
	if cfg.Frame.BlockSize <= 0 || cfg.Frame.BlockSize > MaxBlockSize {
		return fmt.Errorf("frame.block_size must be between 1 and %d, got %d", MaxBlockSize, cfg.Frame.BlockSize)
	}
	if _, err := signed.ParseMethod(cfg.Sign.Hash); err != nil {
		return fmt.Errorf("sign.hash: %w", err)
	}
	if _, err := compressed.ParseMethod(cfg.Compress.Method); err != nil {
		return fmt.Errorf("compress.method: %w", err)
	}
	for i, r := range cfg.Encrypt.Recipients {
		if !strings.HasPrefix(r, "age1") {
			return fmt.Errorf("encrypt.recipients[%d] %q is not an age public key", i, r)
		}
	}
	return nil
}

// Logging converts the [log] section for logging.Apply. Environment
// overrides still apply on top.
func (c LogConfig) Logging() logging.Config {
	level, _ := logging.ParseLevel(c.Level)
	cfg := logging.Config{Level: level, Timestamp: c.Timestamp, NoColor: c.NoColor}
	logging.ApplyEnvOverrides(&cfg)
	return cfg
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func expandHome(path string) string {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
