package main

import (
	"flag"
	"os"

	"github.com/danmuck/bottle/internal/config"
	"github.com/danmuck/bottle/internal/observability"
)

const defaultPath = "bottlectl.toml"

func main() {
	output := flag.String("output", defaultPath, "output path for the bottlectl config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", defaultPath, "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	logger := observability.InitLogger("configgen")

	if *validate {
		cfg, err := config.Load(*input)
		if err != nil {
			logger.Fatal().Err(err).Msg("config invalid")
		}
		logger.Info().Str("path", *input).Int("block_size", cfg.Frame.BlockSize).Str("hash", cfg.Sign.Hash).Msg("validated bottlectl config")
		if err := config.Encode(os.Stdout, cfg); err != nil {
			logger.Fatal().Err(err).Msg("encode config")
		}
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		logger.Fatal().Err(err).Msg("write template")
	}
	logger.Info().Str("path", *output).Msg("wrote bottlectl config template")
}
