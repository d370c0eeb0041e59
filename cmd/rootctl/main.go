package main

import (
	"flag"

	"github.com/rs/zerolog/log"

	"github.com/treeline-net/treeline/internal/observability"
	"github.com/treeline-net/treeline/internal/overlay"
)

func main() {
	configPath := flag.String("config", "", "path to a rootctl config.toml")
	flag.Parse()

	cfg := overlay.DefaultRootConfig()
	logLevel := ""
	var loadErr error
	if *configPath != "" {
		cfg, logLevel, loadErr = loadServiceConfig(*configPath)
	}

	observability.InitLogger("rootctl", logLevel)
	if loadErr != nil {
		log.Fatal().Err(loadErr).Msg("failed to load root config")
	}
	if *configPath != "" {
		log.Info().Str("path", *configPath).Msg("loaded root config")
	}

	if err := overlay.NewRoot(cfg).Run(); err != nil {
		log.Fatal().Err(err).Msg("root stopped")
	}
}
