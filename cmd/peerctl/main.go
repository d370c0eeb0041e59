package main

import (
	"flag"

	"github.com/rs/zerolog/log"

	"github.com/treeline-net/treeline/internal/observability"
	"github.com/treeline-net/treeline/internal/overlay"
)

func main() {
	configPath := flag.String("config", "", "path to a peerctl config.toml")
	flag.Parse()

	cfg := overlay.DefaultPeerConfig()
	logLevel := ""
	var loadErr error
	if *configPath != "" {
		cfg, logLevel, loadErr = loadServiceConfig(*configPath)
	}

	observability.InitLogger("peerctl", logLevel)
	if loadErr != nil {
		log.Fatal().Err(loadErr).Msg("failed to load peer config")
	}
	if *configPath != "" {
		log.Info().Str("path", *configPath).Msg("loaded peer config")
	}

	if err := overlay.NewPeer(cfg).Run(); err != nil {
		log.Fatal().Err(err).Msg("peer stopped")
	}
}
