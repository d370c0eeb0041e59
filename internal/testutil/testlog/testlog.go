package testlog

import (
	"os"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var configureOnce sync.Once

// Start quiets the global logger for tests. TREELINE_LOG_LEVEL still
// wins, so a failing run can be re-run with debug output.
func Start(t *testing.T) {
	t.Helper()
	configureOnce.Do(func() {
		level := zerolog.WarnLevel
		if raw := os.Getenv("TREELINE_LOG_LEVEL"); raw != "" {
			if parsed, err := zerolog.ParseLevel(raw); err == nil {
				level = parsed
			}
		}
		log.Logger = zerolog.New(os.Stderr).Level(level).With().Logger()
	})
	log.Debug().Str("test", t.Name()).Msg("start")
}
