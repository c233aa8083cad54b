package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component returns the global logger tagged with a component name. It reads
// log.Logger at call time, so call it after logging is configured.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}
