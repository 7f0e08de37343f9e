//go:build govips && cgo

package pipeline

import (
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/rs/zerolog"
)

var (
	startupOnce sync.Once
	shutdownMu  sync.Mutex
	started     bool
)

// Startup initializes libvips once per process. Parallelism is bounded by the
// processor's semaphore, so libvips itself runs single-threaded per operation.
func Startup(logger zerolog.Logger) error {
	startupOnce.Do(func() {
		vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
			logger.Warn().Str("vips_domain", domain).Int("vips_level", int(level)).Msg(msg)
		}, vips.LogLevelWarning)

		vips.Startup(&vips.Config{
			ConcurrencyLevel: 1,
			MaxCacheFiles:    0,
			MaxCacheMem:      0,
			MaxCacheSize:     0,
		})

		shutdownMu.Lock()
		started = true
		shutdownMu.Unlock()
		logger.Info().Str("transformer", "govips").Msg("libvips started")
	})
	return nil
}

func Shutdown() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if !started {
		return
	}
	vips.Shutdown()
	started = false
}

func newTransformer() Transformer {
	return govipsTransformer{}
}
