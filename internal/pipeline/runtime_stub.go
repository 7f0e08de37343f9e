//go:build !govips || !cgo

package pipeline

import "github.com/rs/zerolog"

func Startup(logger zerolog.Logger) error {
	logger.Info().Str("transformer", "stdlib").Msg("using pure Go transformer")
	return nil
}

func Shutdown() {}

func newTransformer() Transformer {
	return stdlibTransformer{}
}
