package api

import (
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HTTPLoggingMiddleware logs requests with a level chosen by status code.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	next(ctx)

	status := ctx.Status()
	level := zerolog.DebugLevel
	switch {
	case status >= 500:
		level = zerolog.ErrorLevel
	case status >= 400:
		level = zerolog.WarnLevel
	}

	log.WithLevel(level).
		Str("method", ctx.Method()).
		Str("path", ctx.URL().Path).
		Str("remote_addr", ctx.RemoteAddr()).
		Int("status", status).
		Dur("duration", time.Since(start)).
		Msg("HTTP request completed")
}
