package api

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelproxy/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	sizeParam = "{size:-?[0-9]+x-?[0-9]+}"

	routeWebPSized   = "/webp/" + sizeParam + "/*"
	routeWebP        = "/webp/*"
	routeResizeAlias = "/resize/" + sizeParam + "/*"
	routeSized       = "/" + sizeParam + "/*"
	routePlain       = "/*"
)

type imageProcessor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
	ActiveTransforms() int64
}

type Server struct {
	logger    zerolog.Logger
	processor imageProcessor
	metrics   *metrics
	tracer    trace.Tracer
	router    chi.Router
}

func NewServer(logger zerolog.Logger, processor imageProcessor) *Server {
	s := &Server{
		logger:    logger,
		processor: processor,
		metrics:   newMetrics(processor),
		tracer:    otel.Tracer("pixelproxy/api"),
		router:    chi.NewRouter(),
	}
	s.routes()
	return s
}

// Handler wraps the router with request-scoped logging. Every request gets a
// generated id, logged as req_id and returned in X-Request-Id.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})(h)
	h = hlog.RequestIDHandler("req_id", "X-Request-Id")(h)
	h = hlog.NewHandler(s.logger)(h)
	return h
}

func (s *Server) routes() {
	s.router.Use(s.metrics.withHTTPMetrics, s.withTracing)

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.metricsHandler())

	s.router.Get(routeWebPSized, s.handleImage(pipeline.IntentWebP))
	s.router.Get(routeWebP, s.handleImage(pipeline.IntentWebP))
	s.router.Get(routeResizeAlias, s.handleImage(pipeline.IntentResize))
	s.router.Get(routeSized, s.handleImage(pipeline.IntentResize))
	s.router.Get(routePlain, s.handleImage(pipeline.IntentResize))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleImage(intent pipeline.Intent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			width, height int
			err           error
		)
		if size := chi.URLParam(r, "size"); size != "" {
			width, height, err = parseSize(size)
			if err != nil {
				s.fail(w, r, intent, err)
				return
			}
		}

		ref, err := pipeline.ParseSource(remoteTail(r))
		if err != nil {
			s.fail(w, r, intent, err)
			return
		}

		result, err := s.processor.Process(r.Context(), pipeline.Request{
			Source: ref,
			Width:  width,
			Height: height,
			Intent: intent,
		})
		if err != nil {
			s.fail(w, r, intent, err)
			return
		}

		s.metrics.observeResult(intent, result)
		writeImage(w, result.Body, result.ContentType)
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, intent pipeline.Intent, err error) {
	kind := pipeline.KindOf(err)
	status := statusForKind(kind)
	s.metrics.observeFailure(intent, kind)

	event := hlog.FromRequest(r).Warn()
	if status >= http.StatusInternalServerError {
		event = hlog.FromRequest(r).Error()
	}
	event.Err(err).Str("kind", string(kind)).Str("intent", intent.String()).Msg("image request failed")

	writeError(w, status, err)
}

// remoteTail returns the catch-all part of the path, unescaping it when the
// client percent-encoded the embedded URL.
func remoteTail(r *http.Request) string {
	tail := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(tail); err == nil {
		return unescaped
	}
	return tail
}

func parseSize(raw string) (int, int, error) {
	w, h, ok := strings.Cut(raw, "x")
	if !ok {
		return 0, 0, pipeline.NewError(pipeline.KindInvalidDimensions, "parse size", fmt.Errorf("expected WIDTHxHEIGHT, got %q", raw))
	}

	width, err := strconv.Atoi(w)
	if err != nil || width > math.MaxInt32 {
		return 0, 0, pipeline.NewError(pipeline.KindInvalidDimensions, "parse size", fmt.Errorf("invalid width %q", w))
	}
	height, err := strconv.Atoi(h)
	if err != nil || height > math.MaxInt32 {
		return 0, 0, pipeline.NewError(pipeline.KindInvalidDimensions, "parse size", fmt.Errorf("invalid height %q", h))
	}
	if width < 0 || height < 0 {
		return 0, 0, pipeline.NewError(pipeline.KindInvalidDimensions, "parse size", fmt.Errorf("negative size %dx%d", width, height))
	}
	return width, height, nil
}
