package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

var ErrAccessDenied = errors.New("origin is not in the allowed domain list")

type Policy interface {
	IsAllowed(origin string) bool
}

type Request struct {
	Source SourceReference
	Width  int
	Height int
	Intent Intent
}

type Result struct {
	Body          []byte
	ContentType   string
	Codec         Codec
	Width         int
	Height        int
	Passthrough   bool
	SourceBytes   int
	FetchDuration time.Duration
}

type Config struct {
	Concurrency  int
	Quality         int
	MaxDimension    int
	MaxSourcePixels int
}

type Processor struct {
	policy       Policy
	fetcher      Fetcher
	transformer  Transformer
	sem          *semaphore.Weighted
	active       atomic.Int64
	quality      int
	maxDimension int
	maxPixels    int
	tracer       trace.Tracer
	logger       zerolog.Logger
}

func NewProcessor(policy Policy, fetcher Fetcher, cfg Config, logger zerolog.Logger) (*Processor, error) {
	if policy == nil {
		return nil, errors.New("allowlist policy is required")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}

	slots := cfg.Concurrency
	if slots < 1 {
		slots = runtime.NumCPU()
	}

	return &Processor{
		policy:       policy,
		fetcher:      fetcher,
		transformer:  newTransformer(),
		sem:          semaphore.NewWeighted(int64(slots)),
		quality:      cfg.Quality,
		maxDimension: cfg.MaxDimension,
		maxPixels:    cfg.MaxSourcePixels,
		tracer:       otel.Tracer("pixelproxy/pipeline"),
		logger:       logger,
	}, nil
}

// ActiveTransforms reports how many decode/resize/encode runs hold a slot.
func (p *Processor) ActiveTransforms() int64 {
	return p.active.Load()
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if req.Width < 0 || req.Height < 0 {
		return Result{}, NewError(KindInvalidDimensions, "validate request", fmt.Errorf("negative size %dx%d", req.Width, req.Height))
	}
	if !p.policy.IsAllowed(req.Source.Origin) {
		return Result{}, NewError(KindAccessDenied, "check allowlist", ErrAccessDenied)
	}

	fetchStarted := time.Now()
	asset, err := p.fetch(ctx, req.Source)
	fetchDuration := time.Since(fetchStarted)
	if err != nil {
		return Result{}, err
	}

	neg := Negotiate(asset, req.Intent)
	noResize := req.Width == 0 && req.Height == 0
	if neg.Passthrough || (noResize && neg.Output == neg.Decode) {
		p.logger.Debug().
			Str("source", req.Source.URL()).
			Str("content_type", asset.ContentType).
			Str("intent", req.Intent.String()).
			Msg("passing source through")
		return Result{
			Body:          asset.Body,
			ContentType:   asset.ContentType,
			Codec:         neg.Decode,
			Passthrough:   true,
			SourceBytes:   len(asset.Body),
			FetchDuration: fetchDuration,
		}, nil
	}

	out, err := p.transform(ctx, asset.Body, Job{
		Decode:       neg.Decode,
		Output:       neg.Output,
		Width:        req.Width,
		Height:       req.Height,
		Quality:         p.quality,
		MaxDimension:    p.maxDimension,
		MaxSourcePixels: p.maxPixels,
	})
	if err != nil {
		return Result{}, err
	}

	return Result{
		Body:          out.Data,
		ContentType:   out.Codec.MIMEType(),
		Codec:         out.Codec,
		Width:         out.Width,
		Height:        out.Height,
		SourceBytes:   len(asset.Body),
		FetchDuration: fetchDuration,
	}, nil
}

func (p *Processor) fetch(ctx context.Context, ref SourceReference) (FetchedAsset, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.fetch", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("source.origin", ref.Origin))
	defer span.End()

	asset, err := p.fetcher.Fetch(ctx, ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return FetchedAsset{}, err
	}

	span.SetAttributes(
		attribute.String("source.content_type", asset.ContentType),
		attribute.Int("source.bytes", len(asset.Body)),
	)
	return asset, nil
}

func (p *Processor) transform(ctx context.Context, input []byte, job Job) (Output, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.transform")
	span.SetAttributes(
		attribute.String("image.decode", job.Decode.String()),
		attribute.String("image.output", job.Output.String()),
		attribute.Int("image.width", job.Width),
		attribute.Int("image.height", job.Height),
	)
	defer span.End()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		span.RecordError(err)
		return Output{}, fmt.Errorf("wait for transform slot: %w", err)
	}
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		p.sem.Release(1)
	}()

	out, err := p.transformer.Transform(ctx, input, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transform failed")
		return Output{}, err
	}

	span.SetStatus(codes.Ok, "transformed")
	return out, nil
}
