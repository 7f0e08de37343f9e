package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultFetchTimeout  = 30 * time.Second
	defaultMaxFetchBytes = 32 << 20
)

type FetchedAsset struct {
	Body        []byte
	ContentType string
	Status      int
}

type Fetcher interface {
	Fetch(ctx context.Context, ref SourceReference) (FetchedAsset, error)
}

type FetcherConfig struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
}

// HTTPFetcher issues exactly one GET per call. Format classification is left
// to the declared Content-Type; the body is never sniffed here.
type HTTPFetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

func NewHTTPFetcher(cfg FetcherConfig) *HTTPFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxFetchBytes
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		maxBytes:  maxBytes,
		userAgent: strings.TrimSpace(cfg.UserAgent),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, ref SourceReference) (FetchedAsset, error) {
	const op = "fetch source"
	target := ref.URL()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return FetchedAsset{}, NewError(KindTransport, op, fmt.Errorf("build request: %w", err))
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "image/*,*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return FetchedAsset{}, NewError(KindTransport, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return FetchedAsset{}, NewError(KindUpstreamStatus, op, &UpstreamStatusError{
			Status: resp.StatusCode,
			URL:    target,
		})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return FetchedAsset{}, NewError(KindTransport, op, fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > f.maxBytes {
		return FetchedAsset{}, NewError(KindTransport, op, fmt.Errorf("source exceeds %d bytes", f.maxBytes))
	}

	return FetchedAsset{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		Status:      resp.StatusCode,
	}, nil
}
