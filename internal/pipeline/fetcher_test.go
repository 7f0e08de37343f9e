package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sourceFor(t *testing.T, rawURL string) SourceReference {
	t.Helper()
	ref, err := ParseSource(rawURL)
	require.NoError(t, err)
	return ref
}

func TestHTTPFetcherFetch(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        []byte
		wantKind    Kind
	}{
		{name: "jpeg", status: http.StatusOK, contentType: "image/jpeg", body: []byte("jpeg-bytes")},
		{name: "missing content type", status: http.StatusOK, body: []byte("raw")},
		{name: "not found", status: http.StatusNotFound, body: []byte("nope"), wantKind: KindUpstreamStatus},
		{name: "server error", status: http.StatusBadGateway, body: []byte("bad"), wantKind: KindUpstreamStatus},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotPath, gotUA string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotUA = r.Header.Get("User-Agent")
				if tc.contentType != "" {
					w.Header().Set("Content-Type", tc.contentType)
				} else {
					w.Header()["Content-Type"] = nil
				}
				w.WriteHeader(tc.status)
				_, err := w.Write(tc.body)
				assert.NoError(t, err)
			}))
			defer srv.Close()

			fetcher := NewHTTPFetcher(FetcherConfig{UserAgent: "pixelproxy-test"})
			asset, err := fetcher.Fetch(context.Background(), sourceFor(t, srv.URL+"/img/photo.jpg"))

			if tc.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tc.wantKind, KindOf(err))

				var statusErr *UpstreamStatusError
				require.True(t, errors.As(err, &statusErr))
				assert.Equal(t, tc.status, statusErr.Status)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "/img/photo.jpg", gotPath)
			assert.Equal(t, "pixelproxy-test", gotUA)
			assert.Equal(t, tc.body, asset.Body)
			assert.Equal(t, tc.contentType, asset.ContentType)
			assert.Equal(t, http.StatusOK, asset.Status)
		})
	}
}

func TestHTTPFetcherTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	target := srv.URL + "/photo.jpg"
	srv.Close()

	_, err := NewHTTPFetcher(FetcherConfig{}).Fetch(context.Background(), sourceFor(t, target))
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
}

func TestHTTPFetcherTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	fetcher := NewHTTPFetcher(FetcherConfig{Timeout: 50 * time.Millisecond})
	_, err := fetcher.Fetch(context.Background(), sourceFor(t, srv.URL+"/slow.jpg"))
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
}

func TestHTTPFetcherBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(FetcherConfig{MaxBytes: 32}).Fetch(context.Background(), sourceFor(t, srv.URL+"/big.png"))
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))

	asset, err := NewHTTPFetcher(FetcherConfig{MaxBytes: 64}).Fetch(context.Background(), sourceFor(t, srv.URL+"/big.png"))
	require.NoError(t, err)
	assert.Len(t, asset.Body, 64)
}
