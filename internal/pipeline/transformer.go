package pipeline

import (
	"context"
	"fmt"
	"math"
)

const (
	defaultQuality         = 85
	defaultMaxDimension    = 8192
	defaultMaxSourcePixels = 50_000_000
)

type Job struct {
	Decode       Codec
	Output       Codec
	Width        int
	Height       int
	Quality         int
	MaxDimension    int
	MaxSourcePixels int
}

type Output struct {
	Data   []byte
	Codec  Codec
	Width  int
	Height int
}

type Transformer interface {
	Transform(ctx context.Context, input []byte, job Job) (Output, error)
}

// ResolveDimensions computes the output size. A zero width or height is
// derived from the source aspect ratio; when both are set the request is taken
// literally and the aspect ratio is not kept.
func ResolveDimensions(srcW, srcH, width, height int) (int, int) {
	switch {
	case width == 0 && height == 0:
		return srcW, srcH
	case width == 0:
		return max(1, int(math.Round(float64(srcW)*float64(height)/float64(srcH)))), height
	case height == 0:
		return width, max(1, int(math.Round(float64(srcH)*float64(width)/float64(srcW))))
	default:
		return width, height
	}
}

// checkSource bounds the decode buffer from the header alone, before any pixel
// memory is allocated.
func checkSource(job Job, srcW, srcH int) error {
	if srcW <= 0 || srcH <= 0 {
		return NewError(KindDecode, "check source size", fmt.Errorf("source image has invalid dimensions %dx%d", srcW, srcH))
	}

	limit := int64(job.MaxSourcePixels)
	if limit <= 0 {
		limit = defaultMaxSourcePixels
	}
	if int64(srcW)*int64(srcH) > limit {
		return NewError(KindDecode, "check source size", fmt.Errorf("source %dx%d exceeds %d pixels", srcW, srcH, limit))
	}
	return nil
}

func validateTarget(job Job, srcW, srcH int) (int, int, error) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0, NewError(KindDecode, "resolve dimensions", fmt.Errorf("source image has invalid dimensions %dx%d", srcW, srcH))
	}
	if job.Width < 0 || job.Height < 0 {
		return 0, 0, NewError(KindInvalidDimensions, "resolve dimensions", fmt.Errorf("negative size %dx%d", job.Width, job.Height))
	}

	w, h := ResolveDimensions(srcW, srcH, job.Width, job.Height)

	limit := job.MaxDimension
	if limit <= 0 {
		limit = defaultMaxDimension
	}
	// Native size is always allowed; only an actual resize is bounded.
	if (w != srcW || h != srcH) && (w > limit || h > limit) {
		return 0, 0, NewError(KindInvalidDimensions, "resolve dimensions", fmt.Errorf("target %dx%d exceeds limit %d", w, h, limit))
	}
	return w, h, nil
}

func jobQuality(q int) int {
	if q <= 0 || q > 100 {
		return defaultQuality
	}
	return q
}
