//go:build govips && cgo

package pipeline

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
)

type govipsTransformer struct{}

func (t govipsTransformer) Transform(ctx context.Context, input []byte, job Job) (Output, error) {
	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	default:
	}

	if err := checkDeclaredType(job.Decode, input); err != nil {
		return Output{}, NewError(KindDecode, "decode source image", err)
	}

	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return Output{}, NewError(KindDecode, "decode source image", err)
	}
	defer img.Close()

	// libvips reads only the header on load; pixels are decoded on first use.
	if err := checkSource(job, img.Width(), img.Height()); err != nil {
		return Output{}, err
	}

	width, height, err := validateTarget(job, img.Width(), img.Height())
	if err != nil {
		return Output{}, err
	}

	if width != img.Width() || height != img.Height() {
		hscale := float64(width) / float64(img.Width())
		vscale := float64(height) / float64(img.Height())
		if err := img.ResizeWithVScale(hscale, vscale, vips.KernelLanczos3); err != nil {
			return Output{}, NewError(KindDecode, "resize image", err)
		}
	}

	data, err := exportGovipsImage(img, job.Output, jobQuality(job.Quality))
	if err != nil {
		return Output{}, NewError(KindEncode, "encode output image", err)
	}

	return Output{
		Data:   data,
		Codec:  job.Output,
		Width:  img.Width(),
		Height: img.Height(),
	}, nil
}

// checkDeclaredType keeps libvips from silently decoding a payload whose bytes
// do not match the declared Content-Type.
func checkDeclaredType(codec Codec, input []byte) error {
	var want vips.ImageType
	switch codec {
	case CodecJPEG:
		want = vips.ImageTypeJPEG
	case CodecPNG:
		want = vips.ImageTypePNG
	case CodecWebP:
		want = vips.ImageTypeWEBP
	default:
		return fmt.Errorf("no decoder for codec %s", codec)
	}

	if got := vips.DetermineImageType(input); got != want {
		return fmt.Errorf("payload is not %s", codec)
	}
	return nil
}

func exportGovipsImage(img *vips.ImageRef, codec Codec, quality int) ([]byte, error) {
	switch codec {
	case CodecJPEG:
		params := vips.NewJpegExportParams()
		params.Quality = quality
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case CodecPNG:
		data, _, err := img.ExportPng(vips.NewPngExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case CodecWebP:
		params := vips.NewWebpExportParams()
		params.Quality = quality
		data, _, err := img.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported output codec: %s", codec)
	}
}
