package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

type stdlibTransformer struct{}

func (t stdlibTransformer) Transform(ctx context.Context, input []byte, job Job) (Output, error) {
	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	default:
	}

	cfg, err := decodeConfigAs(job.Decode, input)
	if err != nil {
		return Output{}, NewError(KindDecode, "read source header", err)
	}
	if err := checkSource(job, cfg.Width, cfg.Height); err != nil {
		return Output{}, err
	}

	src, err := decodeAs(job.Decode, input)
	if err != nil {
		return Output{}, NewError(KindDecode, "decode source image", err)
	}

	bounds := src.Bounds()
	width, height, err := validateTarget(job, bounds.Dx(), bounds.Dy())
	if err != nil {
		return Output{}, err
	}

	out := resample(src, width, height)

	data, err := encodeAs(job.Output, out, jobQuality(job.Quality))
	if err != nil {
		return Output{}, NewError(KindEncode, "encode output image", err)
	}

	return Output{
		Data:   data,
		Codec:  job.Output,
		Width:  width,
		Height: height,
	}, nil
}

// decodeAs uses the decoder named by the declared type, so a payload whose
// bytes disagree with its Content-Type fails here.
func decodeAs(codec Codec, input []byte) (image.Image, error) {
	r := bytes.NewReader(input)
	switch codec {
	case CodecJPEG:
		return jpeg.Decode(r)
	case CodecPNG:
		return png.Decode(r)
	case CodecWebP:
		return webp.Decode(r)
	default:
		return nil, fmt.Errorf("no decoder for codec %s", codec)
	}
}

func decodeConfigAs(codec Codec, input []byte) (image.Config, error) {
	r := bytes.NewReader(input)
	switch codec {
	case CodecJPEG:
		return jpeg.DecodeConfig(r)
	case CodecPNG:
		return png.DecodeConfig(r)
	case CodecWebP:
		return webp.DecodeConfig(r)
	default:
		return image.Config{}, fmt.Errorf("no decoder for codec %s", codec)
	}
}

func resample(src image.Image, width, height int) image.Image {
	bounds := src.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		return src
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	return dst
}

func encodeAs(codec Codec, img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch codec {
	case CodecJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case CodecPNG:
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case CodecWebP:
		// nativewebp writes lossless VP8L; quality does not apply.
		if err := nativewebp.Encode(&buf, img, nil); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	default:
		return nil, errors.New("unsupported output codec")
	}

	return buf.Bytes(), nil
}
