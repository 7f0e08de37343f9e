package pipeline

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/HugoSmits86/nativewebp"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}
	return img
}

func buildTestPNG(tb testing.TB, w, h int) []byte {
	tb.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(w, h)); err != nil {
		tb.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

func buildTestJPEG(tb testing.TB, w, h int) []byte {
	tb.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: 90}); err != nil {
		tb.Fatalf("encode source jpeg: %v", err)
	}
	return buf.Bytes()
}

func buildTestWebP(tb testing.TB, w, h int) []byte {
	tb.Helper()

	var buf bytes.Buffer
	if err := nativewebp.Encode(&buf, gradient(w, h), nil); err != nil {
		tb.Fatalf("encode source webp: %v", err)
	}
	return buf.Bytes()
}

func decodeConfig(tb testing.TB, data []byte) (image.Config, string) {
	tb.Helper()

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		tb.Fatalf("decode output config: %v", err)
	}
	return cfg, format
}

// buildPNGHeader returns only the PNG signature and IHDR chunk, declaring a
// w x h RGBA image with no pixel data behind it.
func buildPNGHeader(tb testing.TB, w, h uint32) []byte {
	tb.Helper()

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	chunk := append([]byte("IHDR"), ihdr...)

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(ihdr))); err != nil {
		tb.Fatalf("write chunk length: %v", err)
	}
	buf.Write(chunk)
	if err := binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk)); err != nil {
		tb.Fatalf("write chunk crc: %v", err)
	}
	return buf.Bytes()
}
