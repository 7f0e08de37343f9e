package pipeline

import "strings"

type Codec int

const (
	CodecUnsupported Codec = iota
	CodecJPEG
	CodecPNG
	CodecWebP
)

func (c Codec) String() string {
	switch c {
	case CodecJPEG:
		return "jpeg"
	case CodecPNG:
		return "png"
	case CodecWebP:
		return "webp"
	default:
		return "unsupported"
	}
}

func (c Codec) MIMEType() string {
	switch c {
	case CodecJPEG:
		return "image/jpeg"
	case CodecPNG:
		return "image/png"
	case CodecWebP:
		return "image/webp"
	default:
		return ""
	}
}

type Intent int

const (
	IntentResize Intent = iota
	IntentWebP
)

func (i Intent) String() string {
	if i == IntentWebP {
		return "webp"
	}
	return "resize"
}

// Classify maps a declared Content-Type to a codec by prefix. Parameters such
// as "; charset=binary" are tolerated because only the prefix is compared.
func Classify(contentType string) Codec {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "image/jpeg"):
		return CodecJPEG
	case strings.HasPrefix(ct, "image/png"):
		return CodecPNG
	case strings.HasPrefix(ct, "image/webp"):
		return CodecWebP
	default:
		return CodecUnsupported
	}
}

type Negotiation struct {
	Decode      Codec
	Output      Codec
	Passthrough bool
}

func Negotiate(asset FetchedAsset, intent Intent) Negotiation {
	decode := Classify(asset.ContentType)

	switch {
	case decode == CodecUnsupported:
		return Negotiation{Decode: decode, Passthrough: true}
	case intent == IntentWebP && decode == CodecWebP:
		// WebP sources are served as-is on the WebP route, resize included.
		return Negotiation{Decode: decode, Output: CodecWebP, Passthrough: true}
	case intent == IntentWebP:
		return Negotiation{Decode: decode, Output: CodecWebP}
	default:
		return Negotiation{Decode: decode, Output: decode}
	}
}
