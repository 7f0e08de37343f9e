package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/dunamismax/pixelproxy/internal/pipeline"
)

// writeImage sends a complete body in one write. The media type always
// describes the bytes being sent; an upstream that declared none is sniffed.
func writeImage(w http.ResponseWriter, body []byte, contentType string) {
	if strings.TrimSpace(contentType) == "" {
		contentType = http.DetectContentType(body)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func statusForKind(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindInvalidURL, pipeline.KindInvalidDimensions:
		return http.StatusBadRequest
	case pipeline.KindAccessDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	switch pipeline.KindOf(err) {
	case pipeline.KindInvalidURL:
		return "Invalid URL"
	case pipeline.KindInvalidDimensions:
		return "Invalid dimensions"
	case pipeline.KindAccessDenied:
		return "Access denied"
	case pipeline.KindTransport, pipeline.KindUpstreamStatus:
		return "Error retrieving image: " + err.Error()
	case pipeline.KindDecode:
		return "Error processing image: " + err.Error()
	case pipeline.KindEncode:
		return "Error encoding image: " + err.Error()
	default:
		return "Internal error: " + err.Error()
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := errorMessage(err)
	h := w.Header()
	h.Del("Content-Length")
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
