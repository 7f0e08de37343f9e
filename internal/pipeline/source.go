package pipeline

import (
	"errors"
	"regexp"
)

var sourcePattern = regexp.MustCompile(`^(https?://[^/]+)(/.*)$`)

var errSourceShape = errors.New("expected scheme://host[:port]/path")

type SourceReference struct {
	Origin string
	Path   string
}

func (s SourceReference) URL() string {
	return s.Origin + s.Path
}

// ParseSource splits the URL tail of a request path into origin and path.
// It never touches the network.
func ParseSource(raw string) (SourceReference, error) {
	m := sourcePattern.FindStringSubmatch(raw)
	if m == nil {
		return SourceReference{}, NewError(KindInvalidURL, "parse source", errSourceShape)
	}
	return SourceReference{Origin: m[1], Path: m[2]}, nil
}
