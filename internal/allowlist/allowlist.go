// Package allowlist decides which remote origins the proxy may fetch from.
package allowlist

import (
	"errors"
	"strings"
)

var ErrEmpty = errors.New("allowlist has no domains")

// Policy is built once at startup and never mutated, so it is safe to share
// between request goroutines without locking.
type Policy struct {
	domains []string
}

// New trims and deduplicates domains. Empty entries are dropped because an
// empty string is a substring of every origin.
func New(domains []string) (*Policy, error) {
	seen := make(map[string]struct{}, len(domains))
	kept := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		kept = append(kept, d)
	}
	if len(kept) == 0 {
		return nil, ErrEmpty
	}
	return &Policy{domains: kept}, nil
}

// IsAllowed reports whether any configured domain occurs anywhere in origin.
// Matching is substring containment, not a host comparison: "example.com"
// also admits "http://cdn.example.com.evil.org".
func (p *Policy) IsAllowed(origin string) bool {
	for _, d := range p.domains {
		if strings.Contains(origin, d) {
			return true
		}
	}
	return false
}

func (p *Policy) Domains() []string {
	out := make([]string, len(p.domains))
	copy(out, p.domains)
	return out
}

// SplitList parses the comma separated allowed_domains value.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
