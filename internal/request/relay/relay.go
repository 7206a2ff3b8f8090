package relay

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Destination names the logical folder an upload belongs to.
type Destination string

const (
	DestBackground Destination = "background"
	DestDraft      Destination = "draft"
	DestOutput     Destination = "output"
	DestSummary    Destination = "summary"
)

// Prefixes maps destinations to object key prefixes.
type Prefixes map[Destination]string

// DefaultPrefixes is used when configuration leaves the prefixes empty.
var DefaultPrefixes = Prefixes{
	DestBackground: "requests/background",
	DestDraft:      "requests/draft",
	DestOutput:     "requests/output",
	DestSummary:    "requests/summary",
}

// Prefix returns the key prefix for d, falling back to DefaultPrefixes.
func (p Prefixes) Prefix(d Destination) (string, error) {
	if v, ok := p[d]; ok && v != "" {
		return strings.Trim(v, "/"), nil
	}
	if v, ok := DefaultPrefixes[d]; ok {
		return v, nil
	}
	return "", fmt.Errorf("unknown destination %q", d)
}

// Upload is one file to store.
type Upload struct {
	Reader      io.Reader
	Size        int64
	Filename    string
	ContentType string
}

// Relay stores files and returns a shareable link. Every call creates a new
// object; there is no dedup and no versioning.
type Relay interface {
	Store(ctx context.Context, up Upload, dest Destination) (string, error)
}

func joinURL(base string, parts ...string) string {
	out := strings.TrimRight(base, "/")
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}
		out += "/" + p
	}
	return out
}
