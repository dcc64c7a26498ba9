package task

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// DefaultPriority is assigned to requests that do not ask for one. The
// engine's scheduler serves higher values first.
const DefaultPriority = 5

// ErrInvalidRequest is the root of all request validation failures.
// Callers can errors.Is against it to distinguish bad input from engine
// trouble.
var ErrInvalidRequest = errors.New("invalid download request")

// Request describes a transfer to hand to the engine.
type Request struct {
	URL              string `json:"url"`
	Destination      string `json:"destination"`
	Name             string `json:"name,omitempty"`
	Provider         string `json:"provider,omitempty"`
	Priority         int    `json:"priority,omitempty"`
	ExpectedChecksum string `json:"expectedChecksum,omitempty"`
}

// Validate checks the request shape. Validation failures are surfaced to
// the caller immediately and never retried.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}

	u, err := url.Parse(r.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: malformed url %q", ErrInvalidRequest, r.URL)
	}

	if strings.TrimSpace(r.Destination) == "" {
		return fmt.Errorf("%w: destination is required", ErrInvalidRequest)
	}

	return nil
}

// Normalize fills the defaulted fields: name from the URL when unset,
// mid-range priority when unset.
func (r *Request) Normalize() {
	if r.Name == "" {
		r.Name = NameFromURL(r.URL)
	}

	if r.Priority == 0 {
		r.Priority = DefaultPriority
	}
}

// NameFromURL derives a display name from the last path segment of a URL,
// falling back to the host when the path is empty.
func NameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return u.Host
	}

	return name
}
