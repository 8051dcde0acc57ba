// Package fetch opens remote playlists and files over the supported schemes.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Body is an open remote document. Size is -1 when the server did not say.
type Body struct {
	io.ReadCloser
	Size int64
}

// Source opens a fully qualified URL. A response other than 200 is reported
// as a *StatusError with the body already closed.
type Source interface {
	Open(ctx context.Context, target string) (*Body, error)
}

// StatusError is a response that arrived but was not 200 OK.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d (%s) for %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// StatusCode extracts the response status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

var ErrUnsupportedScheme = errors.New("unsupported scheme")

// Mux dispatches to a Source by lower-case URL scheme.
type Mux map[string]Source

func (m Mux) Open(ctx context.Context, target string) (*Body, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", target, err)
	}
	src, ok := m[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("%w %q in %s", ErrUnsupportedScheme, u.Scheme, target)
	}
	return src.Open(ctx, target)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, target string) (*Body, error)

func (f SourceFunc) Open(ctx context.Context, target string) (*Body, error) {
	return f(ctx, target)
}
