// Package locator turns configured server addresses and playlist entries into
// fetchable URLs and local file names.
package locator

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

var (
	ErrInvalidServer = errors.New("invalid download server")
	ErrNoBase        = errors.New("a fully qualified url is required when DownloadServer is empty")
	ErrNoBasename    = errors.New("entry has no file name")
)

var absoluteSchemes = []string{"http://", "https://", "s3://"}

// IsAbsolute reports whether loc carries its own scheme and bypasses the base.
func IsAbsolute(loc string) bool {
	lower := strings.ToLower(strings.TrimSpace(loc))
	for _, scheme := range absoluteSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

// ParseBase validates the configured download server. An empty value yields a
// nil base; every entry must then be absolute.
func ParseBase(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidServer, raw, err)
	}
	if !IsAbsolute(raw) {
		return nil, fmt.Errorf("%w %q: scheme must be http, https or s3", ErrInvalidServer, raw)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("%w %q: missing host", ErrInvalidServer, raw)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
		base.RawPath = ""
	}
	return base, nil
}

// Resolve returns loc verbatim when absolute, otherwise loc joined onto the
// base path with exactly one separator.
func Resolve(base *url.URL, loc string) (string, error) {
	loc = strings.TrimSpace(loc)
	if IsAbsolute(loc) {
		return loc, nil
	}
	if base == nil {
		return "", fmt.Errorf("%w: %q", ErrNoBase, loc)
	}

	raw, query := splitQuery(loc)
	rel := raw
	if unescaped, err := url.PathUnescape(raw); err == nil {
		rel = unescaped
	}

	// RawPath keeps escapes such as %2F as written; url.URL ignores it when it
	// does not encode Path.
	resolved := *base
	resolved.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(rel, "/")
	resolved.RawPath = strings.TrimRight(base.EscapedPath(), "/") + "/" + strings.TrimLeft(raw, "/")
	resolved.Fragment = ""
	if query != "" {
		resolved.RawQuery = query
	}
	return resolved.String(), nil
}

// Basename is the final path segment of loc, used as the cache file name.
func Basename(loc string) (string, error) {
	p := strings.TrimSpace(loc)
	if IsAbsolute(p) {
		u, err := url.Parse(p)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrNoBasename, loc, err)
		}
		p = u.Path
	} else {
		p, _ = splitQuery(p)
		if unescaped, err := url.PathUnescape(p); err == nil {
			p = unescaped
		}
	}

	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasSuffix(p, "/") {
		return "", fmt.Errorf("%w: %q", ErrNoBasename, loc)
	}
	name := path.Base(p)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", fmt.Errorf("%w: %q", ErrNoBasename, loc)
	}
	return name, nil
}

func splitQuery(loc string) (string, string) {
	if i := strings.IndexByte(loc, '#'); i >= 0 {
		loc = loc[:i]
	}
	if i := strings.IndexByte(loc, '?'); i >= 0 {
		return loc[:i], loc[i+1:]
	}
	return loc, ""
}
