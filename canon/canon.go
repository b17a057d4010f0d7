// Package canon implements UrlCanonicalizer (§4.2): URL normalization,
// image-likeness detection, and bad-pagination-target rejection.
package canon

import (
	"net/url"
	"regexp"
	"strings"
)

// Canonicalizer resolves relative/protocol-relative URLs against a base and
// classifies them.
type Canonicalizer struct {
	stripQuery      bool
	imageExtensions []string
}

// DefaultImageExtensions matches the spec's configured extension set.
var DefaultImageExtensions = []string{"jpg", "jpeg", "png", "gif", "webp", "svg", "bmp", "tiff", "avif"}

// New returns a Canonicalizer. stripQuery controls whether Canonicalize
// drops the query string from the result.
func New(stripQuery bool, imageExtensions []string) *Canonicalizer {
	if len(imageExtensions) == 0 {
		imageExtensions = DefaultImageExtensions
	}
	return &Canonicalizer{stripQuery: stripQuery, imageExtensions: imageExtensions}
}

var rejectedSchemes = map[string]struct{}{
	"data":       {},
	"mailto":     {},
	"tel":        {},
	"javascript": {},
}

// Canonicalize resolves raw against base and normalizes the result: lower
// case hostname, resolved path, optionally stripped query. Returns ("",
// false) for any URL Canonicalize cannot or should not resolve into a
// fetchable destination (rejected schemes, unparsable input).
func (c *Canonicalizer) Canonicalize(raw, base string) (string, bool) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}

	resolved, err := baseURL.Parse(raw)
	if err != nil {
		return "", false
	}

	scheme := strings.ToLower(resolved.Scheme)
	if _, bad := rejectedSchemes[scheme]; bad {
		return "", false
	}
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	resolved.Host = strings.ToLower(resolved.Host)
	resolved.Fragment = ""
	if c.stripQuery {
		resolved.RawQuery = ""
	}

	return resolved.String(), true
}

// imageWordRe matches the "image"/"photo" keywords LooksLikeImage accepts
// in a path or query. The extension check in LooksLikeImage mixes suffix
// and segment matches, so it also accepts paths like "/jpeg/123" that
// carry no image extension; nothing here validates the MIME type.
var imageWordRe = regexp.MustCompile(`(?i)(image|photo)`)

// LooksLikeImage reports whether the canonical URL appears to reference an
// image by extension or by an "image"/"photo" keyword in path or query.
func (c *Canonicalizer) LooksLikeImage(canonicalURL string) bool {
	u, err := url.Parse(canonicalURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, ext := range c.imageExtensions {
		dotExt := "." + strings.ToLower(ext)
		if strings.HasSuffix(path, dotExt) {
			return true
		}
		if strings.Contains(path, "/"+strings.ToLower(ext)+"/") {
			return true
		}
	}
	if imageWordRe.MatchString(path) || imageWordRe.MatchString(u.RawQuery) {
		return true
	}
	return false
}

// IsBadPaginationTarget reports whether url is unsuitable as a next-page
// target: "#", any form of "javascript:", a hostname-less "null", or a
// path ending in "/null".
func (c *Canonicalizer) IsBadPaginationTarget(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "#" {
		return true
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "javascript:") {
		return true
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return true
	}
	if u.Host == "" && strings.EqualFold(strings.TrimPrefix(u.Path, "/"), "null") {
		return true
	}
	if strings.HasSuffix(strings.ToLower(u.Path), "/null") {
		return true
	}
	return false
}
