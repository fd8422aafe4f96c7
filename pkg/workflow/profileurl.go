package workflow

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidProfileURL is returned for URLs that do not name a single
// profile.
var ErrInvalidProfileURL = errors.New("not a profile URL")

// reservedRoutes are first path segments of the web client that are not
// usernames.
var reservedRoutes = map[string]bool{
	"settings":      true,
	"compose":       true,
	"search":        true,
	"notifications": true,
	"messages":      true,
	"inbox":         true,
	"explore":       true,
	"home":          true,
	"login":         true,
	"signup":        true,
	"bookmarks":     true,
	"channels":      true,
	"downloads":     true,
	"privacy":       true,
	"terms":         true,
}

// ParseProfileURL validates raw as a profile URL and returns it in canonical
// form (scheme://host/username). Bare domains, multi-segment paths and app
// routes are rejected.
func ParseProfileURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidProfileURL, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q: missing scheme or host", ErrInvalidProfileURL, raw)
	}

	username, ok := profileSegment(u.Path)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidProfileURL, raw)
	}
	return u.Scheme + "://" + u.Host + "/" + username, nil
}

// profileSegment returns the username of a single-segment profile path.
func profileSegment(path string) (string, bool) {
	segment := strings.Trim(path, "/")
	if segment == "" || strings.Contains(segment, "/") {
		return "", false
	}
	if strings.HasPrefix(segment, "~") {
		return "", false
	}
	if reservedRoutes[strings.ToLower(segment)] {
		return "", false
	}
	return segment, true
}

// ProfileURLs resolves hrefs against base and keeps the unique profile URLs on
// base's host, in first-seen order.
func ProfileURLs(base string, hrefs []string) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	for _, href := range hrefs {
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			continue
		}
		abs := baseURL.ResolveReference(ref)
		if !strings.EqualFold(abs.Host, baseURL.Host) {
			continue
		}
		profile, err := ParseProfileURL(abs.Scheme + "://" + abs.Host + abs.Path)
		if err != nil || seen[profile] {
			continue
		}
		seen[profile] = true
		out = append(out, profile)
	}
	return out
}
