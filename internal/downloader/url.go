package downloader

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var videoIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ErrUnsupportedShape reports a URL on an allowed host that carries no video ID.
var ErrUnsupportedShape = errors.New("unsupported YouTube URL format")

var allowedHosts = map[string]struct{}{
	"youtube.com":       {},
	"www.youtube.com":   {},
	"m.youtube.com":     {},
	"music.youtube.com": {},
	"youtu.be":          {},
	"www.youtu.be":      {},
}

// VideoRef identifies one validated video. It is immutable once built.
type VideoRef struct {
	InputURL     string
	CanonicalURL string
	VideoID      string
}

// Validate parses raw, enforces the host allowlist and extracts the video ID.
func Validate(raw string) (VideoRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return VideoRef{}, wrapCategory(CategoryInvalidURL, errors.New("URL is required"))
	}
	parsed, err := validateInputURL(raw)
	if err != nil {
		return VideoRef{}, err
	}
	if !isAllowedHost(parsed) {
		return VideoRef{}, wrapCategory(CategoryInvalidURL, fmt.Errorf("not a YouTube URL: %s", parsed.Hostname()))
	}
	id := ExtractVideoID(parsed)
	if id == "" {
		return VideoRef{}, wrapCategory(CategoryInvalidURL, ErrUnsupportedShape)
	}
	return VideoRef{
		InputURL:     parsed.String(),
		CanonicalURL: watchURLForID(id),
		VideoID:      id,
	}, nil
}

func validateInputURL(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, wrapCategory(CategoryInvalidURL, fmt.Errorf("invalid URL: %w", err))
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, wrapCategory(CategoryInvalidURL, fmt.Errorf("invalid URL: missing scheme or host"))
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return nil, wrapCategory(CategoryInvalidURL, fmt.Errorf("unsupported URL scheme: %s", parsed.Scheme))
	}
	return parsed, nil
}

func isAllowedHost(parsed *url.URL) bool {
	_, ok := allowedHosts[strings.ToLower(parsed.Hostname())]
	return ok
}

// normalizeHostname returns the normalized hostname from a URL:
// lowercase, with "www." prefix removed, and port stripped.
func normalizeHostname(parsed *url.URL) string {
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// ExtractVideoID returns the 11-character video ID carried by u, or "" when
// none of the known URL shapes match.
func ExtractVideoID(u *url.URL) string {
	if u == nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if normalizeHostname(u) == "youtu.be" {
		return matchID(segments[0])
	}

	if id := matchID(u.Query().Get("v")); id != "" {
		return id
	}
	if len(segments) >= 2 {
		switch segments[0] {
		case "shorts", "embed", "v", "live":
			return matchID(segments[1])
		}
	}
	return ""
}

func matchID(candidate string) string {
	if videoIDRegex.MatchString(candidate) {
		return candidate
	}
	return ""
}

func watchURLForID(id string) string {
	if id == "" {
		return ""
	}
	return "https://www.youtube.com/watch?v=" + id
}

// ThumbnailURL is the predictable CDN thumbnail for a video.
func ThumbnailURL(id string) string {
	return "https://img.youtube.com/vi/" + id + "/hqdefault.jpg"
}
