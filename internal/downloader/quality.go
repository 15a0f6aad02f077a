package downloader

import (
	"fmt"
	"strings"
)

// Quality is one of the closed set of supported video qualities.
type Quality string

const (
	Quality360p  Quality = "360p"
	Quality720p  Quality = "720p"
	Quality1080p Quality = "1080p"
	Quality2160p Quality = "2160p"
)

// DefaultQuality is used when a request omits the quality.
const DefaultQuality = Quality720p

// SupportedQualities lists every quality in ascending order.
var SupportedQualities = []Quality{Quality360p, Quality720p, Quality1080p, Quality2160p}

// ParseQuality accepts a quality label, with "4k" as an alias of 2160p.
// The empty string yields DefaultQuality.
func ParseQuality(raw string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return DefaultQuality, nil
	case "360p":
		return Quality360p, nil
	case "720p":
		return Quality720p, nil
	case "1080p":
		return Quality1080p, nil
	case "2160p", "4k":
		return Quality2160p, nil
	}
	return "", wrapCategory(CategoryInvalidQuality, fmt.Errorf("invalid quality %q: must be one of 360p, 720p, 1080p, 4k", raw))
}

// Height is the target vertical resolution in pixels.
func (q Quality) Height() int {
	switch q {
	case Quality360p:
		return 360
	case Quality720p:
		return 720
	case Quality1080p:
		return 1080
	case Quality2160p:
		return 2160
	}
	return 0
}

// ResolverValue is the quality vocabulary understood by the third-party resolver.
func (q Quality) ResolverValue() string {
	if h := q.Height(); h > 0 {
		return fmt.Sprintf("%d", h)
	}
	return "720"
}

func (q Quality) String() string { return string(q) }

// QualityForHeight labels the height actually delivered, e.g. 480 → "480p".
// A non-positive height yields the empty string.
func QualityForHeight(height int) string {
	if height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dp", height)
}

// MediaFormat selects between a muxed video file and an audio-only stream.
type MediaFormat string

const (
	FormatVideo MediaFormat = "mp4"
	FormatAudio MediaFormat = "mp3"
)

// ParseFormat accepts "mp4" (the default) or "mp3"; "audio" and "m4a" are
// aliases of the audio-only format.
func ParseFormat(raw string) (MediaFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "mp4", "video":
		return FormatVideo, nil
	case "mp3", "m4a", "audio":
		return FormatAudio, nil
	}
	return "", wrapCategory(CategoryInvalidQuality, fmt.Errorf("invalid format %q: must be mp4 or mp3", raw))
}

// AudioOnly reports whether the format asks for an audio stream.
func (f MediaFormat) AudioOnly() bool { return f == FormatAudio }

func (f MediaFormat) String() string { return string(f) }
