package downloader

import (
	"strings"
)

const (
	scoreBase          = 2000
	preferredContainer = "mp4"
	containerBonus     = 30
)

// CandidateFormat is one downloadable rendition reported by a strategy.
type CandidateFormat struct {
	URL       string
	Height    int
	Bitrate   float64 // kbps
	Container string
	HasVideo  bool
	HasAudio  bool
	FormatID  string
}

// Usable reports whether the format has a direct URL.
func (f CandidateFormat) Usable() bool {
	return f.URL != ""
}

// Progressive reports whether the format carries both audio and video in one stream.
func (f CandidateFormat) Progressive() bool {
	return f.Usable() && f.Height > 0 && f.HasVideo && f.HasAudio
}

func scoreFormat(f CandidateFormat, targetHeight int) float64 {
	distance := targetHeight - f.Height
	if distance < 0 {
		distance = -distance
	}
	score := float64(scoreBase-distance) + f.Bitrate
	if strings.EqualFold(f.Container, preferredContainer) {
		score += containerBonus
	}
	return score
}

// PickBestFormat returns the highest scoring progressive format whose height
// does not exceed targetHeight, or nil when none qualifies.
func PickBestFormat(candidates []CandidateFormat, targetHeight int) *CandidateFormat {
	var best *CandidateFormat
	var bestScore float64
	for i := range candidates {
		f := &candidates[i]
		if !f.Progressive() || f.Height > targetHeight {
			continue
		}
		score := scoreFormat(*f, targetHeight)
		if best == nil || score > bestScore || (score == bestScore && betterTie(f, best)) {
			best = f
			bestScore = score
		}
	}
	if best == nil {
		return nil
	}
	picked := *best
	return &picked
}

// betterTie breaks equal scores by container preference, then height.
// Earlier candidates win remaining ties.
func betterTie(candidate, current *CandidateFormat) bool {
	candMP4 := strings.EqualFold(candidate.Container, preferredContainer)
	curMP4 := strings.EqualFold(current.Container, preferredContainer)
	if candMP4 != curMP4 {
		return candMP4
	}
	return candidate.Height > current.Height
}

const preferredAudioContainer = "m4a"

// AudioOnly reports whether the format is a usable stream without video.
func (f CandidateFormat) AudioOnly() bool {
	return f.Usable() && f.HasAudio && !f.HasVideo
}

// PickBestAudio returns the audio-only stream to serve: m4a before any other
// container, then the highest bitrate. Nil when the video has none.
func PickBestAudio(candidates []CandidateFormat) *CandidateFormat {
	var best *CandidateFormat
	for i := range candidates {
		f := &candidates[i]
		if !f.AudioOnly() {
			continue
		}
		if best == nil {
			best = f
			continue
		}
		fM4A := strings.EqualFold(f.Container, preferredAudioContainer)
		bestM4A := strings.EqualFold(best.Container, preferredAudioContainer)
		if fM4A != bestM4A {
			if fM4A {
				best = f
			}
			continue
		}
		if f.Bitrate > best.Bitrate {
			best = f
		}
	}
	if best == nil {
		return nil
	}
	picked := *best
	return &picked
}

// FormatOption describes the best rendition available for one quality.
type FormatOption struct {
	Quality  string `json:"quality"`
	FormatID string `json:"formatId"`
	Ext      string `json:"ext"`
	Height   int    `json:"height"`
}

// AvailableQualities lists, for every supported quality, the format the
// scorer would pick. Qualities with no eligible format are omitted.
func AvailableQualities(candidates []CandidateFormat) []FormatOption {
	options := make([]FormatOption, 0, len(SupportedQualities))
	for _, q := range SupportedQualities {
		best := PickBestFormat(candidates, q.Height())
		if best == nil {
			continue
		}
		ext := best.Container
		if ext == "" {
			ext = preferredContainer
		}
		options = append(options, FormatOption{
			Quality:  q.String(),
			FormatID: best.FormatID,
			Ext:      ext,
			Height:   best.Height,
		})
	}
	return options
}

func mimeToExt(mime string) string {
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	parts := strings.Split(strings.TrimSpace(mime), "/")
	if len(parts) == 2 {
		switch parts[1] {
		case "3gpp":
			return "3gp"
		default:
			return parts[1]
		}
	}
	return ""
}
