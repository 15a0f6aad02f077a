package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/wader/goutubedl"
)

const defaultExtractorTimeout = 25 * time.Second

var (
	errNoEligibleFormat = wrapCategory(CategoryUnsupported, errors.New("no progressive format at or below the requested height"))
	errNoAudioFormat    = wrapCategory(CategoryUnsupported, errors.New("no audio-only format"))
	errAudioUnsupported = wrapCategory(CategoryUnsupported, errors.New("audio-only downloads are served by the extractor only"))
)

// ExtractorInfo is the subset of yt-dlp's --dump-single-json output the
// broker relies on.
type ExtractorInfo struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Uploader   string            `json:"uploader"`
	Channel    string            `json:"channel"`
	Thumbnail  string            `json:"thumbnail"`
	WebpageURL string            `json:"webpage_url"`
	Formats    []ExtractorFormat `json:"formats"`
}

type ExtractorFormat struct {
	FormatID string  `json:"format_id"`
	URL      string  `json:"url"`
	Ext      string  `json:"ext"`
	Height   float64 `json:"height"`
	TBR      float64 `json:"tbr"`
	VCodec   string  `json:"vcodec"`
	ACodec   string  `json:"acodec"`
}

// Candidates converts the extractor's formats for the scorer. A codec of
// "none" marks a missing stream; an absent codec field is treated as present.
func (i *ExtractorInfo) Candidates() []CandidateFormat {
	if i == nil {
		return nil
	}
	out := make([]CandidateFormat, 0, len(i.Formats))
	for _, f := range i.Formats {
		out = append(out, CandidateFormat{
			URL:       f.URL,
			Height:    int(f.Height),
			Bitrate:   f.TBR,
			Container: f.Ext,
			HasVideo:  f.VCodec != "none",
			HasAudio:  f.ACodec != "none",
			FormatID:  f.FormatID,
		})
	}
	return out
}

// Author returns the uploader, falling back to the channel name.
func (i *ExtractorInfo) Author() string {
	if i == nil {
		return ""
	}
	if strings.TrimSpace(i.Uploader) != "" {
		return i.Uploader
	}
	return i.Channel
}

func parseExtractorJSON(raw []byte) (*ExtractorInfo, error) {
	var info ExtractorInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, wrapCategory(CategoryUnsupported, fmt.Errorf("decoding extractor output: %w", err))
	}
	return &info, nil
}

// ExtractorRunner runs the local extractor once for a watch URL.
type ExtractorRunner interface {
	Probe(ctx context.Context, watchURL string) (*ExtractorInfo, error)
}

// YtDlpRunner invokes the yt-dlp binary through goutubedl.
type YtDlpRunner struct {
	binary  string
	timeout time.Duration
	logger  *log.Logger
}

// NewYtDlpRunner resolves the binary path: explicit value, then ./bin/yt-dlp,
// then yt-dlp on PATH. goutubedl reads the path from a package variable, so
// the last runner constructed wins process-wide.
func NewYtDlpRunner(binary string, timeout time.Duration, logger *log.Logger) *YtDlpRunner {
	if timeout <= 0 {
		timeout = defaultExtractorTimeout
	}
	r := &YtDlpRunner{
		binary:  resolveExtractorBinary(binary),
		timeout: timeout,
		logger:  componentLogger(logger, "extractor"),
	}
	goutubedl.Path = r.binary
	return r
}

func resolveExtractorBinary(configured string) string {
	if strings.TrimSpace(configured) != "" {
		return configured
	}
	if info, err := os.Stat("bin/yt-dlp"); err == nil && !info.IsDir() {
		return "./bin/yt-dlp"
	}
	return "yt-dlp"
}

func (r *YtDlpRunner) Binary() string { return r.binary }

func (r *YtDlpRunner) Probe(ctx context.Context, watchURL string) (*ExtractorInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := time.Now()
	result, err := goutubedl.New(ctx, watchURL, goutubedl.Options{
		Type: goutubedl.TypeSingle,
	})
	if err != nil {
		switch ctxErr := ctx.Err(); {
		case errors.Is(ctxErr, context.DeadlineExceeded):
			return nil, wrapCategory(CategoryTimeout, fmt.Errorf("extractor timed out after %s: %w", r.timeout, ctxErr))
		case ctxErr != nil:
			return nil, wrapCategory(CategoryCanceled, fmt.Errorf("extractor: %w", ctxErr))
		}
		return nil, wrapCategory(CategoryUnsupported, fmt.Errorf("extractor: %w", err))
	}
	r.logger.Debug("extractor probe finished", "url", watchURL, "elapsed", time.Since(started))
	return parseExtractorJSON(result.RawJSON)
}

// ExtractorStrategy resolves through the local extractor and the format scorer.
type ExtractorStrategy struct {
	runner ExtractorRunner
	logger *log.Logger
}

func NewExtractorStrategy(runner ExtractorRunner, logger *log.Logger) *ExtractorStrategy {
	return &ExtractorStrategy{runner: runner, logger: componentLogger(logger, "extractor")}
}

func (s *ExtractorStrategy) Name() string { return "extractor" }

func (s *ExtractorStrategy) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	var info *ExtractorInfo
	if req.Probe != nil {
		if req.Probe.Err != nil {
			return nil, req.Probe.Err
		}
		s.logger.Debug("reusing metadata probe", "video_id", req.Ref.VideoID)
		info = req.Probe.Info
	} else {
		var err error
		info, err = s.runner.Probe(ctx, req.Ref.CanonicalURL)
		if err != nil {
			return nil, err
		}
	}

	if req.Format.AudioOnly() {
		audio := PickBestAudio(info.Candidates())
		if audio == nil {
			return nil, errNoAudioFormat
		}
		return &Resolution{URL: audio.URL, FormatID: audio.FormatID, Container: audio.Container}, nil
	}

	best := PickBestFormat(info.Candidates(), req.Quality.Height())
	if best == nil {
		return nil, errNoEligibleFormat
	}
	return &Resolution{
		URL:       best.URL,
		Height:    best.Height,
		FormatID:  best.FormatID,
		Container: best.Container,
	}, nil
}
