package downloader

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/kkdai/youtube/v2"
)

const (
	PlaceholderTitle  = "Untitled"
	PlaceholderAuthor = "Unknown"

	defaultMetadataTimeout = 5 * time.Second
)

// VideoMetadata is best-effort descriptive information about a video.
type VideoMetadata struct {
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail,omitempty"`
	Author       string `json:"author"`
	VideoID      string `json:"videoId"`
}

// IsPlaceholder reports whether no tier supplied a real title.
func (m VideoMetadata) IsPlaceholder() bool {
	return m.Title == "" || m.Title == PlaceholderTitle
}

// MetadataResult is the fetcher's answer. Formats and Probe are set only when
// the extractor tier ran.
type MetadataResult struct {
	Metadata VideoMetadata
	Source   string
	Formats  []CandidateFormat
	Probe    *Probe
}

type videoLookup interface {
	GetVideoContext(ctx context.Context, id string) (*youtube.Video, error)
}

type metadataTier struct {
	name  string
	fetch func(ctx context.Context, ref VideoRef) (VideoMetadata, error)
}

type MetadataOptions struct {
	// Extractor enables the rich first tier; nil skips it.
	Extractor      ExtractorRunner
	OEmbedEndpoint string
	Library        bool
	PageScrape     bool
	Timeout        time.Duration
	HTTPClient     *http.Client
}

// MetadataFetcher walks its tiers in order and never fails: when every tier
// errors it returns placeholder values.
type MetadataFetcher struct {
	extractor      ExtractorRunner
	client         *http.Client
	oembedEndpoint string
	library        videoLookup
	pageScrape     bool
	logger         *log.Logger
}

func NewMetadataFetcher(opts MetadataOptions, logger *log.Logger) *MetadataFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultMetadataTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = newHTTPClient(opts.Timeout)
	}
	if opts.OEmbedEndpoint == "" {
		opts.OEmbedEndpoint = defaultOEmbedEndpoint
	}
	f := &MetadataFetcher{
		extractor:      opts.Extractor,
		client:         client,
		oembedEndpoint: opts.OEmbedEndpoint,
		pageScrape:     opts.PageScrape,
		logger:         componentLogger(logger, "metadata"),
	}
	if opts.Library {
		f.library = &youtube.Client{HTTPClient: client}
	}
	return f
}

// UsesExtractor reports whether Fetch runs the extractor, making its probe
// available for reuse by the pipeline.
func (f *MetadataFetcher) UsesExtractor() bool {
	return f.extractor != nil
}

func (f *MetadataFetcher) Fetch(ctx context.Context, ref VideoRef) MetadataResult {
	var probe *Probe
	if f.extractor != nil {
		info, err := f.extractor.Probe(ctx, ref.CanonicalURL)
		probe = &Probe{Info: info, Err: err}
		if err == nil {
			meta := VideoMetadata{
				Title:        info.Title,
				ThumbnailURL: info.Thumbnail,
				Author:       info.Author(),
				VideoID:      ref.VideoID,
			}
			if strings.TrimSpace(meta.Title) != "" {
				return MetadataResult{
					Metadata: fillPlaceholders(meta, ref),
					Source:   "extractor",
					Formats:  info.Candidates(),
					Probe:    probe,
				}
			}
		} else {
			f.logger.Debug("extractor tier failed", "video_id", ref.VideoID, "err", err)
		}
	}

	for _, tier := range f.tiers() {
		if ctx.Err() != nil {
			break
		}
		meta, err := tier.fetch(ctx, ref)
		if err == nil && strings.TrimSpace(meta.Title) == "" {
			err = errors.New("empty title")
		}
		if err != nil {
			f.logger.Debug("metadata tier failed", "tier", tier.name, "video_id", ref.VideoID, "err", err)
			continue
		}
		meta.VideoID = ref.VideoID
		return MetadataResult{Metadata: fillPlaceholders(meta, ref), Source: tier.name, Probe: probe}
	}

	return MetadataResult{
		Metadata: fillPlaceholders(VideoMetadata{VideoID: ref.VideoID}, ref),
		Source:   "placeholder",
		Probe:    probe,
	}
}

func (f *MetadataFetcher) tiers() []metadataTier {
	tiers := []metadataTier{{name: "oembed", fetch: f.fetchOEmbed}}
	if f.library != nil {
		tiers = append(tiers, metadataTier{name: "library", fetch: f.fetchLibrary})
	}
	if f.pageScrape {
		tiers = append(tiers, metadataTier{name: "page", fetch: f.fetchPage})
	}
	return tiers
}

func (f *MetadataFetcher) fetchLibrary(ctx context.Context, ref VideoRef) (VideoMetadata, error) {
	video, err := f.library.GetVideoContext(ctx, ref.VideoID)
	if err != nil {
		return VideoMetadata{}, err
	}
	return VideoMetadata{
		Title:        video.Title,
		Author:       video.Author,
		ThumbnailURL: bestThumbnailURL(video.Thumbnails),
	}, nil
}

func fillPlaceholders(meta VideoMetadata, ref VideoRef) VideoMetadata {
	if strings.TrimSpace(meta.Title) == "" {
		meta.Title = PlaceholderTitle
	}
	if strings.TrimSpace(meta.Author) == "" {
		meta.Author = PlaceholderAuthor
	}
	if meta.ThumbnailURL == "" {
		meta.ThumbnailURL = ThumbnailURL(ref.VideoID)
	}
	meta.VideoID = ref.VideoID
	return meta
}

func bestThumbnailURL(thumbnails youtube.Thumbnails) string {
	bestURL := ""
	var bestArea uint
	for _, thumb := range thumbnails {
		area := thumb.Width * thumb.Height
		if area >= bestArea {
			bestArea = area
			bestURL = thumb.URL
		}
	}
	return bestURL
}
