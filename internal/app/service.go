package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lvcoi/ytdl-broker/internal/config"
	"github.com/lvcoi/ytdl-broker/internal/downloader"
)

// VideoInfo is the answer to an info lookup.
type VideoInfo struct {
	downloader.VideoMetadata
	AvailableFormats []downloader.FormatOption `json:"availableFormats,omitempty"`
	Source           string                    `json:"-"`
}

// Download is a resolved download link plus the metadata shown alongside it.
type Download struct {
	Metadata         downloader.VideoMetadata
	QualityRequested downloader.Quality
	Format           downloader.MediaFormat
	Resolution       *downloader.ResolutionResult
}

// QualityResolved is the label of the height actually delivered, "audio" for
// audio-only streams, or the requested label when the strategy did not report
// a height.
func (d *Download) QualityResolved() string {
	if d.Format.AudioOnly() {
		return "audio"
	}
	if d.Resolution != nil && d.Resolution.ResolvedHeight > 0 {
		return downloader.QualityForHeight(d.Resolution.ResolvedHeight)
	}
	return d.QualityRequested.String()
}

type Service struct {
	metadata *downloader.MetadataFetcher
	pipeline *downloader.Pipeline
	logger   *log.Logger
}

func NewService(metadata *downloader.MetadataFetcher, pipeline *downloader.Pipeline, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{metadata: metadata, pipeline: pipeline, logger: logger.With("component", "service")}
}

// Build wires the metadata fetcher and the strategy pipeline from config.
// Strategies run in the fixed order extractor, innertube, resolver.
func Build(cfg *config.Config, logger *log.Logger) (*Service, error) {
	if logger == nil {
		logger = log.Default()
	}
	var (
		runner     downloader.ExtractorRunner
		strategies []downloader.Strategy
	)

	if cfg.Extractor.Enabled {
		ytdlp := downloader.NewYtDlpRunner(cfg.Extractor.Binary, cfg.Extractor.Timeout, logger)
		runner = ytdlp
		strategies = append(strategies, downloader.NewExtractorStrategy(ytdlp, logger))
	}

	if cfg.Innertube.Enabled {
		profiles, err := downloader.ParseProfiles(cfg.Innertube.Profiles)
		if err != nil {
			return nil, fmt.Errorf("innertube profiles: %w", err)
		}
		transport, err := downloader.FingerprintTransport(cfg.Innertube.Fingerprint)
		if err != nil {
			return nil, fmt.Errorf("innertube fingerprint: %w", err)
		}
		strategies = append(strategies, downloader.NewInnertubeStrategy(downloader.InnertubeOptions{
			Endpoint:  cfg.Innertube.Endpoint,
			APIKey:    cfg.Innertube.APIKey,
			Profiles:  profiles,
			Timeout:   cfg.Innertube.Timeout,
			Transport: transport,
		}, logger))
	}

	if cfg.Resolver.Enabled {
		strategies = append(strategies, downloader.NewResolverStrategy(downloader.ResolverOptions{
			Mirrors:   cfg.Resolver.Mirrors,
			BaseURL:   cfg.Resolver.BaseURL,
			APIKey:    cfg.Resolver.APIKey,
			UserAgent: cfg.Resolver.UserAgent,
			Timeout:   cfg.Resolver.Timeout,
		}, logger))
	} else {
		logger.Warn("resolver strategy disabled; set resolver.mirrors or resolver.base_url to enable the last fallback")
	}

	if len(strategies) == 0 {
		return nil, fmt.Errorf("no resolution strategy enabled")
	}

	metadata := downloader.NewMetadataFetcher(downloader.MetadataOptions{
		Extractor:      runner,
		OEmbedEndpoint: cfg.Metadata.OEmbedEndpoint,
		Library:        cfg.Metadata.Library,
		PageScrape:     cfg.Metadata.PageScrape,
		Timeout:        cfg.Metadata.Timeout,
	}, logger)

	pipeline := downloader.NewPipeline(cfg.Pipeline.Timeout, logger, strategies...)
	return NewService(metadata, pipeline, logger), nil
}

// Strategies lists the enabled strategies in the order they are tried.
func (s *Service) Strategies() []string {
	return s.pipeline.Strategies()
}

// Info never fails: missing metadata is reported through placeholders.
func (s *Service) Info(ctx context.Context, ref downloader.VideoRef) VideoInfo {
	res := s.metadata.Fetch(ctx, ref)
	formats := downloader.AvailableQualities(res.Formats)
	if len(formats) == 0 {
		formats = nominalFormats()
	}
	return VideoInfo{VideoMetadata: res.Metadata, AvailableFormats: formats, Source: res.Source}
}

// Download fetches metadata and resolves a link. With the extractor enabled
// metadata runs first so its probe feeds the pipeline; otherwise both run
// concurrently and only the resolution can fail the call.
func (s *Service) Download(ctx context.Context, ref downloader.VideoRef, quality downloader.Quality, format downloader.MediaFormat) (*Download, error) {
	if quality == "" {
		quality = downloader.DefaultQuality
	}
	if format == "" {
		format = downloader.FormatVideo
	}
	req := downloader.Request{Ref: ref, Quality: quality, Format: format}

	var meta downloader.MetadataResult
	var resolution *downloader.ResolutionResult

	if s.metadata.UsesExtractor() {
		meta = s.metadata.Fetch(ctx, ref)
		req.Probe = meta.Probe
		res, err := s.pipeline.Resolve(ctx, req)
		if err != nil {
			return nil, err
		}
		resolution = res
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			meta = s.metadata.Fetch(gctx, ref)
			return nil
		})
		g.Go(func() error {
			res, err := s.pipeline.Resolve(gctx, req)
			if err != nil {
				return err
			}
			resolution = res
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("download resolved",
		"video_id", ref.VideoID,
		"metadata_source", meta.Source,
		"format", format,
		"strategy", resolution.Strategy,
	)
	return &Download{
		Metadata:         meta.Metadata,
		QualityRequested: quality,
		Format:           format,
		Resolution:       resolution,
	}, nil
}

// nominalFormats advertises every supported quality when no format list is
// known.
func nominalFormats() []downloader.FormatOption {
	options := make([]downloader.FormatOption, 0, len(downloader.SupportedQualities))
	for _, q := range downloader.SupportedQualities {
		options = append(options, downloader.FormatOption{Quality: q.String(), Ext: "mp4", Height: q.Height()})
	}
	return options
}
