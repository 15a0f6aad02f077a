package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
)

const (
	defaultResolverTimeout   = 6 * time.Second
	defaultResolverUserAgent = "ytdl-broker/1.0"
	maxResolverResponseBytes = 1 << 20
)

// payloadVariant builds one of the request dialects spoken by different
// resolver deployments.
type payloadVariant struct {
	name  string
	build func(watchURL, quality string) map[string]any
}

var payloadVariants = []payloadVariant{
	{
		name: "videoQuality",
		build: func(watchURL, quality string) map[string]any {
			return map[string]any{
				"url":           watchURL,
				"videoQuality":  quality,
				"filenameStyle": "pretty",
				"vCodec":        "h264",
			}
		},
	},
	{
		name: "vQuality",
		build: func(watchURL, quality string) map[string]any {
			return map[string]any{
				"url":             watchURL,
				"vQuality":        quality,
				"filenamePattern": "classic",
				"isAudioOnly":     false,
			}
		},
	},
	{
		name: "quality",
		build: func(watchURL, quality string) map[string]any {
			return map[string]any{
				"url":             watchURL,
				"quality":         quality,
				"audioFormat":     "best",
				"filenamePattern": "classic",
			}
		},
	},
}

type resolverResponse struct {
	Status      string `json:"status"`
	URL         string `json:"url"`
	DownloadURL string `json:"downloadUrl"`
	Data        *struct {
		URL string `json:"url"`
	} `json:"data"`
	Picker []struct {
		URL string `json:"url"`
	} `json:"picker"`
}

// directURL returns the first media URL found, checking url, downloadUrl,
// data.url and then the picker entries.
func (r resolverResponse) directURL() string {
	candidates := []string{r.URL, r.DownloadURL}
	if r.Data != nil {
		candidates = append(candidates, r.Data.URL)
	}
	for _, p := range r.Picker {
		candidates = append(candidates, p.URL)
	}
	for _, c := range candidates {
		if isDirectURL(c) {
			return c
		}
	}
	return ""
}

func isDirectURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

type ResolverOptions struct {
	Mirrors   []string
	BaseURL   string
	APIKey    string
	UserAgent string
	Timeout   time.Duration
}

// ResolverStrategy delegates to a third-party resolver service, walking
// every mirror with every payload variant until one yields a URL.
type ResolverStrategy struct {
	client    *http.Client
	endpoints []string
	apiKey    string
	userAgent string
	timeout   time.Duration
	logger    *log.Logger
}

func NewResolverStrategy(opts ResolverOptions, logger *log.Logger) *ResolverStrategy {
	endpoints := opts.Mirrors
	if opts.BaseURL != "" {
		endpoints = []string{opts.BaseURL}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultResolverTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultResolverUserAgent
	}
	return &ResolverStrategy{
		client:    &http.Client{Transport: sharedTransport},
		endpoints: append([]string(nil), endpoints...),
		apiKey:    opts.APIKey,
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		logger:    componentLogger(logger, "resolver"),
	}
}

func (s *ResolverStrategy) Name() string { return "resolver" }

func (s *ResolverStrategy) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	if req.Format.AudioOnly() {
		return nil, errAudioUnsupported
	}
	quality := req.Quality.ResolverValue()
	var errs []error
	for _, endpoint := range s.endpoints {
		for _, variant := range payloadVariants {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			link, err := s.call(ctx, endpoint, variant.build(req.Ref.CanonicalURL, quality))
			if err == nil {
				s.logger.Debug("resolver answered", "endpoint", endpoint, "variant", variant.name)
				return &Resolution{URL: link}, nil
			}
			s.logger.Debug("resolver attempt failed", "endpoint", endpoint, "variant", variant.name, "err", err)
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil, wrapCategory(CategoryUnsupported, errors.New("no resolver endpoints configured"))
	}
	return nil, wrapCategory(CategoryNetwork, fmt.Errorf("%d resolver attempts failed, last: %w", len(errs), errs[len(errs)-1]))
}

func (s *ResolverStrategy) call(ctx context.Context, endpoint string, payload map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", s.userAgent)
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Api-Key "+s.apiKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", fmt.Errorf("%s: unexpected status %d", endpoint, resp.StatusCode)
	}

	var parsed resolverResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResolverResponseBytes)).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%s: decoding response: %w", endpoint, err)
	}
	link := parsed.directURL()
	if link == "" {
		return "", fmt.Errorf("%s: no url in response (status %q)", endpoint, parsed.Status)
	}
	return link, nil
}
