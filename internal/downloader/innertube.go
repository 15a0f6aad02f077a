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
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	defaultInnertubeEndpoint = "https://www.youtube.com/youtubei/v1/player"
	defaultInnertubeTimeout  = 4 * time.Second
	maxPlayerResponseBytes   = 8 << 20
)

// ProfileKind enumerates the client identities the player API is asked as.
type ProfileKind int

const (
	ProfileIOS ProfileKind = iota
	ProfileAndroid
	ProfileTVEmbed
	ProfileMobileWeb
)

type contextField struct {
	key   string
	value any
}

// ClientProfile is an immutable description of one emulated client.
type ClientProfile struct {
	kind          ProfileKind
	name          string
	clientName    string
	clientVersion string
	userAgent     string
	// clientNameHeader is the numeric X-Youtube-Client-Name; empty when the
	// client does not send one.
	clientNameHeader string
	extraContext     []contextField
	embedURL         string
}

func (p ClientProfile) Kind() ProfileKind     { return p.kind }
func (p ClientProfile) Name() string          { return p.name }
func (p ClientProfile) ClientName() string    { return p.clientName }
func (p ClientProfile) ClientVersion() string { return p.clientVersion }
func (p ClientProfile) UserAgent() string     { return p.userAgent }

// Profile returns the canonical profile for kind.
func Profile(kind ProfileKind) ClientProfile {
	switch kind {
	case ProfileIOS:
		return ClientProfile{
			kind:             ProfileIOS,
			name:             "IOS",
			clientName:       "IOS",
			clientVersion:    "19.29.1",
			userAgent:        "com.google.ios.youtube/19.29.1 (iPhone16,2; U; CPU iOS 17_5_1 like Mac OS X;)",
			clientNameHeader: "5",
			extraContext: []contextField{
				{"deviceMake", "Apple"},
				{"deviceModel", "iPhone16,2"},
				{"osName", "iPhone"},
				{"osVersion", "17.5.1.21F90"},
			},
		}
	case ProfileAndroid:
		return ClientProfile{
			kind:             ProfileAndroid,
			name:             "ANDROID",
			clientName:       "ANDROID",
			clientVersion:    "19.09.37",
			userAgent:        "com.google.android.youtube/19.09.37 (Linux; U; Android 11) gzip",
			clientNameHeader: "3",
			extraContext: []contextField{
				{"androidSdkVersion", 30},
				{"osName", "Android"},
				{"osVersion", "11"},
			},
		}
	case ProfileTVEmbed:
		return ClientProfile{
			kind:          ProfileTVEmbed,
			name:          "TV_EMBED",
			clientName:    "TVHTML5_SIMPLY_EMBEDDED_PLAYER",
			clientVersion: "2.0",
			userAgent:     "Mozilla/5.0 (SMART-TV; LINUX; Tizen 6.5) AppleWebKit/537.36 (KHTML, like Gecko) 85.0.4183.93/6.5 TV Safari/537.36",
			embedURL:      "https://www.youtube.com",
		}
	default:
		return ClientProfile{
			kind:          ProfileMobileWeb,
			name:          "MWEB",
			clientName:    "MWEB",
			clientVersion: "2.20240304.08.00",
			userAgent:     "Mozilla/5.0 (Linux; Android 11; Pixel 5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
		}
	}
}

// DefaultProfiles is the order profiles are tried in.
func DefaultProfiles() []ClientProfile {
	return []ClientProfile{
		Profile(ProfileIOS),
		Profile(ProfileAndroid),
		Profile(ProfileTVEmbed),
		Profile(ProfileMobileWeb),
	}
}

// ParseProfiles maps config names (ios, android, tv_embed, mweb) to profiles,
// keeping the given order.
func ParseProfiles(names []string) ([]ClientProfile, error) {
	profiles := make([]ClientProfile, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "ios":
			profiles = append(profiles, Profile(ProfileIOS))
		case "android":
			profiles = append(profiles, Profile(ProfileAndroid))
		case "tv_embed", "tv":
			profiles = append(profiles, Profile(ProfileTVEmbed))
		case "mweb":
			profiles = append(profiles, Profile(ProfileMobileWeb))
		default:
			return nil, fmt.Errorf("unknown innertube profile %q", name)
		}
	}
	return profiles, nil
}

func (p ClientProfile) requestBody(videoID string) ([]byte, error) {
	client := map[string]any{
		"clientName":    p.clientName,
		"clientVersion": p.clientVersion,
		"hl":            "en",
		"gl":            "US",
	}
	for _, f := range p.extraContext {
		client[f.key] = f.value
	}
	ctx := map[string]any{"client": client}
	if p.embedURL != "" {
		ctx["thirdParty"] = map[string]string{"embedUrl": p.embedURL}
	}
	return json.Marshal(map[string]any{
		"videoId":        videoID,
		"context":        ctx,
		"contentCheckOk": true,
		"racyCheckOk":    true,
	})
}

type playerResponse struct {
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	StreamingData struct {
		Formats         []playerFormat `json:"formats"`
		AdaptiveFormats []playerFormat `json:"adaptiveFormats"`
	} `json:"streamingData"`
}

type playerFormat struct {
	Itag     int    `json:"itag"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Height   int    `json:"height"`
	Bitrate  int    `json:"bitrate"`
}

// PlayabilityError reports a player response that refused playback.
type PlayabilityError struct {
	Client string
	Status string
	Reason string
}

func (e *PlayabilityError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: playability %s", e.Client, e.Status)
	}
	return fmt.Sprintf("%s: playability %s: %s", e.Client, e.Status, e.Reason)
}

// InnertubeStrategy asks the player API directly while impersonating each
// client profile in turn.
type InnertubeStrategy struct {
	client   *http.Client
	endpoint string
	apiKey   string
	profiles []ClientProfile
	timeout  time.Duration
	logger   *log.Logger
}

type InnertubeOptions struct {
	Endpoint string
	APIKey   string
	Profiles []ClientProfile
	Timeout  time.Duration
	// Transport overrides the HTTP transport, e.g. a uTLS fingerprint.
	Transport http.RoundTripper
}

func NewInnertubeStrategy(opts InnertubeOptions, logger *log.Logger) *InnertubeStrategy {
	if opts.Endpoint == "" {
		opts.Endpoint = defaultInnertubeEndpoint
	}
	if len(opts.Profiles) == 0 {
		opts.Profiles = DefaultProfiles()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultInnertubeTimeout
	}
	transport := opts.Transport
	if transport == nil {
		transport = sharedTransport
	}
	return &InnertubeStrategy{
		client:   &http.Client{Transport: transport},
		endpoint: opts.Endpoint,
		apiKey:   opts.APIKey,
		profiles: append([]ClientProfile(nil), opts.Profiles...),
		timeout:  opts.Timeout,
		logger:   componentLogger(logger, "innertube"),
	}
}

func (s *InnertubeStrategy) Name() string { return "innertube" }

func (s *InnertubeStrategy) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	if req.Format.AudioOnly() {
		return nil, errAudioUnsupported
	}
	var errs []error
	for _, profile := range s.profiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.attempt(ctx, profile, req.Ref.VideoID, req.Quality.Height())
		if err == nil {
			s.logger.Debug("profile resolved", "profile", profile.name, "height", res.Height)
			return res, nil
		}
		s.logger.Debug("profile failed", "profile", profile.name, "err", err)
		errs = append(errs, err)
	}
	return nil, wrapCategory(CategoryUnsupported, fmt.Errorf("all client profiles failed: %w", errors.Join(errs...)))
}

func (s *InnertubeStrategy) playerURL() string {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return s.endpoint
	}
	q := u.Query()
	q.Set("prettyPrint", "false")
	if s.apiKey != "" {
		q.Set("key", s.apiKey)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *InnertubeStrategy) attempt(ctx context.Context, profile ClientProfile, videoID string, target int) (*Resolution, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := profile.requestBody(videoID)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.playerURL(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", profile.userAgent)
	if profile.clientNameHeader != "" {
		httpReq.Header.Set("X-Youtube-Client-Name", profile.clientNameHeader)
		httpReq.Header.Set("X-Youtube-Client-Version", profile.clientVersion)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, wrapCategory(CategoryNetwork, fmt.Errorf("%s: %w", profile.name, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, wrapCategory(CategoryNetwork, fmt.Errorf("%s: unexpected status %d", profile.name, resp.StatusCode))
	}

	var player playerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPlayerResponseBytes)).Decode(&player); err != nil {
		return nil, fmt.Errorf("%s: decoding player response: %w", profile.name, err)
	}

	status := player.PlayabilityStatus.Status
	if status == "LOGIN_REQUIRED" || status == "ERROR" {
		return nil, wrapCategory(CategoryRestricted, &PlayabilityError{
			Client: profile.name,
			Status: status,
			Reason: player.PlayabilityStatus.Reason,
		})
	}
	if status != "" && status != "OK" {
		// Other statuses can still carry usable formats.
		s.logger.Debug("non-OK playability", "profile", profile.name, "status", status)
	}

	if best := closestFormat(player.StreamingData.Formats, target, false); best != nil {
		return best, nil
	}
	if best := closestFormat(player.StreamingData.AdaptiveFormats, target, true); best != nil {
		s.logger.Debug("using video-only adaptive format", "profile", profile.name, "height", best.Height)
		return best, nil
	}
	return nil, wrapCategory(CategoryUnsupported, fmt.Errorf("%s: no direct format URLs", profile.name))
}

// closestFormat picks the format whose height is nearest target. Unlike the
// scorer it may return a format taller than target.
func closestFormat(formats []playerFormat, target int, videoOnly bool) *Resolution {
	eligible := make([]playerFormat, 0, len(formats))
	for _, f := range formats {
		if f.URL == "" || f.Height == 0 {
			continue
		}
		if videoOnly && !strings.HasPrefix(f.MimeType, "video/") {
			continue
		}
		eligible = append(eligible, f)
	}
	if len(eligible) == 0 {
		return nil
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return absInt(eligible[i].Height-target) < absInt(eligible[j].Height-target)
	})
	best := eligible[0]
	return &Resolution{
		URL:       best.URL,
		Height:    best.Height,
		FormatID:  fmt.Sprintf("%d", best.Itag),
		Container: mimeToExt(best.MimeType),
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
