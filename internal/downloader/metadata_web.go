package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultOEmbedEndpoint = "https://www.youtube.com/oembed"
	maxPageBytes          = 2 * 1024 * 1024
)

type oEmbedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

func (f *MetadataFetcher) fetchOEmbed(ctx context.Context, ref VideoRef) (VideoMetadata, error) {
	endpoint, err := url.Parse(f.oembedEndpoint)
	if err != nil {
		return VideoMetadata{}, err
	}
	q := endpoint.Query()
	q.Set("url", ref.CanonicalURL)
	q.Set("format", "json")
	endpoint.RawQuery = q.Encode()

	resp, err := f.get(ctx, endpoint.String())
	if err != nil {
		return VideoMetadata{}, err
	}
	defer resp.Body.Close()

	var payload oEmbedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPageBytes)).Decode(&payload); err != nil {
		return VideoMetadata{}, fmt.Errorf("decoding oembed: %w", err)
	}
	// The oEmbed thumbnail is ignored; the CDN URL keyed by ID is stable.
	return VideoMetadata{
		Title:        strings.TrimSpace(payload.Title),
		Author:       strings.TrimSpace(payload.AuthorName),
		ThumbnailURL: ThumbnailURL(ref.VideoID),
	}, nil
}

func (f *MetadataFetcher) fetchPage(ctx context.Context, ref VideoRef) (VideoMetadata, error) {
	resp, err := f.get(ctx, ref.CanonicalURL)
	if err != nil {
		return VideoMetadata{}, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return VideoMetadata{}, fmt.Errorf("parsing watch page: %w", err)
	}

	title := stringsOrFallback(
		metaContent(doc, `meta[property="og:title"]`),
		metaContent(doc, `meta[name="twitter:title"]`),
		strings.TrimSuffix(strings.TrimSpace(doc.Find("title").First().Text()), " - YouTube"),
	)
	author := stringsOrFallback(
		metaContent(doc, `span[itemprop="author"] link[itemprop="name"]`),
		metaContent(doc, `meta[name="author"]`),
	)
	return VideoMetadata{
		Title:        strings.TrimSpace(title),
		Author:       strings.TrimSpace(author),
		ThumbnailURL: metaContent(doc, `meta[property="og:image"]`),
	}, nil
}

func (f *MetadataFetcher) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp, nil
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

func stringsOrFallback(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
