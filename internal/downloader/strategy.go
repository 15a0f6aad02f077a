package downloader

import (
	"context"
)

// Strategy is one way of turning a video reference into a direct media URL.
// Every failure is returned as an error; a nil error always carries a
// non-nil Resolution with a URL.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, req Request) (*Resolution, error)
}

// Request is the input shared by every strategy for one resolution.
type Request struct {
	Ref     VideoRef
	Quality Quality
	// Format defaults to FormatVideo. Only the extractor serves FormatAudio.
	Format MediaFormat
	// Probe carries an extractor run already performed for this request,
	// so the extractor strategy does not spawn a second process.
	Probe *Probe
}

// Probe is the outcome of one extractor invocation.
type Probe struct {
	Info *ExtractorInfo
	Err  error
}

// Resolution is a single strategy's answer.
type Resolution struct {
	URL       string
	Height    int
	FormatID  string
	Container string
}

// ResolutionResult is the pipeline's successful output.
type ResolutionResult struct {
	DownloadURL    string `json:"downloadUrl"`
	ResolvedHeight int    `json:"resolvedHeight,omitempty"`
	FormatID       string `json:"formatId,omitempty"`
	Container      string `json:"container,omitempty"`
	Strategy       string `json:"strategy"`
}
