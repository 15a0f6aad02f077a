package app

import (
	"context"
	"sync"

	"github.com/lvcoi/ytdl-broker/internal/downloader"
)

type Result struct {
	URL      string    `json:"url"`
	Download *Download `json:"-"`
	Err      error     `json:"-"`
	Error    string    `json:"error,omitempty"`
}

// Resolver is the part of Service used by the batch runner.
type Resolver interface {
	Download(ctx context.Context, ref downloader.VideoRef, quality downloader.Quality, format downloader.MediaFormat) (*Download, error)
}

// Run resolves urls with a bounded pool of workers. Results arrive in
// completion order; the exit code is the most severe one seen.
func Run(ctx context.Context, svc Resolver, urls []string, quality downloader.Quality, format downloader.MediaFormat, jobs int) ([]Result, int) {
	if jobs < 1 {
		jobs = 1
	}

	tasks := make(chan string)
	results := make(chan Result, len(urls))

	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case raw, ok := <-tasks:
					if !ok {
						return
					}
					result := resolveOne(ctx, svc, raw, quality, format)
					select {
					case results <- result:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	submitted := 0
submit:
	for _, raw := range urls {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break submit
		case tasks <- raw:
			submitted++
		}
	}
	close(tasks)

	go func() {
		wg.Wait()
		close(results)
	}()

	output := make([]Result, 0, submitted)
	exitCode := 0
	for res := range results {
		output = append(output, res)
		if res.Err != nil {
			if code := downloader.ExitCode(res.Err); code > exitCode {
				exitCode = code
			}
		}
	}

	// Interrupted before every URL was handled.
	if ctx.Err() != nil && len(output) < len(urls) && exitCode == 0 {
		exitCode = 130
	}
	return output, exitCode
}

func resolveOne(ctx context.Context, svc Resolver, raw string, quality downloader.Quality, format downloader.MediaFormat) Result {
	result := Result{URL: raw}
	ref, err := downloader.Validate(raw)
	if err == nil {
		result.Download, err = svc.Download(ctx, ref, quality, format)
	}
	if err != nil {
		result.Err = err
		result.Error = err.Error()
	}
	return result
}
