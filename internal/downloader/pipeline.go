package downloader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

const defaultPipelineTimeout = 60 * time.Second

// Pipeline runs strategies strictly in order and stops at the first success.
type Pipeline struct {
	strategies []Strategy
	timeout    time.Duration
	logger     *log.Logger
}

func NewPipeline(timeout time.Duration, logger *log.Logger, strategies ...Strategy) *Pipeline {
	if timeout <= 0 {
		timeout = defaultPipelineTimeout
	}
	return &Pipeline{
		strategies: append([]Strategy(nil), strategies...),
		timeout:    timeout,
		logger:     componentLogger(logger, "pipeline"),
	}
}

// Strategies returns the names of the configured strategies in order.
func (p *Pipeline) Strategies() []string {
	names := make([]string, 0, len(p.strategies))
	for _, s := range p.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Resolve returns the first successful strategy's URL. When every strategy
// fails the error is a *ResolutionError; a pipeline deadline yields a
// timeout-category error and caller cancellation a canceled one.
func (p *Pipeline) Resolve(ctx context.Context, req Request) (*ResolutionResult, error) {
	if req.Quality == "" {
		req.Quality = DefaultQuality
	}
	if req.Format == "" {
		req.Format = FormatVideo
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	attempts := make([]Attempt, 0, len(p.strategies))
	for _, strategy := range p.strategies {
		if err := p.interrupted(ctx, attempts); err != nil {
			return nil, err
		}

		started := time.Now()
		res, err := strategy.Resolve(ctx, req)
		if err == nil && (res == nil || res.URL == "") {
			err = errors.New("strategy returned no url")
		}
		if err != nil {
			p.logger.Debug("strategy failed",
				"strategy", strategy.Name(),
				"video_id", req.Ref.VideoID,
				"elapsed", time.Since(started),
				"err", err,
			)
			attempts = append(attempts, Attempt{Strategy: strategy.Name(), Err: err})
			continue
		}

		p.logger.Info("resolved download url",
			"strategy", strategy.Name(),
			"video_id", req.Ref.VideoID,
			"quality", req.Quality,
			"format", req.Format,
			"height", res.Height,
			"elapsed", time.Since(started),
		)
		return &ResolutionResult{
			DownloadURL:    res.URL,
			ResolvedHeight: res.Height,
			FormatID:       res.FormatID,
			Container:      res.Container,
			Strategy:       strategy.Name(),
		}, nil
	}

	if err := p.interrupted(ctx, attempts); err != nil {
		return nil, err
	}
	resErr := &ResolutionError{Attempts: attempts}
	p.logger.Warn("all strategies failed", "video_id", req.Ref.VideoID, "quality", req.Quality, "err", resErr)
	return nil, resErr
}

// interrupted reports the pipeline deadline or caller cancellation.
func (p *Pipeline) interrupted(ctx context.Context, attempts []Attempt) error {
	switch err := ctx.Err(); {
	case errors.Is(err, context.DeadlineExceeded):
		return wrapCategory(CategoryTimeout, fmt.Errorf("download resolution timed out after %s (%d strategies attempted): %w", p.timeout, len(attempts), err))
	case err != nil:
		return wrapCategory(CategoryCanceled, err)
	}
	return nil
}
