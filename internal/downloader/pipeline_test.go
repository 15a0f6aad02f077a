package downloader

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeStrategy struct {
	name    string
	calls   int
	resolve func(ctx context.Context, req Request) (*Resolution, error)
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	f.calls++
	return f.resolve(ctx, req)
}

func succeed(link string) func(context.Context, Request) (*Resolution, error) {
	return func(context.Context, Request) (*Resolution, error) {
		return &Resolution{URL: link, Height: 720, FormatID: "22", Container: "mp4"}, nil
	}
}

func fail(msg string) func(context.Context, Request) (*Resolution, error) {
	return func(context.Context, Request) (*Resolution, error) {
		return nil, errors.New(msg)
	}
}

func TestPipelineShortCircuitsOnFirstSuccess(t *testing.T) {
	first := &fakeStrategy{name: "extractor", resolve: fail("yt-dlp missing")}
	second := &fakeStrategy{name: "innertube", resolve: succeed("https://cdn.example/22")}
	third := &fakeStrategy{name: "resolver", resolve: succeed("https://cdn.example/other")}
	p := NewPipeline(time.Second, testLogger(), first, second, third)

	res, err := p.Resolve(context.Background(), Request{Ref: testRef(t), Quality: Quality720p})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.DownloadURL != "https://cdn.example/22" || res.Strategy != "innertube" || res.ResolvedHeight != 720 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if first.calls != 1 || second.calls != 1 || third.calls != 0 {
		t.Fatalf("unexpected call counts: %d %d %d", first.calls, second.calls, third.calls)
	}
}

func TestPipelineAllFail(t *testing.T) {
	strategies := []*fakeStrategy{
		{name: "extractor", resolve: fail("exit status 1")},
		{name: "innertube", resolve: fail("LOGIN_REQUIRED")},
		{name: "resolver", resolve: func(context.Context, Request) (*Resolution, error) { return nil, nil }},
	}
	p := NewPipeline(time.Second, testLogger(), strategies[0], strategies[1], strategies[2])

	_, err := p.Resolve(context.Background(), Request{Ref: testRef(t), Quality: Quality1080p})
	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	if len(resErr.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(resErr.Attempts))
	}
	for i, s := range strategies {
		if s.calls != 1 {
			t.Fatalf("strategy %s called %d times", s.name, s.calls)
		}
		if resErr.Attempts[i].Strategy != s.name {
			t.Fatalf("attempt %d = %s, want %s", i, resErr.Attempts[i].Strategy, s.name)
		}
	}
	if CategoryOf(err) != CategoryProcessingFailed {
		t.Fatalf("expected processing_failed, got %s", CategoryOf(err))
	}
	if !strings.HasPrefix(err.Error(), "all download methods failed") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestPipelineEmptyURLCountsAsFailure(t *testing.T) {
	empty := &fakeStrategy{name: "innertube", resolve: succeed("")}
	next := &fakeStrategy{name: "resolver", resolve: succeed("https://cdn.example/r")}
	p := NewPipeline(time.Second, testLogger(), empty, next)

	res, err := p.Resolve(context.Background(), Request{Ref: testRef(t), Quality: Quality720p})
	if err != nil || res.Strategy != "resolver" {
		t.Fatalf("expected resolver result, got %+v, %v", res, err)
	}
}

func TestPipelineTimeout(t *testing.T) {
	slow := &fakeStrategy{name: "extractor", resolve: func(ctx context.Context, _ Request) (*Resolution, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	never := &fakeStrategy{name: "innertube", resolve: succeed("https://cdn.example/late")}
	p := NewPipeline(30*time.Millisecond, testLogger(), slow, never)

	_, err := p.Resolve(context.Background(), Request{Ref: testRef(t), Quality: Quality720p})
	if CategoryOf(err) != CategoryTimeout {
		t.Fatalf("expected timeout category, got %v (%s)", err, CategoryOf(err))
	}
	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		t.Fatalf("timeout must not be reported as exhaustion")
	}
	if never.calls != 0 {
		t.Fatalf("no strategy should start after the deadline")
	}
	if ExitCode(err) != 4 {
		t.Fatalf("expected exit code 4, got %d", ExitCode(err))
	}
}

func TestPipelineCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &fakeStrategy{name: "extractor", resolve: succeed("https://cdn.example/x")}
	p := NewPipeline(time.Second, testLogger(), s)

	_, err := p.Resolve(ctx, Request{Ref: testRef(t)})
	if CategoryOf(err) != CategoryCanceled || s.calls != 0 {
		t.Fatalf("expected canceled before any strategy, got %v after %d calls", err, s.calls)
	}
}

func TestPipelineDefaultsQuality(t *testing.T) {
	var got Quality
	var gotFormat MediaFormat
	s := &fakeStrategy{name: "resolver", resolve: func(_ context.Context, req Request) (*Resolution, error) {
		got = req.Quality
		gotFormat = req.Format
		return &Resolution{URL: "https://cdn.example/x"}, nil
	}}
	p := NewPipeline(0, testLogger(), s)
	if _, err := p.Resolve(context.Background(), Request{Ref: testRef(t)}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != DefaultQuality || gotFormat != FormatVideo {
		t.Fatalf("expected default quality and format, got %q %q", got, gotFormat)
	}
	if names := p.Strategies(); len(names) != 1 || names[0] != "resolver" {
		t.Fatalf("unexpected strategy names %v", names)
	}
}

func TestExitCodes(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{wrapCategory(CategoryInvalidURL, errors.New("bad")), 2},
		{&ResolutionError{}, 3},
		{wrapCategory(CategoryNetwork, errors.New("reset")), 4},
		{context.Canceled, 130},
		{errors.New("boom"), 1},
	}
	for _, tc := range cases {
		if got := ExitCode(tc.err); got != tc.want {
			t.Fatalf("ExitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
