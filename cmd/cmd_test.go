package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lvcoi/ytdl-broker/internal/app"
	"github.com/lvcoi/ytdl-broker/internal/config"
	"github.com/lvcoi/ytdl-broker/internal/downloader"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ytdl-broker.yaml")
	body := "log:\n  level: error\nledger:\n  path: " + filepath.Join(dir, "ledger.db") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "ytdl-broker "+Version) || !strings.Contains(out, "Platform:") {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestLedgerCommands(t *testing.T) {
	path := writeTestConfig(t)

	out, err := runCLI(t, "--config", path, "ledger", "grant", "alice", "7")
	if err != nil || !strings.Contains(out, "alice: 7 tokens") {
		t.Fatalf("grant: %q, %v", out, err)
	}

	out, err = runCLI(t, "--config", path, "ledger", "token", "alice")
	if err != nil || len(strings.TrimSpace(out)) != 36 {
		t.Fatalf("token: %q, %v", out, err)
	}

	out, err = runCLI(t, "--config", path, "ledger", "balance", "alice")
	if err != nil || !strings.Contains(out, "alice: 7 tokens") {
		t.Fatalf("balance: %q, %v", out, err)
	}

	if _, err := runCLI(t, "--config", path, "ledger", "grant", "alice", "many"); err == nil {
		t.Fatalf("expected error for non-numeric amount")
	}
	if _, err := runCLI(t, "--config", path, "ledger", "balance", "nobody"); err == nil {
		t.Fatalf("expected error for unknown profile")
	}
}

func TestResolveRejectsBadQuality(t *testing.T) {
	path := writeTestConfig(t)
	_, err := runCLI(t, "--config", path, "resolve", "--quality", "480p", "https://youtu.be/dQw4w9WgXcQ")
	if downloader.ExitCode(err) != 2 {
		t.Fatalf("expected invalid quality exit code, got %v", err)
	}
	resolveQuality = string(downloader.DefaultQuality)
}

func TestResolveRejectsBadFormat(t *testing.T) {
	path := writeTestConfig(t)
	_, err := runCLI(t, "--config", path, "resolve", "--format", "flac", "https://youtu.be/dQw4w9WgXcQ")
	if downloader.ExitCode(err) != 2 {
		t.Fatalf("expected invalid format exit code, got %v", err)
	}
	resolveFormat = string(downloader.FormatVideo)
}

func TestExitErrorUnwrap(t *testing.T) {
	var target exitError
	if !errors.As(error(exitError{code: 3}), &target) || target.code != 3 {
		t.Fatalf("expected exitError to be recoverable")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	l.Info("hidden")
	l.Warn("shown", "video_id", "abc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the warning, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON log line: %v", err)
	}
	if entry["msg"] != "shown" || entry["video_id"] != "abc" {
		t.Fatalf("unexpected entry %v", entry)
	}

	if _, err := newLogger(&buf, config.LogConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := newLogger(&buf, config.LogConfig{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func sampleResults() []app.Result {
	failure := &downloader.ResolutionError{Attempts: []downloader.Attempt{{Strategy: "resolver", Err: errors.New("down")}}}
	return []app.Result{
		{
			URL: "https://youtu.be/dQw4w9WgXcQ",
			Download: &app.Download{
				Metadata:         downloader.VideoMetadata{Title: "Song", Author: "Band"},
				QualityRequested: downloader.Quality1080p,
				Resolution:       &downloader.ResolutionResult{DownloadURL: "https://cdn.example/22", ResolvedHeight: 720, FormatID: "22", Strategy: "innertube"},
			},
		},
		{URL: "https://youtu.be/aaaaaaaaaaa", Err: failure, Error: failure.Error()},
	}
}

func TestPrinterText(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, false)
	results := sampleResults()
	for i, r := range results {
		p.Result(i+1, len(results), r)
	}
	p.Summary(results, len(results))

	out := buf.String()
	for _, want := range []string{"[1/2]", "OK", "Song (720p via innertube)", "https://cdn.example/22", "FAIL", "all download methods failed", "TOTAL 2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestPrinterJSON(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, true)
	results := sampleResults()
	for i, r := range results {
		p.Result(i+1, len(results), r)
	}
	p.Summary(results, len(results))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSON lines, got %d", len(lines))
	}
	var ok, failed resultLine
	if err := json.Unmarshal([]byte(lines[0]), &ok); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &failed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ok.Type != "result" || ok.QualityResolved != "720p" || ok.DownloadURL != "https://cdn.example/22" {
		t.Fatalf("unexpected result line %+v", ok)
	}
	if failed.Type != "error" || failed.Category != string(downloader.CategoryProcessingFailed) {
		t.Fatalf("unexpected error line %+v", failed)
	}
}

func TestPrinterInfo(t *testing.T) {
	var buf bytes.Buffer
	newPrinter(&buf, false).Info(app.VideoInfo{
		VideoMetadata:    downloader.VideoMetadata{Title: "Song", Author: "Band", VideoID: "dQw4w9WgXcQ"},
		AvailableFormats: []downloader.FormatOption{{Quality: "720p", FormatID: "22", Ext: "mp4", Height: 720}},
	})
	out := buf.String()
	if !strings.Contains(out, "Song") || !strings.Contains(out, "720p") || !strings.Contains(out, "22") {
		t.Fatalf("unexpected info output %q", out)
	}
}

func TestTruncateText(t *testing.T) {
	if got := truncateText("abcdefgh", 6); got != "abc..." {
		t.Fatalf("truncateText = %q", got)
	}
	if got := truncateText("abc", 0); got != "abc" {
		t.Fatalf("truncateText without limit = %q", got)
	}
	if got := padLeft("7", 3); got != "  7" {
		t.Fatalf("padLeft = %q", got)
	}
}
