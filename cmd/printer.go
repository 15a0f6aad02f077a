package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lvcoi/ytdl-broker/internal/app"
	"github.com/lvcoi/ytdl-broker/internal/downloader"
)

// Printer renders command results either as styled lines or JSON lines.
type Printer struct {
	out     io.Writer
	json    bool
	columns int

	ok, fail, label, faint lipgloss.Style
}

func newPrinter(out io.Writer, jsonOutput bool) *Printer {
	columns := terminalColumns()
	if columns <= 0 {
		columns = 100
	}
	r := lipgloss.NewRenderer(out)
	return &Printer{
		out:     out,
		json:    jsonOutput,
		columns: columns,
		ok:      r.NewStyle().Foreground(lipgloss.Color("#00F5D4")).Bold(true),
		fail:    r.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true),
		label:   r.NewStyle().Foreground(lipgloss.Color("#F8F8F2")).Bold(true),
		faint:   r.NewStyle().Foreground(lipgloss.Color("#A6ADC8")).Faint(true),
	}
}

type resultLine struct {
	Type             string `json:"type"`
	URL              string `json:"url"`
	Title            string `json:"title,omitempty"`
	Author           string `json:"author,omitempty"`
	QualityRequested string `json:"qualityRequested,omitempty"`
	QualityResolved  string `json:"qualityResolved,omitempty"`
	Format           string `json:"format,omitempty"`
	FormatID         string `json:"formatId,omitempty"`
	DownloadURL      string `json:"downloadUrl,omitempty"`
	Strategy         string `json:"strategy,omitempty"`
	Category         string `json:"category,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Result prints one batch result.
func (p *Printer) Result(index, total int, res app.Result) {
	if p.json {
		line := resultLine{Type: "result", URL: res.URL}
		if res.Err != nil {
			line.Type = "error"
			line.Category = string(downloader.CategoryOf(res.Err))
			line.Error = res.Err.Error()
		} else if dl := res.Download; dl != nil {
			line.Title = dl.Metadata.Title
			line.Author = dl.Metadata.Author
			line.QualityRequested = dl.QualityRequested.String()
			line.QualityResolved = dl.QualityResolved()
			line.Format = dl.Format.String()
			line.FormatID = dl.Resolution.FormatID
			line.DownloadURL = dl.Resolution.DownloadURL
			line.Strategy = dl.Resolution.Strategy
		}
		p.encode(line)
		return
	}

	prefix := p.prefix(index, total)
	if res.Err != nil {
		detail := truncateText(res.URL+": "+res.Err.Error(), p.columns-len(prefix)-6)
		fmt.Fprintf(p.out, "%s %s %s\n", prefix, p.fail.Render("FAIL"), detail)
		return
	}
	dl := res.Download
	heading := fmt.Sprintf("%s (%s via %s)", dl.Metadata.Title, dl.QualityResolved(), dl.Resolution.Strategy)
	fmt.Fprintf(p.out, "%s %s %s\n", prefix, p.ok.Render("OK"), truncateText(heading, p.columns-len(prefix)-4))
	fmt.Fprintln(p.out, dl.Resolution.DownloadURL)
}

// Summary prints the batch totals. It is omitted in JSON mode.
func (p *Printer) Summary(results []app.Result, total int) {
	if p.json {
		return
	}
	ok := 0
	for _, r := range results {
		if r.Err == nil {
			ok++
		}
	}
	failed := len(results) - ok
	fmt.Fprintf(p.out, "%s %s %d | %s %d | TOTAL %d\n",
		p.label.Render("Summary:"), p.ok.Render("OK"), ok, p.fail.Render("FAIL"), failed, total)
}

// Info prints video metadata and the formats on offer.
func (p *Printer) Info(info app.VideoInfo) {
	if p.json {
		p.encode(info)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.label.Render("Title: "), info.Title)
	fmt.Fprintf(p.out, "%s %s\n", p.label.Render("Author:"), info.Author)
	fmt.Fprintf(p.out, "%s %s\n", p.label.Render("Video: "), info.VideoID)
	fmt.Fprintf(p.out, "%s %s\n", p.label.Render("Thumb: "), p.faint.Render(info.ThumbnailURL))
	for _, f := range info.AvailableFormats {
		id := f.FormatID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(p.out, "  %s %s %s\n", padLeft(f.Quality, 6), padLeft(id, 4), p.faint.Render(f.Ext))
	}
}

func (p *Printer) encode(v any) {
	enc := json.NewEncoder(p.out)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func (p *Printer) prefix(index, total int) string {
	if total <= 0 {
		total = 1
	}
	width := len(strconv.Itoa(total))
	return fmt.Sprintf("[%*d/%d]", width, index, total)
}

func padLeft(value string, width int) string {
	if len(value) >= width {
		return value
	}
	return strings.Repeat(" ", width-len(value)) + value
}

func truncateText(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	if max <= 3 {
		return text[:max]
	}
	return text[:max-3] + "..."
}

func terminalColumns() int {
	if columns := os.Getenv("COLUMNS"); columns != "" {
		if val, err := strconv.Atoi(columns); err == nil && val > 0 {
			return val
		}
	}
	return 0
}
