package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lvcoi/ytdl-broker/internal/app"
	"github.com/lvcoi/ytdl-broker/internal/downloader"
)

var (
	resolveQuality string
	resolveFormat  string
	resolveJobs    int
	resolveJSON    bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <url> [url...]",
	Short: "Resolve direct download URLs",
	Long: `Resolve each URL through the strategy pipeline and print the direct link.

Exit status is 0 when every URL resolved, 2 for invalid input, 3 when all
strategies failed, 4 on network errors or timeouts and 130 when interrupted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveQuality, "quality", "q", string(downloader.DefaultQuality), "target quality: 360p, 720p, 1080p, 2160p (4k)")
	resolveCmd.Flags().StringVarP(&resolveFormat, "format", "f", string(downloader.FormatVideo), "mp4 (video) or mp3 (audio only, extractor strategy)")
	resolveCmd.Flags().IntVarP(&resolveJobs, "jobs", "j", 1, "number of concurrent resolutions")
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "emit JSON lines")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, urls []string) error {
	quality, err := downloader.ParseQuality(resolveQuality)
	if err != nil {
		return err
	}
	format, err := downloader.ParseFormat(resolveFormat)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}

	results, code := app.Run(ctx, svc, urls, quality, format, resolveJobs)
	printer := newPrinter(cmd.OutOrStdout(), resolveJSON)
	for i, res := range results {
		printer.Result(i+1, len(urls), res)
	}
	printer.Summary(results, len(urls))

	if code != 0 {
		return exitError{code: code}
	}
	return nil
}
