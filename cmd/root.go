package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/lvcoi/ytdl-broker/internal/config"
	"github.com/lvcoi/ytdl-broker/internal/downloader"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *log.Logger
)

var rootCmd = &cobra.Command{
	Use:     "ytdl-broker",
	Short:   "Resolve YouTube links into direct media download URLs",
	Version: Version,
	Long: `ytdl-broker turns a YouTube URL into a direct, time-limited media URL.

Resolution tries the local yt-dlp extractor, then YouTube's player API under
several client identities, then third-party resolver services.

Examples:
  ytdl-broker serve --addr :8080
  ytdl-broker resolve --quality 1080p https://youtu.be/dQw4w9WgXcQ
  ytdl-broker info --json https://www.youtube.com/watch?v=dQw4w9WgXcQ`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadRuntime,
}

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	var exit exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	if logger != nil {
		logger.Error(err)
	} else {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return downloader.ExitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./ytdl-broker.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, json, logfmt")
}

func loadRuntime(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		loaded.Log.Level = logLevel
	}
	if cmd.Flags().Changed("log-format") {
		loaded.Log.Format = logFormat
	}
	l, err := newLogger(os.Stderr, loaded.Log)
	if err != nil {
		return err
	}
	cfg = loaded
	logger = l
	log.SetDefault(l)
	return nil
}

func newLogger(w io.Writer, lc config.LogConfig) (*log.Logger, error) {
	level := log.InfoLevel
	if strings.TrimSpace(lc.Level) != "" {
		parsed, err := log.ParseLevel(strings.ToLower(lc.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q", lc.Level)
		}
		level = parsed
	}

	var formatter log.Formatter
	switch strings.ToLower(lc.Format) {
	case "", "text":
		formatter = log.TextFormatter
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	default:
		return nil, fmt.Errorf("invalid log format %q", lc.Format)
	}

	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
		Prefix:          "ytdl-broker",
	}), nil
}
