package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lvcoi/ytdl-broker/internal/app"
	"github.com/lvcoi/ytdl-broker/internal/downloader"
	"github.com/lvcoi/ytdl-broker/internal/ledger"
	"github.com/lvcoi/ytdl-broker/internal/web"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the JSON API:

  POST /video-info       {url}                  -> title, author, thumbnail, formats
  POST /video-download   {url, quality, title}  -> direct download URL
  GET  /api/status                              -> uptime and enabled strategies

Both POST routes are also mounted under /api/. When the ledger is enabled,
/video-download requires "Authorization: Bearer <token>" and charges tokens
per quality.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}

	opts := web.Options{
		Service:         svc,
		Costs:           ledger.Costs(cfg.Ledger.Costs),
		AllowedOrigin:   cfg.Server.AllowedOrigin,
		RateLimit:       cfg.Server.RateLimit,
		RateBurst:       cfg.Server.RateBurst,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          logger,
	}
	if cfg.Ledger.Enabled {
		l, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return err
		}
		defer l.Close()
		opts.Ledger = l
		logger.Info("ledger enabled", "path", cfg.Ledger.Path)
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	err = web.NewServer(opts).ListenAndServe(ctx, addr)
	downloader.CloseIdleConnections()
	if errors.Is(err, context.Canceled) {
		logger.Info("shut down")
		return nil
	}
	if err != nil {
		return fmt.Errorf("serving on %s: %w", addr, err)
	}
	return nil
}
