package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lvcoi/ytdl-broker/internal/app"
	"github.com/lvcoi/ytdl-broker/internal/downloader"
)

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info <url>",
	Short: "Show video metadata and available qualities",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	ref, err := downloader.Validate(args[0])
	if err != nil {
		return err
	}
	svc, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}
	newPrinter(cmd.OutOrStdout(), infoJSON).Info(svc.Info(cmd.Context(), ref))
	return nil
}
