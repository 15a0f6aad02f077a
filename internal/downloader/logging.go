package downloader

import "github.com/charmbracelet/log"

func componentLogger(logger *log.Logger, component string) *log.Logger {
	if logger == nil {
		logger = log.Default()
	}
	return logger.With("component", component)
}
