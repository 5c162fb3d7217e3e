package ibis

import (
	"os"

	"github.com/charmbracelet/log"
)

// NewLogger builds the process-wide logger. verbose bumps info-level
// messages (message set, enable/disable, arbitration rejections) on;
// debug additionally turns on per-telegram tracing; jsonOutput switches
// the formatter for log aggregation instead of an interactive terminal.
func NewLogger(verbose, debug, jsonOutput bool) *log.Logger {
	opts := log.Options{
		ReportTimestamp: true,
	}
	if jsonOutput {
		opts.Formatter = log.JSONFormatter
	}

	logger := log.NewWithOptions(os.Stderr, opts)

	switch {
	case debug:
		logger.SetLevel(log.DebugLevel)
	case verbose:
		logger.SetLevel(log.InfoLevel)
	default:
		logger.SetLevel(log.WarnLevel)
	}

	return logger
}
