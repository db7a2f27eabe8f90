package cmd

import (
	"io"
	"strings"

	"github.com/effective-security/xlog"

	"github.com/dotcommander/relay/internal/config"
)

// setupLogging sends package logs to w at the configured level. --verbose
// raises the level to DEBUG.
func setupLogging(w io.Writer, cfg *config.Config) {
	xlog.SetFormatter(xlog.NewStringFormatter(w))

	level := strings.ToUpper(strings.TrimSpace(cfg.LogLevel))
	if cfg.Verbose {
		level = "DEBUG"
	}
	switch level {
	case "CRITICAL":
		xlog.SetGlobalLogLevel(xlog.CRITICAL)
	case "ERROR":
		xlog.SetGlobalLogLevel(xlog.ERROR)
	case "NOTICE":
		xlog.SetGlobalLogLevel(xlog.NOTICE)
	case "INFO":
		xlog.SetGlobalLogLevel(xlog.INFO)
	case "DEBUG":
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	case "TRACE":
		xlog.SetGlobalLogLevel(xlog.TRACE)
	default:
		xlog.SetGlobalLogLevel(xlog.WARNING)
	}
}
