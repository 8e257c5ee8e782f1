// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/zulandar/lifeline/internal/config"
)

// Setup applies cfg to the standard logrus logger, writing to stderr.
func Setup(cfg config.LogConfig) error {
	return SetupWriter(cfg, os.Stderr)
}

// SetupWriter applies cfg to the standard logrus logger, writing to w.
func SetupWriter(cfg config.LogConfig, w io.Writer) error {
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	var formatter logrus.Formatter
	switch cfg.Format {
	case "", "text":
		formatter = &logrus.TextFormatter{FullTimestamp: true}
	case "json":
		formatter = &logrus.JSONFormatter{}
	default:
		return fmt.Errorf("logging: unknown format %q", cfg.Format)
	}

	logrus.SetLevel(lvl)
	logrus.SetFormatter(formatter)
	logrus.SetOutput(w)
	return nil
}
