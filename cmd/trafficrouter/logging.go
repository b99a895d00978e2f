package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"traffic-router/internal/config"
)

// setupLogging configures the global logger (timestamped text by default).
func setupLogging(cfg config.LogConfig) error {
	switch cfg.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	level := logrus.InfoLevel
	if cfg.Level != "" {
		lvl, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		level = lvl
	}
	logrus.SetLevel(level)
	return nil
}
