package main

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torosent/ratefire/internal/config"
)

// newLogger builds the process logger. Reports go to stdout, so logs are written to w (stderr).
func newLogger(cfg *config.Config, w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logger.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

// logConfig logs load-time warnings and, in debug mode, the parsed configuration.
func logConfig(log logrus.FieldLogger, cfg *config.Config) {
	for _, w := range cfg.Warnings {
		log.WithField("kind", w.Kind).Warn(w.Message)
	}
	log.WithFields(logrus.Fields(cfg.Fields())).Debug("configuration loaded")
}
