package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/gwillem/armctl/pkg/config"
)

// newLogger builds the diagnostic logger. Output goes to cfg.LogFile when
// set, otherwise to fallback. The returned func closes the file.
func newLogger(cfg *config.Config, fallback io.Writer) (*logrus.Logger, func(), error) {
	logger := logrus.New()
	closeFn := func() {}

	if cfg.LogLevel == "off" || cfg.LogLevel == "none" {
		logger.SetOutput(io.Discard)
		return logger, closeFn, nil
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		logger.SetOutput(f)
		closeFn = func() { f.Close() }
	} else {
		logger.SetOutput(fallback)
	}

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return logger, closeFn, nil
}
