// Package log builds the key/value loggers used across the transport.
package log

import (
	"fmt"
	"os"
	"strings"

	golog "github.com/fclairamb/go-log"
	loglogrus "github.com/fclairamb/go-log/logrus"
	lognoop "github.com/fclairamb/go-log/noop"
	logzap "github.com/fclairamb/go-log/zap"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface every component accepts.
type Logger = golog.Logger

const (
	BackendZap    = "zap"
	BackendLogrus = "logrus"
	BackendNop    = "nop"
)

// UnsupportedBackendError is returned when the described backend is not supported
type UnsupportedBackendError struct {
	Backend string
}

func (err UnsupportedBackendError) Error() string {
	return fmt.Sprintf("Unsupported log backend: %s", err.Backend)
}

// Default returns a zap production logger, or a no-op one if zap can't be built.
func Default() Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		return Nop()
	}
	return logzap.NewWrap(logger.Sugar())
}

// Nop returns a logger discarding everything.
func Nop() Logger {
	return lognoop.NewNoOpLogger()
}

// New builds a logger for the given backend and level ("debug", "info", "warn", "error").
// The zap backend without a level is Default().
func New(backend, level string) (Logger, error) {
	switch strings.ToLower(backend) {
	case "", BackendZap:
		if level == "" {
			return Default(), nil
		}
		return newZap(level)
	case BackendLogrus:
		return newLogrus(level)
	case BackendNop:
		return Nop(), nil
	default:
		return nil, UnsupportedBackendError{Backend: backend}
	}
}

func newZap(level string) (Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
	}

	conf := zap.NewProductionConfig()
	conf.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := conf.Build()
	if err != nil {
		return nil, err
	}
	return logzap.NewWrap(logger.Sugar()), nil
}

func newLogrus(level string) (Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		logger.SetLevel(lvl)
	}
	return loglogrus.NewWrap(logger), nil
}
