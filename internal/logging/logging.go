// Package logging wraps zerolog the way cuemby-warren/pkg/log does:
// a single global Logger configured once at startup, plus typed
// With* helpers for the fields the Broker actually attaches (endpoint,
// service instance, msg_id) instead of warren's node/task/service ids.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger; Init replaces it, everything else
// reads it.
var Logger zerolog.Logger

// Level mirrors zerolog's levels under names that read naturally in a
// config file.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Config configures the global Logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

func Init(cfg Config) {
	zerolog.SetGlobalLevel(cfg.Level.zerolog())

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(out).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

// WithEndpoint returns a logger annotated with the USP endpoint id a
// record or connection belongs to.
func WithEndpoint(endpointID string) zerolog.Logger {
	return Logger.With().Str("endpoint", endpointID).Logger()
}

// WithService returns a logger annotated with a registered Service's
// instance number.
func WithService(instanceID int) zerolog.Logger {
	return Logger.With().Int("service_instance", instanceID).Logger()
}

// WithMsgID returns a logger annotated with a message's correlation id.
func WithMsgID(msgID string) zerolog.Logger {
	return Logger.With().Str("msg_id", msgID).Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }
func Fatal(msg string) { Logger.Fatal().Msg(msg) }

func Errorf(format string, args ...interface{}) { Logger.Error().Msgf(format, args...) }
