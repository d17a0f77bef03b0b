// Package logger provides structured logging for the annotation service
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with annotator-specific helpers
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// ParseLevel maps a config level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Pretty printing for development
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "textanchor").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// Wrap adopts an existing zerolog logger, e.g. one passed through library options
func Wrap(zlog zerolog.Logger) *Logger {
	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// GetZerolog returns the underlying zerolog logger
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

// Zerolog returns a copy of the underlying logger for library options
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// Info logs an info message
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string) *zerolog.Event {
	return l.zlog.Fatal().Str("msg", msg)
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// GrpcLogger returns a logger for gRPC operations
func (l *Logger) GrpcLogger(method string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "grpc").
			Str("method", method).
			Logger(),
	}
}

// IndexLogger returns a logger for spatial index operations
func (l *Logger) IndexLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "spatial").Logger()}
}

// AnchorLogger returns a logger for selector revival of one annotation
func (l *Logger) AnchorLogger(annotation string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "anchor").
			Str("annotation", annotation).
			Logger(),
	}
}

// LogGrpcRequest logs a completed gRPC request. Call it on a GrpcLogger.
func (l *Logger) LogGrpcRequest(duration time.Duration, err error) {
	event := l.zlog.Info().Dur("duration_ms", duration)
	if err != nil {
		event = l.zlog.Error().Dur("duration_ms", duration).Err(err)
	}
	event.Msg("gRPC request completed")
}

// LogIndexOperation logs a spatial index operation. Call it on an IndexLogger.
func (l *Logger) LogIndexOperation(operation string, duration time.Duration, annotations, rects int, err error) {
	event := l.zlog.Debug()
	if err != nil {
		event = l.zlog.Warn().Err(err)
	}
	event.Str("operation", operation).
		Dur("duration_ms", duration).
		Int("annotations", annotations).
		Int("rects", rects).
		Msg("Index operation completed")
}

// LogConsistencyWarning logs index geometry that disagrees with the store
func (l *Logger) LogConsistencyWarning(annotation, problem string) {
	l.zlog.Warn().
		Str("event", "IndexConsistencyWarning").
		Str("annotation", annotation).
		Msg(problem)
}

// LogAnchorFailure logs a target that could not be anchored
func (l *Logger) LogAnchorFailure(annotation, quote, reason string) {
	l.zlog.Warn().
		Str("event", "AnchorFailure").
		Str("annotation", annotation).
		Str("quote", quote).
		Str("reason", reason).
		Msg("Target could not be anchored")
}

// LogDocumentReload logs a document reload
func (l *Logger) LogDocumentReload(path string, annotations, outdated int) {
	l.zlog.Info().
		Str("event", "document_reload").
		Str("document", path).
		Int("annotations", annotations).
		Int("outdated", outdated).
		Msg("Document reloaded")
}

// LogServerStart logs server startup
func (l *Logger) LogServerStart(port int, documentPath string) {
	l.zlog.Info().
		Str("event", "server_start").
		Int("port", port).
		Str("document", documentPath).
		Msg("Annotator server starting")
}

// LogServerReady logs when server is ready
func (l *Logger) LogServerReady(port int) {
	l.zlog.Info().
		Str("event", "server_ready").
		Int("port", port).
		Msg("Annotator server ready to accept connections")
}

// LogServerShutdown logs server shutdown
func (l *Logger) LogServerShutdown() {
	l.zlog.Info().
		Str("event", "server_shutdown").
		Msg("Annotator server shutting down")
}

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		// Initialize with defaults if not set
		InitGlobalLogger(Config{
			Level:  "info",
			Pretty: true,
		})
	}
	return globalLogger
}
