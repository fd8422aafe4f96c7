package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap logger that writes to a session-specific file in
// ~/.clippy/logs/ and, optionally, to stderr.
type Logger struct {
	*zap.Logger

	file      *os.File
	logPath   string
	closeOnce sync.Once
}

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error (default info)
	Level string `yaml:"level" json:"level"`

	// Dir overrides the log directory (default ~/.clippy/logs)
	Dir string `yaml:"dir" json:"dir"`

	// Console mirrors log entries to stderr in human-readable form
	Console bool `yaml:"console" json:"console"`
}

var (
	// Global session ID for the current execution
	sessionID     string
	sessionIDOnce sync.Once
)

// getSessionID returns or creates the session ID for this execution
func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// SessionID returns the current global session ID.
func SessionID() string {
	return getSessionID()
}

// DefaultDirectory returns ~/.clippy/logs.
func DefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".clippy", "logs"), nil
}

// New creates the process logger. Entries are written as JSON to
// <dir>/<session-id>-clippy.log.
//
// If the log directory cannot be created or the log file cannot be opened,
// it returns a fallback logger that writes to stderr along with the error.
// Callers can check the error to detect fallback mode.
func New(opts Options) (*Logger, error) {
	level, err := zapcore.ParseLevel(orDefault(opts.Level, "info"))
	if err != nil {
		level = zapcore.InfoLevel
	}

	dir := opts.Dir
	if dir == "" {
		dir, err = DefaultDirectory()
		if err != nil {
			return newFallbackLogger(level, err), err
		}
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		err = fmt.Errorf("failed to create log directory: %w", err)
		return newFallbackLogger(level, err), err
	}

	logPath := filepath.Join(dir, fmt.Sprintf("%s-clippy.log", getSessionID()))

	// Append mode: several processes in one session may share the file
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(level, err), err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), level),
	}
	if opts.Console {
		cores = append(cores, consoleCore(level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller()).
		With(zap.String("session", getSessionID()))

	return &Logger{
		Logger:  logger,
		file:    file,
		logPath: logPath,
	}, nil
}

// newFallbackLogger creates a logger that writes to stderr when file logging fails
func newFallbackLogger(level zapcore.Level, err error) *Logger {
	logger := zap.New(consoleCore(level), zap.AddCaller())
	logger.Warn("failed to initialize file logging, falling back to stderr", zap.Error(err))
	return &Logger{Logger: logger}
}

func consoleCore(level zapcore.Level) zapcore.Core {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
}

// Component returns a child logger named after a subsystem.
func Component(l *zap.Logger, name string) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.Named(name)
}

// LogPath returns the path to the log file, or "" in fallback mode.
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close flushes and closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		_ = l.Logger.Sync()
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
