package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Logger is a leveled stderr logger. Debug output is gated behind
// verbose mode; the other levels always print.
type Logger struct {
	mu      sync.RWMutex
	out     io.Writer
	verbose bool
}

var (
	global     *Logger
	globalOnce sync.Once
)

// GetLogger returns the process-wide logger.
func GetLogger() *Logger {
	globalOnce.Do(func() {
		global = &Logger{out: os.Stderr}
	})
	return global
}

// SetVerboseMode toggles debug output on the process-wide logger.
func SetVerboseMode(verbose bool) {
	GetLogger().SetVerbose(verbose)
}

// SetVerbose toggles debug output.
func (l *Logger) SetVerbose(verbose bool) {
	l.mu.Lock()
	l.verbose = verbose
	l.mu.Unlock()
}

// IsVerbose reports whether debug output is enabled.
func (l *Logger) IsVerbose() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verbose
}

// SetOutput redirects the logger, used by tests to capture output.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	l.out = w
	l.mu.Unlock()
}

// emit writes one line. A message without args is printed as-is so
// callers can log strings containing % literally.
func (l *Logger) emit(level, msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.mu.RLock()
	out := l.out
	l.mu.RUnlock()
	_, _ = fmt.Fprintf(out, "%s %s\n", level, msg)
}

// Debug logs only in verbose mode, with a timestamp for tracing.
func (l *Logger) Debug(msg string, args ...interface{}) {
	if !l.IsVerbose() {
		return
	}
	l.emit(time.Now().Format("15:04:05")+" [DEBUG]", msg, args...)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.emit("[INFO]", msg, args...)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.emit("[WARN]", msg, args...)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	l.emit("[ERROR]", msg, args...)
}

// Debugf logs a debug message on the process-wide logger.
func Debugf(format string, args ...interface{}) { GetLogger().Debug(format, args...) }

// Infof logs an info message on the process-wide logger.
func Infof(format string, args ...interface{}) { GetLogger().Info(format, args...) }

// Warnf logs a warning on the process-wide logger.
func Warnf(format string, args ...interface{}) { GetLogger().Warn(format, args...) }

// Errorf logs an error on the process-wide logger.
func Errorf(format string, args ...interface{}) { GetLogger().Error(format, args...) }

// BackgroundLogger writes to a per-PID file in the temp directory, for
// daemons whose stderr nobody watches. Every failure mode degrades to a
// discarding logger so callers never branch on logging availability.
type BackgroundLogger struct {
	logger  *log.Logger
	file    *os.File
	path    string
	enabled bool
}

// NewBackgroundLogger opens the default per-PID log file.
func NewBackgroundLogger() (*BackgroundLogger, error) {
	return NewBackgroundLoggerWithPath(
		fmt.Sprintf("%s/dayplan-%d.log", os.TempDir(), os.Getpid()))
}

// NewBackgroundLoggerWithEnabled returns a discarding logger when
// disabled, otherwise the default per-PID logger.
func NewBackgroundLoggerWithEnabled(enabled bool) (*BackgroundLogger, error) {
	if !enabled {
		return discardBackgroundLogger(""), nil
	}
	return NewBackgroundLogger()
}

// NewBackgroundLoggerWithPath opens (appending) the given log file. On
// open failure the returned logger discards writes, alongside the error.
func NewBackgroundLoggerWithPath(path string) (*BackgroundLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return discardBackgroundLogger(path), err
	}
	return &BackgroundLogger{
		logger:  log.New(f, "", log.LstdFlags),
		file:    f,
		path:    path,
		enabled: true,
	}, nil
}

func discardBackgroundLogger(path string) *BackgroundLogger {
	return &BackgroundLogger{
		logger: log.New(io.Discard, "", log.LstdFlags),
		path:   path,
	}
}

// Printf logs a formatted line.
func (bl *BackgroundLogger) Printf(format string, args ...interface{}) {
	bl.logger.Printf(format, args...)
}

// Println logs a line.
func (bl *BackgroundLogger) Println(args ...interface{}) {
	bl.logger.Println(args...)
}

// Close releases the log file; subsequent writes are discarded.
func (bl *BackgroundLogger) Close() {
	if bl.file != nil {
		_ = bl.file.Close()
		bl.file = nil
	}
	bl.logger = log.New(io.Discard, "", log.LstdFlags)
	bl.enabled = false
}

// GetLogPath returns the log file path.
func (bl *BackgroundLogger) GetLogPath() string {
	return bl.path
}

// IsEnabled reports whether writes reach a file.
func (bl *BackgroundLogger) IsEnabled() bool {
	return bl.enabled
}
