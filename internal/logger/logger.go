// Package logger 提供流水线的结构化日志:文件输出、按大小轮转、全局实例。
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// Field is one key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

func String(key, value string) Field      { return Field{Key: key, Value: value} }
func Int(key string, value int) Field     { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }
func Float64(key string, v float64) Field { return Field{Key: key, Value: v} }
func Bool(key string, value bool) Field   { return Field{Key: key, Value: value} }
func Any(key string, v interface{}) Field { return Field{Key: key, Value: v} }

// Err wraps an error as a field. A nil error produces error=<nil>.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Logger is the logging contract the pipeline codes against.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
	SetLevel(level Level)
	Close() error
}

// Config controls file placement, rotation and verbosity.
type Config struct {
	LogFilePath   string
	MaxFileSize   int64 // bytes before rotation
	MaxBackups    int
	Level         Level
	EnableConsole bool
}

// DefaultConfig 返回 CLI 运行时使用的默认日志配置。
func DefaultConfig() *Config {
	return &Config{
		LogFilePath:   "neodumastrans.log",
		MaxFileSize:   10 << 20,
		MaxBackups:    5,
		Level:         LevelInfo,
		EnableConsole: true,
	}
}

// FileLogger writes timestamped key=value lines to a log file, with
// optional mirroring to stdout.
type FileLogger struct {
	mu    sync.Mutex
	cfg   *Config
	file  *os.File
	out   io.Writer
	size  int64
	level Level
}

// New opens (or creates) the log file and returns a ready logger.
func New(cfg *Config) (*FileLogger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &FileLogger{cfg: cfg, level: cfg.Level}

	if dir := filepath.Dir(cfg.LogFilePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	file, err := os.OpenFile(l.cfg.LogFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	l.file = file
	l.size = info.Size()
	l.out = file
	if l.cfg.EnableConsole {
		l.out = io.MultiWriter(file, os.Stdout)
	}
	return nil
}

func (l *FileLogger) Debug(msg string, fields ...Field) { l.write(LevelDebug, msg, nil, fields) }
func (l *FileLogger) Info(msg string, fields ...Field)  { l.write(LevelInfo, msg, nil, fields) }
func (l *FileLogger) Warn(msg string, fields ...Field)  { l.write(LevelWarn, msg, nil, fields) }

// Error additionally records the call site of the failure.
func (l *FileLogger) Error(msg string, err error, fields ...Field) {
	l.write(LevelError, msg, err, fields)
}

// SetLevel sets the minimum level that gets written.
func (l *FileLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Close flushes and closes the underlying log file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *FileLogger) write(level Level, msg string, err error, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level || l.file == nil {
		return
	}

	entry := formatEntry(level, msg, err, fields)

	if l.size+int64(len(entry)) > l.cfg.MaxFileSize {
		l.rotate()
	}

	l.out.Write([]byte(entry))
	l.size += int64(len(entry))
}

func formatEntry(level Level, msg string, err error, fields []Field) string {
	var sb strings.Builder

	sb.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	sb.WriteString(" [")
	sb.WriteString(level.String())
	sb.WriteString("] ")
	sb.WriteString(msg)

	if err != nil {
		fmt.Fprintf(&sb, " error=%q", err.Error())
	}
	for _, f := range fields {
		fmt.Fprintf(&sb, " %s=%v", f.Key, f.Value)
	}
	if level == LevelError {
		if file, line, ok := errorCallSite(); ok {
			fmt.Fprintf(&sb, " at=%s:%d", filepath.Base(file), line)
		}
	}

	sb.WriteString("\n")
	return sb.String()
}

// errorCallSite walks up the stack to the first frame outside this
// package, so both FileLogger.Error and the package-level Error shim
// report the real failure location.
func errorCallSite() (string, int, bool) {
	for skip := 3; skip < 8; skip++ {
		_, file, line, ok := runtime.Caller(skip)
		if !ok {
			return "", 0, false
		}
		if filepath.Base(file) != "logger.go" {
			return file, line, true
		}
	}
	return "", 0, false
}

// rotate shifts {path}.N backups up by one and reopens a fresh file.
// Caller holds the mutex.
func (l *FileLogger) rotate() {
	l.file.Close()
	l.file = nil

	path := l.cfg.LogFilePath
	os.Remove(fmt.Sprintf("%s.%d", path, l.cfg.MaxBackups))
	for i := l.cfg.MaxBackups - 1; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", path, i), fmt.Sprintf("%s.%d", path, i+1))
	}
	os.Rename(path, path+".1")

	l.open()
}

var (
	globalMu sync.RWMutex
	global   Logger
)

// Init installs the global logger used by the package-level functions.
// A previously installed logger is closed first.
func Init(cfg *Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if global != nil {
		global.Close()
	}
	global = l
	return nil
}

// GetLogger returns the global logger, or a discard logger before Init.
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if global == nil {
		return noop{}
	}
	return global
}

// SetGlobalLogger replaces the global logger. Tests use this to inject
// a capture logger.
func SetGlobalLogger(l Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = l
}

// Close closes and removes the global logger.
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		return nil
	}
	err := global.Close()
	global = nil
	return err
}

func Debug(msg string, fields ...Field) { GetLogger().Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { GetLogger().Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { GetLogger().Warn(msg, fields...) }

func Error(msg string, err error, fields ...Field) { GetLogger().Error(msg, err, fields...) }

type noop struct{}

func (noop) Debug(string, ...Field)        {}
func (noop) Info(string, ...Field)         {}
func (noop) Warn(string, ...Field)         {}
func (noop) Error(string, error, ...Field) {}
func (noop) SetLevel(Level)                {}
func (noop) Close() error                  { return nil }
