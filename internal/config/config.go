// Package config holds runtime configuration and logger setup for wechat-mcp.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type Config struct {
	Debug      bool
	WebSocket  bool
	Port       int
	LogFormat  string
	LogFile    string
	LogRotate  bool
	MaxLogSize int // MB
	MaxLogAge  int // days

	// ConfigFile points at an optional YAML automation profile.
	ConfigFile string
	Automation Automation
}

const rotatedSuffixLayout = "2006-01-02T15-04-05"

var (
	logFileMu sync.Mutex
	logFile   *os.File
)

// Validate checks ranges of user supplied settings.
func (c *Config) Validate() error {
	if c.WebSocket {
		if c.Port < 1024 || c.Port > 65535 {
			return fmt.Errorf("port must be between 1024 and 65535, got %d", c.Port)
		}
	}

	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("log format must be 'text' or 'json', got %q", c.LogFormat)
	}

	if c.LogRotate {
		if c.LogFile == "" {
			return fmt.Errorf("log rotation requires --log-file")
		}
		if c.MaxLogSize < 1 || c.MaxLogSize > 1000 {
			return fmt.Errorf("max log size must be between 1 and 1000 MB, got %d", c.MaxLogSize)
		}
		if c.MaxLogAge < 1 || c.MaxLogAge > 365 {
			return fmt.Errorf("max log age must be between 1 and 365 days, got %d", c.MaxLogAge)
		}
	}

	return c.Automation.Validate()
}

// InitLogger builds the process logger. Stdout is reserved for protocol frames, so logs go to
// stderr (debug) or the configured log file.
func InitLogger(cfg *Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	var out io.Writer = io.Discard
	if cfg.Debug {
		out = os.Stderr
	}

	if cfg.LogFile != "" {
		f, err := setupLogFile(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", cfg.LogFile, err)
		} else if cfg.Debug {
			out = io.MultiWriter(os.Stderr, f)
		} else {
			out = f
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}

func setupLogFile(cfg *Config) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if cfg.LogRotate {
		if err := rotateLogIfNeeded(cfg); err != nil {
			return nil, err
		}
		if err := cleanupOldLogs(cfg); err != nil {
			return nil, err
		}
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logFileMu.Lock()
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f
	logFileMu.Unlock()

	return f, nil
}

// rotateLogIfNeeded renames the log file with a timestamp suffix once it exceeds MaxLogSize.
func rotateLogIfNeeded(cfg *Config) error {
	info, err := os.Stat(cfg.LogFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	if info.Size() < int64(cfg.MaxLogSize)*1024*1024 {
		return nil
	}

	rotated := cfg.LogFile + "." + time.Now().Format(rotatedSuffixLayout)
	if err := os.Rename(cfg.LogFile, rotated); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}
	return nil
}

// cleanupOldLogs removes rotated log files older than MaxLogAge days.
func cleanupOldLogs(cfg *Config) error {
	matches, err := filepath.Glob(cfg.LogFile + ".*")
	if err != nil {
		return fmt.Errorf("failed to list rotated logs: %w", err)
	}

	cutoff := time.Now().Add(-time.Duration(cfg.MaxLogAge) * 24 * time.Hour)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(m)
		}
	}
	return nil
}

// CloseLogFile closes the log file opened by InitLogger, if any.
func CloseLogFile() {
	logFileMu.Lock()
	defer logFileMu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// CheckPortAvailable reports whether the event feed port can be bound on localhost.
func CheckPortAvailable(port int) error {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("port %d is not available: %w", port, err)
	}
	return l.Close()
}
