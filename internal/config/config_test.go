package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidation(t *testing.T) {
	logFile := filepath.Join(os.TempDir(), "test.log")

	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name: "valid config",
			config: Config{
				Port:       8765,
				WebSocket:  true,
				LogFormat:  "text",
				MaxLogSize: 10,
				MaxLogAge:  30,
			},
		},
		{name: "zero config", config: Config{}},
		{name: "invalid port too low", config: Config{WebSocket: true, Port: 1000}, expectError: true},
		{name: "invalid port too high", config: Config{WebSocket: true, Port: 70000}, expectError: true},
		{name: "websocket disabled should not validate port", config: Config{Port: 70000}},
		{name: "invalid log format", config: Config{LogFormat: "invalid"}, expectError: true},
		{name: "valid json log format", config: Config{LogFormat: "json"}},
		{name: "log rotation without log file", config: Config{LogRotate: true}, expectError: true},
		{
			name:        "invalid max log size too low",
			config:      Config{LogFile: logFile, LogRotate: true, MaxLogSize: 0, MaxLogAge: 30},
			expectError: true,
		},
		{
			name:        "invalid max log size too high",
			config:      Config{LogFile: logFile, LogRotate: true, MaxLogSize: 2000, MaxLogAge: 30},
			expectError: true,
		},
		{
			name:        "invalid max log age too high",
			config:      Config{LogFile: logFile, LogRotate: true, MaxLogSize: 10, MaxLogAge: 400},
			expectError: true,
		},
		{
			name:   "valid log rotation config",
			config: Config{LogFile: logFile, LogRotate: true, MaxLogSize: 10, MaxLogAge: 30},
		},
		{
			name: "invalid automation profile",
			config: Config{Automation: Automation{
				InputBox: []Candidate{{Kind: "diagonal"}},
			}},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestInitLogger(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		logger := InitLogger(&Config{Debug: true, LogFormat: format})
		if logger == nil {
			t.Errorf("%s: expected logger but got nil", format)
		}
	}
}

func TestInitLoggerWithLogFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "wechat-mcp.log")
	defer CloseLogFile()

	logger := InitLogger(&Config{LogFormat: "json", LogFile: logFile})
	logger.Info("hello", "contact", "Bob")
	CloseLogFile()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("log file should have been created: %v", err)
	}
	if !strings.Contains(string(data), `"contact":"Bob"`) {
		t.Errorf("log file = %q", data)
	}
}

func TestSetupLogFileError(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "testfile")
	if err := os.WriteFile(tmpFile, []byte("test"), 0o644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}

	// A regular file cannot be used as a directory.
	cfg := &Config{LogFile: filepath.Join(tmpFile, "invalid", "test.log")}
	if _, err := setupLogFile(cfg); err == nil {
		t.Error("expected error for invalid log file path")
	}
}

func TestRotateLogIfNeeded(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")
	content := strings.Repeat("test log line\n", 100000)
	if err := os.WriteFile(logFile, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to create test log file: %v", err)
	}

	if err := rotateLogIfNeeded(&Config{LogFile: logFile, MaxLogSize: 1}); err != nil {
		t.Fatalf("unexpected error during log rotation: %v", err)
	}
	if _, err := os.Stat(logFile); !os.IsNotExist(err) {
		t.Error("oversized log should have been renamed")
	}
	rotated, _ := filepath.Glob(logFile + ".*")
	if len(rotated) != 1 {
		t.Errorf("rotated files = %v, want one", rotated)
	}
}

func TestRotateLogIfNeededNoFile(t *testing.T) {
	cfg := &Config{LogFile: filepath.Join(t.TempDir(), "nonexistent.log"), MaxLogSize: 1}
	if err := rotateLogIfNeeded(cfg); err != nil {
		t.Errorf("should not error when file doesn't exist: %v", err)
	}
}

func TestCleanupOldLogs(t *testing.T) {
	base := filepath.Join(t.TempDir(), "test.log")
	oldLog := base + ".2023-01-01T12-00-00"
	newLog := base + ".2023-01-02T12-00-00"
	for _, p := range []string{oldLog, newLog} {
		if err := os.WriteFile(p, []byte("log"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	oldTime := time.Now().Add(-40 * 24 * time.Hour)
	if err := os.Chtimes(oldLog, oldTime, oldTime); err != nil {
		t.Fatal(err)
	}

	if err := cleanupOldLogs(&Config{LogFile: base, MaxLogAge: 30}); err != nil {
		t.Fatalf("unexpected error during cleanup: %v", err)
	}
	if _, err := os.Stat(oldLog); !os.IsNotExist(err) {
		t.Error("log older than MaxLogAge should be removed")
	}
	if _, err := os.Stat(newLog); err != nil {
		t.Error("recent log should be kept")
	}
}

func TestCheckPortAvailable(t *testing.T) {
	if err := CheckPortAvailable(0); err != nil {
		t.Errorf("port 0 should be available: %v", err)
	}
}
