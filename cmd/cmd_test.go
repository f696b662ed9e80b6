package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joncrangle/wechat-mcp/internal/config"
	"github.com/spf13/cobra"
)

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "wechat-mcp" {
		t.Errorf("expected command name 'wechat-mcp', got '%s'", rootCmd.Use)
	}
	if rootCmd.RunE == nil {
		t.Error("root command should serve when run without a subcommand")
	}
	if rootCmd.Version != Version {
		t.Errorf("root version = %q, want %q", rootCmd.Version, Version)
	}
}

func TestCommandHierarchy(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"serve", "send", "status", "version"} {
		if !names[want] {
			t.Errorf("root command should have subcommand: %s", want)
		}
	}
}

func TestConfigFlags(t *testing.T) {
	expected := []string{"debug", "websocket", "port", "config", "log-format", "log-file", "log-rotate", "max-log-size", "max-log-age"}

	for _, c := range []*cobra.Command{rootCmd, serveCmd, sendCmd, statusCmd} {
		for _, name := range expected {
			if c.Flags().Lookup(name) == nil {
				t.Errorf("%s should have --%s flag", c.Name(), name)
			}
		}
	}

	if sendCmd.Flags().Lookup("delay") == nil {
		t.Error("send should have --delay flag")
	}
	if flag := serveCmd.Flags().Lookup("port"); flag.DefValue != "8765" {
		t.Errorf("default port should be 8765, got %s", flag.DefValue)
	}
}

func TestFlagBindings(t *testing.T) {
	originalCfg := *cfg
	originalDelay := sendDelay
	defer func() {
		*cfg = originalCfg
		sendDelay = originalDelay
	}()

	err := sendCmd.ParseFlags([]string{"--debug", "--websocket", "--port=9000", "--log-format=json", "--config=profile.yaml", "--delay=90s"})
	if err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	if !cfg.Debug || !cfg.WebSocket {
		t.Error("debug and websocket should be true")
	}
	if cfg.Port != 9000 {
		t.Errorf("port should be 9000, got %d", cfg.Port)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("log format should be 'json', got '%s'", cfg.LogFormat)
	}
	if cfg.ConfigFile != "profile.yaml" {
		t.Errorf("config should be 'profile.yaml', got '%s'", cfg.ConfigFile)
	}
	if sendDelay != 90*time.Second {
		t.Errorf("delay should be 90s, got %s", sendDelay)
	}
}

func TestSendArgs(t *testing.T) {
	if err := sendCmd.Args(sendCmd, []string{"Bob"}); err == nil {
		t.Error("send should require a contact and a message")
	}
	if err := sendCmd.Args(sendCmd, []string{"Bob", "hi"}); err != nil {
		t.Errorf("send with two args: %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	defer versionCmd.SetOut(nil)

	versionCmd.Run(versionCmd, nil)

	if !strings.Contains(out.String(), "wechat-mcp version "+Version) {
		t.Errorf("version output = %q", out.String())
	}
}

func TestPrepareConfig(t *testing.T) {
	t.Setenv(config.EnvFileVar, "")
	t.Setenv(config.EnvDebugVar, "true")
	t.Setenv(config.EnvConfigVar, "")
	t.Setenv(config.EnvLogFileVar, "")

	path := filepath.Join(t.TempDir(), "profile.yaml")
	profile := "process_name: Weixin.exe\ntiming:\n  search_results: 3s\n"
	if err := os.WriteFile(path, []byte(profile), 0o600); err != nil {
		t.Fatal(err)
	}

	c := &config.Config{LogFormat: "text", ConfigFile: path}
	if err := prepareConfig(c); err != nil {
		t.Fatalf("prepareConfig() error = %v", err)
	}
	if !c.Debug {
		t.Error("WECHAT_MCP_DEBUG should enable debug")
	}
	if c.Automation.ProcessName != "Weixin.exe" {
		t.Errorf("process name = %q", c.Automation.ProcessName)
	}
	if got := c.Automation.Timing.SearchResults.ToDuration(); got != 3*time.Second {
		t.Errorf("search_results = %s, want 3s", got)
	}
}

func TestPrepareConfigErrors(t *testing.T) {
	t.Setenv(config.EnvFileVar, "")
	t.Setenv(config.EnvConfigVar, "")

	tests := []struct {
		name string
		cfg  config.Config
	}{
		{"missing profile", config.Config{LogFormat: "text", ConfigFile: filepath.Join(t.TempDir(), "absent.yaml")}},
		{"bad log format", config.Config{LogFormat: "xml"}},
		{"bad port", config.Config{LogFormat: "text", WebSocket: true, Port: 80}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.cfg
			if err := prepareConfig(&c); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
