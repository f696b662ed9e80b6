package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvFileVar    = "WECHAT_MCP_ENV"
	EnvConfigVar  = "WECHAT_MCP_CONFIG"
	EnvDebugVar   = "WECHAT_MCP_DEBUG"
	EnvLogFileVar = "WECHAT_MCP_LOG_FILE"
)

// LoadEnv loads a .env file from the executable directory, or from WECHAT_MCP_ENV, into the
// process environment. Variables already set are left untouched.
func LoadEnv() string {
	path := resolveEnvPath()
	if path != "" {
		_ = godotenv.Load(path)
	}
	return path
}

func resolveEnvPath() string {
	if alt := os.Getenv(EnvFileVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}
	return ""
}

// ApplyEnv fills fields the command line left empty from WECHAT_MCP_* variables.
func (c *Config) ApplyEnv() {
	if c.ConfigFile == "" {
		c.ConfigFile = strings.TrimSpace(os.Getenv(EnvConfigVar))
	}
	if c.LogFile == "" {
		c.LogFile = strings.TrimSpace(os.Getenv(EnvLogFileVar))
	}
	if !c.Debug {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvDebugVar))) {
		case "1", "true", "yes", "on":
			c.Debug = true
		}
	}
}
