// Package cmd implements the command-line interface for wechat-mcp.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joncrangle/wechat-mcp/internal/config"
	"github.com/joncrangle/wechat-mcp/internal/service"

	"github.com/spf13/cobra"
)

// Version is reported by the version command and in the protocol handshake.
var Version = "1.0.0"

var cfg = &config.Config{}

var sendDelay time.Duration

var rootCmd = &cobra.Command{
	Use:   "wechat-mcp",
	Short: "Send WeChat messages from MCP clients",
	Long: `wechat-mcp drives the WeChat desktop client on Windows to send text messages,
and exposes that as MCP tools over stdin and stdout.

Run without a subcommand to serve MCP requests.`,
	Version:      Version,
	SilenceUsage: true,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runServe()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  "Display version information for wechat-mcp",
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "wechat-mcp version %s\n", Version)
		fmt.Fprintln(out, "WeChat automation over MCP")
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP requests on stdin and stdout",
	Long: `Serve newline-delimited JSON-RPC requests on stdin and write responses to stdout.
Logs never go to stdout; use --debug for stderr or --log-file for a file.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runServe()
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <contact> <message>",
	Short: "Send one message and exit",
	Long:  "Send a text message to a WeChat contact or group, optionally after --delay",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] == "" || args[1] == "" {
			return fmt.Errorf("❌ contact and message must not be empty")
		}
		if sendDelay < 0 {
			return fmt.Errorf("❌ delay must not be negative, got %s", sendDelay)
		}
		svc, err := newService()
		if err != nil {
			return err
		}
		defer config.CloseLogFile()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out, err := svc.Send(ctx, args[0], args[1], sendDelay)
		if err != nil {
			return fmt.Errorf("❌ %v", err)
		}
		if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
		if !out.OK {
			return fmt.Errorf("❌ send failed at %s: %s", out.Stage, out.Reason)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether WeChat can be automated",
	Long:  "Report whether WeChat is running, its version and whether it is supported",
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		defer config.CloseLogFile()

		st := svc.Status(cmd.Context())
		if err := writeJSON(cmd.OutOrStdout(), st); err != nil {
			return err
		}
		if st.Error != "" {
			return fmt.Errorf("❌ %s", st.Error)
		}
		return nil
	},
}

// prepareConfig layers .env, WECHAT_MCP_* variables and the automation profile under the
// flags, then validates the result.
func prepareConfig(c *config.Config) error {
	config.LoadEnv()
	c.ApplyEnv()

	profile, err := config.LoadAutomation(c.ConfigFile)
	if err != nil {
		return err
	}
	c.Automation = profile
	return c.Validate()
}

func newService() (*service.Service, error) {
	if err := prepareConfig(cfg); err != nil {
		return nil, err
	}
	return service.NewService(cfg, Version)
}

func runServe() error {
	if err := prepareConfig(cfg); err != nil {
		return err
	}
	if cfg.WebSocket {
		if err := config.CheckPortAvailable(cfg.Port); err != nil {
			return fmt.Errorf("❌ %v", err)
		}
	}
	svc, err := service.NewService(cfg, Version)
	if err != nil {
		return err
	}
	return svc.Run()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// addConfigFlags adds all configuration flags to a command
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&cfg.Debug, "debug", "d", false, "Debug logging to stderr")
	cmd.Flags().BoolVarP(&cfg.WebSocket, "websocket", "w", false, "Enable the WebSocket event feed")
	cmd.Flags().IntVarP(&cfg.Port, "port", "p", 8765, "WebSocket event feed port")
	cmd.Flags().StringVarP(&cfg.ConfigFile, "config", "c", "", "Automation profile (YAML)")

	cmd.Flags().StringVar(&cfg.LogFormat, "log-format", "text", "Log format (text or json)")
	cmd.Flags().StringVar(&cfg.LogFile, "log-file", "", "Log file path (empty for no file logging)")
	cmd.Flags().BoolVar(&cfg.LogRotate, "log-rotate", false, "Enable log file rotation")
	cmd.Flags().IntVar(&cfg.MaxLogSize, "max-log-size", 10, "Maximum log file size in MB")
	cmd.Flags().IntVar(&cfg.MaxLogAge, "max-log-age", 30, "Maximum log file age in days")
}

func init() {
	addConfigFlags(rootCmd)
	addConfigFlags(serveCmd)
	addConfigFlags(sendCmd)
	addConfigFlags(statusCmd)
	sendCmd.Flags().DurationVar(&sendDelay, "delay", 0, "Wait this long before sending (e.g. 30s)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
