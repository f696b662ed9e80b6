package wechat

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// VersionInfo is a point-in-time snapshot of the running client. It is produced per attempt
// and passed down explicitly rather than cached on the controller.
type VersionInfo struct {
	// Version is the dotted file version, empty when it could not be read.
	Version string
	// Supported is true for the NT framework: major >= 4, or an NT window was found.
	Supported  bool
	WindowKind WindowKind
}

func (v VersionInfo) FrameworkType() string {
	if v.Supported {
		return "NT framework (4.0+)"
	}
	return "Legacy (<4.0, skipped)"
}

// FormatFileVersion renders the packed VS_FIXEDFILEINFO fields as high.low.high.low.
func FormatFileVersion(ms, ls uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", ms>>16, ms&0xFFFF, ls>>16, ls&0xFFFF)
}

// majorVersion returns 0 when the leading component is not a number.
func majorVersion(version string) int {
	head, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0
	}
	return n
}

// DetectVersion inspects the first running process whose name contains the configured process
// name. A window classified NT marks the client supported even when the version resource is
// missing or unreadable.
func (c *Controller) DetectVersion(ctx context.Context) VersionInfo {
	_, kind, found, err := c.findWindow()
	if err != nil {
		c.logger.Debug("Window scan failed during version detection", slog.String("error", err.Error()))
	}
	windowNT := found && kind == KindNT
	info := VersionInfo{Supported: windowNT, WindowKind: kind}

	procs, err := c.processes.Processes(ctx)
	if err != nil {
		c.logger.Warn("Could not list processes", slog.String("error", err.Error()))
		return info
	}

	needle := strings.ToLower(c.profile.ProcessName)
	for _, p := range procs {
		if !strings.Contains(strings.ToLower(p.Name), needle) || p.Exe == "" {
			continue
		}

		version, err := c.versions.FileVersion(p.Exe)
		if err != nil {
			c.logger.Warn("Could not read WeChat file version",
				slog.String("exe", p.Exe),
				slog.Int("pid", int(p.PID)),
				slog.Bool("nt_window", windowNT),
				slog.String("error", err.Error()))
			return info
		}

		major := majorVersion(version)
		info.Version = version
		info.Supported = windowNT || major >= 4

		switch {
		case info.Supported && major >= 4:
			c.logger.Info("Detected WeChat NT framework", slog.String("version", version))
		case info.Supported:
			c.logger.Info("Detected WeChat NT framework window", slog.String("file_version", version))
		default:
			c.logger.Info("Detected legacy WeChat, automation will be skipped", slog.String("version", version))
		}
		return info
	}

	c.logger.Warn("Could not detect WeChat process", slog.Bool("nt_window", windowNT))
	return info
}
