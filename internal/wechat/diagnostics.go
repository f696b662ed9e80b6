package wechat

import (
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kbinani/screenshot"
)

// Capturer grabs a screen region.
type Capturer interface {
	Capture(r Rect) (image.Image, error)
}

type screenCapturer struct{}

func NewScreenCapturer() Capturer {
	return screenCapturer{}
}

func (screenCapturer) Capture(r Rect) (image.Image, error) {
	return screenshot.CaptureRect(image.Rect(r.Left, r.Top, r.Right, r.Bottom))
}

// saveDiagnostics writes a PNG of the target window when an attempt fails past the version
// check. It does nothing unless a diagnostics directory is configured.
func (c *Controller) saveDiagnostics(target Handle, stage Stage) {
	dir := c.profile.DiagnosticsDir
	if dir == "" || c.capturer == nil || stage == StageVersionCheck {
		return
	}

	rect, err := c.diagnosticsRect(target)
	if err != nil {
		c.logger.Debug("Skipping failure screenshot", slog.String("error", err.Error()))
		return
	}

	path, err := c.writeCapture(dir, rect, stage)
	if err != nil {
		c.logger.Warn("Failed to save failure screenshot",
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		return
	}
	c.logger.Info("Saved failure screenshot", slog.String("path", path), slog.String("stage", string(stage)))
}

// diagnosticsRect is the target window when one was found, else the whole primary screen.
func (c *Controller) diagnosticsRect(target Handle) (Rect, error) {
	if target != 0 {
		if r, err := c.desktop.WindowRect(target); err == nil && r.Width() > 0 && r.Height() > 0 {
			return r, nil
		}
	}
	w, h := c.desktop.ScreenSize()
	if w <= 0 || h <= 0 {
		return Rect{}, fmt.Errorf("no capturable screen area")
	}
	return Rect{Right: w, Bottom: h}, nil
}

func (c *Controller) writeCapture(dir string, rect Rect, stage Stage) (string, error) {
	img, err := c.capturer.Capture(rect)
	if err != nil {
		return "", fmt.Errorf("capture: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create diagnostics dir: %w", err)
	}

	name := fmt.Sprintf("%s-%s.png", c.now().Format("20060102-150405.000"), stage)
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("create screenshot file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close screenshot file: %w", err)
	}
	return path, nil
}
