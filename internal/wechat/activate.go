package wechat

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

var modifierKeys = []Key{KeyShift, KeyControl, KeyAlt}

// releaseModifiers lifts modifiers left held by an earlier aborted interaction; a stuck
// modifier corrupts every synthesized keystroke after it.
func (c *Controller) releaseModifiers() {
	for _, k := range modifierKeys {
		if !c.desktop.IsKeyDown(k) {
			continue
		}
		if err := c.desktop.KeyUp(k); err != nil {
			c.logger.Debug("Failed to release modifier",
				slog.String("key", k.String()),
				slog.String("error", err.Error()))
			continue
		}
		c.logger.Debug("Released stuck modifier", slog.String("key", k.String()))
	}
}

// activateWindow brings h to the foreground. It returns false unless the window is confirmed
// foreground, so no input is ever simulated against some other application.
func (c *Controller) activateWindow(ctx context.Context, h Handle) (bool, error) {
	// AttachThreadInput binds the calling OS thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	start := time.Now()
	c.releaseModifiers()

	if c.desktop.IsMinimized(h) {
		if err := c.desktop.Restore(h); err != nil {
			c.logger.Debug("Restore of minimized window failed",
				slog.Uint64("hwnd", uint64(h)),
				slog.String("error", err.Error()))
		}
	}

	if err := c.desktop.SetForeground(h); err != nil {
		c.logger.Debug("SetForegroundWindow rejected (foreground lock)",
			slog.Uint64("hwnd", uint64(h)),
			slog.String("error", err.Error()))
	}
	if c.desktop.ForegroundWindow() == h {
		c.logger.Debug("Window activated directly", slog.Uint64("hwnd", uint64(h)))
		return true, nil
	}

	c.attachAndForeground(h)

	polls := c.profile.Timing.FocusPollCount
	for i := range polls {
		if c.desktop.ForegroundWindow() == h {
			c.logger.Debug("Window activated",
				slog.Uint64("hwnd", uint64(h)),
				slog.Int("poll", i+1),
				slog.Duration("elapsed", time.Since(start)))
			return true, nil
		}
		if err := c.sleep(ctx, c.profile.Timing.FocusPoll.ToDuration()); err != nil {
			return false, err
		}
		_ = c.desktop.SetForeground(h)
	}

	if fg := c.desktop.ForegroundWindow(); fg != h {
		c.logger.Error("Failed to bring WeChat window to foreground, aborting to prevent misdirected input",
			slog.Uint64("hwnd", uint64(h)),
			slog.Uint64("foreground", uint64(fg)),
			slog.Int("polls", polls),
			slog.Duration("elapsed", time.Since(start)))
		return false, nil
	}
	return true, nil
}

// attachAndForeground joins this thread's input queue to the foreground window's thread so
// the foreground lock no longer applies, retries, and always detaches.
func (c *Controller) attachAndForeground(h Handle) {
	fg := c.desktop.ForegroundWindow()
	if fg == 0 {
		return
	}

	fgThread := c.desktop.WindowThreadID(fg)
	current := c.desktop.CurrentThreadID()
	if fgThread == 0 || fgThread == current {
		return
	}

	if err := c.desktop.AttachThreadInput(current, fgThread, true); err != nil {
		c.logger.Error("AttachThreadInput failed",
			slog.Uint64("current_thread", uint64(current)),
			slog.Uint64("foreground_thread", uint64(fgThread)),
			slog.String("error", err.Error()))
		return
	}
	defer func() {
		if err := c.desktop.AttachThreadInput(current, fgThread, false); err != nil {
			c.logger.Debug("Failed to detach thread input",
				slog.Uint64("current_thread", uint64(current)),
				slog.Uint64("foreground_thread", uint64(fgThread)),
				slog.String("error", err.Error()))
		}
	}()

	_ = c.desktop.SetForeground(h)
	_ = c.desktop.SetFocus(h)
}

// waitForIdle gives the user up to IdleWait to stop typing before input is synthesized. It
// proceeds once the wait is exhausted.
func (c *Controller) waitForIdle(ctx context.Context) error {
	threshold := c.profile.IdleThreshold.ToDuration()
	budget := c.profile.IdleWait.ToDuration()
	const step = 100 * time.Millisecond

	for waited := time.Duration(0); waited < budget; waited += step {
		idle := c.desktop.IdleTime()
		if idle >= threshold {
			return nil
		}
		if waited == 0 {
			c.logger.Debug("User input active, waiting before automation",
				slog.Duration("idle", idle),
				slog.Duration("threshold", threshold))
		}
		if err := c.sleep(ctx, step); err != nil {
			return err
		}
	}
	c.logger.Debug("User still active after idle wait, proceeding", slog.Duration("waited", budget))
	return nil
}
