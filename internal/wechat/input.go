package wechat

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// sleepCtx waits d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// isAbort reports errors that must end the attempt instead of failing a single step.
func isAbort(err error) bool {
	return errors.Is(err, ErrFailSafe) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// checkFailSafe aborts when the cursor sits in any screen corner.
func (c *Controller) checkFailSafe() error {
	if !c.profile.FailSafeEnabled() {
		return nil
	}
	p, err := c.desktop.CursorPos()
	if err != nil {
		return nil
	}
	w, h := c.desktop.ScreenSize()
	if (p.X == 0 || p.X == w-1) && (p.Y == 0 || p.Y == h-1) {
		return ErrFailSafe
	}
	return nil
}

// press sends one key combination followed by the global action pause.
func (c *Controller) press(ctx context.Context, keys ...Key) error {
	if err := c.checkFailSafe(); err != nil {
		return err
	}
	if err := c.desktop.Hotkey(keys...); err != nil {
		return fmt.Errorf("press %s: %w", comboName(keys), err)
	}
	return c.sleep(ctx, c.profile.Timing.ActionPause.ToDuration())
}

// click moves to (x, y), clicks the left button and applies the global action pause.
func (c *Controller) click(ctx context.Context, x, y int) error {
	if err := c.checkFailSafe(); err != nil {
		return err
	}
	if err := c.desktop.Click(x, y); err != nil {
		return fmt.Errorf("click (%d,%d): %w", x, y, err)
	}
	return c.sleep(ctx, c.profile.Timing.ActionPause.ToDuration())
}

// pressThen presses keys and waits the given settle delay.
func (c *Controller) pressThen(ctx context.Context, settle time.Duration, keys ...Key) error {
	if err := c.press(ctx, keys...); err != nil {
		return err
	}
	return c.sleep(ctx, settle)
}

func comboName(keys []Key) string {
	name := ""
	for i, k := range keys {
		if i > 0 {
			name += "+"
		}
		name += k.String()
	}
	return name
}
