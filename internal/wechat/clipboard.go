package wechat

import (
	"context"
	"fmt"
	"log/slog"
)

// ClipboardSnapshot is the clipboard text captured before a paste. It belongs to one paste
// operation and is handed back to restoreClipboard afterwards.
type ClipboardSnapshot struct {
	text string
	held bool
}

func (s ClipboardSnapshot) Held() bool { return s.held }

func (c *Controller) snapshotClipboard() ClipboardSnapshot {
	text, ok, err := c.clipboard.ReadText()
	if err != nil {
		c.logger.Debug("Clipboard read failed, nothing to restore", slog.String("error", err.Error()))
		return ClipboardSnapshot{}
	}
	if !ok {
		return ClipboardSnapshot{}
	}
	return ClipboardSnapshot{text: text, held: true}
}

// pasteText replaces the focused field's content with text via the clipboard. Per-character
// key synthesis is unreliable for non-ASCII input. The returned snapshot is valid even when
// an error is returned, so callers can always restore.
func (c *Controller) pasteText(ctx context.Context, text string) (ClipboardSnapshot, error) {
	timing := c.profile.Timing
	snap := c.snapshotClipboard()

	if err := c.pressThen(ctx, timing.SelectAll.ToDuration(), KeyControl, KeyA); err != nil {
		return snap, err
	}
	if err := c.pressThen(ctx, timing.ClearField.ToDuration(), KeyDelete); err != nil {
		return snap, err
	}

	if err := c.clipboard.WriteText(text); err != nil {
		return snap, fmt.Errorf("write clipboard: %w", err)
	}
	if err := c.sleep(ctx, timing.ClipboardWrite.ToDuration()); err != nil {
		return snap, err
	}

	if err := c.pressThen(ctx, timing.Paste.ToDuration(), KeyControl, KeyV); err != nil {
		return snap, err
	}
	return snap, nil
}

// restoreClipboard puts the snapshot back. Failures are logged and swallowed: a sent message
// is never reported as failed because of the clipboard.
func (c *Controller) restoreClipboard(snap ClipboardSnapshot) {
	if !snap.held {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("Clipboard restore panic recovered", slog.Any("panic", r))
		}
	}()
	if err := c.clipboard.WriteText(snap.text); err != nil {
		c.logger.Debug("Clipboard restore failed", slog.String("error", err.Error()))
	}
}
