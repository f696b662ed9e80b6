package wechat

import (
	"context"
	"log/slog"
)

// searchContact opens the chat with contact through the client's global search. The client
// gives no acknowledgement that the chat opened; Enter selects the first result.
func (c *Controller) searchContact(ctx context.Context, contact string) (bool, error) {
	win, _, found, err := c.findWindow()
	if err != nil {
		return c.stepFailed(StageSearchContact, err)
	}
	if !found || c.desktop.ForegroundWindow() != win.Handle {
		c.logger.Error("WeChat not focused, aborting search",
			slog.Bool("window_found", found),
			slog.Uint64("hwnd", uint64(win.Handle)))
		return false, nil
	}

	var snap ClipboardSnapshot
	defer func() { c.restoreClipboard(snap) }()

	t := c.profile.Timing
	if err := c.pressThen(ctx, t.SearchOpen.ToDuration(), KeyControl, KeyF); err != nil {
		return c.stepFailed(StageSearchContact, err)
	}
	if err := c.pressThen(ctx, t.SearchClear.ToDuration(), KeyControl, KeyA); err != nil {
		return c.stepFailed(StageSearchContact, err)
	}
	if err := c.pressThen(ctx, t.SearchClear.ToDuration(), KeyDelete); err != nil {
		return c.stepFailed(StageSearchContact, err)
	}

	snap, err = c.pasteText(ctx, contact)
	if err != nil {
		return c.stepFailed(StageSearchContact, err)
	}

	if err := c.pressThen(ctx, t.SearchResults.ToDuration(), KeyEnter); err != nil {
		return c.stepFailed(StageSearchContact, err)
	}

	c.logger.Debug("Contact search submitted", slog.String("contact", contact))
	return true, nil
}
