package wechat

import (
	"context"
	"log/slog"
)

// sendLadder is tried in order; the first combination accepted wins.
var sendLadder = [][]Key{
	{KeyEnter},
	{KeyControl, KeyEnter},
	{KeyAlt, KeyS},
}

// sendText focuses the compose box, pastes message and submits it. The clipboard is restored
// afterwards whatever the outcome.
func (c *Controller) sendText(ctx context.Context, message string) (bool, error) {
	t := c.profile.Timing

	located, err := c.locateInputBox(ctx)
	if err != nil {
		return false, err
	}
	if !located {
		c.logger.Debug("Retrying input box location", slog.Duration("after", t.InputBoxRetry.ToDuration()))
		if err := c.sleep(ctx, t.InputBoxRetry.ToDuration()); err != nil {
			return false, err
		}
		if located, err = c.locateInputBox(ctx); err != nil || !located {
			return false, err
		}
	}

	snap, err := c.pasteText(ctx, message)
	defer c.restoreClipboard(snap)
	if err != nil {
		return c.stepFailed(StageSendText, err)
	}

	for i, combo := range sendLadder {
		err := c.pressThen(ctx, t.SendSubmit.ToDuration(), combo...)
		if err == nil {
			c.logger.Debug("Message submitted",
				slog.String("keys", comboName(combo)),
				slog.Int("attempt", i+1))
			return true, nil
		}
		if isAbort(err) {
			return false, err
		}
		c.logger.Debug("Send strategy failed",
			slog.String("keys", comboName(combo)),
			slog.Int("attempt", i+1),
			slog.String("error", err.Error()))
	}
	return false, nil
}
