package wechat

import (
	"context"
	"log/slog"
	"math"

	"github.com/joncrangle/wechat-mcp/internal/config"
)

// CandidatePoints expands the candidate ladder into screen coordinates, in order.
func CandidatePoints(candidates []config.Candidate, win Rect, screenW, screenH int) []Point {
	points := make([]Point, 0, len(candidates))
	for _, cand := range candidates {
		switch cand.Kind {
		case config.CandidateAbsolute:
			points = append(points, Point{
				X: scale(screenW, cand.X),
				Y: scale(screenH, cand.Y),
			})
		default:
			points = append(points, Point{
				X: win.Left + scale(win.Width(), cand.X),
				Y: win.Bottom - cand.BottomOffset,
			})
		}
	}
	return points
}

// scale floors n*frac; the epsilon keeps fractions like 1/3 from landing one pixel short.
func scale(n int, frac float64) int {
	return int(math.Floor(float64(n)*frac + 1e-9))
}

// locateInputBox clicks each candidate and probes it by typing and erasing a sentinel key. The
// first candidate whose probe goes through is accepted. Only abort errors are returned.
func (c *Controller) locateInputBox(ctx context.Context) (bool, error) {
	win, _, found, err := c.findWindow()
	if err != nil {
		return c.stepFailed(StageSendText, err)
	}
	if !found {
		c.logger.Error("WeChat window not found while locating input box")
		return false, nil
	}

	rect, err := c.desktop.WindowRect(win.Handle)
	if err != nil {
		return c.stepFailed(StageSendText, err)
	}
	screenW, screenH := c.desktop.ScreenSize()

	t := c.profile.Timing
	points := CandidatePoints(c.profile.InputBox, rect, screenW, screenH)
	for i, p := range points {
		if err := c.probeInputBox(ctx, p); err != nil {
			if isAbort(err) {
				return false, err
			}
			c.logger.Debug("Input box candidate rejected",
				slog.Int("attempt", i+1),
				slog.Int("x", p.X),
				slog.Int("y", p.Y),
				slog.String("error", err.Error()))
			continue
		}
		c.logger.Debug("Input box focused",
			slog.Int("attempt", i+1),
			slog.Int("x", p.X),
			slog.Int("y", p.Y))
		return true, nil
	}

	c.logger.Error("All input box positions failed",
		slog.Int("candidates", len(points)),
		slog.Duration("probe", t.InputBoxProbe.ToDuration()))
	return false, nil
}

func (c *Controller) probeInputBox(ctx context.Context, p Point) error {
	t := c.profile.Timing
	if err := c.click(ctx, p.X, p.Y); err != nil {
		return err
	}
	if err := c.sleep(ctx, t.InputBoxClick.ToDuration()); err != nil {
		return err
	}
	if err := c.pressThen(ctx, t.InputBoxProbe.ToDuration(), KeyA); err != nil {
		return err
	}
	return c.pressThen(ctx, t.InputBoxProbe.ToDuration(), KeyBackspace)
}
