package wechat

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// WindowKind classifies a candidate window.
type WindowKind int

const (
	KindNone WindowKind = iota
	KindNT
	KindLegacy
)

func (k WindowKind) String() string {
	switch k {
	case KindNT:
		return "nt"
	case KindLegacy:
		return "legacy"
	default:
		return "none"
	}
}

// mainWindowClass is the class of the client's primary window and always wins.
const mainWindowClass = "WeChatMainWndForPC"

// Auxiliary NT window classes. The Qt pattern is shared by every Qt application, so matches
// also need the product name in the title.
var ntClassPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^ChatWnd`),
	regexp.MustCompile(`^Qt\d+QWindowIcon`),
}

var productNames = []string{"WeChat", "微信"}

func titleNamesProduct(title string) bool {
	for _, name := range productNames {
		if strings.Contains(title, name) {
			return true
		}
	}
	return false
}

// LocateWindow picks the target window from one enumeration pass: the first NT match, else the
// first legacy match, else nothing. Main-window class matches are pushed to the head of the NT
// list as they are seen.
func LocateWindow(windows []Window) (Window, WindowKind, bool) {
	var nt, legacy []Window

	for _, w := range windows {
		kind, head := classify(w)
		switch {
		case kind == KindNT && head:
			nt = append([]Window{w}, nt...)
		case kind == KindNT:
			nt = append(nt, w)
		case kind == KindLegacy:
			legacy = append(legacy, w)
		}
	}

	if len(nt) > 0 {
		return nt[0], KindNT, true
	}
	if len(legacy) > 0 {
		return legacy[0], KindLegacy, true
	}
	return Window{}, KindNone, false
}

// classify reports the kind of a single window and whether it is the main window.
func classify(w Window) (WindowKind, bool) {
	if w.ClassName == mainWindowClass {
		return KindNT, true
	}

	hasName := titleNamesProduct(w.Title)
	for _, pattern := range ntClassPatterns {
		if pattern.MatchString(w.ClassName) && hasName {
			return KindNT, false
		}
	}

	if hasName {
		return KindLegacy, false
	}
	return KindNone, false
}

// findWindow re-resolves the target window against the live desktop.
func (c *Controller) findWindow() (Window, WindowKind, bool, error) {
	windows, err := c.desktop.TopLevelWindows()
	if err != nil {
		return Window{}, KindNone, false, fmt.Errorf("enumerate windows: %w", err)
	}

	w, kind, found := LocateWindow(windows)
	if found {
		c.logger.Debug("WeChat window located",
			slog.Uint64("hwnd", uint64(w.Handle)),
			slog.String("class", w.ClassName),
			slog.String("title", w.Title),
			slog.String("kind", kind.String()),
			slog.Int("visible_windows", len(windows)))
	} else {
		c.logger.Debug("No WeChat window among visible windows",
			slog.Int("visible_windows", len(windows)))
	}
	return w, kind, found, nil
}
