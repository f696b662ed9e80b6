//go:build !windows

package wechat

import "time"

// unsupportedDesktop lets the module build and report status off Windows; every action fails.
type unsupportedDesktop struct{}

func NewDesktop() Desktop {
	return unsupportedDesktop{}
}

func (unsupportedDesktop) TopLevelWindows() ([]Window, error) { return nil, ErrUnsupportedPlatform }
func (unsupportedDesktop) ForegroundWindow() Handle           { return 0 }
func (unsupportedDesktop) IsMinimized(Handle) bool            { return false }
func (unsupportedDesktop) Restore(Handle) error               { return ErrUnsupportedPlatform }
func (unsupportedDesktop) SetForeground(Handle) error         { return ErrUnsupportedPlatform }
func (unsupportedDesktop) SetFocus(Handle) error              { return ErrUnsupportedPlatform }
func (unsupportedDesktop) WindowThreadID(Handle) uint32       { return 0 }
func (unsupportedDesktop) CurrentThreadID() uint32            { return 0 }
func (unsupportedDesktop) AttachThreadInput(uint32, uint32, bool) error {
	return ErrUnsupportedPlatform
}
func (unsupportedDesktop) WindowRect(Handle) (Rect, error) { return Rect{}, ErrUnsupportedPlatform }
func (unsupportedDesktop) ScreenSize() (int, int)          { return 0, 0 }
func (unsupportedDesktop) CursorPos() (Point, error)       { return Point{}, ErrUnsupportedPlatform }
func (unsupportedDesktop) IsKeyDown(Key) bool              { return false }
func (unsupportedDesktop) KeyUp(Key) error                 { return ErrUnsupportedPlatform }
func (unsupportedDesktop) Hotkey(...Key) error             { return ErrUnsupportedPlatform }
func (unsupportedDesktop) Click(int, int) error            { return ErrUnsupportedPlatform }
func (unsupportedDesktop) IdleTime() time.Duration         { return time.Hour }

type unsupportedVersionReader struct{}

func NewVersionReader() VersionReader {
	return unsupportedVersionReader{}
}

func (unsupportedVersionReader) FileVersion(string) (string, error) {
	return "", ErrUnsupportedPlatform
}
