// Package wechat drives the WeChat desktop client through simulated window focus, keyboard,
// clipboard and mouse input. Nothing here inspects the client's UI tree; every step is a blind
// heuristic followed by a fixed settle delay.
package wechat

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnsupportedPlatform is returned by the desktop boundary on non-Windows builds.
	ErrUnsupportedPlatform = errors.New("desktop automation is only supported on Windows")
	// ErrFailSafe aborts an attempt when the cursor is parked in a screen corner.
	ErrFailSafe = errors.New("fail-safe triggered: cursor moved to a screen corner")
	// ErrClipboardUnavailable is returned when the system clipboard cannot be opened.
	ErrClipboardUnavailable = errors.New("clipboard unavailable")
)

// Handle identifies a top-level window. It is only valid for the duration of one attempt and is
// never cached across calls.
type Handle uintptr

type Rect struct {
	Left, Top, Right, Bottom int
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

type Point struct {
	X, Y int
}

// Window is one visible top-level window as reported by the desktop.
type Window struct {
	Handle    Handle
	ClassName string
	Title     string
}

// Key is a Windows virtual-key code.
type Key uint16

const (
	KeyBackspace Key = 0x08
	KeyEnter     Key = 0x0D
	KeyShift     Key = 0x10
	KeyControl   Key = 0x11
	KeyAlt       Key = 0x12
	KeyDelete    Key = 0x2E
	KeyA         Key = 0x41
	KeyF         Key = 0x46
	KeyS         Key = 0x53
	KeyV         Key = 0x56
)

var keyNames = map[Key]string{
	KeyBackspace: "backspace",
	KeyEnter:     "enter",
	KeyShift:     "shift",
	KeyControl:   "ctrl",
	KeyAlt:       "alt",
	KeyDelete:    "delete",
	KeyA:         "a",
	KeyF:         "f",
	KeyS:         "s",
	KeyV:         "v",
}

func (k Key) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("vk(0x%02X)", uint16(k))
}

// Desktop is the OS boundary the controller automates through.
type Desktop interface {
	// TopLevelWindows lists visible top-level windows in enumeration order.
	TopLevelWindows() ([]Window, error)
	ForegroundWindow() Handle
	IsMinimized(h Handle) bool
	Restore(h Handle) error
	SetForeground(h Handle) error
	SetFocus(h Handle) error
	WindowThreadID(h Handle) uint32
	CurrentThreadID() uint32
	AttachThreadInput(from, to uint32, attach bool) error
	WindowRect(h Handle) (Rect, error)
	ScreenSize() (width, height int)
	CursorPos() (Point, error)
	IsKeyDown(k Key) bool
	KeyUp(k Key) error
	// Hotkey presses keys in order and releases them in reverse order.
	Hotkey(keys ...Key) error
	Click(x, y int) error
	// IdleTime is the time since the last user keyboard or mouse input.
	IdleTime() time.Duration
}

// Clipboard holds Unicode text.
type Clipboard interface {
	// ReadText returns ok=false when the clipboard holds no text.
	ReadText() (text string, ok bool, err error)
	WriteText(text string) error
}

type ProcessInfo struct {
	PID  int32
	Name string
	Exe  string
}

type ProcessLister interface {
	Processes(ctx context.Context) ([]ProcessInfo, error)
}

// VersionReader reads the file-version resource of an executable.
type VersionReader interface {
	FileVersion(path string) (string, error)
}
