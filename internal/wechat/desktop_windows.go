//go:build windows

package wechat

import (
	"fmt"
	"syscall"
	"time"
	"unsafe"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"
)

var (
	user32                       = windows.NewLazySystemDLL("user32.dll")
	kernel32                     = windows.NewLazySystemDLL("kernel32.dll")
	procEnumWindows              = user32.NewProc("EnumWindows")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")
	procGetWindowThreadProcessID = user32.NewProc("GetWindowThreadProcessId")
	procAttachThreadInput        = user32.NewProc("AttachThreadInput")
	procGetWindowText            = user32.NewProc("GetWindowTextW")
	procGetWindowTextLength      = user32.NewProc("GetWindowTextLengthW")
	procGetClassName             = user32.NewProc("GetClassNameW")
	procGetCurrentThreadID       = kernel32.NewProc("GetCurrentThreadId")
)

// enumWindowsCallback is created once; Windows limits the number of callbacks a process may
// allocate.
var enumWindowsCallback = syscall.NewCallback(enumWindowsProc)

type windowEnumContext struct {
	windows []Window
}

func enumWindowsProc(hwnd syscall.Handle, lParam uintptr) uintptr {
	if hwnd == 0 || lParam == 0 {
		return 1
	}

	//nolint:govet // Windows callback pattern requires unsafe pointer conversion
	ctx := (*windowEnumContext)(unsafe.Pointer(lParam))

	if ret, _, _ := procIsWindowVisible.Call(uintptr(hwnd)); ret == 0 {
		return 1
	}

	ctx.windows = append(ctx.windows, Window{
		Handle:    Handle(hwnd),
		ClassName: className(uintptr(hwnd)),
		Title:     windowText(uintptr(hwnd)),
	})
	return 1
}

func windowText(hwnd uintptr) string {
	n, _, _ := procGetWindowTextLength.Call(hwnd)
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	ret, _, _ := procGetWindowText.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if ret == 0 {
		return ""
	}
	return windows.UTF16ToString(buf)
}

func className(hwnd uintptr) string {
	buf := make([]uint16, 256)
	ret, _, _ := procGetClassName.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if ret == 0 {
		return ""
	}
	return windows.UTF16ToString(buf)
}

// win32Desktop automates the interactive desktop of the current session.
type win32Desktop struct{}

func NewDesktop() Desktop {
	return win32Desktop{}
}

func (win32Desktop) TopLevelWindows() ([]Window, error) {
	ctx := &windowEnumContext{}
	ret, _, err := procEnumWindows.Call(enumWindowsCallback, uintptr(unsafe.Pointer(ctx)))
	if ret == 0 {
		return nil, fmt.Errorf("EnumWindows: %w", err)
	}
	return ctx.windows, nil
}

func (win32Desktop) ForegroundWindow() Handle {
	return Handle(win.GetForegroundWindow())
}

func (win32Desktop) IsMinimized(h Handle) bool {
	return win.IsIconic(win.HWND(h))
}

func (win32Desktop) Restore(h Handle) error {
	// ShowWindow reports the previous visibility, not success.
	win.ShowWindow(win.HWND(h), win.SW_RESTORE)
	return nil
}

func (win32Desktop) SetForeground(h Handle) error {
	if !win.SetForegroundWindow(win.HWND(h)) {
		return fmt.Errorf("SetForegroundWindow(0x%X): %w", uintptr(h), windows.GetLastError())
	}
	return nil
}

func (win32Desktop) SetFocus(h Handle) error {
	if win.SetFocus(win.HWND(h)) == 0 {
		return fmt.Errorf("SetFocus(0x%X): %w", uintptr(h), windows.GetLastError())
	}
	return nil
}

func (win32Desktop) WindowThreadID(h Handle) uint32 {
	var pid uint32
	tid, _, _ := procGetWindowThreadProcessID.Call(uintptr(h), uintptr(unsafe.Pointer(&pid)))
	return uint32(tid)
}

func (win32Desktop) CurrentThreadID() uint32 {
	tid, _, _ := procGetCurrentThreadID.Call()
	return uint32(tid)
}

func (win32Desktop) AttachThreadInput(from, to uint32, attach bool) error {
	var flag uintptr
	if attach {
		flag = 1
	}
	ret, _, err := procAttachThreadInput.Call(uintptr(from), uintptr(to), flag)
	if ret == 0 {
		return fmt.Errorf("AttachThreadInput(%d, %d, %t): %w", from, to, attach, err)
	}
	return nil
}

func (win32Desktop) WindowRect(h Handle) (Rect, error) {
	var r win.RECT
	if !win.GetWindowRect(win.HWND(h), &r) {
		return Rect{}, fmt.Errorf("GetWindowRect(0x%X) failed", uintptr(h))
	}
	return Rect{Left: int(r.Left), Top: int(r.Top), Right: int(r.Right), Bottom: int(r.Bottom)}, nil
}

func (win32Desktop) ScreenSize() (int, int) {
	return int(win.GetSystemMetrics(win.SM_CXSCREEN)), int(win.GetSystemMetrics(win.SM_CYSCREEN))
}

func (win32Desktop) CursorPos() (Point, error) {
	var p win.POINT
	if !win.GetCursorPos(&p) {
		return Point{}, fmt.Errorf("GetCursorPos failed")
	}
	return Point{X: int(p.X), Y: int(p.Y)}, nil
}

func (win32Desktop) IsKeyDown(k Key) bool {
	return uint16(win.GetKeyState(int32(k)))&0x8000 != 0
}

func (win32Desktop) KeyUp(k Key) error {
	return sendKeys([]keyboardInput{keyEvent(k, true)})
}

func (win32Desktop) Hotkey(keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	inputs := make([]keyboardInput, 0, 2*len(keys))
	for _, k := range keys {
		inputs = append(inputs, keyEvent(k, false))
	}
	for i := len(keys) - 1; i >= 0; i-- {
		inputs = append(inputs, keyEvent(keys[i], true))
	}
	return sendKeys(inputs)
}

func (win32Desktop) Click(x, y int) error {
	if !win.SetCursorPos(int32(x), int32(y)) {
		return fmt.Errorf("SetCursorPos(%d, %d) failed", x, y)
	}
	return sendMouse([]mouseInput{
		{Type: inputMouse, Flags: mouseeventfLeftDown},
		{Type: inputMouse, Flags: mouseeventfLeftUp},
	})
}

func (win32Desktop) IdleTime() time.Duration {
	return idleTime()
}
