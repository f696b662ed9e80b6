//go:build windows

package wechat

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var procSendInput = user32.NewProc("SendInput")

const (
	inputMouse    = 0
	inputKeyboard = 1

	keyeventfKeyup = 0x0002

	mouseeventfLeftDown = 0x0002
	mouseeventfLeftUp   = 0x0004
)

// keyboardInput mirrors the Win32 INPUT union for keyboard events. A size mismatch makes
// SendInput fail with ERROR_INVALID_PARAMETER.
type keyboardInput struct {
	Type      uint32
	_         [4]byte // align the union to 8 bytes
	Vk        uint16
	Scan      uint16
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
	_         [8]byte // pad to sizeof(INPUT)
}

// mouseInput is the MOUSEINPUT arm of the same union.
type mouseInput struct {
	Type      uint32
	_         [4]byte
	Dx        int32
	Dy        int32
	MouseData uint32
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

const expectedInputSize = 40

func keyEvent(k Key, up bool) keyboardInput {
	in := keyboardInput{Type: inputKeyboard, Vk: uint16(k)}
	if up {
		in.Flags = keyeventfKeyup
	}
	return in
}

func sendKeys(inputs []keyboardInput) error {
	if len(inputs) == 0 {
		return nil
	}
	size := unsafe.Sizeof(inputs[0])
	if size != expectedInputSize {
		return fmt.Errorf("keyboardInput struct size=%d expected=%d", size, expectedInputSize)
	}
	n, _, err := procSendInput.Call(uintptr(len(inputs)), uintptr(unsafe.Pointer(&inputs[0])), size)
	if int(n) != len(inputs) {
		return fmt.Errorf("SendInput keyboard: injected %d of %d: %w", n, len(inputs), err)
	}
	return nil
}

func sendMouse(inputs []mouseInput) error {
	if len(inputs) == 0 {
		return nil
	}
	size := unsafe.Sizeof(inputs[0])
	if size != expectedInputSize {
		return fmt.Errorf("mouseInput struct size=%d expected=%d", size, expectedInputSize)
	}
	n, _, err := procSendInput.Call(uintptr(len(inputs)), uintptr(unsafe.Pointer(&inputs[0])), size)
	if int(n) != len(inputs) {
		return fmt.Errorf("SendInput mouse: injected %d of %d: %w (lastError=%v)", n, len(inputs), err, windows.GetLastError())
	}
	return nil
}
