//go:build windows

package wechat

import (
	"time"
	"unsafe"
)

var (
	procGetLastInputInfo = user32.NewProc("GetLastInputInfo")
	procGetTickCount     = kernel32.NewProc("GetTickCount")
)

type lastInputInfo struct {
	cbSize uint32
	dwTime uint32
}

// idleTime is the time since the last keyboard, mouse, touch or pen input in this session.
func idleTime() time.Duration {
	var lii lastInputInfo
	lii.cbSize = uint32(unsafe.Sizeof(lii))

	ret, _, _ := procGetLastInputInfo.Call(uintptr(unsafe.Pointer(&lii)))
	if ret == 0 {
		// Treat as idle so automation is not held back.
		return time.Hour
	}

	tick, _, _ := procGetTickCount.Call()
	now := uint32(tick)
	// Unsigned subtraction survives the 49.7-day tick wraparound.
	return time.Duration(now-lii.dwTime) * time.Millisecond
}
