//go:build windows

package wechat

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

type fileVersionReader struct{}

func NewVersionReader() VersionReader {
	return fileVersionReader{}
}

// FileVersion reads VS_FIXEDFILEINFO from the executable's version resource.
func (fileVersionReader) FileVersion(path string) (string, error) {
	var zero windows.Handle
	size, err := windows.GetFileVersionInfoSize(path, &zero)
	if err != nil {
		return "", fmt.Errorf("GetFileVersionInfoSize %s: %w", path, err)
	}
	if size == 0 {
		return "", fmt.Errorf("no version resource in %s", path)
	}

	data := make([]byte, size)
	if err := windows.GetFileVersionInfo(path, 0, size, unsafe.Pointer(&data[0])); err != nil {
		return "", fmt.Errorf("GetFileVersionInfo %s: %w", path, err)
	}

	var fixed *windows.VS_FIXEDFILEINFO
	var fixedLen uint32
	if err := windows.VerQueryValue(unsafe.Pointer(&data[0]), `\`, unsafe.Pointer(&fixed), &fixedLen); err != nil {
		return "", fmt.Errorf("VerQueryValue %s: %w", path, err)
	}
	if fixed == nil || fixedLen == 0 {
		return "", fmt.Errorf("empty fixed file info in %s", path)
	}

	return FormatFileVersion(fixed.FileVersionMS, fixed.FileVersionLS), nil
}
