package wechat

import (
	"fmt"
	"sync"

	"golang.design/x/clipboard"
)

// systemClipboard is the OS clipboard, text format only.
type systemClipboard struct {
	once    sync.Once
	initErr error
}

func NewSystemClipboard() Clipboard {
	return &systemClipboard{}
}

func (s *systemClipboard) init() error {
	s.once.Do(func() {
		if err := clipboard.Init(); err != nil {
			s.initErr = fmt.Errorf("%w: %v", ErrClipboardUnavailable, err)
		}
	})
	return s.initErr
}

func (s *systemClipboard) ReadText() (string, bool, error) {
	if err := s.init(); err != nil {
		return "", false, err
	}
	data := clipboard.Read(clipboard.FmtText)
	if data == nil {
		return "", false, nil
	}
	return string(data), true, nil
}

func (s *systemClipboard) WriteText(text string) error {
	if err := s.init(); err != nil {
		return err
	}
	// Write returns a nil channel when the clipboard could not be opened.
	if changed := clipboard.Write(clipboard.FmtText, []byte(text)); changed == nil {
		return ErrClipboardUnavailable
	}
	return nil
}
