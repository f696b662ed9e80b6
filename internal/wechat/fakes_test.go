package wechat

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/joncrangle/wechat-mcp/internal/config"
)

var errInjected = errors.New("injected failure")

// recorder is the shared action log of the fakes.
type recorder struct {
	mu      sync.Mutex
	actions []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, fmt.Sprintf(format, args...))
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.actions...)
}

func (r *recorder) count(prefix string) int {
	n := 0
	for _, a := range r.all() {
		if strings.HasPrefix(a, prefix) {
			n++
		}
	}
	return n
}

// input reports whether any keyboard or mouse input was simulated.
func (r *recorder) input() bool {
	return r.count("hotkey ") > 0 || r.count("click ") > 0
}

type fakeDesktop struct {
	rec *recorder

	mu         sync.Mutex
	windows    []Window
	enumErr    error
	foreground Handle
	// foregroundLock rejects SetForeground unless the input queues are attached.
	foregroundLock bool
	// neverForeground makes every SetForeground a silent no-op.
	neverForeground bool
	attached        bool
	minimized       map[Handle]bool
	rects           map[Handle]Rect
	screenW         int
	screenH         int
	cursor          Point
	held            map[Key]bool
	idle            time.Duration

	hotkeyErr func(keys []Key) error
	clickErr  func(x, y int) error
	onHotkey  func(keys []Key)
}

func newFakeDesktop(rec *recorder, windows ...Window) *fakeDesktop {
	d := &fakeDesktop{
		rec:       rec,
		windows:   windows,
		minimized: map[Handle]bool{},
		rects:     map[Handle]Rect{},
		screenW:   1920,
		screenH:   1080,
		cursor:    Point{X: 700, Y: 400},
		held:      map[Key]bool{},
		idle:      time.Hour,
	}
	for _, w := range windows {
		d.rects[w.Handle] = Rect{Left: 100, Top: 100, Right: 900, Bottom: 700}
	}
	return d
}

func (d *fakeDesktop) TopLevelWindows() ([]Window, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enumErr != nil {
		return nil, d.enumErr
	}
	return append([]Window(nil), d.windows...), nil
}

func (d *fakeDesktop) ForegroundWindow() Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.foreground
}

func (d *fakeDesktop) IsMinimized(h Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.minimized[h]
}

func (d *fakeDesktop) Restore(h Handle) error {
	d.mu.Lock()
	d.minimized[h] = false
	d.mu.Unlock()
	d.rec.add("restore %d", h)
	return nil
}

func (d *fakeDesktop) SetForeground(h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rec.add("setforeground %d", h)
	if d.neverForeground {
		return nil
	}
	if d.foregroundLock && !d.attached {
		return errInjected
	}
	d.foreground = h
	return nil
}

func (d *fakeDesktop) SetFocus(h Handle) error {
	d.rec.add("setfocus %d", h)
	return nil
}

func (d *fakeDesktop) WindowThreadID(h Handle) uint32 { return uint32(h) + 1000 }
func (d *fakeDesktop) CurrentThreadID() uint32        { return 1 }

func (d *fakeDesktop) AttachThreadInput(from, to uint32, attach bool) error {
	d.mu.Lock()
	d.attached = attach
	d.mu.Unlock()
	if attach {
		d.rec.add("attach %d->%d", from, to)
	} else {
		d.rec.add("detach %d->%d", from, to)
	}
	return nil
}

func (d *fakeDesktop) WindowRect(h Handle) (Rect, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rects[h]
	if !ok {
		return Rect{}, errInjected
	}
	return r, nil
}

func (d *fakeDesktop) ScreenSize() (int, int) { return d.screenW, d.screenH }

func (d *fakeDesktop) CursorPos() (Point, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursor, nil
}

func (d *fakeDesktop) IsKeyDown(k Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.held[k]
}

func (d *fakeDesktop) KeyUp(k Key) error {
	d.mu.Lock()
	delete(d.held, k)
	d.mu.Unlock()
	d.rec.add("keyup %s", k)
	return nil
}

func (d *fakeDesktop) Hotkey(keys ...Key) error {
	if d.onHotkey != nil {
		d.onHotkey(keys)
	}
	if d.hotkeyErr != nil {
		if err := d.hotkeyErr(keys); err != nil {
			d.rec.add("rejected %s", comboName(keys))
			return err
		}
	}
	d.rec.add("hotkey %s", comboName(keys))
	return nil
}

func (d *fakeDesktop) Click(x, y int) error {
	if d.clickErr != nil {
		if err := d.clickErr(x, y); err != nil {
			d.rec.add("rejected click %d,%d", x, y)
			return err
		}
	}
	d.mu.Lock()
	d.cursor = Point{X: x, Y: y}
	d.mu.Unlock()
	d.rec.add("click %d,%d", x, y)
	return nil
}

func (d *fakeDesktop) IdleTime() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idle
}

type fakeClipboard struct {
	rec *recorder

	mu       sync.Mutex
	text     string
	has      bool
	readErr  error
	writeErr func(text string) error
}

func (c *fakeClipboard) ReadText() (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return "", false, c.readErr
	}
	return c.text, c.has, nil
}

func (c *fakeClipboard) WriteText(text string) error {
	if c.writeErr != nil {
		if err := c.writeErr(text); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.text = text
	c.has = true
	c.mu.Unlock()
	c.rec.add("clipboard %q", text)
	return nil
}

func (c *fakeClipboard) content() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, c.has
}

type fakeProcesses struct {
	procs []ProcessInfo
	err   error
}

func (p fakeProcesses) Processes(context.Context) ([]ProcessInfo, error) {
	return p.procs, p.err
}

type fakeVersions map[string]string

func (v fakeVersions) FileVersion(path string) (string, error) {
	version, ok := v[path]
	if !ok {
		return "", errInjected
	}
	return version, nil
}

type fakeCapturer struct {
	rects []Rect
}

func (f *fakeCapturer) Capture(r Rect) (image.Image, error) {
	f.rects = append(f.rects, r)
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

const wechatExe = `C:\Program Files\Tencent\WeChat\WeChat.exe`

var (
	mainWindow   = Window{Handle: 42, ClassName: "WeChatMainWndForPC", Title: "WeChat"}
	legacyWindow = Window{Handle: 7, ClassName: "SomeLegacyClass", Title: "微信"}
)

// harness is a controller over fakes with a supported 4.x client installed.
type harness struct {
	rec       *recorder
	desktop   *fakeDesktop
	clipboard *fakeClipboard
	c         *Controller
	slept     time.Duration
}

func newHarness(windows ...Window) *harness {
	return newHarnessWith(fakeProcesses{procs: []ProcessInfo{{PID: 1234, Name: "WeChat.exe", Exe: wechatExe}}},
		fakeVersions{wechatExe: "4.0.3.22"}, windows...)
}

func newHarnessWith(procs ProcessLister, versions VersionReader, windows ...Window) *harness {
	rec := &recorder{}
	h := &harness{
		rec:       rec,
		desktop:   newFakeDesktop(rec, windows...),
		clipboard: &fakeClipboard{rec: rec, text: "user data", has: true},
	}
	h.c = NewController(slog.New(slog.NewTextHandler(io.Discard, nil)), config.DefaultAutomation(), Deps{
		Desktop:   h.desktop,
		Clipboard: h.clipboard,
		Processes: procs,
		Versions:  versions,
	})
	var mu sync.Mutex
	h.c.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		h.slept += d
		mu.Unlock()
		return ctx.Err()
	}
	return h
}
