package wechat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/joncrangle/wechat-mcp/internal/config"
)

// Stage names the orchestrator step an outcome terminated in.
type Stage string

const (
	StageVersionCheck   Stage = "version_check"
	StageFindWindow     Stage = "find_window"
	StageActivateWindow Stage = "activate_window"
	StageSearchContact  Stage = "search_contact"
	StageSendText       Stage = "send_text"
	StageException      Stage = "exception"
)

// Machine-readable failure reasons.
const (
	ReasonNonNTSkipped     = "non_nt_version_skipped"
	ReasonWindowNotFound   = "wechat_window_not_found"
	ReasonActivateFailed   = "failed_to_activate_window"
	ReasonSearchFailed     = "search_failed"
	ReasonSendFailed       = "send_failed"
	ReasonAutomationLocked = "automation_lock_unavailable"
)

// SendOutcome is the result of one orchestrated attempt.
type SendOutcome struct {
	OK            bool   `json:"ok"`
	ContactName   string `json:"contact_name"`
	WeChatVersion string `json:"wechat_version,omitempty"`
	IsNTFramework bool   `json:"is_nt_framework"`
	Stage         Stage  `json:"stage"`
	Reason        string `json:"reason,omitempty"`
}

// Status is the snapshot returned by GetStatus.
type Status struct {
	WeChatAvailable bool   `json:"wechat_available"`
	WindowHandle    uint64 `json:"window_handle,omitempty"`
	WeChatVersion   string `json:"wechat_version,omitempty"`
	IsNTFramework   bool   `json:"is_nt_framework"`
	Supported       bool   `json:"supported"`
	FrameworkType   string `json:"framework_type,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Deps are the OS collaborators of a Controller. Capturer may be nil.
type Deps struct {
	Desktop   Desktop
	Clipboard Clipboard
	Processes ProcessLister
	Versions  VersionReader
	Capturer  Capturer
}

// Controller serializes automation attempts against the shared foreground slot and clipboard.
type Controller struct {
	desktop   Desktop
	clipboard Clipboard
	processes ProcessLister
	versions  VersionReader
	capturer  Capturer

	profile config.Automation
	logger  *slog.Logger

	// lock admits one automation sequence at a time.
	lock  *semaphore.Weighted
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	observerMu sync.RWMutex
	observer   func(SendOutcome)
}

func NewController(logger *slog.Logger, profile config.Automation, deps Deps) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		desktop:   deps.Desktop,
		clipboard: deps.Clipboard,
		processes: deps.Processes,
		versions:  deps.Versions,
		capturer:  deps.Capturer,
		profile:   profile,
		logger:    logger,
		lock:      semaphore.NewWeighted(1),
		sleep:     sleepCtx,
		now:       time.Now,
	}
}

// NewSystemController wires the controller to the live desktop.
func NewSystemController(logger *slog.Logger, profile config.Automation) *Controller {
	return NewController(logger, profile, Deps{
		Desktop:   NewDesktop(),
		Clipboard: NewSystemClipboard(),
		Processes: NewProcessLister(),
		Versions:  NewVersionReader(),
		Capturer:  NewScreenCapturer(),
	})
}

// OnOutcome registers fn to receive every finished outcome.
func (c *Controller) OnOutcome(fn func(SendOutcome)) {
	c.observerMu.Lock()
	defer c.observerMu.Unlock()
	c.observer = fn
}

func (c *Controller) notify(out SendOutcome) {
	c.observerMu.RLock()
	fn := c.observer
	c.observerMu.RUnlock()
	if fn != nil {
		fn(out)
	}
}

// SendTextMessage runs one full attempt. Failures are reported through the outcome, never as
// a Go error or panic.
func (c *Controller) SendTextMessage(ctx context.Context, contact, message string) SendOutcome {
	if err := c.lock.Acquire(ctx, 1); err != nil {
		out := SendOutcome{ContactName: contact, Stage: StageException, Reason: ReasonAutomationLocked}
		c.logger.Warn("Automation lock not acquired", slog.String("contact", contact), slog.String("error", err.Error()))
		c.notify(out)
		return out
	}
	defer c.lock.Release(1)

	start := c.now()
	c.logger.Info("Sending WeChat message", slog.String("contact", contact), slog.Int("length", len([]rune(message))))

	out, target := c.run(ctx, contact, message)

	attrs := []any{
		slog.String("contact", contact),
		slog.String("stage", string(out.Stage)),
		slog.Duration("elapsed", c.now().Sub(start)),
	}
	if out.OK {
		c.logger.Info("Message sent", attrs...)
	} else {
		c.logger.Warn("Message not sent", append(attrs, slog.String("reason", out.Reason))...)
		c.saveDiagnostics(target, out.Stage)
	}
	c.notify(out)
	return out
}

// run guards the pipeline so that a panic in any collaborator still produces an outcome.
func (c *Controller) run(ctx context.Context, contact, message string) (out SendOutcome, target Handle) {
	out = SendOutcome{ContactName: contact}
	stage := StageVersionCheck

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Panic during automation",
				slog.String("stage", string(stage)),
				slog.Any("panic", r))
			out = exceptionOutcome(out, stage, fmt.Errorf("panic: %v", r))
		}
	}()

	info := c.DetectVersion(ctx)
	out.WeChatVersion = info.Version
	out.IsNTFramework = info.Supported
	return c.orchestrate(ctx, info, contact, message, &stage)
}

func exceptionOutcome(out SendOutcome, stage Stage, err error) SendOutcome {
	out.OK = false
	out.Stage = StageException
	out.Reason = fmt.Sprintf("%s: %v", stage, err)
	return out
}

// orchestrate runs the stages strictly in order; the first failure ends the attempt. stage
// tracks the active step for the caller's panic handler.
func (c *Controller) orchestrate(ctx context.Context, info VersionInfo, contact, message string, stage *Stage) (SendOutcome, Handle) {
	out := SendOutcome{
		ContactName:   contact,
		WeChatVersion: info.Version,
		IsNTFramework: info.Supported,
	}
	fail := func(s Stage, reason string) SendOutcome {
		out.Stage = s
		out.Reason = reason
		return out
	}

	*stage = StageVersionCheck
	if !info.Supported {
		return fail(StageVersionCheck, ReasonNonNTSkipped), 0
	}

	*stage = StageFindWindow
	win, _, found, err := c.findWindow()
	if err != nil {
		return exceptionOutcome(out, *stage, err), 0
	}
	if !found {
		return fail(StageFindWindow, ReasonWindowNotFound), 0
	}

	*stage = StageActivateWindow
	if err := c.waitForIdle(ctx); err != nil {
		return exceptionOutcome(out, *stage, err), win.Handle
	}
	ok, err := c.activateWindow(ctx, win.Handle)
	if err != nil {
		return exceptionOutcome(out, *stage, err), win.Handle
	}
	if !ok {
		return fail(StageActivateWindow, ReasonActivateFailed), win.Handle
	}

	*stage = StageSearchContact
	ok, err = c.searchContact(ctx, contact)
	if err != nil {
		return exceptionOutcome(out, *stage, err), win.Handle
	}
	if !ok {
		return fail(StageSearchContact, ReasonSearchFailed), win.Handle
	}

	*stage = StageSendText
	ok, err = c.sendText(ctx, message)
	if err != nil {
		return exceptionOutcome(out, *stage, err), win.Handle
	}
	if !ok {
		return fail(StageSendText, ReasonSendFailed), win.Handle
	}

	out.OK = true
	out.Stage = StageSendText
	return out, win.Handle
}

// stepFailed turns a step error into a clean step failure unless it must abort the attempt.
func (c *Controller) stepFailed(stage Stage, err error) (bool, error) {
	if isAbort(err) {
		return false, err
	}
	c.logger.Warn("Automation step failed",
		slog.String("stage", string(stage)),
		slog.String("error", err.Error()))
	return false, nil
}

// GetStatus reports whether the client is running and automatable. It never simulates input.
func (c *Controller) GetStatus(ctx context.Context) (status Status) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Panic while checking status", slog.Any("panic", r))
			status = Status{Error: fmt.Sprint(r)}
		}
	}()

	info := c.DetectVersion(ctx)
	win, _, found, err := c.findWindow()
	if err != nil {
		c.logger.Error("Error checking status", slog.String("error", err.Error()))
		return Status{Error: err.Error()}
	}

	status = Status{
		WeChatAvailable: found,
		WeChatVersion:   info.Version,
		IsNTFramework:   info.Supported,
		Supported:       info.Supported,
		FrameworkType:   info.FrameworkType(),
	}
	if found {
		status.WindowHandle = uint64(win.Handle)
	}
	return status
}
