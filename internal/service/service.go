package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joncrangle/wechat-mcp/internal/config"
	"github.com/joncrangle/wechat-mcp/internal/mcp"
	"github.com/joncrangle/wechat-mcp/internal/websocket"
	"github.com/joncrangle/wechat-mcp/internal/wechat"
)

const (
	defaultHealthInterval = 5 * time.Minute

	highMemoryBytes = 100 * 1024 * 1024
	highGoroutines  = 50
)

// Automator is the controller surface the service drives.
type Automator interface {
	mcp.Automator
	OnOutcome(fn func(wechat.SendOutcome))
}

type Service struct {
	logger *slog.Logger
	config *config.Config
	state  *websocket.ServiceState
	feed   *websocket.Server

	automator Automator
	scheduler *wechat.Scheduler
	server    *mcp.Server

	// ctx outlives Run's signal context so scheduled tasks are dropped only on shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	in  io.Reader
	out io.Writer

	healthInterval time.Duration
}

// NewService wires the Win32 controller to a protocol server on stdin and stdout.
func NewService(cfg *config.Config, version string) (*Service, error) {
	logger := config.InitLogger(cfg)
	ctrl := wechat.NewSystemController(logger, cfg.Automation)
	return newService(cfg, logger, ctrl, os.Stdin, os.Stdout, version)
}

func newService(cfg *config.Config, logger *slog.Logger, automator Automator, in io.Reader, out io.Writer, version string) (*Service, error) {
	ctx, cancel := context.WithCancel(context.Background())

	state := &websocket.ServiceState{
		State:  "stopped",
		PID:    os.Getpid(),
		Logger: logger,
	}

	s := &Service{
		logger:         logger,
		config:         cfg,
		state:          state,
		automator:      automator,
		ctx:            ctx,
		cancel:         cancel,
		in:             in,
		out:            out,
		healthInterval: defaultHealthInterval,
	}

	s.scheduler = wechat.NewScheduler(ctx, automator, logger)
	server, err := mcp.NewServer(automator, s.scheduler, logger, version)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build protocol server: %w", err)
	}
	s.server = server

	if cfg.WebSocket {
		s.feed = websocket.NewServer(state)
	}
	automator.OnOutcome(s.onOutcome)
	s.scheduler.OnEvent(s.onTaskEvent)

	return s, nil
}

func (s *Service) SetState(newState string, emit bool) {
	s.state.Mutex.Lock()
	s.state.State = newState
	pid := s.state.PID
	s.state.Mutex.Unlock()

	if emit && s.feed != nil {
		websocket.Broadcast(&websocket.Event{
			Status:  newState,
			PID:     pid,
			Type:    websocket.TypeStatus,
			Message: fmt.Sprintf("State changed to %s", newState),
		}, s.state)
	}
	s.logger.Info("Service state changed",
		slog.String("state", newState),
		slog.Int("pid", pid))
}

func (s *Service) onOutcome(out wechat.SendOutcome) {
	s.state.RecordOutcome(out.OK, time.Now())
	if s.feed == nil {
		return
	}

	status := "sent"
	if !out.OK {
		status = "failed"
	}
	ok := out.OK
	websocket.Broadcast(&websocket.Event{
		Status:  status,
		PID:     s.state.PID,
		Type:    websocket.TypeOutcome,
		Message: out.WeChatVersion,
		Contact: out.ContactName,
		Stage:   string(out.Stage),
		OK:      &ok,
		Reason:  out.Reason,
	}, s.state)
}

func (s *Service) onTaskEvent(ev wechat.TaskEvent) {
	s.state.Mutex.Lock()
	switch ev.Phase {
	case wechat.TaskScheduled:
		s.state.Pending++
	case wechat.TaskFinished, wechat.TaskDropped:
		s.state.Pending--
	}
	s.state.Mutex.Unlock()

	if s.feed == nil {
		return
	}
	e := &websocket.Event{
		Status:  string(ev.Phase),
		PID:     s.state.PID,
		Type:    websocket.TypeSchedule,
		Contact: ev.Contact,
		Delay:   ev.Delay.String(),
	}
	if ev.Outcome != nil {
		ok := ev.Outcome.OK
		e.OK = &ok
		e.Stage = string(ev.Outcome.Stage)
		e.Reason = ev.Outcome.Reason
	}
	websocket.Broadcast(e, s.state)
}

// Send runs one attempt after delay, outside the protocol server.
func (s *Service) Send(ctx context.Context, contact, message string, delay time.Duration) (wechat.SendOutcome, error) {
	if delay > 0 {
		s.logger.Info("Waiting before send", slog.String("contact", contact), slog.Duration("delay", delay))
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return wechat.SendOutcome{}, ctx.Err()
		case <-t.C:
		}
	}
	return s.automator.SendTextMessage(ctx, contact, message), nil
}

func (s *Service) Status(ctx context.Context) wechat.Status {
	return s.automator.GetStatus(ctx)
}

// Run serves the protocol until input closes or a signal arrives. After input closes it keeps
// running until pending scheduled messages finish.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(s.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer s.shutdown()

	if s.feed != nil {
		if err := s.feed.Start(s.config.Port); err != nil {
			return fmt.Errorf("failed to start WebSocket server: %w", err)
		}
	}
	s.SetState("running", true)

	// Serve is left outside the group: a blocked stdin read must not hold up a signal shutdown.
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.server.Serve(ctx, s.in, s.out)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.healthLoop(gctx)
		return nil
	})
	g.Go(func() error {
		defer s.cancel()
		select {
		case <-gctx.Done():
			s.logger.Info("Shutting down service")
			return nil
		case err := <-serveErr:
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("protocol server: %w", err)
			}
		}
		s.drain(gctx)
		return nil
	})
	return g.Wait()
}

func (s *Service) drain(ctx context.Context) {
	pending := s.scheduler.Pending()
	if pending == 0 {
		return
	}
	s.scheduler.Close()
	s.logger.Info("Input closed, waiting for scheduled messages", slog.Int("pending", pending))
	if err := s.scheduler.Wait(ctx); err != nil {
		s.logger.Warn("Stopped before scheduled messages finished",
			slog.Int("pending", s.scheduler.Pending()))
	}
}

func (s *Service) shutdown() {
	s.cancel()
	s.scheduler.Close()
	s.SetState("stopped", true)
	if s.feed != nil {
		s.feed.Stop()
	}
	config.CloseLogFile()
}

func (s *Service) healthLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Health loop panic recovered", slog.Any("error", r))
		}
	}()

	ticker := time.NewTicker(s.healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.performHealthCheck()
		}
	}
}

func (s *Service) performHealthCheck() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Health check panic recovered", slog.Any("error", r))
		}
	}()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	if memStats.Alloc > highMemoryBytes {
		s.logger.Warn("High memory usage detected",
			slog.Uint64("alloc_mb", memStats.Alloc/1024/1024))
		runtime.GC()
	}

	goroutines := runtime.NumGoroutine()
	if goroutines > highGoroutines {
		s.logger.Warn("High goroutine count", slog.Int("count", goroutines))
	}

	s.state.Mutex.RLock()
	attrs := []any{
		slog.Uint64("memory_mb", memStats.Alloc/1024/1024),
		slog.Int("goroutines", goroutines),
		slog.Int("sent", s.state.Sent),
		slog.Int("failed", s.state.Failed),
		slog.Int("failure_streak", s.state.FailureStreak),
		slog.Int("pending", s.state.Pending),
	}
	if s.feed != nil {
		attrs = append(attrs, slog.Int("websocket_clients", len(s.state.Clients)))
	}
	s.state.Mutex.RUnlock()

	if s.feed != nil {
		stats := websocket.GetConnectionStats()
		attrs = append(attrs, slog.Any("active_connections", stats["active_connections"]))
	}
	s.logger.Debug("Health check completed", attrs...)
}
