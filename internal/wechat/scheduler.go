package wechat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrSchedulerClosed is returned by Schedule after Close.
var ErrSchedulerClosed = errors.New("scheduler closed")

// Sender runs one send attempt.
type Sender interface {
	SendTextMessage(ctx context.Context, contact, message string) SendOutcome
}

// TaskPhase marks a scheduled task's lifecycle event.
type TaskPhase string

const (
	TaskScheduled TaskPhase = "scheduled"
	TaskStarted   TaskPhase = "started"
	TaskFinished  TaskPhase = "finished"
	TaskDropped   TaskPhase = "dropped"
)

// TaskEvent is reported to the scheduler observer. Outcome is set only for TaskFinished, and is
// nil there when the send panicked.
type TaskEvent struct {
	Phase   TaskPhase
	Contact string
	Delay   time.Duration
	Outcome *SendOutcome
}

// Scheduler defers sends without blocking the caller. Outcomes are logged and observed, never
// returned to whoever scheduled them. There is no per-task cancellation; cancelling the
// scheduler's context drops tasks that have not started yet.
type Scheduler struct {
	ctx    context.Context
	sender Sender
	logger *slog.Logger

	after   func(time.Duration) <-chan time.Time
	observe func(TaskEvent)

	mu      sync.Mutex
	closed  bool
	pending int
	wg      sync.WaitGroup
}

func NewScheduler(ctx context.Context, sender Sender, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		ctx:    ctx,
		sender: sender,
		logger: logger,
		after:  time.After,
	}
}

// OnEvent registers fn to receive task lifecycle events. Call before scheduling.
func (s *Scheduler) OnEvent(fn func(TaskEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observe = fn
}

func (s *Scheduler) emit(ev TaskEvent) {
	s.mu.Lock()
	fn := s.observe
	s.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// Schedule queues one send of message to contact after delay and returns at once.
func (s *Scheduler) Schedule(contact, message string, delay time.Duration) error {
	if delay < 0 {
		return fmt.Errorf("delay must not be negative: %s", delay)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	s.pending++
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("Scheduling message",
		slog.String("contact", contact),
		slog.Duration("delay", delay))
	s.emit(TaskEvent{Phase: TaskScheduled, Contact: contact, Delay: delay})

	go s.run(contact, message, delay)
	return nil
}

func (s *Scheduler) run(contact, message string, delay time.Duration) {
	// Every task ends with exactly one TaskFinished or TaskDropped.
	reported := false
	defer func() {
		s.mu.Lock()
		s.pending--
		s.mu.Unlock()
		s.wg.Done()
	}()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Error in delayed send", slog.String("contact", contact), slog.Any("panic", r))
			if !reported {
				reported = true
				s.emit(TaskEvent{Phase: TaskFinished, Contact: contact, Delay: delay})
			}
		}
	}()

	select {
	case <-s.ctx.Done():
		s.logger.Warn("Scheduled message dropped on shutdown",
			slog.String("contact", contact),
			slog.Duration("delay", delay))
		reported = true
		s.emit(TaskEvent{Phase: TaskDropped, Contact: contact, Delay: delay})
		return
	case <-s.after(delay):
	}

	s.logger.Debug("Scheduled send starting", slog.String("contact", contact))
	s.emit(TaskEvent{Phase: TaskStarted, Contact: contact, Delay: delay})

	out := s.sender.SendTextMessage(s.ctx, contact, message)
	if out.OK {
		s.logger.Info("Scheduled message sent", slog.String("contact", contact))
	} else {
		s.logger.Warn("Scheduled message failed",
			slog.String("contact", contact),
			slog.String("stage", string(out.Stage)),
			slog.String("reason", out.Reason))
	}
	reported = true
	s.emit(TaskEvent{Phase: TaskFinished, Contact: contact, Delay: delay, Outcome: &out})
}

// Pending is the number of tasks not yet finished.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Wait blocks until every scheduled task has finished or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further Schedule calls. Tasks already queued keep running.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
