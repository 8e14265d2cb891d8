// Package background holds the process-wide definitions of background
// location tasks. A task is defined once at process start and outlives any
// tracking session; sessions only inject the telemetry sink the task forwards to.
package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"supmap-tracking/internal/navigation"
)

var (
	ErrTaskDefined    = errors.New("background task already defined")
	ErrTaskNotDefined = errors.New("background task not defined")
	ErrNoSink         = errors.New("no telemetry sink bound")
)

// Sink receives samples produced while tracking in the background.
type Sink interface {
	Send(ctx context.Context, sample navigation.Sample) error
}

// TaskFunc handles one background sample with the currently bound sink.
type TaskFunc func(ctx context.Context, sink Sink, sample navigation.Sample) error

// ForwardToSink is the stock task: the sample goes to telemetry and nowhere else.
func ForwardToSink(ctx context.Context, sink Sink, sample navigation.Sample) error {
	return sink.Send(ctx, sample)
}

type Registry struct {
	logger *slog.Logger

	mu    sync.RWMutex
	tasks map[string]TaskFunc
	sink  Sink
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logger,
		tasks:  make(map[string]TaskFunc),
	}
}

// Define registers fn under taskID. A task can only be defined once.
func (r *Registry) Define(taskID string, fn TaskFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[taskID]; ok {
		return fmt.Errorf("%w: %q", ErrTaskDefined, taskID)
	}
	r.tasks[taskID] = fn
	return nil
}

func (r *Registry) IsDefined(taskID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tasks[taskID]
	return ok
}

// BindSink replaces the sink background samples are forwarded to.
func (r *Registry) BindSink(sink Sink) {
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
}

// Dispatch runs the task registered under taskID. Failures are logged and
// returned; nothing is retried.
func (r *Registry) Dispatch(ctx context.Context, taskID string, sample navigation.Sample) error {
	r.mu.RLock()
	fn, ok := r.tasks[taskID]
	sink := r.sink
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("dropping background sample", "taskID", taskID, "error", ErrTaskNotDefined)
		return fmt.Errorf("%w: %q", ErrTaskNotDefined, taskID)
	}
	if sink == nil {
		r.logger.Warn("dropping background sample", "taskID", taskID, "error", ErrNoSink)
		return ErrNoSink
	}

	if err := fn(ctx, sink, sample); err != nil {
		r.logger.Warn("background task failed", "taskID", taskID, "error", err)
		return err
	}
	r.logger.Debug("background sample forwarded", "taskID", taskID)
	return nil
}
