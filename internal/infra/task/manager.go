// Package task runs named periodic jobs. Each job has its own loop, so ticks of
// one job never overlap; a slow job delays only its own next tick.
package task

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"
)

// JobFunc is invoked once per tick with the tick time.
type JobFunc func(ctx context.Context, now time.Time)

// Job is a registered periodic job.
type Job struct {
	Name     string
	Interval time.Duration
	Run      JobFunc
}

var (
	ErrAlreadyStarted = errors.New("task manager already started")
	ErrDuplicateJob   = errors.New("job already registered")
)

// Manager schedules periodic jobs on an injectable clock.
type Manager struct {
	mu      sync.Mutex
	jobs    []Job
	clock   clock.Clock
	logger  *zap.Logger
	started bool

	// Lifecycle
	cancel context.CancelFunc
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a new job manager.
func NewManager(clk clock.Clock, logger *zap.Logger) *Manager {
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		clock:  clk,
		logger: logger.Named("task-manager"),
		stopCh: make(chan struct{}),
	}
}

// Register adds a job. Jobs must be registered before Start.
func (m *Manager) Register(name string, interval time.Duration, fn JobFunc) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrAlreadyStarted
	}
	for _, j := range m.jobs {
		if j.Name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
		}
	}
	m.jobs = append(m.jobs, Job{Name: name, Interval: interval, Run: fn})
	m.logger.Debug("registered job", zap.String("job", name), zap.Duration("interval", interval))
	return nil
}

// Jobs returns the registered jobs.
func (m *Manager) Jobs() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.jobs)
}

// Start launches one loop per job. The first tick of each job fires one
// interval after Start.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	for _, job := range m.jobs {
		m.wg.Add(1)
		go m.loop(ctx, job)
	}

	m.logger.Info("task manager started", zap.Int("jobs", len(m.jobs)))
	return nil
}

// Stop stops every loop and waits for running ticks to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	select {
	case <-m.stopCh:
		m.mu.Unlock()
		return
	default:
	}
	close(m.stopCh)
	m.cancel()
	m.mu.Unlock()

	m.logger.Info("stopping task manager")
	m.wg.Wait()
	m.logger.Info("task manager stopped")
}

func (m *Manager) loop(ctx context.Context, job Job) {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-m.clock.After(job.Interval):
			m.runJob(ctx, job)
		}
	}
}

func (m *Manager) runJob(ctx context.Context, job Job) {
	now := m.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("job panicked", zap.String("job", job.Name), zap.Any("panic", r))
		}
	}()

	job.Run(ctx, now)
	m.logger.Debug("job tick finished",
		zap.String("job", job.Name),
		zap.Duration("took", m.clock.Now().Sub(now)),
	)
}
