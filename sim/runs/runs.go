// Package runs tracks simulations executing in the background so that the
// caller that starts a run and the callers that poll it share one view of
// its progress.
package runs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/retail-sim/retail-sim/sim"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusError    Status = "error"
	StatusStopped  Status = "stopped"
)

var (
	// ErrNotFound means the id was never issued.
	ErrNotFound = errors.New("run not found")
	// ErrInterrupted means the id looks like one this service issues but no
	// run is tracked under it, typically because the process restarted.
	ErrInterrupted = errors.New("run interrupted, start a new run")
)

// Job executes one simulation. It must call report after every simulated
// day and return once ctx is cancelled.
type Job func(ctx context.Context, report func(sim.DayMetrics)) error

// Progress is a snapshot of one run.
type Progress struct {
	ID       string           `json:"run_id"`
	Status   Status           `json:"status"`
	Error    string           `json:"error,omitempty"`
	Started  time.Time        `json:"started"`
	Finished time.Time        `json:"finished,omitzero"`
	Days     []sim.DayMetrics `json:"days"`
}

type run struct {
	progress Progress
	cancel   context.CancelFunc
	done     chan struct{}
}

// Manager owns the set of background runs. It is safe for concurrent use.
type Manager struct {
	mu   sync.Mutex
	runs map[string]*run
	now  func() time.Time
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{runs: make(map[string]*run), now: time.Now}
}

// Start launches job in its own goroutine and returns the run id at once.
// Cancelling ctx stops the run like Stop does, but keeps it tracked.
func (m *Manager) Start(ctx context.Context, job Job) string {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(ctx)
	r := &run{
		progress: Progress{ID: id, Status: StatusRunning, Started: m.now()},
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	m.mu.Lock()
	m.runs[id] = r
	m.mu.Unlock()

	go m.execute(ctx, r, job)
	logrus.Infof("run %s started", id)
	return id
}

func (m *Manager) execute(ctx context.Context, r *run, job Job) {
	defer close(r.done)
	defer r.cancel()

	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("run panicked: %v", p)
			}
		}()
		return job(ctx, func(d sim.DayMetrics) {
			m.mu.Lock()
			r.progress.Days = append(r.progress.Days, d)
			m.mu.Unlock()
		})
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	r.progress.Finished = m.now()
	switch {
	case err == nil:
		r.progress.Status = StatusFinished
	case errors.Is(err, context.Canceled):
		r.progress.Status = StatusStopped
	default:
		r.progress.Status = StatusError
		r.progress.Error = err.Error()
	}
	logrus.WithFields(logrus.Fields{
		"run_id": r.progress.ID,
		"status": r.progress.Status,
		"days":   len(r.progress.Days),
	}).Info("run ended")
}

func (m *Manager) lookup(id string) (*run, error) {
	m.mu.Lock()
	r, ok := m.runs[id]
	m.mu.Unlock()
	if ok {
		return r, nil
	}
	if _, err := uuid.Parse(id); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrInterrupted, id)
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
}

// Progress returns the run's state with the days whose step is above since.
func (m *Manager) Progress(id string, since int) (Progress, error) {
	r, err := m.lookup(id)
	if err != nil {
		return Progress{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := r.progress
	p.Days = nil
	for _, d := range r.progress.Days {
		if d.Step > since {
			p.Days = append(p.Days, d)
		}
	}
	return p, nil
}

// Done returns a channel closed once the run's job has returned.
func (m *Manager) Done(id string) (<-chan struct{}, error) {
	r, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return r.done, nil
}

// Stop cancels the run, waits for its current day to finish and forgets
// it. The final state is returned.
func (m *Manager) Stop(id string) (Progress, error) {
	r, err := m.lookup(id)
	if err != nil {
		return Progress{}, err
	}
	r.cancel()
	<-r.done

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, id)
	return r.progress, nil
}

// IDs returns the ids of every tracked run.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.runs))
	for id := range m.runs {
		out = append(out, id)
	}
	return out
}
