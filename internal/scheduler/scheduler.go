package scheduler

import (
	"sync"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("vigil.scheduler")

type Task struct {
	Name    string
	Execute func() error
}

func (t Task) run() {
	if err := t.Execute(); err != nil {
		log.Errorf("task %s failed: %v", t.Name, err)
	}
}

// Scheduler runs delayed tasks on a Clock and queued tasks on a single worker.
type Scheduler struct {
	clock           Clock
	taskQueue       chan Task
	lowPriorityLock sync.Mutex
	stopChan        chan struct{}
	mu              sync.RWMutex
	stopped         bool
	wg              sync.WaitGroup
}

// NewScheduler creates a new Scheduler with the specified queue size.
// A nil clock means wall-clock time.
func NewScheduler(queueSize int, clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock{}
	}
	return &Scheduler{
		clock:     clock,
		taskQueue: make(chan Task, queueSize),
		stopChan:  make(chan struct{}),
	}
}

// Clock returns the clock delayed tasks are scheduled on.
func (s *Scheduler) Clock() Clock {
	return s.clock
}

// Handle is a pending delayed task.
type Handle struct {
	mu       sync.Mutex
	timer    Timer
	canceled bool
	fired    bool
}

// Cancel prevents the task from running. It reports whether the task was
// still pending, i.e. whether this call is what stopped it.
func (h *Handle) Cancel() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.canceled || h.fired {
		return false
	}
	h.canceled = true
	h.timer.Stop()
	return true
}

// Pending reports whether the task has neither run nor been canceled.
func (h *Handle) Pending() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.canceled && !h.fired
}

// claim marks the handle fired unless it was canceled first.
func (h *Handle) claim() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.canceled {
		return false
	}
	h.fired = true
	return true
}

// After runs task once delay has elapsed, unless the returned handle is
// canceled first. A canceled task never starts, even if its timer already fired.
func (s *Scheduler) After(delay time.Duration, task Task) *Handle {
	h := &Handle{}
	h.mu.Lock()
	h.timer = s.clock.AfterFunc(delay, func() {
		if !h.claim() {
			return
		}
		task.run()
	})
	h.mu.Unlock()
	return h
}

// RunScheduler starts the worker loop for queued tasks.
func (s *Scheduler) RunScheduler() {
	go func() {
		for {
			select {
			case task := <-s.taskQueue:
				log.Debugf("executing %s task", task.Name)
				task.run()
				s.wg.Done()
			case <-s.stopChan:
				// Drain what was accepted before stopping
				for {
					select {
					case task := <-s.taskQueue:
						log.Debugf("draining task: %s", task.Name)
						task.run()
						s.wg.Done()
					default:
						return
					}
				}
			}
		}
	}()
}

// SchedulePeriodicTask runs lowTask every interval without blocking the caller.
// Ticks are skipped while the queue is full.
func (s *Scheduler) SchedulePeriodicTask(interval time.Duration, lowTask Task) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.lowPriorityLock.Lock()
				if !s.tryEnqueue(lowTask) {
					log.Debugf("skipped scheduling %s, queue is full", lowTask.Name)
				}
				s.lowPriorityLock.Unlock()
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Enqueue submits a task to the worker, blocking while the queue is full.
// It reports false once the scheduler has been stopped.
func (s *Scheduler) Enqueue(task Task) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	s.taskQueue <- task
	return true
}

func (s *Scheduler) tryEnqueue(task Task) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	select {
	case s.taskQueue <- task:
		return true
	default:
		s.wg.Done()
		return false
	}
}

// StopScheduler waits for queued tasks to complete and stops the worker.
// Pending delayed tasks are not affected; cancel their handles.
func (s *Scheduler) StopScheduler() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopChan)
	s.mu.Unlock()

	log.Debug("stopping scheduler")
	s.wg.Wait()
	log.Debug("scheduler stopped")
}
