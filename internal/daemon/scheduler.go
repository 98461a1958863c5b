package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/user/topomon/internal/util"
)

// Job is a named task run on a fixed interval.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error

	lastRun    time.Time
	nextRun    time.Time
	lastError  error
	errorCount int
	runs       int
	running    bool
	mu         sync.RWMutex
}

// JobStatus is a snapshot of a job's state.
type JobStatus struct {
	Name       string        `json:"name"`
	Interval   time.Duration `json:"interval"`
	LastRun    time.Time     `json:"last_run"`
	NextRun    time.Time     `json:"next_run"`
	LastError  string        `json:"last_error,omitempty"`
	ErrorCount int           `json:"error_count"`
	Runs       int           `json:"runs"`
	Running    bool          `json:"running"`
}

// Scheduler runs jobs when they fall due. A job never overlaps itself; a
// failed run is retried after half its interval.
type Scheduler struct {
	ctx          context.Context
	jobs         []*Job
	initialDelay time.Duration
	tick         time.Duration
	wg           sync.WaitGroup
	mu           sync.RWMutex
}

// NewScheduler creates a scheduler bound to ctx.
func NewScheduler(ctx context.Context) *Scheduler {
	return &Scheduler{
		ctx:          ctx,
		initialDelay: 5 * time.Second,
		tick:         time.Second,
	}
}

// AddJob registers a job. Its first run is after the initial delay.
func (s *Scheduler) AddJob(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.nextRun = time.Now().Add(s.initialDelay)
	s.jobs = append(s.jobs, job)
}

// Run checks for due jobs until the context ends, then waits for running jobs.
func (s *Scheduler) Run() {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	util.Info("Scheduler started with %d jobs", len(s.jobs))

	for {
		select {
		case <-s.ctx.Done():
			util.Info("Scheduler stopping")
			s.wg.Wait()
			return
		case now := <-ticker.C:
			s.checkJobs(now)
		}
	}
}

func (s *Scheduler) checkJobs(now time.Time) {
	s.mu.RLock()
	jobs := s.jobs
	s.mu.RUnlock()

	for _, job := range jobs {
		job.mu.RLock()
		due := !job.running && !now.Before(job.nextRun)
		job.mu.RUnlock()

		if due {
			s.wg.Add(1)
			go func(j *Job) {
				defer s.wg.Done()
				s.runJob(j)
			}(job)
		}
	}
}

func (s *Scheduler) runJob(job *Job) {
	job.mu.Lock()
	if job.running {
		job.mu.Unlock()
		return
	}
	job.running = true
	job.lastRun = time.Now()
	interval := job.Interval
	job.mu.Unlock()

	util.Debug("Running job: %s", job.Name)

	ctx, cancel := context.WithTimeout(s.ctx, interval)
	defer cancel()

	err := job.Run(ctx)

	job.mu.Lock()
	job.running = false
	job.runs++
	if err != nil {
		job.lastError = err
		job.errorCount++
		util.Warn("Job %s failed: %v", job.Name, err)
		job.nextRun = time.Now().Add(interval / 2)
	} else {
		job.lastError = nil
		util.Debug("Job %s completed", job.Name)
		job.nextRun = time.Now().Add(interval)
	}
	job.mu.Unlock()
}

// GetJobStatuses returns the state of all jobs.
func (s *Scheduler) GetJobStatuses() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]JobStatus, len(s.jobs))
	for i, job := range s.jobs {
		job.mu.RLock()
		status := JobStatus{
			Name:       job.Name,
			Interval:   job.Interval,
			LastRun:    job.lastRun,
			NextRun:    job.nextRun,
			ErrorCount: job.errorCount,
			Runs:       job.runs,
			Running:    job.running,
		}
		if job.lastError != nil {
			status.LastError = job.lastError.Error()
		}
		job.mu.RUnlock()
		statuses[i] = status
	}
	return statuses
}

// GetJob returns a job by name, or nil.
func (s *Scheduler) GetJob(name string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		if job.Name == name {
			return job
		}
	}
	return nil
}

// TriggerJob makes a job due on the next tick.
func (s *Scheduler) TriggerJob(name string) bool {
	job := s.GetJob(name)
	if job == nil {
		return false
	}

	job.mu.Lock()
	job.nextRun = time.Now()
	job.mu.Unlock()
	return true
}

// SetInterval changes a job's interval from its next run on.
func (s *Scheduler) SetInterval(name string, interval time.Duration) bool {
	job := s.GetJob(name)
	if job == nil || interval <= 0 {
		return false
	}
	job.mu.Lock()
	job.Interval = interval
	job.mu.Unlock()
	return true
}
