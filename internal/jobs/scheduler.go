package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

// Task is the body of a scheduled job
type Task func(ctx context.Context) error

// JobScheduler runs the background maintenance jobs on gocron
type JobScheduler struct {
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu      sync.Mutex
	jobs    map[string]gocron.Job
	tasks   map[string]Task
	running bool
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler() (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		scheduler: scheduler,
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[string]gocron.Job),
		tasks:     make(map[string]Task),
	}, nil
}

// Every registers task to run at a fixed interval
func (s *JobScheduler) Every(name string, interval time.Duration, task Task) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	return s.register(name, gocron.DurationJob(interval), task)
}

// Cron registers task on a standard five-field cron expression
func (s *JobScheduler) Cron(name, expression string, task Task) error {
	if _, err := ParseCron(expression); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	return s.register(name, gocron.CronJob(expression, false), task)
}

func (s *JobScheduler) register(name string, definition gocron.JobDefinition, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	job, err := s.scheduler.NewJob(
		definition,
		gocron.NewTask(func() { s.runJob(name, task) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}

	s.jobs[name] = job
	s.tasks[name] = task
	log.Printf("✅ [SCHEDULER] Registered job: %s", name)
	return nil
}

// runJob executes a job with the scheduler's context
func (s *JobScheduler) runJob(name string, task Task) {
	s.wg.Add(1)
	defer s.wg.Done()

	startTime := time.Now()
	if err := task(s.ctx); err != nil {
		log.Printf("❌ [SCHEDULER] Job '%s' failed: %v", name, err)
		return
	}
	log.Printf("✅ [SCHEDULER] Job '%s' completed in %v", name, time.Since(startTime))
}

// Start begins running all registered jobs
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.scheduler.Start()
	log.Printf("🚀 [SCHEDULER] Started job scheduler with %d jobs", len(s.jobs))
}

// Stop shuts the scheduler down and waits for running jobs
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	log.Println("🛑 [SCHEDULER] Stopping job scheduler...")
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		log.Printf("⚠️  [SCHEDULER] Shutdown error: %v", err)
	}
	s.wg.Wait()

	if wasRunning {
		log.Println("✅ [SCHEDULER] Job scheduler stopped")
	}
}

// RunNow runs a registered job synchronously
func (s *JobScheduler) RunNow(name string) error {
	s.mu.Lock()
	task, exists := s.tasks[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	log.Printf("🚀 [SCHEDULER] Running job '%s' immediately", name)
	return task(s.ctx)
}

// JobStatus represents the status of a job
type JobStatus struct {
	Name        string    `json:"name"`
	NextRunTime time.Time `json:"next_run_time"`
	Registered  bool      `json:"registered"`
}

// GetStatus returns the status of all jobs
func (s *JobScheduler) GetStatus() map[string]JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := make(map[string]JobStatus, len(s.jobs))
	for name, job := range s.jobs {
		next, _ := job.NextRun()
		status[name] = JobStatus{Name: name, NextRunTime: next, Registered: true}
	}
	return status
}

// ParseCron validates a five-field cron expression
func ParseCron(expression string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}
	return schedule, nil
}

// NextCronRun returns the first activation of expression after from
func NextCronRun(expression string, from time.Time) (time.Time, error) {
	schedule, err := ParseCron(expression)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}
