package scheduler

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lyallcooper/treescan/internal/db"
	"github.com/lyallcooper/treescan/internal/services"
)

// settingNextRun stores the next scheduled scan as a unix timestamp so a
// restart does not skip or repeat a firing
const settingNextRun = "scan_next_run_at"

// ScanStarter starts a scan of the current selection
type ScanStarter interface {
	Start() (string, error)
}

// Scheduler starts scans on a cron schedule
type Scheduler struct {
	db       *db.DB
	starter  ScanStarter
	schedule cron.Schedule // nil when no schedule is configured
	expr     string

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	nextRun  time.Time
	wg       sync.WaitGroup
}

// ParseSchedule parses a standard five-field cron expression
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// New creates a scheduler. An empty expression disables scheduled scans.
func New(database *db.DB, starter ScanStarter, expr string) (*Scheduler, error) {
	s := &Scheduler{
		db:      database,
		starter: starter,
		expr:    expr,
	}
	if expr == "" {
		return s, nil
	}

	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	s.schedule = schedule
	return s, nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running || s.schedule == nil {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.nextRun = s.loadNextRun(time.Now())
	s.mu.Unlock()

	log.Printf("scheduler: scans scheduled with %q, next at %s", s.expr, s.NextRun().Format(time.RFC3339))

	s.wg.Add(1)
	go s.run()
}

// Stop stops the scheduler and waits for the loop to exit
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
}

// NextRun returns the time of the next scheduled scan, or the zero time if
// the scheduler is not running
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextRun
}

// run is the main scheduler loop
func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	// Catch up on a firing missed while the process was down
	s.checkDue(time.Now())

	for {
		select {
		case <-s.stopChan:
			return
		case now := <-ticker.C:
			s.checkDue(now)
		}
	}
}

// checkDue starts a scan if the next run time has passed and advances the
// schedule. It reports whether a firing was due.
func (s *Scheduler) checkDue(now time.Time) bool {
	s.mu.Lock()
	if s.schedule == nil || now.Before(s.nextRun) {
		s.mu.Unlock()
		return false
	}
	s.nextRun = s.schedule.Next(now)
	next := s.nextRun
	s.mu.Unlock()

	s.saveNextRun(next)

	runID, err := s.starter.Start()
	switch {
	case errors.Is(err, services.ErrAlreadyRunning):
		log.Printf("scheduler: scan already running, skipping, next at %s", next.Format(time.RFC3339))
	case err != nil:
		log.Printf("scheduler: failed to start scan: %v", err)
	default:
		log.Printf("scheduler: started scan run %s, next at %s", runID, next.Format(time.RFC3339))
	}
	return true
}

// loadNextRun returns the persisted next run time if it is earlier than the
// schedule's next firing after now, so a missed firing runs on start. A
// later persisted time belongs to an older schedule and is ignored.
func (s *Scheduler) loadNextRun(now time.Time) time.Time {
	next := s.schedule.Next(now)
	if val, err := s.db.GetSetting(settingNextRun); err == nil && val != "" {
		if unix, err := strconv.ParseInt(val, 10, 64); err == nil {
			if persisted := time.Unix(unix, 0); persisted.Before(next) {
				return persisted
			}
		}
	}

	s.saveNextRun(next)
	return next
}

func (s *Scheduler) saveNextRun(next time.Time) {
	if err := s.db.SetSetting(settingNextRun, strconv.FormatInt(next.Unix(), 10)); err != nil {
		log.Printf("scheduler: failed to save next run time: %v", err)
	}
}
