package atcloud

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Activity is a periodic job. Post runs on the timer goroutine and must only
// hand the tick over to the dispatch loop.
type Activity struct {
	Name     string
	Interval time.Duration
	Post     func(generation uint64)
}

// Scheduler owns the periodic timers of a connected session. Every Start or
// Stop begins a new generation so ticks from cancelled timers can be told
// apart by the receiver.
type Scheduler struct {
	log *logrus.Entry

	mu         sync.Mutex
	generation uint64
	stop       chan struct{}
	active     []string
}

func NewScheduler(log *logrus.Entry) *Scheduler {
	return &Scheduler{log: log}
}

// Start cancels running timers and starts one per activity with a positive
// interval.
func (s *Scheduler) Start(activities ...Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	stop := make(chan struct{})
	s.stop = stop
	generation := s.generation
	for _, activity := range activities {
		if activity.Interval <= 0 {
			s.log.Debugf("Timer %s disabled", activity.Name)
			continue
		}
		s.active = append(s.active, activity.Name)
		go tick(activity, generation, stop)
	}
	if len(s.active) > 0 {
		s.log.Infof("Timers started: %v", s.active)
	}
}

func tick(activity Activity, generation uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(activity.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			activity.Post(generation)
		case <-stop:
			return
		}
	}
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		s.log.Info("Timers stopped")
	}
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	s.generation++
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.active = nil
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) > 0
}

// Current reports whether generation belongs to the running timers.
func (s *Scheduler) Current(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil && generation == s.generation
}
