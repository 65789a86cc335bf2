package persistence

import (
	"log"
	"sync"
	"time"
)

// Saver runs snapshot jobs on a background worker so the sim loop and
// request handlers never block on disk. The queue is bounded; a full
// queue drops the job (the next autosave covers it).
type Saver struct {
	logger *log.Logger

	ch   chan saveJob
	wg   sync.WaitGroup
	once sync.Once
}

type saveJob struct {
	name string
	fn   func() error
}

func NewSaver(logger *log.Logger, queue int) *Saver {
	if queue <= 0 {
		queue = 16
	}
	s := &Saver{
		logger: logger,
		ch:     make(chan saveJob, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for j := range s.ch {
			if err := j.fn(); err != nil {
				s.logger.Printf("save %s: %v", j.name, err)
			}
		}
	}()
	return s
}

// Enqueue schedules a save job. Returns false when the queue is full
// or the saver is closed; in-memory state stays the source of truth.
func (s *Saver) Enqueue(name string, fn func() error) (accepted bool) {
	defer func() {
		// Enqueue after Close loses the race to the closed channel.
		if recover() != nil {
			accepted = false
		}
	}()
	select {
	case s.ch <- saveJob{name: name, fn: fn}:
		return true
	default:
		s.logger.Printf("save %s: queue full, dropped", name)
		return false
	}
}

// Close drains outstanding jobs, waiting up to grace before giving up.
func (s *Saver) Close(grace time.Duration) error {
	s.once.Do(func() { close(s.ch) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(grace):
		s.logger.Printf("saver: shutdown grace %s elapsed with jobs outstanding", grace)
		return errDrainTimeout
	}
}

var errDrainTimeout = drainTimeoutError{}

type drainTimeoutError struct{}

func (drainTimeoutError) Error() string { return "saver: drain timed out" }
