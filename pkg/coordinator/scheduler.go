package coordinator

import (
	"errors"
	"sync"
	"time"
)

// ErrSchedulerStopped is returned by ScheduleFrame after Stop.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// Token identifies one outstanding scheduled callback.
type Token uint64

// Scheduler hands out "run once on the next frame" callbacks. ScheduleFrame
// must not invoke fn synchronously; fn runs later on the scheduler's own
// goroutine. CancelFrame is a no-op for tokens that already fired or were
// never issued.
type Scheduler interface {
	ScheduleFrame(fn func()) (Token, error)
	CancelFrame(token Token)
}

type frameTask struct {
	token Token
	fn    func()
}

// Tick is a frame-based scheduler: a single ticker goroutine fires all
// callbacks registered since the previous tick.
type Tick struct {
	mu       sync.Mutex
	tasks    []frameTask
	nextTok  Token
	stopped  bool
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewTick starts a frame loop running at the given rate.
func NewTick(fps int) *Tick {
	if fps <= 0 {
		fps = 60
	}
	s := &Tick{
		interval: time.Second / time.Duration(fps),
		stopCh:   make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Tick) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.fire()
		case <-s.stopCh:
			return
		}
	}
}

// fire drains the task list and runs the callbacks outside the lock so a
// callback can schedule or cancel without deadlocking.
func (s *Tick) fire() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, t := range tasks {
		t.fn()
	}
}

func (s *Tick) ScheduleFrame(fn func()) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, ErrSchedulerStopped
	}
	s.nextTok++
	s.tasks = append(s.tasks, frameTask{token: s.nextTok, fn: fn})
	return s.nextTok, nil
}

func (s *Tick) CancelFrame(token Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tasks {
		if t.token == token {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return
		}
	}
}

// Stop halts the frame loop and drops any not-yet-fired callbacks.
func (s *Tick) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.tasks = nil
		s.mu.Unlock()
		close(s.stopCh)
	})
}

// Timer schedules each callback on its own timer, for environments without
// a paint loop. Idle when nothing is scheduled.
type Timer struct {
	mu       sync.Mutex
	interval time.Duration
	nextTok  Token
	timers   map[Token]*time.Timer
	stopped  bool
}

// NewTimer returns a timer-based scheduler firing callbacks after interval.
func NewTimer(interval time.Duration) *Timer {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &Timer{interval: interval, timers: make(map[Token]*time.Timer)}
}

func (s *Timer) ScheduleFrame(fn func()) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, ErrSchedulerStopped
	}
	s.nextTok++
	tok := s.nextTok
	s.timers[tok] = time.AfterFunc(s.interval, func() {
		s.mu.Lock()
		delete(s.timers, tok)
		s.mu.Unlock()
		fn()
	})
	return tok, nil
}

func (s *Timer) CancelFrame(token Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[token]; ok {
		t.Stop()
		delete(s.timers, token)
	}
}

// Stop cancels all outstanding timers; further ScheduleFrame calls fail.
func (s *Timer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	for tok, t := range s.timers {
		t.Stop()
		delete(s.timers, tok)
	}
}

// Manual is a scheduler driven by explicit Fire calls, for tests.
type Manual struct {
	mu      sync.Mutex
	nextTok Token
	tasks   []frameTask
	err     error

	scheduleCalls int
	cancelCalls   int
}

func NewManual() *Manual {
	return &Manual{}
}

func (s *Manual) ScheduleFrame(fn func()) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleCalls++
	if s.err != nil {
		return 0, s.err
	}
	s.nextTok++
	s.tasks = append(s.tasks, frameTask{token: s.nextTok, fn: fn})
	return s.nextTok, nil
}

func (s *Manual) CancelFrame(token Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelCalls++
	for i, t := range s.tasks {
		if t.token == token {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return
		}
	}
}

// Fire runs all pending callbacks, simulating one frame.
func (s *Manual) Fire() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, t := range tasks {
		t.fn()
	}
}

// SetError makes subsequent ScheduleFrame calls fail with err; nil clears.
func (s *Manual) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Pending returns the number of not-yet-fired callbacks.
func (s *Manual) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// ScheduleCalls returns how many times ScheduleFrame was invoked.
func (s *Manual) ScheduleCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleCalls
}

// CancelCalls returns how many times CancelFrame was invoked.
func (s *Manual) CancelCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelCalls
}
