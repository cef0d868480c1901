// Package capturetest provides a scriptable transfer source for tests.
package capturetest

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrBusy     = errors.New("transfer already pending")
	ErrScripted = errors.New("scripted transfer failure")
)

// Source completes transfers on its own goroutine. Every completed buffer is
// filled with a ramp that continues across buffers, so sample k of a session
// holds int16(k).
type Source struct {
	// Interval paces completions.
	Interval time.Duration
	// FailOn lists 1-based request numbers that fail.
	FailOn map[int]bool
	// Limit stops completing transfers after this many completions.
	Limit int
	// Gate is called before each completion outside the source lock.
	Gate func()

	mu      sync.Mutex
	handler func()
	next    int16

	gen       atomic.Uint64
	requests  atomic.Int64
	completed atomic.Int64
	aborts    atomic.Int64

	reqs     chan request
	quit     chan struct{}
	done     chan struct{}
	startMu  sync.Once
	closeMu  sync.Once
}

type request struct {
	buf []int16
	gen uint64
}

func (s *Source) start() {
	s.startMu.Do(func() {
		s.reqs = make(chan request, 1)
		s.quit = make(chan struct{})
		s.done = make(chan struct{})
		go s.loop()
	})
}

func (s *Source) SetCompletionHandler(fn func()) {
	s.start()
	s.mu.Lock()
	s.handler = fn
	s.mu.Unlock()
}

func (s *Source) RequestTransfer(buf []int16) error {
	s.start()
	n := int(s.requests.Add(1))
	if s.FailOn[n] {
		return ErrScripted
	}
	select {
	case s.reqs <- request{buf: buf, gen: s.gen.Load()}:
		return nil
	default:
		return ErrBusy
	}
}

func (s *Source) Abort() error {
	s.start()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen.Add(1)
	s.aborts.Add(1)
	s.next = 0
	for {
		select {
		case <-s.reqs:
		default:
			return nil
		}
	}
}

func (s *Source) Close() error {
	s.start()
	s.closeMu.Do(func() { close(s.quit) })
	<-s.done
	return nil
}

// Requests returns the number of RequestTransfer calls.
func (s *Source) Requests() int { return int(s.requests.Load()) }

// Completed returns the number of delivered completions.
func (s *Source) Completed() int { return int(s.completed.Load()) }

// Aborts returns the number of Abort calls.
func (s *Source) Aborts() int { return int(s.aborts.Load()) }

func (s *Source) loop() {
	defer close(s.done)
	for {
		var req request
		select {
		case <-s.quit:
			return
		case req = <-s.reqs:
		}

		if s.Limit > 0 && int(s.completed.Load()) >= s.Limit {
			// Stall: the transfer never completes until aborted.
			continue
		}
		if s.Interval > 0 {
			select {
			case <-s.quit:
				return
			case <-time.After(s.Interval):
			}
		}
		if s.Gate != nil {
			s.Gate()
		}

		s.mu.Lock()
		if req.gen == s.gen.Load() && s.handler != nil {
			for i := range req.buf {
				req.buf[i] = s.next
				s.next++
			}
			s.completed.Add(1)
			s.handler()
		}
		s.mu.Unlock()
	}
}
