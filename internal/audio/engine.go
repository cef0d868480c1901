package audio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrBusy is returned by RequestTransfer while a transfer is already armed.
var ErrBusy = errors.New("transfer already armed")

// fillRetryDelay throttles a fill function that keeps failing.
const fillRetryDelay = 50 * time.Millisecond

// fillFunc blocks until dst has been filled with fresh samples.
type fillFunc func(dst []int16) error

type transfer struct {
	buf []int16
	gen uint64
	// armed is the fill counter when the transfer was requested. Only a
	// fill that started after the request may complete it.
	armed uint64
}

// engine turns a blocking fill function into the asynchronous
// request/complete contract of capture.TransferSource. It reads the device
// continuously like a free-running DMA channel: chunks that arrive while no
// transfer is armed are dropped, so a new session never sees a backlog.
// Completions run on the engine goroutine with mu held; Abort takes mu, so
// once it returns no completion for an earlier transfer can be delivered.
type engine struct {
	fill fillFunc
	log  zerolog.Logger

	mu      sync.Mutex
	handler func()
	gen     atomic.Uint64
	busy    atomic.Bool
	fills   atomic.Uint64
	scratch []int16

	// pending is only touched by the engine goroutine.
	pending    transfer
	hasPending bool

	reqs      chan transfer
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newEngine(chunk int, fill fillFunc, log zerolog.Logger) *engine {
	e := &engine{
		fill:    fill,
		log:     log,
		scratch: make([]int16, chunk),
		reqs:    make(chan transfer, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go e.loop()
	return e
}

func (e *engine) SetCompletionHandler(fn func()) {
	e.mu.Lock()
	e.handler = fn
	e.mu.Unlock()
}

// RequestTransfer never blocks and never allocates.
func (e *engine) RequestTransfer(buf []int16) error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	select {
	case e.reqs <- transfer{buf: buf, gen: e.gen.Load(), armed: e.fills.Load()}:
		return nil
	default:
		return ErrBusy
	}
}

func (e *engine) Abort() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen.Add(1)
	for {
		select {
		case <-e.reqs:
		default:
			e.busy.Store(false)
			return nil
		}
	}
}

// close stops the engine goroutine. A fill in progress is allowed to finish.
func (e *engine) close() {
	e.closeOnce.Do(func() { close(e.quit) })
	<-e.done
}

func (e *engine) loop() {
	defer close(e.done)
	failing := false
	for {
		select {
		case <-e.quit:
			return
		default:
		}

		n := e.fills.Add(1)
		if err := e.fill(e.scratch); err != nil {
			select {
			case <-e.quit:
				return
			default:
			}
			if !failing {
				// The armed transfer stays pending; the session deadline reports it.
				e.log.Error().Err(err).Msg("Audio transfer failed")
				failing = true
			}
			select {
			case <-e.quit:
				return
			case <-time.After(fillRetryDelay):
			}
			continue
		}
		if failing {
			e.log.Info().Msg("Audio input recovered")
			failing = false
		}

		e.mu.Lock()
		if t, ok := e.take(n); ok {
			copy(t.buf, e.scratch)
			e.busy.Store(false)
			if e.handler != nil {
				e.handler()
			}
		}
		e.mu.Unlock()
	}
}

// take returns the transfer completed by fill n, if any. Transfers from
// before the last Abort are discarded. Called with mu held.
func (e *engine) take(n uint64) (transfer, bool) {
	for {
		if !e.hasPending {
			select {
			case e.pending = <-e.reqs:
				e.hasPending = true
			default:
				return transfer{}, false
			}
		}
		if e.pending.gen != e.gen.Load() {
			e.log.Trace().Msg("Discarding aborted transfer")
			e.hasPending = false
			continue
		}
		if e.pending.armed >= n {
			// Armed while this chunk was already being read.
			return transfer{}, false
		}
		e.hasPending = false
		return e.pending, true
	}
}
