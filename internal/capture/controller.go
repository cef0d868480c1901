package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// State is a Controller session state.
type State string

const (
	StateIdle        State = "IDLE"
	StateArmed       State = "ARMED"
	StateRecording   State = "RECORDING"
	StateCompleting  State = "COMPLETING"
	StateTimedOut    State = "TIMED_OUT"
	StateFailedToArm State = "FAILED_TO_ARM"
	StateFaulted     State = "FAULTED"
	StateStopped     State = "STOPPED"
)

// progressEvery controls how often capture progress is logged.
const progressEvery = 10

// Session is the outcome of one capture. State is the terminal state the
// session passed through before the controller returned to Idle.
type Session struct {
	Target   int
	Captured int
	Events   int
	State    State
	Started  time.Time
	Deadline time.Time
	Ended    time.Time
	Err      error
}

// Samples returns the captured count capped at the target.
func (s *Session) Samples() int {
	return min(s.Captured, s.Target)
}

// Complete reports whether the target was reached.
func (s *Session) Complete() bool {
	return s.Captured >= s.Target
}

// Controller drives one session at a time on the foreground goroutine.
type Controller struct {
	producer *Producer
	clock    Clock
	log      zerolog.Logger
	state    State
}

// NewController creates a controller around p. A nil clock uses SystemClock.
func NewController(p *Producer, clock Clock, log zerolog.Logger) *Controller {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Controller{
		producer: p,
		clock:    clock,
		log:      log,
		state:    StateIdle,
	}
}

// State returns the controller's current state.
func (c *Controller) State() State { return c.state }

// Run captures target samples, forwarding every completed buffer to sink in
// sequence order, until the target is reached, the deadline elapses, the
// producer faults or ctx is cancelled. The returned Session is always
// non-nil for valid parameters; the error describes any non-success end.
func (c *Controller) Run(ctx context.Context, target int, deadline time.Duration, sink Sink) (*Session, error) {
	if target <= 0 || deadline <= 0 || sink == nil {
		return nil, fmt.Errorf("%w: target=%d deadline=%v", ErrInvalidParameters, target, deadline)
	}
	if c.state != StateIdle {
		return nil, fmt.Errorf("can only start a session from idle state, current: %s", c.state)
	}
	defer func() { c.state = StateIdle }()

	p := c.producer
	p.Initialize()

	s := &Session{Target: target, Started: c.clock.Now()}
	s.Deadline = s.Started.Add(deadline)

	c.state = StateArmed
	if err := p.Arm(); err != nil {
		c.finish(s, StateFailedToArm, err)
		return s, err
	}

	c.state = StateRecording
	c.log.Debug().Int("target", target).Int("chunk", p.ChunkSize()).Time("deadline", s.Deadline).Msg("Capture armed")

	timeout := c.clock.After(s.Deadline.Sub(c.clock.Now()))
	for {
		select {
		case ev := <-p.Events():
			if err := c.consume(s, ev, sink); err != nil {
				c.stop(s, sink)
				c.finish(s, StateFaulted, err)
				return s, err
			}
			if s.Complete() {
				c.state = StateCompleting
				c.stop(s, sink)
				c.finish(s, StateCompleting, nil)
				return s, nil
			}
			if f := p.Fault(); f != FaultNone {
				return s, c.fault(s, sink, f)
			}

		case <-p.Faults():
			return s, c.fault(s, sink, p.Fault())

		case <-timeout:
			c.state = StateTimedOut
			c.stop(s, sink)
			if s.Complete() {
				// The final buffer landed while stopping.
				c.finish(s, StateCompleting, nil)
				return s, nil
			}
			err := fmt.Errorf("%w: captured %d of %d samples", ErrCaptureTimeout, s.Captured, s.Target)
			c.finish(s, StateTimedOut, err)
			return s, err

		case <-ctx.Done():
			c.state = StateStopped
			c.stop(s, sink)
			c.finish(s, StateStopped, ctx.Err())
			return s, ctx.Err()
		}
	}
}

func (c *Controller) consume(s *Session, ev Event, sink Sink) error {
	p := c.producer
	defer p.Release(ev.Index)

	if s.Complete() {
		// Buffers completed after the target are not part of the clip.
		return nil
	}

	chunk := p.ChunkSize()
	if err := sink.Consume(p.Buffer(ev.Index), chunk, ev.Seq); err != nil {
		return err
	}
	s.Captured += chunk
	s.Events++

	if s.Events%progressEvery == 0 {
		c.log.Debug().Int("buffers", s.Events).Int("captured", s.Captured).Int("target", s.Target).Msg("Capture progress")
	}
	return nil
}

// stop halts the producer and drains every buffer that was already filled.
func (c *Controller) stop(s *Session, sink Sink) {
	p := c.producer
	if err := p.Stop(); err != nil {
		c.log.Warn().Err(err).Msg("Transfer abort failed")
	}
	for {
		select {
		case ev := <-p.Events():
			if err := c.consume(s, ev, sink); err != nil {
				c.log.Error().Err(err).Uint64("seq", ev.Seq).Msg("Dropping buffer after stop")
			}
		default:
			return
		}
	}
}

func (c *Controller) fault(s *Session, sink Sink, f Fault) error {
	c.state = StateFaulted
	c.stop(s, sink)
	err := fmt.Errorf("%w after %d buffers", f.Err(), s.Events)
	c.finish(s, StateFaulted, err)
	return err
}

func (c *Controller) finish(s *Session, state State, err error) {
	s.State = state
	s.Err = err
	s.Ended = c.clock.Now()

	expected := (s.Target + c.producer.ChunkSize() - 1) / c.producer.ChunkSize()
	evt := c.log.Debug()
	if err != nil {
		evt = c.log.Warn().Err(err)
	}
	evt.Str("state", string(state)).
		Int("target", s.Target).
		Int("captured", s.Captured).
		Int("buffers", s.Events).
		Float64("expected_pct", float64(s.Events)*100/float64(expected)).
		Dur("elapsed", s.Ended.Sub(s.Started)).
		Msg("Capture session finished")
}
