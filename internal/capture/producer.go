package capture

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// Event reports one completed transfer.
type Event struct {
	Index int
	Seq   uint64
}

// Producer owns the two sample buffers and re-arms the transfer source from
// its completion callback. All state shared with the foreground is atomic;
// OnTransferComplete takes no locks, does not allocate and never blocks.
type Producer struct {
	src     TransferSource
	chunk   int
	buffers [2][]int16

	active   atomic.Uint32
	seq      atomic.Uint64
	fault    atomic.Uint32
	stopped  atomic.Bool
	inflight atomic.Int32
	// released[i] is true while buffer i may be handed to the source.
	released [2]atomic.Bool

	events chan Event
	faults chan struct{}
}

// NewProducer wires a producer to src using bufA and bufB as the double
// buffer. Both buffers must be non-empty and the same length.
func NewProducer(src TransferSource, bufA, bufB []int16) (*Producer, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil transfer source", ErrInvalidParameters)
	}
	if len(bufA) == 0 || len(bufB) == 0 {
		return nil, fmt.Errorf("%w: zero-length buffer", ErrInvalidParameters)
	}
	if len(bufA) != len(bufB) {
		return nil, fmt.Errorf("%w: buffer lengths differ (%d != %d)", ErrInvalidParameters, len(bufA), len(bufB))
	}

	p := &Producer{
		src:     src,
		chunk:   len(bufA),
		buffers: [2][]int16{bufA, bufB},
		events:  make(chan Event, 2),
		faults:  make(chan struct{}, 1),
	}
	p.Initialize()
	src.SetCompletionHandler(p.OnTransferComplete)
	return p, nil
}

// Initialize resets the producer for a new session. It must only be called
// from the foreground while no transfer is armed.
func (p *Producer) Initialize() {
	p.active.Store(0)
	p.seq.Store(0)
	p.fault.Store(uint32(FaultNone))
	p.stopped.Store(false)
	p.released[0].Store(true)
	p.released[1].Store(true)

	for {
		select {
		case <-p.events:
		case <-p.faults:
		default:
			return
		}
	}
}

// ChunkSize returns the number of samples per transfer.
func (p *Producer) ChunkSize() int { return p.chunk }

// Buffer returns buffer i. The caller may only read it between receiving
// its Event and calling Release.
func (p *Producer) Buffer(i int) []int16 { return p.buffers[i] }

// Events returns the completion event channel.
func (p *Producer) Events() <-chan Event { return p.events }

// Faults is signalled when a sticky fault is raised.
func (p *Producer) Faults() <-chan struct{} { return p.faults }

// Fault returns the sticky fault, if any.
func (p *Producer) Fault() Fault { return Fault(p.fault.Load()) }

// Active returns the index of the buffer currently being filled.
func (p *Producer) Active() int { return int(p.active.Load()) }

// Arm issues the first transfer of a session into the active buffer.
func (p *Producer) Arm() error {
	idx := p.active.Load()
	p.released[idx].Store(false)
	if err := p.src.RequestTransfer(p.buffers[idx]); err != nil {
		p.released[idx].Store(true)
		return fmt.Errorf("%w: %v", ErrTransferRequestFailed, err)
	}
	return nil
}

// Release hands buffer i back to the producer once it has been drained.
func (p *Producer) Release(i int) {
	p.released[i].Store(true)
}

// OnTransferComplete runs on the source's callback goroutine.
func (p *Producer) OnTransferComplete() {
	p.inflight.Add(1)
	defer p.inflight.Add(-1)

	idx := p.active.Load()
	select {
	case p.events <- Event{Index: int(idx), Seq: p.seq.Load()}:
	default:
		p.raise(FaultOverrun)
		return
	}
	p.seq.Add(1)

	next := idx ^ 1
	p.active.Store(next)

	if p.stopped.Load() || p.fault.Load() != uint32(FaultNone) {
		return
	}
	if !p.released[next].Load() {
		p.raise(FaultOverrun)
		return
	}
	p.released[next].Store(false)
	if err := p.src.RequestTransfer(p.buffers[next]); err != nil {
		p.raise(FaultTransferRequest)
	}
}

// Stop prevents any further re-arming and cancels the armed transfer. When
// it returns no completion handler is running and every buffer that was
// completed before or during the stop is visible on Events.
func (p *Producer) Stop() error {
	p.stopped.Store(true)
	// A handler that read stopped==false may still be arming; let it finish
	// so Abort cancels what it armed.
	p.quiesce()
	err := p.src.Abort()
	p.quiesce()
	return err
}

func (p *Producer) quiesce() {
	for p.inflight.Load() != 0 {
		runtime.Gosched()
	}
}

func (p *Producer) raise(f Fault) {
	if p.fault.CompareAndSwap(uint32(FaultNone), uint32(f)) {
		select {
		case p.faults <- struct{}{}:
		default:
		}
	}
}
