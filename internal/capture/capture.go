// Package capture implements the double-buffered capture pipeline: a
// Producer driven by transfer-completion callbacks and a Controller that
// runs one clip's session on the foreground goroutine.
package capture

import (
	"errors"
	"time"
)

var (
	// ErrTransferRequestFailed is returned when a transfer could not be armed.
	ErrTransferRequestFailed = errors.New("transfer request failed")
	// ErrOverrun is returned when the producer had to re-arm into a buffer
	// that was not yet released by the consumer.
	ErrOverrun = errors.New("buffer overrun")
	// ErrCaptureTimeout is returned when the target was not reached in time.
	ErrCaptureTimeout = errors.New("capture timeout")
	// ErrInvalidParameters is returned for empty buffers or counts.
	ErrInvalidParameters = errors.New("invalid parameters")
)

// TransferSource is the hardware side of the pipeline. Completions are
// delivered on the source's own goroutine through the registered handler.
type TransferSource interface {
	// SetCompletionHandler registers the function called once per completed
	// transfer.
	SetCompletionHandler(fn func())
	// RequestTransfer arms a transfer into buf. It must not block.
	RequestTransfer(buf []int16) error
	// Abort cancels any armed transfer. Once Abort returns no further
	// completion is delivered for transfers armed before the call.
	Abort() error
	Close() error
}

// Sink receives drained buffers in completion order.
type Sink interface {
	Consume(samples []int16, count int, seq uint64) error
}

// Clock is the monotonic time source used for deadlines and delays.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock reads the runtime's monotonic clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Fault is a sticky condition raised from the completion handler.
type Fault uint32

const (
	FaultNone Fault = iota
	FaultTransferRequest
	FaultOverrun
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultTransferRequest:
		return "transfer-request-failed"
	case FaultOverrun:
		return "overrun"
	default:
		return "unknown"
	}
}

// Err maps the fault to its sentinel error.
func (f Fault) Err() error {
	switch f {
	case FaultTransferRequest:
		return ErrTransferRequestFailed
	case FaultOverrun:
		return ErrOverrun
	default:
		return nil
	}
}
