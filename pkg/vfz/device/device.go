package device

import (
	"errors"
	"time"
)

var (
	// ErrOverrun is reported by Read when the hardware ring overflowed.
	ErrOverrun = errors.New("capture overrun")
	// ErrUnsupported is returned by backends that are not built on this platform.
	ErrUnsupported = errors.New("capture backend not supported on this platform")
	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("capture handle closed")
)

// State mirrors the PCM state machine of the capture hardware.
type State int

const (
	StateOpen State = iota
	StateSetup
	StatePrepared
	StateRunning
	StateXRun
	StateDraining
	StatePaused
	StateSuspended
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateSetup:
		return "setup"
	case StatePrepared:
		return "prepared"
	case StateRunning:
		return "running"
	case StateXRun:
		return "xrun"
	case StateDraining:
		return "draining"
	case StatePaused:
		return "paused"
	case StateSuspended:
		return "suspended"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Capture is a single opened hardware capture handle producing interleaved
// int32 I/Q frames. Implementations are not safe for concurrent use.
type Capture interface {
	// Start begins hardware sampling.
	Start() error
	// Drop halts sampling, discards buffered frames and prepares the handle
	// for a later Start.
	Drop() error
	State() State
	// Wait blocks until at least one period is ready or timeoutMs elapses.
	// It reports false on timeout.
	Wait(timeoutMs int) (bool, error)
	// Read pulls up to frames frames into buf, which must hold 2*frames values.
	Read(buf []int32, frames int) (int, error)
	// Recover attempts to bring the handle back to a running state after
	// Read failed with err. A nil return means Read may be retried.
	Recover(err error) error
	Timestamp() (time.Duration, error)
	Close() error
}

// Opener opens the named capture hardware with the given period size.
type Opener func(name string, periodSize int) (Capture, error)
