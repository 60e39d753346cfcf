package vfz

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/norasector/vfzsdr/pkg/util"
	"github.com/norasector/vfzsdr/pkg/vfz/device"
)

const (
	DefaultPeriodSize         = 4096
	DefaultMaxRecoverAttempts = 3
)

type StreamState int

const (
	StateConfigured StreamState = iota
	StateActivated
	StateDeactivated
	StateClosed
)

func (s StreamState) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateActivated:
		return "activated"
	case StateDeactivated:
		return "deactivated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StreamError is returned by Read when the hardware failed and could not be
// recovered. It matches ErrStreamFatal with errors.Is.
type StreamError struct {
	// Err is the hardware read error.
	Err error
	// Recover is the reason recovery failed, or ErrRecoveryExhausted.
	Recover error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %v: %v", ErrStreamFatal, e.Err, e.Recover)
}

func (e *StreamError) Is(target error) bool {
	return target == ErrStreamFatal
}

func (e *StreamError) Unwrap() error {
	return e.Recover
}

type StreamStats struct {
	Reads      uint64
	Frames     uint64
	Timeouts   uint64
	Overruns   uint64
	Recoveries uint64
}

// Stream is one configured capture session on the RX channel. It owns the
// hardware handle and a reusable raw frame block. A Stream has no internal
// locking: configure, activate, read, deactivate and close must be called
// from a single goroutine.
type Stream struct {
	format     Format
	periodSize int
	maxRecover int

	capture device.Capture
	raw     []int32
	state   StreamState

	config *Config
	stats  StreamStats
	logger zerolog.Logger
}

func newStream(capture device.Capture, format Format, periodSize, maxRecover int, config *Config, logger zerolog.Logger) *Stream {
	return &Stream{
		format:     format,
		periodSize: periodSize,
		maxRecover: maxRecover,
		capture:    capture,
		raw:        make([]int32, 2*periodSize),
		state:      StateConfigured,
		config:     config,
		logger:     logger,
	}
}

func (s *Stream) Format() Format { return s.format }

func (s *Stream) State() StreamState { return s.state }

// MTU is the largest number of frames a single Read returns.
func (s *Stream) MTU() int { return s.periodSize }

func (s *Stream) Stats() StreamStats { return s.stats }

// SampleRate reports the configured device sample rate.
func (s *Stream) SampleRate() float64 { return s.config.SampleRate }

// Frequency reports the configured RF frequency.
func (s *Stream) Frequency() float64 { return s.config.Frequency }

// Activate starts hardware sampling. It is a no-op on a closed or already
// activated stream.
func (s *Stream) Activate() error {
	if s.capture == nil || s.state == StateActivated {
		return nil
	}
	s.logger.Info().Str("format", s.format.String()).Msg("activate stream")

	if err := s.capture.Start(); err != nil {
		return fmt.Errorf("activate stream: %w", err)
	}
	s.state = StateActivated
	return nil
}

// Deactivate halts sampling and discards any frames queued in hardware.
func (s *Stream) Deactivate() error {
	if s.capture == nil {
		return nil
	}
	s.logger.Info().Msg("deactivate stream")

	if err := s.capture.Drop(); err != nil {
		return fmt.Errorf("deactivate stream: %w", err)
	}
	s.state = StateDeactivated
	return nil
}

// Close releases the hardware handle. Calling it more than once is safe.
func (s *Stream) Close() error {
	if s.capture == nil {
		return nil
	}
	s.logger.Info().
		Str("frames", util.FramesToString(s.stats.Frames)).
		Uint64("overruns", s.stats.Overruns).
		Uint64("recoveries", s.stats.Recoveries).
		Msg("close stream")

	err := s.capture.Close()
	s.capture = nil
	s.state = StateClosed
	if err != nil {
		return fmt.Errorf("close stream: %w", err)
	}
	return nil
}

// HasHardwareTime reports whether HardwareTime is backed by the hardware.
func (s *Stream) HasHardwareTime() bool { return true }

// HardwareTime returns the hardware timestamp of the capture handle.
func (s *Stream) HardwareTime() (time.Duration, error) {
	if s.capture == nil {
		return 0, nil
	}
	return s.capture.Timestamp()
}

// Read blocks for up to timeout waiting for the hardware, then converts at
// most min(MTU, frames) frames into dst and returns the frame count. dst
// must be the slice type for the stream format; it receives 2 elements per
// frame and is never written past its length.
//
// Read returns 0 and a nil error when the stream is closed, not activated
// or the hardware is not running. It returns ErrTimeout when nothing became
// ready in time, and an error matching ErrStreamFatal when an overrun could
// not be recovered. The timeout is truncated to whole milliseconds; a
// negative timeout waits indefinitely.
func (s *Stream) Read(dst interface{}, frames int, timeout time.Duration) (int, error) {
	if s.capture == nil || s.state != StateActivated {
		return 0, nil
	}

	// A pending xrun is left for the pull below to report and recover.
	if st := s.capture.State(); st != device.StateRunning && st != device.StateXRun {
		return 0, nil
	}

	room := capacity(dst, s.format)
	if room < 0 {
		return 0, bufferTypeError(dst, s.format)
	}

	n := frames
	if n > s.periodSize {
		n = s.periodSize
	}
	if n > room/2 {
		n = room / 2
	}
	if n <= 0 {
		return 0, nil
	}

	timeoutMs := -1
	if timeout >= 0 {
		timeoutMs = int(timeout / time.Millisecond)
	}

	ready, err := s.capture.Wait(timeoutMs)
	if err == nil && !ready {
		s.stats.Timeouts++
		return 0, ErrTimeout
	}

	s.stats.Reads++
	got, err := s.pull(n)
	if err != nil {
		return 0, err
	}

	if err := Convert(dst, s.raw, got, s.format); err != nil {
		return 0, err
	}

	s.stats.Frames += uint64(got)
	return got, nil
}

// pull reads n frames into the raw block, recovering from hardware errors at
// most maxRecover times.
func (s *Stream) pull(n int) (int, error) {
	got, err := s.capture.Read(s.raw, n)

	for attempts := 0; err != nil; {
		if errors.Is(err, device.ErrOverrun) {
			s.stats.Overruns++
		}

		if attempts == s.maxRecover {
			s.logger.Error().Err(err).Int("attempts", attempts).Msg("read stream: recovery attempts exhausted")
			return 0, &StreamError{Err: err, Recover: ErrRecoveryExhausted}
		}
		attempts++

		if rerr := s.capture.Recover(err); rerr != nil {
			s.logger.Error().Err(err).AnErr("recover_err", rerr).Msg("read stream error")
			return 0, &StreamError{Err: err, Recover: rerr}
		}
		s.stats.Recoveries++
		s.logger.Warn().Err(err).Int("attempt", attempts).Msg("read stream recovered")

		got, err = s.capture.Read(s.raw, n)
	}

	if got > n {
		got = n
	}
	return got, nil
}
