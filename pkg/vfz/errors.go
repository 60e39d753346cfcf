package vfz

import "errors"

var (
	ErrInvalidChannel = errors.New("invalid channel selection")
	ErrInvalidFormat  = errors.New("invalid stream format")
	ErrStreamOpen     = errors.New("stream already open")

	// ErrTimeout is returned by Read when no frames became ready within the
	// timeout. It is not fatal; the caller may read again.
	ErrTimeout = errors.New("read timeout")
	// ErrStreamFatal is returned by Read when the hardware could not be
	// recovered. The stream should be closed.
	ErrStreamFatal       = errors.New("stream error")
	ErrRecoveryExhausted = errors.New("overrun recovery attempts exhausted")

	ErrUnsupportedFormat = errors.New("unsupported sample format")
	ErrBufferType        = errors.New("destination buffer type does not match format")
	ErrShortBuffer       = errors.New("destination buffer too short")

	ErrUnknownTuner = errors.New("unknown tuner")
)
