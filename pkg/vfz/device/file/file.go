package file

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/norasector/vfzsdr/pkg/vfz/device"
)

const (
	bytesPerFrame     = 8
	defaultRingPeriod = 4
)

var errNotRunning = errors.New("file device: not running")

// Clock is the time source used to pace playback.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

type Option func(f *FileDevice)

// WithLoop rewinds to the start of the recording instead of failing at EOF.
func WithLoop() Option {
	return func(f *FileDevice) {
		f.loop = true
	}
}

func WithClock(c Clock) Option {
	return func(f *FileDevice) {
		f.clock = c
	}
}

// WithRingPeriods sets how many periods the emulated hardware ring holds
// before an overrun is reported.
func WithRingPeriods(n int) Option {
	return func(f *FileDevice) {
		if n > 0 {
			f.ringPeriods = n
		}
	}
}

// FileDevice replays a raw recording of interleaved little-endian int32 I/Q
// frames at a fixed sample rate. It behaves like a capture ring: frames
// become available as time passes and a consumer that falls more than the
// ring length behind gets device.ErrOverrun.
type FileDevice struct {
	src    io.ReadSeeker
	closer io.Closer

	sampleRate  int
	periodSize  int
	ringPeriods int
	loop        bool
	clock       Clock

	state    device.State
	started  time.Time
	consumed int64
	total    int64
	raw      []byte
}

// New wraps src. periodSize is the number of frames per hardware period.
func New(src io.ReadSeeker, sampleRate, periodSize int, opts ...Option) (*FileDevice, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("file device: invalid sample rate %d", sampleRate)
	}
	if periodSize <= 0 {
		return nil, fmt.Errorf("file device: invalid period size %d", periodSize)
	}

	f := &FileDevice{
		src:         src,
		sampleRate:  sampleRate,
		periodSize:  periodSize,
		ringPeriods: defaultRingPeriod,
		clock:       realClock{},
		state:       device.StatePrepared,
	}
	if c, ok := src.(io.Closer); ok {
		f.closer = c
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// Open opens the recording at path.
func Open(path string, sampleRate, periodSize int, opts ...Option) (*FileDevice, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	f, err := New(fd, sampleRate, periodSize, opts...)
	if err != nil {
		fd.Close()
		return nil, err
	}
	return f, nil
}

// Opener returns a device.Opener that ignores the hardware name and replays path.
func Opener(path string, sampleRate int, opts ...Option) device.Opener {
	return func(_ string, periodSize int) (device.Capture, error) {
		f, err := Open(path, sampleRate, periodSize, opts...)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

func (f *FileDevice) ringFrames() int64 {
	return int64(f.ringPeriods * f.periodSize)
}

// available returns the frames produced since start that were not yet read.
func (f *FileDevice) available() int64 {
	elapsed := int64(f.clock.Now().Sub(f.started))
	rate := int64(f.sampleRate)
	sec := int64(time.Second)
	produced := (elapsed/sec)*rate + (elapsed%sec)*rate/sec
	return produced - f.consumed
}

func (f *FileDevice) framesDuration(frames int64) time.Duration {
	rate := int64(f.sampleRate)
	sec := int64(time.Second)
	return time.Duration((frames/rate)*sec + (frames%rate)*sec/rate)
}

func (f *FileDevice) restart() {
	f.state = device.StateRunning
	f.started = f.clock.Now()
	f.consumed = 0
}

func (f *FileDevice) Start() error {
	if f.state == device.StateDisconnected {
		return device.ErrClosed
	}
	if f.state != device.StateRunning {
		f.restart()
	}
	return nil
}

func (f *FileDevice) Drop() error {
	if f.state == device.StateDisconnected {
		return device.ErrClosed
	}
	f.state = device.StatePrepared
	return nil
}

func (f *FileDevice) State() device.State {
	if f.state == device.StateRunning && f.available() > f.ringFrames() {
		f.state = device.StateXRun
	}
	return f.state
}

func (f *FileDevice) Wait(timeoutMs int) (bool, error) {
	switch f.State() {
	case device.StateXRun:
		return true, device.ErrOverrun
	case device.StateRunning:
	default:
		return false, nil
	}

	need := int64(f.periodSize) - f.available()
	if need <= 0 {
		return true, nil
	}

	timeout := time.Duration(timeoutMs) * time.Millisecond
	wait := f.framesDuration(need)
	if timeoutMs >= 0 && wait > timeout {
		f.clock.Sleep(timeout)
		return false, nil
	}
	f.clock.Sleep(wait)
	return true, nil
}

func (f *FileDevice) Read(buf []int32, frames int) (int, error) {
	switch f.State() {
	case device.StateXRun:
		return 0, device.ErrOverrun
	case device.StateRunning:
	case device.StateDisconnected:
		return 0, device.ErrClosed
	default:
		return 0, errNotRunning
	}

	if len(buf) < 2*frames {
		frames = len(buf) / 2
	}
	if frames <= 0 {
		return 0, nil
	}

	// Blocking read: wait for the remainder of the request to be produced.
	if short := int64(frames) - f.available(); short > 0 {
		f.clock.Sleep(f.framesDuration(short))
	}

	n, err := f.fill(frames)
	if n == 0 {
		return 0, err
	}

	for i := 0; i < 2*n; i++ {
		buf[i] = int32(binary.LittleEndian.Uint32(f.raw[i*4:]))
	}

	f.consumed += int64(n)
	f.total += int64(n)
	return n, nil
}

// fill reads up to frames whole frames into f.raw, rewinding at EOF when looping.
func (f *FileDevice) fill(frames int) (int, error) {
	size := frames * bytesPerFrame
	if cap(f.raw) < size {
		f.raw = make([]byte, size)
	}
	f.raw = f.raw[:size]

	read := 0
	for read < size {
		n, err := io.ReadFull(f.src, f.raw[read:])
		read += n
		if err == nil {
			break
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return read / bytesPerFrame, err
		}
		if !f.loop {
			if read/bytesPerFrame == 0 {
				return 0, io.EOF
			}
			break
		}
		if _, err := f.src.Seek(0, io.SeekStart); err != nil {
			return read / bytesPerFrame, err
		}
		if n == 0 && read == 0 {
			// Rewound an empty recording.
			return 0, io.EOF
		}
	}

	return read / bytesPerFrame, nil
}

func (f *FileDevice) Recover(err error) error {
	if f.state == device.StateDisconnected {
		return device.ErrClosed
	}
	if !errors.Is(err, device.ErrOverrun) {
		return err
	}
	f.restart()
	return nil
}

// Timestamp returns the sample clock position of the next frame to be read.
func (f *FileDevice) Timestamp() (time.Duration, error) {
	if f.state == device.StateDisconnected {
		return 0, device.ErrClosed
	}
	return f.framesDuration(f.total), nil
}

func (f *FileDevice) Close() error {
	if f.state == device.StateDisconnected {
		return nil
	}
	f.state = device.StateDisconnected
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}
