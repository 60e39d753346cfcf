package vfz

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/norasector/vfzsdr/pkg/vfz/device"
)

var errHardware = errors.New("hardware gone")

// fakeCapture is a scripted capture handle. Reads pop readErrs first and
// then fill every requested frame with (fill, -fill).
type fakeCapture struct {
	state      device.State
	ready      bool
	waitErr    error
	readErrs   []error
	recoverErr error
	fill       int32
	timestamp  time.Duration

	started, dropped, closed int
	waits, reads, recovers   int
	lastWait                 int
	lastFrames               int
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{state: device.StatePrepared, ready: true, fill: 1 << 24}
}

func (f *fakeCapture) Start() error {
	f.started++
	f.state = device.StateRunning
	return nil
}

func (f *fakeCapture) Drop() error {
	f.dropped++
	f.state = device.StatePrepared
	return nil
}

func (f *fakeCapture) State() device.State { return f.state }

func (f *fakeCapture) Wait(timeoutMs int) (bool, error) {
	f.waits++
	f.lastWait = timeoutMs
	return f.ready, f.waitErr
}

func (f *fakeCapture) Read(buf []int32, frames int) (int, error) {
	f.reads++
	f.lastFrames = frames
	if len(f.readErrs) > 0 {
		err := f.readErrs[0]
		f.readErrs = f.readErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	for i := 0; i < frames; i++ {
		buf[2*i] = f.fill
		buf[2*i+1] = -f.fill
	}
	return frames, nil
}

func (f *fakeCapture) Recover(err error) error {
	f.recovers++
	if f.recoverErr != nil {
		return f.recoverErr
	}
	f.state = device.StateRunning
	return nil
}

func (f *fakeCapture) Timestamp() (time.Duration, error) { return f.timestamp, nil }

func (f *fakeCapture) Close() error {
	f.closed++
	return nil
}

func testStream(fc *fakeCapture, format Format, periodSize, maxRecover int) *Stream {
	cfg := DefaultConfig()
	return newStream(fc, format, periodSize, maxRecover, &cfg, zerolog.Nop())
}

func TestReadInactive(t *testing.T) {
	fc := newFakeCapture()
	s := testStream(fc, FormatCF32, 16, 3)
	buf := make([]float32, 32)

	n, err := s.Read(buf, 16, time.Second)
	if n != 0 || err != nil {
		t.Errorf("Read() before activate = %d, %v, want 0, nil", n, err)
	}

	if err := s.Activate(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	n, err = s.Read(buf, 16, time.Second)
	if n != 0 || err != nil {
		t.Errorf("Read() after close = %d, %v, want 0, nil", n, err)
	}
	if fc.reads != 0 || fc.waits != 0 {
		t.Errorf("hardware touched: %d waits, %d reads", fc.waits, fc.reads)
	}
}

func TestReadHardwareNotRunning(t *testing.T) {
	fc := newFakeCapture()
	s := testStream(fc, FormatCS32, 16, 3)
	if err := s.Activate(); err != nil {
		t.Fatal(err)
	}
	fc.state = device.StatePaused

	n, err := s.Read(make([]int32, 32), 16, time.Second)
	if n != 0 || err != nil {
		t.Errorf("Read() = %d, %v, want 0, nil", n, err)
	}
}

func TestReadFormats(t *testing.T) {
	tests := []struct {
		format Format
		check  func(buf interface{}) bool
	}{
		{FormatCF32, func(buf interface{}) bool {
			b := buf.([]float32)
			return b[0] > 0 && b[1] < 0 && b[0] == -b[1]
		}},
		{FormatCS32, func(buf interface{}) bool {
			b := buf.([]int32)
			return b[0] == 1<<24 && b[1] == -(1<<24)
		}},
		{FormatCS16, func(buf interface{}) bool {
			b := buf.([]int16)
			return b[0] == 256 && b[1] == -256
		}},
		{FormatCS8, func(buf interface{}) bool {
			b := buf.([]int8)
			return b[0] == 1 && b[1] == -1
		}},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			fc := newFakeCapture()
			s := testStream(fc, tt.format, 8, 3)
			if err := s.Activate(); err != nil {
				t.Fatal(err)
			}

			buf, err := NewBuffer(tt.format, 8)
			if err != nil {
				t.Fatal(err)
			}
			n, err := s.Read(buf, 8, time.Second)
			if err != nil {
				t.Fatal(err)
			}
			if n != 8 {
				t.Errorf("Read() = %d frames, want 8", n)
			}
			if !tt.check(buf) {
				t.Errorf("unexpected samples %v", buf)
			}
		})
	}
}

func TestReadMTU(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		bufFrames int
		want      int
	}{
		{"larger than period", 100, 100, 16},
		{"smaller than period", 5, 100, 5},
		{"buffer limits", 100, 3, 3},
		{"zero", 0, 16, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := newFakeCapture()
			s := testStream(fc, FormatCS16, 16, 3)
			if s.MTU() != 16 {
				t.Fatalf("MTU() = %d, want 16", s.MTU())
			}
			if err := s.Activate(); err != nil {
				t.Fatal(err)
			}

			n, err := s.Read(make([]int16, 2*tt.bufFrames), tt.requested, time.Second)
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.want {
				t.Errorf("Read() = %d frames, want %d", n, tt.want)
			}
		})
	}
}

func TestReadBufferType(t *testing.T) {
	fc := newFakeCapture()
	s := testStream(fc, FormatCF32, 16, 3)
	if err := s.Activate(); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Read(make([]int16, 32), 16, time.Second); !errors.Is(err, ErrBufferType) {
		t.Errorf("Read() error = %v, want %v", err, ErrBufferType)
	}
}

func TestReadTimeout(t *testing.T) {
	tests := []struct {
		name     string
		timeout  time.Duration
		wantWait int
	}{
		{"sub-millisecond", 999 * time.Microsecond, 0},
		{"truncated", 1500 * time.Microsecond, 1},
		{"whole", 250 * time.Millisecond, 250},
		{"forever", -1, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := newFakeCapture()
			fc.ready = false
			s := testStream(fc, FormatCF32, 16, 3)
			if err := s.Activate(); err != nil {
				t.Fatal(err)
			}

			n, err := s.Read(make([]float32, 32), 16, tt.timeout)
			if !errors.Is(err, ErrTimeout) || n != 0 {
				t.Errorf("Read() = %d, %v, want 0, %v", n, err, ErrTimeout)
			}
			if fc.lastWait != tt.wantWait {
				t.Errorf("wait timeout = %d ms, want %d", fc.lastWait, tt.wantWait)
			}
			if fc.reads != 0 {
				t.Errorf("hardware read %d times after a timeout", fc.reads)
			}
			if s.Stats().Timeouts != 1 {
				t.Errorf("Timeouts = %d, want 1", s.Stats().Timeouts)
			}
		})
	}
}

func TestReadWaitErrorPulls(t *testing.T) {
	fc := newFakeCapture()
	fc.waitErr = device.ErrOverrun
	s := testStream(fc, FormatCF32, 16, 3)
	if err := s.Activate(); err != nil {
		t.Fatal(err)
	}

	n, err := s.Read(make([]float32, 32), 16, time.Second)
	if err != nil || n != 16 {
		t.Errorf("Read() = %d, %v, want 16, nil", n, err)
	}
}

func TestReadOverrunRecovered(t *testing.T) {
	fc := newFakeCapture()
	s := testStream(fc, FormatCF32, 16, 3)
	if err := s.Activate(); err != nil {
		t.Fatal(err)
	}

	fc.state = device.StateXRun
	fc.readErrs = []error{device.ErrOverrun}

	n, err := s.Read(make([]float32, 32), 16, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if n != 16 {
		t.Errorf("Read() = %d frames, want 16", n)
	}
	if fc.recovers != 1 {
		t.Errorf("recovers = %d, want 1", fc.recovers)
	}

	n, err = s.Read(make([]float32, 32), 16, time.Second)
	if err != nil || n != 16 {
		t.Errorf("next Read() = %d, %v, want 16, nil", n, err)
	}

	want := StreamStats{Reads: 2, Frames: 32, Overruns: 1, Recoveries: 1}
	if s.Stats() != want {
		t.Errorf("Stats() = %+v, want %+v", s.Stats(), want)
	}
}

func TestReadRecoverFails(t *testing.T) {
	fc := newFakeCapture()
	fc.recoverErr = errHardware
	s := testStream(fc, FormatCF32, 16, 3)
	if err := s.Activate(); err != nil {
		t.Fatal(err)
	}
	fc.readErrs = []error{device.ErrOverrun}

	n, err := s.Read(make([]float32, 32), 16, time.Second)
	if n != 0 || !errors.Is(err, ErrStreamFatal) {
		t.Fatalf("Read() = %d, %v, want 0, %v", n, err, ErrStreamFatal)
	}
	if !errors.Is(err, errHardware) {
		t.Errorf("Read() error = %v, want it to carry %v", err, errHardware)
	}

	var serr *StreamError
	if !errors.As(err, &serr) || !errors.Is(serr.Err, device.ErrOverrun) {
		t.Errorf("Read() error = %#v, want a StreamError for the overrun", err)
	}
}

func TestReadRecoveryBounded(t *testing.T) {
	tests := []struct {
		name       string
		maxRecover int
	}{
		{"none", 0},
		{"one", 1},
		{"default", DefaultMaxRecoverAttempts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := newFakeCapture()
			s := testStream(fc, FormatCF32, 16, tt.maxRecover)
			if err := s.Activate(); err != nil {
				t.Fatal(err)
			}

			errs := make([]error, 10)
			for i := range errs {
				errs[i] = device.ErrOverrun
			}
			fc.readErrs = errs

			n, err := s.Read(make([]float32, 32), 16, time.Second)
			if n != 0 || !errors.Is(err, ErrStreamFatal) {
				t.Fatalf("Read() = %d, %v, want 0, %v", n, err, ErrStreamFatal)
			}
			if !errors.Is(err, ErrRecoveryExhausted) {
				t.Errorf("Read() error = %v, want %v", err, ErrRecoveryExhausted)
			}
			if fc.recovers != tt.maxRecover {
				t.Errorf("recovers = %d, want %d", fc.recovers, tt.maxRecover)
			}
			if fc.reads != tt.maxRecover+1 {
				t.Errorf("reads = %d, want %d", fc.reads, tt.maxRecover+1)
			}
		})
	}
}

func TestStreamLifecycle(t *testing.T) {
	fc := newFakeCapture()
	fc.timestamp = 42 * time.Millisecond
	s := testStream(fc, FormatCS32, 16, 3)

	if s.State() != StateConfigured {
		t.Errorf("State() = %v, want %v", s.State(), StateConfigured)
	}

	for i := 0; i < 2; i++ {
		if err := s.Activate(); err != nil {
			t.Fatal(err)
		}
	}
	if fc.started != 1 || s.State() != StateActivated {
		t.Errorf("started = %d, state %v", fc.started, s.State())
	}

	if ts, err := s.HardwareTime(); err != nil || ts != 42*time.Millisecond {
		t.Errorf("HardwareTime() = %v, %v", ts, err)
	}
	if !s.HasHardwareTime() {
		t.Error("HasHardwareTime() = false")
	}

	if err := s.Deactivate(); err != nil {
		t.Fatal(err)
	}
	if fc.dropped != 1 || s.State() != StateDeactivated {
		t.Errorf("dropped = %d, state %v", fc.dropped, s.State())
	}
	if n, err := s.Read(make([]int32, 32), 16, time.Second); n != 0 || err != nil {
		t.Errorf("Read() after deactivate = %d, %v", n, err)
	}

	for i := 0; i < 2; i++ {
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
	}
	if fc.closed != 1 || s.State() != StateClosed {
		t.Errorf("closed = %d, state %v", fc.closed, s.State())
	}
	if ts, err := s.HardwareTime(); err != nil || ts != 0 {
		t.Errorf("HardwareTime() after close = %v, %v", ts, err)
	}
	if err := s.Activate(); err != nil || fc.started != 1 {
		t.Errorf("Activate() after close = %v, started %d", err, fc.started)
	}
}
