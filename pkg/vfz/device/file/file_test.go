package file

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/norasector/vfzsdr/pkg/vfz/device"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time        { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

// recording returns frames where frame i is (i, -i).
func recording(frames int) []byte {
	var b bytes.Buffer
	for i := 0; i < frames; i++ {
		binary.Write(&b, binary.LittleEndian, []int32{int32(i), int32(-i)})
	}
	return b.Bytes()
}

func expectFrames(from, n, wrap int) []int32 {
	ret := make([]int32, 0, 2*n)
	for i := 0; i < n; i++ {
		v := int32((from + i) % wrap)
		ret = append(ret, v, -v)
	}
	return ret
}

func newTestDevice(t *testing.T, frames int, opts ...Option) (*FileDevice, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	opts = append([]Option{WithClock(clock)}, opts...)
	f, err := New(bytes.NewReader(recording(frames)), 1000, 10, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f, clock
}

func TestNewInvalid(t *testing.T) {
	if _, err := New(bytes.NewReader(nil), 0, 10); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := New(bytes.NewReader(nil), 1000, 0); err == nil {
		t.Error("expected error for zero period size")
	}
}

func TestWaitAndRead(t *testing.T) {
	f, clock := newTestDevice(t, 100)
	start := clock.now

	if err := f.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if f.State() != device.StateRunning {
		t.Fatalf("State() = %s, want running", f.State())
	}

	ready, err := f.Wait(100)
	if err != nil || !ready {
		t.Fatalf("Wait() = %v, %v, want true, nil", ready, err)
	}
	if got := clock.now.Sub(start); got != 10*time.Millisecond {
		t.Errorf("Wait() slept %s, want 10ms", got)
	}

	buf := make([]int32, 20)
	n, err := f.Read(buf, 10)
	if err != nil || n != 10 {
		t.Fatalf("Read() = %d, %v, want 10, nil", n, err)
	}
	if want := expectFrames(0, 10, 100); !reflect.DeepEqual(buf, want) {
		t.Errorf("Read() = %v, want %v", buf, want)
	}

	ts, err := f.Timestamp()
	if err != nil || ts != 10*time.Millisecond {
		t.Errorf("Timestamp() = %s, %v, want 10ms", ts, err)
	}
}

func TestWaitTimeout(t *testing.T) {
	f, clock := newTestDevice(t, 100)
	start := clock.now
	f.Start()

	ready, err := f.Wait(5)
	if err != nil || ready {
		t.Fatalf("Wait() = %v, %v, want false, nil", ready, err)
	}
	if got := clock.now.Sub(start); got != 5*time.Millisecond {
		t.Errorf("Wait() slept %s, want 5ms", got)
	}
}

func TestWaitNotRunning(t *testing.T) {
	f, _ := newTestDevice(t, 100)
	ready, err := f.Wait(100)
	if err != nil || ready {
		t.Errorf("Wait() = %v, %v, want false, nil", ready, err)
	}
	if _, err := f.Read(make([]int32, 20), 10); err == nil {
		t.Error("Read() before Start should fail")
	}
}

func TestOverrunAndRecover(t *testing.T) {
	f, clock := newTestDevice(t, 100)
	f.Start()

	// Ring holds 4 periods of 10 frames; fall 100 frames behind.
	clock.Sleep(100 * time.Millisecond)

	if f.State() != device.StateXRun {
		t.Fatalf("State() = %s, want xrun", f.State())
	}
	ready, err := f.Wait(10)
	if !ready || !errors.Is(err, device.ErrOverrun) {
		t.Errorf("Wait() = %v, %v, want true, ErrOverrun", ready, err)
	}

	buf := make([]int32, 20)
	_, err = f.Read(buf, 10)
	if !errors.Is(err, device.ErrOverrun) {
		t.Fatalf("Read() error = %v, want ErrOverrun", err)
	}

	if err := f.Recover(err); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if f.State() != device.StateRunning {
		t.Fatalf("State() after recover = %s, want running", f.State())
	}

	n, err := f.Read(buf, 10)
	if err != nil || n != 10 {
		t.Fatalf("Read() after recover = %d, %v", n, err)
	}
	if want := expectFrames(0, 10, 100); !reflect.DeepEqual(buf, want) {
		t.Errorf("Read() = %v, want %v", buf, want)
	}
}

func TestEndOfRecording(t *testing.T) {
	f, _ := newTestDevice(t, 15)
	f.Start()

	buf := make([]int32, 20)
	if n, err := f.Read(buf, 10); n != 10 || err != nil {
		t.Fatalf("first Read() = %d, %v", n, err)
	}
	n, err := f.Read(buf, 10)
	if n != 5 || err != nil {
		t.Fatalf("second Read() = %d, %v, want 5, nil", n, err)
	}
	if want := expectFrames(10, 5, 15); !reflect.DeepEqual(buf[:10], want) {
		t.Errorf("second Read() = %v, want %v", buf[:10], want)
	}

	_, err = f.Read(buf, 10)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("third Read() error = %v, want EOF", err)
	}
	if rerr := f.Recover(err); !errors.Is(rerr, io.EOF) {
		t.Errorf("Recover(EOF) = %v, want EOF", rerr)
	}
}

func TestLoop(t *testing.T) {
	f, _ := newTestDevice(t, 15, WithLoop())
	f.Start()

	buf := make([]int32, 20)
	f.Read(buf, 10)
	n, err := f.Read(buf, 10)
	if n != 10 || err != nil {
		t.Fatalf("Read() = %d, %v, want 10, nil", n, err)
	}
	if want := expectFrames(10, 10, 15); !reflect.DeepEqual(buf, want) {
		t.Errorf("Read() = %v, want %v", buf, want)
	}
}

func TestDropAndClose(t *testing.T) {
	f, _ := newTestDevice(t, 100)
	f.Start()

	if err := f.Drop(); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	if f.State() != device.StatePrepared {
		t.Errorf("State() after Drop = %s, want prepared", f.State())
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := f.Read(make([]int32, 20), 10); !errors.Is(err, device.ErrClosed) {
		t.Errorf("Read() after Close = %v, want ErrClosed", err)
	}
	if err := f.Start(); !errors.Is(err, device.ErrClosed) {
		t.Errorf("Start() after Close = %v, want ErrClosed", err)
	}
}

func TestOpener(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.iq")
	if err := os.WriteFile(path, recording(20), 0o644); err != nil {
		t.Fatal(err)
	}

	capture, err := Opener(path, 1000)("vfzsdr", 10)
	if err != nil {
		t.Fatalf("Opener() error = %v", err)
	}
	defer capture.Close()

	if capture.State() != device.StatePrepared {
		t.Errorf("State() = %s, want prepared", capture.State())
	}

	if _, err := Opener(filepath.Join(t.TempDir(), "missing"), 1000)("vfzsdr", 10); err == nil {
		t.Error("expected error opening missing recording")
	}
}
