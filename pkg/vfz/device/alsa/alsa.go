//go:build linux && cgo

package alsa

/*
#cgo LDFLAGS: -lasound
#include <stdlib.h>
#include <alsa/asoundlib.h>
*/
import "C"

import (
	"time"
	"unsafe"

	"github.com/norasector/vfzsdr/pkg/vfz/device"
)

// PCM is an ALSA capture handle configured for interleaved S32_LE stereo,
// left channel I and right channel Q.
type PCM struct {
	h          *C.snd_pcm_t
	periodSize int
}

// Open opens the named ALSA PCM for capture and applies the hardware and
// software parameters. The returned handle is in the prepared state.
func Open(name string, periodSize, rate int) (*PCM, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var h *C.snd_pcm_t
	if rc := C.snd_pcm_open(&h, cname, C.SND_PCM_STREAM_CAPTURE, 0); rc < 0 {
		return nil, &Errno{Op: "open " + name, Code: int(rc)}
	}

	if err := configure(h, periodSize, rate); err != nil {
		C.snd_pcm_close(h)
		return nil, err
	}

	return &PCM{h: h, periodSize: periodSize}, nil
}

func configure(h *C.snd_pcm_t, periodSize, rate int) error {
	var hw *C.snd_pcm_hw_params_t
	if rc := C.snd_pcm_hw_params_malloc(&hw); rc < 0 {
		return &Errno{Op: "hw_params_malloc", Code: int(rc)}
	}
	defer C.snd_pcm_hw_params_free(hw)

	if rc := C.snd_pcm_hw_params_any(h, hw); rc < 0 {
		return &Errno{Op: "hw_params_any", Code: int(rc)}
	}
	if rc := C.snd_pcm_hw_params_set_access(h, hw, C.SND_PCM_ACCESS_RW_INTERLEAVED); rc < 0 {
		return &Errno{Op: "set_access", Code: int(rc)}
	}
	if rc := C.snd_pcm_hw_params_set_format(h, hw, C.SND_PCM_FORMAT_S32_LE); rc < 0 {
		return &Errno{Op: "set_format", Code: int(rc)}
	}
	if rc := C.snd_pcm_hw_params_set_channels(h, hw, channels); rc < 0 {
		return &Errno{Op: "set_channels", Code: int(rc)}
	}

	r := C.uint(rate)
	if rc := C.snd_pcm_hw_params_set_rate_near(h, hw, &r, nil); rc < 0 {
		return &Errno{Op: "set_rate_near", Code: int(rc)}
	}

	period := C.snd_pcm_uframes_t(periodSize)
	if rc := C.snd_pcm_hw_params_set_period_size_near(h, hw, &period, nil); rc < 0 {
		return &Errno{Op: "set_period_size_near", Code: int(rc)}
	}

	buffer := C.snd_pcm_uframes_t(periodSize * periodsPerBuffer)
	if rc := C.snd_pcm_hw_params_set_buffer_size_near(h, hw, &buffer); rc < 0 {
		return &Errno{Op: "set_buffer_size_near", Code: int(rc)}
	}

	if rc := C.snd_pcm_hw_params(h, hw); rc < 0 {
		return &Errno{Op: "hw_params", Code: int(rc)}
	}

	var sw *C.snd_pcm_sw_params_t
	if rc := C.snd_pcm_sw_params_malloc(&sw); rc < 0 {
		return &Errno{Op: "sw_params_malloc", Code: int(rc)}
	}
	defer C.snd_pcm_sw_params_free(sw)

	if rc := C.snd_pcm_sw_params_current(h, sw); rc < 0 {
		return &Errno{Op: "sw_params_current", Code: int(rc)}
	}
	if rc := C.snd_pcm_sw_params_set_tstamp_mode(h, sw, C.SND_PCM_TSTAMP_ENABLE); rc < 0 {
		return &Errno{Op: "set_tstamp_mode", Code: int(rc)}
	}
	if rc := C.snd_pcm_sw_params(h, sw); rc < 0 {
		return &Errno{Op: "sw_params", Code: int(rc)}
	}

	return nil
}

func (p *PCM) Start() error {
	if p.h == nil {
		return device.ErrClosed
	}
	if rc := C.snd_pcm_start(p.h); rc < 0 {
		return &Errno{Op: "start", Code: int(rc)}
	}
	return nil
}

func (p *PCM) Drop() error {
	if p.h == nil {
		return device.ErrClosed
	}
	if rc := C.snd_pcm_drop(p.h); rc < 0 {
		return &Errno{Op: "drop", Code: int(rc)}
	}
	if rc := C.snd_pcm_prepare(p.h); rc < 0 {
		return &Errno{Op: "prepare", Code: int(rc)}
	}
	return nil
}

func (p *PCM) State() device.State {
	if p.h == nil {
		return device.StateDisconnected
	}
	return device.State(int(C.snd_pcm_state(p.h)))
}

func (p *PCM) Wait(timeoutMs int) (bool, error) {
	if p.h == nil {
		return false, device.ErrClosed
	}
	rc := C.snd_pcm_wait(p.h, C.int(timeoutMs))
	switch {
	case rc < 0:
		return true, &Errno{Op: "wait", Code: int(rc)}
	case rc == 0:
		return false, nil
	default:
		return true, nil
	}
}

func (p *PCM) Read(buf []int32, frames int) (int, error) {
	if p.h == nil {
		return 0, device.ErrClosed
	}
	if frames <= 0 {
		return 0, nil
	}
	if len(buf) < channels*frames {
		frames = len(buf) / channels
	}
	n := C.snd_pcm_readi(p.h, unsafe.Pointer(&buf[0]), C.snd_pcm_uframes_t(frames))
	if n < 0 {
		return 0, &Errno{Op: "readi", Code: int(n)}
	}
	return int(n), nil
}

func (p *PCM) Recover(err error) error {
	if p.h == nil {
		return device.ErrClosed
	}
	code, ok := codeOf(err)
	if !ok {
		return err
	}
	if rc := C.snd_pcm_recover(p.h, C.int(code), 0); rc < 0 {
		return &Errno{Op: "recover", Code: int(rc)}
	}
	return nil
}

func (p *PCM) Timestamp() (time.Duration, error) {
	if p.h == nil {
		return 0, device.ErrClosed
	}
	var avail C.snd_pcm_uframes_t
	var ts C.snd_htimestamp_t
	if rc := C.snd_pcm_htimestamp(p.h, &avail, &ts); rc < 0 {
		return 0, &Errno{Op: "htimestamp", Code: int(rc)}
	}
	return time.Duration(ts.tv_sec)*time.Second + time.Duration(ts.tv_nsec), nil
}

func (p *PCM) Close() error {
	if p.h == nil {
		return nil
	}
	rc := C.snd_pcm_close(p.h)
	p.h = nil
	if rc < 0 {
		return &Errno{Op: "close", Code: int(rc)}
	}
	return nil
}
