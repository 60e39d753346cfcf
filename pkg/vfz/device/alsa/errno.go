package alsa

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/norasector/vfzsdr/pkg/vfz/device"
)

const (
	channels         = 2
	periodsPerBuffer = 4
)

// Errno is a negative error code returned by libasound.
type Errno struct {
	Op   string
	Code int
}

func (e *Errno) Error() string {
	return fmt.Sprintf("alsa: %s: %s", e.Op, syscall.Errno(-e.Code).Error())
}

// Is reports EPIPE as device.ErrOverrun.
func (e *Errno) Is(target error) bool {
	return target == device.ErrOverrun && e.Code == -int(syscall.EPIPE)
}

func codeOf(err error) (int, bool) {
	var e *Errno
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// Opener returns a device.Opener that opens ALSA PCMs at the given rate.
func Opener(rate int) device.Opener {
	return func(name string, periodSize int) (device.Capture, error) {
		pcm, err := Open(name, periodSize, rate)
		if err != nil {
			return nil, err
		}
		return pcm, nil
	}
}
