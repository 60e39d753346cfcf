//go:build !linux || !cgo

package alsa

import (
	"time"

	"github.com/norasector/vfzsdr/pkg/vfz/device"
)

// PCM is unavailable without cgo on linux.
type PCM struct{}

func Open(name string, periodSize, rate int) (*PCM, error) {
	return nil, device.ErrUnsupported
}

func (p *PCM) Start() error { return device.ErrUnsupported }
func (p *PCM) Drop() error { return device.ErrUnsupported }
func (p *PCM) State() device.State { return device.StateDisconnected }
func (p *PCM) Wait(int) (bool, error) { return false, device.ErrUnsupported }
func (p *PCM) Read([]int32, int) (int, error) { return 0, device.ErrUnsupported }
func (p *PCM) Recover(error) error { return device.ErrUnsupported }
func (p *PCM) Timestamp() (time.Duration, error) { return 0, device.ErrUnsupported }
func (p *PCM) Close() error { return nil }
