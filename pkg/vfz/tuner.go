package vfz

import (
	"os"
	"strconv"
)

// Tuner applies an RF frequency to the board.
type Tuner interface {
	Tune(hz float64) error
}

type TunerFunc func(hz float64) error

func (f TunerFunc) Tune(hz float64) error { return f(hz) }

// SysfsTuner writes the frequency, truncated to whole hertz, to a sysfs
// attribute such as /sys/class/sdr/vfzsdr/frequency.
type SysfsTuner struct {
	path string
}

func NewSysfsTuner(path string) *SysfsTuner {
	return &SysfsTuner{path: path}
}

func (t *SysfsTuner) Tune(hz float64) error {
	f, err := os.OpenFile(t.path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}

	if _, err := f.WriteString(strconv.Itoa(int(hz))); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
