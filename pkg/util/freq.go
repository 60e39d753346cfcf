package util

import (
	"github.com/dustin/go-humanize"
)

// HzToString formats a frequency or rate with an SI prefix, e.g. "89.286 kHz".
func HzToString(hz float64) string {
	return humanize.SIWithDigits(hz, 3, "Hz")
}

// FramesToString formats a frame count with thousands separators.
func FramesToString(frames uint64) string {
	return humanize.Comma(int64(frames))
}
