package vfz

import (
	"fmt"
	"math"
)

const float32Scale = float32(1.0 / math.MaxInt32)

// Convert writes frames interleaved I/Q frames from src into dst in format f.
// dst must be the slice type for f ([]float32, []int32, []int16 or []int8)
// with room for 2*frames elements.
//
// CF32 is scaled by 1/MaxInt32 to [-1, 1]. CS32 is copied unchanged. CS16
// and CS8 keep the most significant 16 and 8 bits so all formats share the
// same full scale.
func Convert(dst interface{}, src []int32, frames int, f Format) error {
	n := 2 * frames
	if frames < 0 || len(src) < n {
		return fmt.Errorf("%w: source holds %d of %d elements", ErrShortBuffer, len(src), n)
	}
	in := src[:n]

	switch f {
	case FormatCF32:
		out, ok := dst.([]float32)
		if !ok {
			return bufferTypeError(dst, f)
		}
		if len(out) < n {
			return shortBufferError(len(out), n)
		}
		for i, v := range in {
			out[i] = float32(v) * float32Scale
		}

	case FormatCS32:
		out, ok := dst.([]int32)
		if !ok {
			return bufferTypeError(dst, f)
		}
		if len(out) < n {
			return shortBufferError(len(out), n)
		}
		copy(out, in)

	case FormatCS16:
		out, ok := dst.([]int16)
		if !ok {
			return bufferTypeError(dst, f)
		}
		if len(out) < n {
			return shortBufferError(len(out), n)
		}
		for i, v := range in {
			out[i] = int16(v >> 16)
		}

	case FormatCS8:
		out, ok := dst.([]int8)
		if !ok {
			return bufferTypeError(dst, f)
		}
		if len(out) < n {
			return shortBufferError(len(out), n)
		}
		for i, v := range in {
			out[i] = int8(v >> 24)
		}

	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}

	return nil
}

// capacity returns the number of elements dst can hold, or -1 if dst is not
// the buffer type for f.
func capacity(dst interface{}, f Format) int {
	switch f {
	case FormatCF32:
		if b, ok := dst.([]float32); ok {
			return len(b)
		}
	case FormatCS32:
		if b, ok := dst.([]int32); ok {
			return len(b)
		}
	case FormatCS16:
		if b, ok := dst.([]int16); ok {
			return len(b)
		}
	case FormatCS8:
		if b, ok := dst.([]int8); ok {
			return len(b)
		}
	}
	return -1
}

func bufferTypeError(dst interface{}, f Format) error {
	return fmt.Errorf("%w: %T for %s", ErrBufferType, dst, f)
}

func shortBufferError(have, want int) error {
	return fmt.Errorf("%w: have %d elements, need %d", ErrShortBuffer, have, want)
}
