package vfz

import "fmt"

// Format is the sample representation delivered to the caller.
type Format int

const (
	FormatCF32 Format = iota
	FormatCS32
	FormatCS16
	FormatCS8
)

var formatNames = map[Format]string{
	FormatCF32: "CF32",
	FormatCS32: "CS32",
	FormatCS16: "CS16",
	FormatCS8:  "CS8",
}

// ParseFormat maps a stream format string such as "CF32" to a Format.
func ParseFormat(s string) (Format, error) {
	for f, name := range formatNames {
		if name == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	_, ok := formatNames[f]
	return ok
}

// ElementSize is the size in bytes of one I or Q component.
func (f Format) ElementSize() int {
	switch f {
	case FormatCF32, FormatCS32:
		return 4
	case FormatCS16:
		return 2
	case FormatCS8:
		return 1
	default:
		return 0
	}
}

// NewBuffer allocates a destination buffer of the Go type matching f
// holding the given number of frames.
func NewBuffer(f Format, frames int) (interface{}, error) {
	n := 2 * frames
	switch f {
	case FormatCF32:
		return make([]float32, n), nil
	case FormatCS32:
		return make([]int32, n), nil
	case FormatCS16:
		return make([]int16, n), nil
	case FormatCS8:
		return make([]int8, n), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}
