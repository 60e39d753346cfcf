package vfz

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/norasector/turbine-common/types"
)

// Block is a copy of the samples returned by one read.
type Block struct {
	SegmentNumber int
	Format        Format
	Frames        int
	SampleRate    float64
	Frequency     float64
	// HardwareTime is the capture handle timestamp taken after the read.
	HardwareTime time.Duration
	// Data holds 2*Frames interleaved values of the Go type for Format.
	Data interface{}
}

// newBlock copies the first frames frames out of buf.
func newBlock(f Format, buf interface{}, frames int) (*Block, error) {
	n := 2 * frames
	b := &Block{Format: f, Frames: frames}

	switch src := buf.(type) {
	case []float32:
		b.Data = append([]float32(nil), src[:n]...)
	case []int32:
		b.Data = append([]int32(nil), src[:n]...)
	case []int16:
		b.Data = append([]int16(nil), src[:n]...)
	case []int8:
		b.Data = append([]int8(nil), src[:n]...)
	default:
		return nil, bufferTypeError(buf, f)
	}
	return b, nil
}

// Bytes encodes the samples little-endian in their native width.
func (b *Block) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(2 * b.Frames * b.Format.ElementSize())
	if err := binary.Write(&buf, binary.LittleEndian, b.Data); err != nil {
		return nil, fmt.Errorf("encode block %d: %w", b.SegmentNumber, err)
	}
	return buf.Bytes(), nil
}

// Complex64 returns the samples as complex values scaled to [-1, 1].
func (b *Block) Complex64() *types.SegmentComplex64 {
	seg := &types.SegmentComplex64{
		SegmentNumber: b.SegmentNumber,
		Data:          make([]complex64, b.Frames),
	}

	switch src := b.Data.(type) {
	case []float32:
		for i := range seg.Data {
			seg.Data[i] = complex(src[2*i], src[2*i+1])
		}
	case []int32:
		scaleComplex(seg.Data, b.Frames, math.MaxInt32, func(i int) float32 { return float32(src[i]) })
	case []int16:
		scaleComplex(seg.Data, b.Frames, math.MaxInt16, func(i int) float32 { return float32(src[i]) })
	case []int8:
		scaleComplex(seg.Data, b.Frames, math.MaxInt8, func(i int) float32 { return float32(src[i]) })
	}

	return seg
}

func scaleComplex(dst []complex64, frames int, fullScale float32, at func(int) float32) {
	scale := 1 / fullScale
	for i := 0; i < frames; i++ {
		dst[i] = complex(at(2*i)*scale, at(2*i+1)*scale)
	}
}
