package output

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/norasector/vfzsdr/pkg/vfz"
)

const (
	blockBufferLength    int = 8
	defaultFlushInterval     = 250 * time.Millisecond
)

// SimpleOutput writes the raw little-endian samples of every block to dest,
// batching up to blockBufferLength blocks per write.
type SimpleOutput struct {
	dest          io.Writer
	recvChan      chan *vfz.Block
	flushInterval time.Duration
}

func NewSimpleOutput(dest io.Writer) *SimpleOutput {
	return &SimpleOutput{
		dest:          dest,
		recvChan:      make(chan *vfz.Block, blockBufferLength),
		flushInterval: defaultFlushInterval,
	}
}

func (s *SimpleOutput) Receive() chan<- *vfz.Block {
	return s.recvChan
}

func (s *SimpleOutput) Start(ctx context.Context) error {
	var b bytes.Buffer
	bufNum := 0

	add := func(blk *vfz.Block) {
		data, err := blk.Bytes()
		if err != nil {
			log.Warn().Err(err).Int("segment", blk.SegmentNumber).Msg("dropping block")
			return
		}
		b.Write(data)
		bufNum++
	}

	flush := func() error {
		if bufNum == 0 {
			return nil
		}
		_, err := b.WriteTo(s.dest)
		b.Reset()
		bufNum = 0
		return err
	}

	for {
		select {
		case <-ctx.Done():
			// Write out whatever was already delivered.
			for {
				select {
				case blk := <-s.recvChan:
					add(blk)
					continue
				default:
				}
				break
			}
			if err := flush(); err != nil {
				return err
			}
			return ctx.Err()

		case <-time.After(s.flushInterval):
			if err := flush(); err != nil {
				return err
			}

		case blk := <-s.recvChan:
			add(blk)
			if bufNum == blockBufferLength {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
}
