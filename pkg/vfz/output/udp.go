package output

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/norasector/vfzsdr/pkg/util"
	"github.com/norasector/vfzsdr/pkg/vfz"
	"github.com/norasector/vfzsdr/pkg/vfz/config"
)

const (
	receiveChannels = 8
	numSenders      = 2

	// maxDatagram is the largest UDP payload over IPv4.
	maxDatagram = 65507
)

// Field numbers of a Frame message.
const (
	fieldSegment     protowire.Number = 1
	fieldFormat      protowire.Number = 2
	fieldFrames      protowire.Number = 3
	fieldSampleRate  protowire.Number = 4
	fieldFrequency   protowire.Number = 5
	fieldTimestampNs protowire.Number = 6
	fieldSamples     protowire.Number = 7
)

var ErrFrameTooLarge = errors.New("frame too large")

// Frame is the decoded form of one UDP message.
type Frame struct {
	Segment     uint64
	Format      string
	Frames      uint64
	SampleRate  float64
	Frequency   float64
	TimestampNs uint64
	// Samples holds the interleaved little-endian samples in Format.
	Samples []byte
}

// MarshalBlock encodes a block as a protobuf-wire Frame message.
func MarshalBlock(b *vfz.Block) ([]byte, error) {
	samples, err := b.Bytes()
	if err != nil {
		return nil, err
	}

	var msg []byte
	msg = protowire.AppendTag(msg, fieldSegment, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(b.SegmentNumber))
	msg = protowire.AppendTag(msg, fieldFormat, protowire.BytesType)
	msg = protowire.AppendString(msg, b.Format.String())
	msg = protowire.AppendTag(msg, fieldFrames, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(b.Frames))
	msg = protowire.AppendTag(msg, fieldSampleRate, protowire.Fixed64Type)
	msg = protowire.AppendFixed64(msg, math.Float64bits(b.SampleRate))
	msg = protowire.AppendTag(msg, fieldFrequency, protowire.Fixed64Type)
	msg = protowire.AppendFixed64(msg, math.Float64bits(b.Frequency))
	msg = protowire.AppendTag(msg, fieldTimestampNs, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(b.HardwareTime.Nanoseconds()))
	msg = protowire.AppendTag(msg, fieldSamples, protowire.BytesType)
	msg = protowire.AppendBytes(msg, samples)
	return msg, nil
}

// UnmarshalFrame decodes a Frame message. Unknown fields are skipped.
func UnmarshalFrame(msg []byte) (*Frame, error) {
	f := &Frame{}
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		msg = msg[n:]

		switch {
		case num == fieldSegment && typ == protowire.VarintType:
			f.Segment, n = protowire.ConsumeVarint(msg)
		case num == fieldFrames && typ == protowire.VarintType:
			f.Frames, n = protowire.ConsumeVarint(msg)
		case num == fieldTimestampNs && typ == protowire.VarintType:
			f.TimestampNs, n = protowire.ConsumeVarint(msg)
		case num == fieldFormat && typ == protowire.BytesType:
			f.Format, n = protowire.ConsumeString(msg)
		case num == fieldSamples && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(msg)
			f.Samples = append([]byte(nil), v...)
		case num == fieldSampleRate && typ == protowire.Fixed64Type:
			var v uint64
			v, n = protowire.ConsumeFixed64(msg)
			f.SampleRate = math.Float64frombits(v)
		case num == fieldFrequency && typ == protowire.Fixed64Type:
			var v uint64
			v, n = protowire.ConsumeFixed64(msg)
			f.Frequency = math.Float64frombits(v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, msg)
		}
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		msg = msg[n:]
	}
	return f, nil
}

// EncodeDatagram returns the block as a uint16 little-endian length followed
// by the Frame message.
func EncodeDatagram(b *vfz.Block) ([]byte, error) {
	encoded, err := MarshalBlock(b)
	if err != nil {
		return nil, err
	}
	if len(encoded)+2 > maxDatagram {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(encoded))
	}

	var msgBuf bytes.Buffer
	msgBuf.Grow(len(encoded) + 2)
	if err := binary.Write(&msgBuf, binary.LittleEndian, uint16(len(encoded))); err != nil {
		return nil, err
	}
	msgBuf.Write(encoded)
	return msgBuf.Bytes(), nil
}

// UDPOutput sends every block as one datagram to each destination.
type UDPOutput struct {
	dests    []config.OutputDestination
	recvChan chan *vfz.Block
	metrics  api.WriteAPI
}

func NewUDPOutput(dests []config.OutputDestination, metrics api.WriteAPI) *UDPOutput {
	if metrics == nil {
		metrics = util.NopWriteAPI{}
	}
	return &UDPOutput{
		dests:    dests,
		recvChan: make(chan *vfz.Block, receiveChannels),
		metrics:  metrics,
	}
}

func (s *UDPOutput) Receive() chan<- *vfz.Block {
	return s.recvChan
}

func (s *UDPOutput) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	destAddrs := make([]*net.UDPAddr, 0, len(s.dests))
	for _, dest := range s.dests {
		destAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(dest.Host, strconv.Itoa(dest.Port)))
		if err != nil {
			return err
		}
		destAddrs = append(destAddrs, destAddr)
		log.Info().IPAddr("dest_ip", destAddr.IP).Int("port", destAddr.Port).Msg("stream output starting")
	}

	for i := 0; i < numSenders; i++ {
		eg.Go(func() error {
			conn, err := net.ListenUDP("udp", nil)
			if err != nil {
				return err
			}
			defer conn.Close()

			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case blk := <-s.recvChan:
					s.send(conn, destAddrs, blk)
				}
			}
		})
	}

	return eg.Wait()
}

func (s *UDPOutput) send(conn *net.UDPConn, destAddrs []*net.UDPAddr, blk *vfz.Block) {
	msg, err := EncodeDatagram(blk)
	if err != nil {
		log.Warn().Err(err).Int("segment", blk.SegmentNumber).Msg("error encoding frame")
		return
	}

	sent, dropped, bytesWritten := 0, 0, 0
	for _, destAddr := range destAddrs {
		n, err := conn.WriteToUDP(msg, destAddr)
		if err != nil {
			log.Error().Err(err).Str("dest", destAddr.String()).Msg("error writing")
			dropped++
			continue
		}
		bytesWritten += n
		sent++
	}

	go s.metrics.WritePoint(influxdb2.NewPoint("vfz.udp.sent_frame",
		map[string]string{
			"format": blk.Format.String(),
		},
		map[string]interface{}{
			"bytes_written":  bytesWritten,
			"frames":         blk.Frames,
			"encoded_length": len(msg),
			"sent":           sent,
			"dropped":        dropped,
		}, time.Now()))
}
