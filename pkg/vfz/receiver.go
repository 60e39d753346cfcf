package vfz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/norasector/vfzsdr/pkg/dsp/viz"
	"github.com/norasector/vfzsdr/pkg/util"
)

const (
	DefaultReadTimeout  = 100 * time.Millisecond
	DefaultSpectrumSize = 1024

	// notReadyBackoff paces the loop while the hardware reports no data.
	notReadyBackoff = 5 * time.Millisecond
)

// Output handles copied sample blocks.
type Output interface {
	// Start runs until ctx is done or the output fails.
	Start(ctx context.Context) error
	// Receive returns the channel blocks are delivered on. Sends never block;
	// a full channel skips the block for that output.
	Receive() chan<- *Block
}

type ReceiverOptions struct {
	// Format is the stream format requested from the device. Defaults to CF32.
	Format string
	// Timeout bounds each read. Zero selects DefaultReadTimeout.
	Timeout time.Duration
	// SpectrumSize is the FFT length of the spectrum view.
	SpectrumSize int
	Outputs      []Output
}

type ReceiverStatus struct {
	Format         string      `json:"format"`
	SampleRate     float64     `json:"sample_rate"`
	Frequency      float64     `json:"frequency"`
	Segments       int         `json:"segments"`
	SkippedOutputs int         `json:"skipped_outputs"`
	Stream         StreamStats `json:"stream"`
}

type ReceiverOption func(r *Receiver) error

func WithInfluxDB(writeAPI api.WriteAPI) ReceiverOption {
	return func(r *Receiver) error {
		r.writeAPI = writeAPI
		return nil
	}
}

func WithSpectrumServer(vizServer *viz.Server) ReceiverOption {
	return func(r *Receiver) error {
		r.vizServer = vizServer
		return nil
	}
}

func WithReceiverLogger(logger zerolog.Logger) ReceiverOption {
	return func(r *Receiver) error {
		r.logger = logger
		return nil
	}
}

// Receiver runs a capture session on a Device and fans the blocks out to
// outputs, the spectrum view and metrics.
type Receiver struct {
	dev       *Device
	opts      ReceiverOptions
	writeAPI  api.WriteAPI
	vizServer *viz.Server
	spectrum  *viz.FFTPlotter
	iq        *viz.IQPlotter
	logger    zerolog.Logger

	mu     sync.Mutex
	status ReceiverStatus
	cancel context.CancelFunc
}

func NewReceiver(dev *Device, options ReceiverOptions, opts ...ReceiverOption) (*Receiver, error) {
	r := &Receiver{
		dev:      dev,
		opts:     options,
		writeAPI: util.NopWriteAPI{}, // overwritten with option
		logger:   log.Logger,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	if r.opts.Format == "" {
		r.opts.Format = FormatCF32.String()
	}
	if _, err := ParseFormat(r.opts.Format); err != nil {
		return nil, fmt.Errorf("new receiver: %w", err)
	}
	if r.opts.Timeout == 0 {
		r.opts.Timeout = DefaultReadTimeout
	}
	if r.opts.SpectrumSize <= 0 {
		r.opts.SpectrumSize = DefaultSpectrumSize
	}

	return r, nil
}

// Status returns a snapshot of the receiver counters.
func (r *Receiver) Status() ReceiverStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Receiver) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Start captures until ctx is done, Stop is called, or the stream fails.
func (r *Receiver) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	eg, ctx := errgroup.WithContext(ctx)

	for _, output := range r.opts.Outputs {
		thisOutput := output
		eg.Go(func() error {
			return thisOutput.Start(ctx)
		})
	}

	if r.vizServer != nil {
		cfg := r.dev.Config()
		r.spectrum = viz.NewFFTPlotter("spectrum", r.opts.SpectrumSize, cfg.SampleRate, cfg.Frequency)
		r.iq = viz.NewIQPlotter("iq", r.opts.SpectrumSize)
		r.vizServer.Register(DriverName, r.spectrum)
		r.vizServer.Register(DriverName, r.iq)
		r.vizServer.SetStatus(func() interface{} { return r.Status() })

		eg.Go(func() error {
			return r.vizServer.Run(ctx)
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
			defer done()
			return r.vizServer.Stop(shutdownCtx)
		})
	}

	eg.Go(func() error {
		return r.capture(ctx)
	})

	r.logger.Info().
		Str("format", r.opts.Format).
		Str("frequency", util.HzToString(r.dev.Config().Frequency)).
		Str("sample_rate", util.HzToString(r.dev.Config().SampleRate)).
		Int("outputs", len(r.opts.Outputs)).
		Msg("starting receiver")

	return eg.Wait()
}

func (r *Receiver) capture(ctx context.Context) error {
	return r.dev.Capture(r.opts.Format, func(s *Stream) error {
		buf, err := NewBuffer(s.Format(), s.MTU())
		if err != nil {
			return err
		}

		r.mu.Lock()
		r.status.Format = s.Format().String()
		r.status.SampleRate = s.SampleRate()
		r.status.Frequency = s.Frequency()
		r.mu.Unlock()

		segNum := 0
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var n int
			var err error
			readTime := util.TimeOperationMicroseconds(func() {
				n, err = s.Read(buf, s.MTU(), r.opts.Timeout)
			})

			switch {
			case errors.Is(err, ErrTimeout):
				r.logger.Debug().Dur("timeout", r.opts.Timeout).Msg("read timed out")
				r.updateStream(s)
				continue
			case err != nil:
				r.updateStream(s)
				return fmt.Errorf("capture: %w", err)
			case n == 0:
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(notReadyBackoff):
				}
				continue
			}

			block, err := newBlock(s.Format(), buf, n)
			if err != nil {
				return err
			}
			segNum++
			block.SegmentNumber = segNum
			block.SampleRate = s.SampleRate()
			block.Frequency = s.Frequency()
			if block.HardwareTime, err = s.HardwareTime(); err != nil {
				r.logger.Debug().Err(err).Msg("hardware timestamp unavailable")
			}

			r.dispatch(block, readTime)
			r.updateStream(s)
		}
	})
}

func (r *Receiver) updateStream(s *Stream) {
	r.mu.Lock()
	r.status.Stream = s.Stats()
	r.mu.Unlock()
}

func (r *Receiver) dispatch(block *Block, readTime int64) {
	skippedOutputs := 0
	for _, output := range r.opts.Outputs {
		select {
		case output.Receive() <- block:
			// We will not wait on blocked channels.
		default:
			skippedOutputs++
		}
	}

	if r.spectrum != nil {
		data := block.Complex64().Data
		r.spectrum.SetTuning(block.SampleRate, block.Frequency)
		r.spectrum.AppendComplex(data)
		r.iq.AppendComplex(data)
	}

	r.mu.Lock()
	r.status.Segments = block.SegmentNumber
	r.status.SkippedOutputs += skippedOutputs
	r.mu.Unlock()

	go r.writeAPI.WritePoint(influxdb2.NewPoint("vfz.stream.read",
		map[string]string{
			"format":    block.Format.String(),
			"frequency": util.HzToString(block.Frequency),
		},
		map[string]interface{}{
			"frames":          block.Frames,
			"segment":         block.SegmentNumber,
			"read_time_us":    readTime,
			"skipped_outputs": skippedOutputs,
		}, time.Now()))
}
