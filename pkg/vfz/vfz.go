package vfz

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/vfzsdr/pkg/util"
	"github.com/norasector/vfzsdr/pkg/vfz/device"
	"github.com/norasector/vfzsdr/pkg/vfz/device/alsa"
)

type Direction int

const (
	DirectionTX Direction = iota
	DirectionRX
)

const (
	DefaultDeviceName    = "vfzsdr"
	DefaultSampleRate    = 89286
	DefaultFrequencyPath = "/sys/class/sdr/vfzsdr/frequency"

	driverKey       = "Vfzfpga"
	nativeFormat    = FormatCS32
	nativeFullScale = 1 << 24
	maxFrequency    = 45e6
	maxGain         = 100

	tunerRF     = "RF"
	antennaRX   = "RX"
	chanArgKey  = "chan"
	chanStereo  = "stereo_iq"
	settingNone = "empty"
)

// Config is the device configuration state. It is owned by a Device and
// shared by pointer with its Stream, which only reads it for reporting.
type Config struct {
	SampleRate float64
	Frequency  float64
	AutoGain   bool
}

func DefaultConfig() Config {
	return Config{SampleRate: DefaultSampleRate}
}

type Range struct {
	Min float64
	Max float64
}

type ArgType int

const (
	ArgBool ArgType = iota
	ArgInt
	ArgFloat
	ArgString
)

type ArgInfo struct {
	Key         string
	Value       string
	Name        string
	Description string
	Type        ArgType
	Options     []string
	OptionNames []string
}

type Kwargs map[string]string

type DeviceOption func(d *Device)

// WithOpener replaces the ALSA capture backend.
func WithOpener(opener device.Opener) DeviceOption {
	return func(d *Device) {
		d.opener = opener
	}
}

func WithTuner(t Tuner) DeviceOption {
	return func(d *Device) {
		d.tuner = t
	}
}

func WithLogger(logger zerolog.Logger) DeviceOption {
	return func(d *Device) {
		d.logger = logger
	}
}

// WithDeviceName sets the capture hardware name passed to the opener.
func WithDeviceName(name string) DeviceOption {
	return func(d *Device) {
		d.name = name
	}
}

func WithPeriodSize(frames int) DeviceOption {
	return func(d *Device) {
		d.periodSize = frames
	}
}

// WithMaxRecoverAttempts bounds how many overrun recoveries a single read may attempt.
func WithMaxRecoverAttempts(n int) DeviceOption {
	return func(d *Device) {
		d.maxRecover = n
	}
}

func WithConfig(c Config) DeviceOption {
	return func(d *Device) {
		d.config = c
	}
}

// Device is the single-channel RX capture device. Configuration calls and
// stream reads must not be issued concurrently.
type Device struct {
	name       string
	periodSize int
	maxRecover int

	opener device.Opener
	tuner  Tuner
	config Config
	stream *Stream

	logger zerolog.Logger
}

func NewDevice(opts ...DeviceOption) (*Device, error) {
	d := &Device{
		name:       DefaultDeviceName,
		periodSize: DefaultPeriodSize,
		maxRecover: DefaultMaxRecoverAttempts,
		config:     DefaultConfig(),
		logger:     log.Logger,
	}
	d.opener = func(name string, periodSize int) (device.Capture, error) {
		return alsa.Opener(int(d.config.SampleRate))(name, periodSize)
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.periodSize <= 0 {
		return nil, fmt.Errorf("invalid period size %d", d.periodSize)
	}
	if d.maxRecover < 0 {
		return nil, fmt.Errorf("invalid recover attempts %d", d.maxRecover)
	}

	return d, nil
}

// Config returns a copy of the current configuration.
func (d *Device) Config() Config { return d.config }

// Close closes the open stream, if any.
func (d *Device) Close() error {
	return d.CloseStream(d.stream)
}

// Identification

func (d *Device) DriverKey() string   { return driverKey }
func (d *Device) HardwareKey() string { return driverKey }

// Channels

func (d *Device) NumChannels(dir Direction) int {
	if dir == DirectionRX {
		return 1
	}
	return 0
}

func (d *Device) FullDuplex(dir Direction, channel int) bool {
	return false
}

// Stream API

func (d *Device) StreamFormats(dir Direction, channel int) []string {
	return []string{FormatCS8.String(), FormatCS16.String(), FormatCS32.String(), FormatCF32.String()}
}

// NativeStreamFormat returns the hardware format and its full scale.
func (d *Device) NativeStreamFormat(dir Direction, channel int) (string, float64) {
	return nativeFormat.String(), nativeFullScale
}

func (d *Device) StreamArgsInfo(dir Direction, channel int) []ArgInfo {
	return []ArgInfo{{
		Key:         chanArgKey,
		Value:       chanStereo,
		Name:        "Channel Setup",
		Description: "Input channel configuration.",
		Type:        ArgString,
		Options:     []string{chanStereo},
		OptionNames: []string{"Complex L/R = I/Q"},
	}}
}

// SetupStream validates the request and opens the capture hardware. Invalid
// requests fail before the hardware is touched. Only one stream may be open
// at a time.
func (d *Device) SetupStream(dir Direction, format string, channels []int, args Kwargs) (*Stream, error) {
	if dir != DirectionRX {
		return nil, fmt.Errorf("setup stream: %w: direction %d", ErrInvalidChannel, dir)
	}
	if len(channels) > 1 || (len(channels) == 1 && channels[0] != 0) {
		return nil, fmt.Errorf("setup stream: %w: %v", ErrInvalidChannel, channels)
	}
	if v, ok := args[chanArgKey]; ok && v != chanStereo {
		return nil, fmt.Errorf("setup stream: %w: %s=%s", ErrInvalidChannel, chanArgKey, v)
	}

	f, err := ParseFormat(format)
	if err != nil {
		return nil, fmt.Errorf("setup stream: %w", err)
	}

	// A stream closed directly with Stream.Close no longer holds the hardware.
	if d.stream != nil && d.stream.State() != StateClosed {
		return nil, fmt.Errorf("setup stream: %w", ErrStreamOpen)
	}

	capture, err := d.opener(d.name, d.periodSize)
	if err != nil {
		return nil, fmt.Errorf("setup stream: open %s: %w", d.name, err)
	}

	d.logger.Info().
		Str("device", d.name).
		Str("format", f.String()).
		Int("period_size", d.periodSize).
		Str("sample_rate", util.HzToString(d.config.SampleRate)).
		Msg("stream configured")

	d.stream = newStream(capture, f, d.periodSize, d.maxRecover, &d.config, d.logger)
	return d.stream, nil
}

func (d *Device) CloseStream(s *Stream) error {
	if s == nil {
		return nil
	}
	if d.stream == s {
		d.stream = nil
	}
	return s.Close()
}

func (d *Device) StreamMTU(s *Stream) int {
	return s.MTU()
}

func (d *Device) ActivateStream(s *Stream) error {
	return s.Activate()
}

func (d *Device) DeactivateStream(s *Stream) error {
	return s.Deactivate()
}

func (d *Device) ReadStream(s *Stream, dst interface{}, frames int, timeout time.Duration) (int, error) {
	return s.Read(dst, frames, timeout)
}

// Capture sets up and activates a stream in the given format, runs fn and
// then deactivates and closes the stream on every exit path.
func (d *Device) Capture(format string, fn func(s *Stream) error) (err error) {
	s, err := d.SetupStream(DirectionRX, format, nil, nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := d.CloseStream(s); err == nil {
			err = cerr
		}
	}()

	if err = s.Activate(); err != nil {
		return err
	}
	defer func() {
		if derr := s.Deactivate(); err == nil {
			err = derr
		}
	}()

	return fn(s)
}

// Antennas

func (d *Device) ListAntennas(dir Direction, channel int) []string {
	return []string{antennaRX}
}

func (d *Device) SetAntenna(dir Direction, channel int, name string) {
	d.logger.Debug().Str("antenna", name).Msg("set antenna ignored")
}

func (d *Device) Antenna(dir Direction, channel int) string {
	return antennaRX
}

func (d *Device) HasDCOffsetMode(dir Direction, channel int) bool {
	return false
}

// Gain. The board has no gain elements; the AGC flag is advisory.

func (d *Device) ListGains(dir Direction, channel int) []string {
	return nil
}

func (d *Device) HasGainMode(dir Direction, channel int) bool {
	return false
}

func (d *Device) SetGainMode(dir Direction, channel int, automatic bool) {
	d.config.AutoGain = automatic
	d.logger.Debug().Bool("automatic", automatic).Msg("set gain mode")
}

func (d *Device) GainMode(dir Direction, channel int) bool {
	return d.config.AutoGain
}

func (d *Device) SetGain(dir Direction, channel int, name string, value float64) {
	d.logger.Debug().Str("name", name).Float64("gain", value).Msg("set gain ignored")
}

func (d *Device) Gain(dir Direction, channel int, name string) float64 {
	return 0
}

func (d *Device) GainRange(dir Direction, channel int, name string) Range {
	return Range{Min: 0, Max: maxGain}
}

// Frequency

// SetFrequency tunes the "RF" element. Other names are ignored.
func (d *Device) SetFrequency(dir Direction, channel int, name string, hz float64, args Kwargs) error {
	if name != tunerRF {
		d.logger.Debug().Str("name", name).Msg("set frequency ignored")
		return nil
	}

	if d.tuner != nil {
		if err := d.tuner.Tune(hz); err != nil {
			return fmt.Errorf("set frequency %s: %w", util.HzToString(hz), err)
		}
	}
	d.config.Frequency = hz
	d.logger.Info().Str("frequency", util.HzToString(hz)).Msg("set frequency")
	return nil
}

func (d *Device) Frequency(dir Direction, channel int, name string) (float64, error) {
	if name != tunerRF {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTuner, name)
	}
	return d.config.Frequency, nil
}

func (d *Device) ListFrequencies(dir Direction, channel int) []string {
	return []string{tunerRF}
}

func (d *Device) FrequencyRange(dir Direction, channel int, name string) []Range {
	if name != tunerRF {
		return nil
	}
	return []Range{{Min: 0, Max: maxFrequency}}
}

func (d *Device) FrequencyArgsInfo(dir Direction, channel int) []ArgInfo {
	return nil
}

// Sample rate

func (d *Device) SetSampleRate(dir Direction, channel int, rate float64) {
	d.config.SampleRate = rate
	d.logger.Info().Str("sample_rate", util.HzToString(rate)).Msg("set sample rate")
}

func (d *Device) SampleRate(dir Direction, channel int) float64 {
	return d.config.SampleRate
}

func (d *Device) ListSampleRates(dir Direction, channel int) []float64 {
	return []float64{DefaultSampleRate}
}

// Bandwidth

func (d *Device) SetBandwidth(dir Direction, channel int, bw float64) {
	d.logger.Debug().Float64("bandwidth", bw).Msg("set bandwidth ignored")
}

func (d *Device) Bandwidth(dir Direction, channel int) float64 {
	return 0
}

func (d *Device) ListBandwidths(dir Direction, channel int) []float64 {
	return nil
}

// Settings

func (d *Device) SettingInfo() []ArgInfo {
	return nil
}

func (d *Device) WriteSetting(key, value string) {
	d.logger.Debug().Str("key", key).Str("value", value).Msg("write setting ignored")
}

func (d *Device) ReadSetting(key string) string {
	return settingNone
}
