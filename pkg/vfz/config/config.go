package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

const (
	DeviceALSA = "alsa"
	DeviceFile = "file"
)

// udpFrameBudget is the sample payload that fits one UDP datagram once the
// length prefix and the frame header are accounted for.
const udpFrameBudget = 65507 - 64

var sampleBytes = map[string]int{
	"CF32": 4,
	"CS32": 4,
	"CS16": 2,
	"CS8":  1,
}

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Device             string              `yaml:"device"`
	PCMDevice          string              `yaml:"pcm_device"`
	PlaybackLocation   string              `yaml:"playback_location"`
	LoopPlayback       bool                `yaml:"loop_playback"`
	PeriodSize         int                 `yaml:"period_size"`
	SampleRate         int                 `yaml:"sample_rate"`
	CenterFreq         int                 `yaml:"center_freq"`
	FrequencyPath      string              `yaml:"frequency_path"`
	Format             string              `yaml:"format"`
	ReadTimeout        time.Duration       `yaml:"read_timeout"`
	MaxRecoverAttempts *int                `yaml:"max_recover_attempts"`
	OutputDestinations []OutputDestination `yaml:"output_destinations"`
	RecordLocation     string              `yaml:"record_location"`
	LogLevel           string              `yaml:"log_level"`
	VizServer          struct {
		Port             int `yaml:"port"`
		UpdateIntervalMs int `yaml:"update_interval_ms"`
	} `yaml:"viz_server"`
	InfluxDB struct {
		Host         string `yaml:"host"`
		Organization string `yaml:"organization"`
		Bucket       string `yaml:"bucket"`
	} `yaml:"influxdb"`
}

type OutputDestination struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// UpdateInterval is the viz refresh interval.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.VizServer.UpdateIntervalMs) * time.Millisecond
}

// Level returns the configured log level.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func (c *Config) setDefaults() {
	if c.PlaybackLocation != "" {
		c.Device = DeviceFile
	}
	if c.Device == "" {
		c.Device = DeviceALSA
	}
	if c.PCMDevice == "" {
		c.PCMDevice = "vfzsdr"
	}
	if c.PeriodSize == 0 {
		c.PeriodSize = 4096
	}
	if c.SampleRate == 0 {
		c.SampleRate = 89286
	}
	if c.FrequencyPath == "" {
		c.FrequencyPath = "/sys/class/sdr/vfzsdr/frequency"
	}
	if c.Format == "" {
		c.Format = "CF32"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 100 * time.Millisecond
	}
	if c.MaxRecoverAttempts == nil {
		n := 3
		c.MaxRecoverAttempts = &n
	}
	if c.VizServer.UpdateIntervalMs == 0 {
		c.VizServer.UpdateIntervalMs = 500
	}
}

func (c *Config) Validate() error {
	switch c.Device {
	case DeviceALSA:
	case DeviceFile:
		if c.PlaybackLocation == "" {
			return fmt.Errorf("%w: file device needs playback_location", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown device %q", ErrInvalidConfig, c.Device)
	}

	if c.PeriodSize <= 0 {
		return fmt.Errorf("%w: period_size %d", ErrInvalidConfig, c.PeriodSize)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample_rate %d", ErrInvalidConfig, c.SampleRate)
	}
	if c.CenterFreq < 0 || c.CenterFreq > 45000000 {
		return fmt.Errorf("%w: center_freq %d out of range", ErrInvalidConfig, c.CenterFreq)
	}
	if *c.MaxRecoverAttempts < 0 {
		return fmt.Errorf("%w: max_recover_attempts %d", ErrInvalidConfig, *c.MaxRecoverAttempts)
	}
	if c.VizServer.UpdateIntervalMs < 0 {
		return fmt.Errorf("%w: update_interval_ms %d", ErrInvalidConfig, c.VizServer.UpdateIntervalMs)
	}
	for _, dest := range c.OutputDestinations {
		if dest.Host == "" || dest.Port <= 0 || dest.Port > 65535 {
			return fmt.Errorf("%w: output destination %s:%d", ErrInvalidConfig, dest.Host, dest.Port)
		}
	}
	if n, ok := sampleBytes[c.Format]; ok && len(c.OutputDestinations) > 0 {
		if limit := udpFrameBudget / (2 * n); c.PeriodSize > limit {
			return fmt.Errorf("%w: period_size %d exceeds %d frames per %s datagram",
				ErrInvalidConfig, c.PeriodSize, limit, c.Format)
		}
	}
	return nil
}

// Parse decodes a YAML document, applies defaults and validates the result.
func Parse(contents []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(contents, &c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func Load(path string) (*Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(contents)
}
