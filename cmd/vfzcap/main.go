package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/norasector/vfzsdr/pkg/dsp/viz"
	"github.com/norasector/vfzsdr/pkg/util"
	"github.com/norasector/vfzsdr/pkg/vfz"
	"github.com/norasector/vfzsdr/pkg/vfz/config"
	"github.com/norasector/vfzsdr/pkg/vfz/device/file"
	"github.com/norasector/vfzsdr/pkg/vfz/output"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	configFile := flag.String("config", "vfzsdr.yaml", "YAML config file")

	flag.Parse()

	opts, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configFile).Msg("error loading config file")
	}
	log.Logger = log.Logger.Level(opts.Level())

	deviceOpts := []vfz.DeviceOption{
		vfz.WithLogger(log.Logger),
		vfz.WithDeviceName(opts.PCMDevice),
		vfz.WithPeriodSize(opts.PeriodSize),
		vfz.WithMaxRecoverAttempts(*opts.MaxRecoverAttempts),
		vfz.WithConfig(vfz.Config{SampleRate: float64(opts.SampleRate)}),
	}

	switch opts.Device {
	case config.DeviceFile:
		log.Info().Str("device", "file").Str("path", opts.PlaybackLocation).Msg("initializing device...")
		var fileOpts []file.Option
		if opts.LoopPlayback {
			fileOpts = append(fileOpts, file.WithLoop())
		}
		deviceOpts = append(deviceOpts, vfz.WithOpener(file.Opener(opts.PlaybackLocation, opts.SampleRate, fileOpts...)))
	default:
		log.Info().Str("device", "alsa").Str("pcm", opts.PCMDevice).Msg("initializing device...")
		deviceOpts = append(deviceOpts, vfz.WithTuner(vfz.NewSysfsTuner(opts.FrequencyPath)))
	}

	args := vfz.Find(vfz.Kwargs{"driver": vfz.DriverName})
	dev, err := vfz.Make(args[0], deviceOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create device")
	}
	if err := dev.SetFrequency(vfz.DirectionRX, 0, "RF", float64(opts.CenterFreq), nil); err != nil {
		log.Fatal().Err(err).Msg("failed to tune device")
	}

	var influxWriteAPI api.WriteAPI = util.NopWriteAPI{}
	if opts.InfluxDB.Host != "" {
		influxClient := influxdb2.NewClient(opts.InfluxDB.Host, "")
		defer influxClient.Close()
		influxWriteAPI = influxClient.WriteAPI(opts.InfluxDB.Organization, opts.InfluxDB.Bucket)
	}

	var outputs []vfz.Output
	if len(opts.OutputDestinations) > 0 {
		outputs = append(outputs, output.NewUDPOutput(opts.OutputDestinations, influxWriteAPI))
	}
	if opts.RecordLocation != "" {
		recording, err := os.Create(opts.RecordLocation)
		if err != nil {
			log.Fatal().Err(err).Str("path", opts.RecordLocation).Msg("failed to create recording file")
		}
		defer recording.Close()
		outputs = append(outputs, output.NewSimpleOutput(recording))
	}

	receiverOpts := []vfz.ReceiverOption{
		vfz.WithInfluxDB(influxWriteAPI),
		vfz.WithReceiverLogger(log.Logger),
	}
	if opts.VizServer.Port != 0 {
		receiverOpts = append(receiverOpts, vfz.WithSpectrumServer(viz.NewServer(opts.VizServer.Port, opts.UpdateInterval())))
	}

	receiver, err := vfz.NewReceiver(dev,
		vfz.ReceiverOptions{
			Format:  opts.Format,
			Timeout: opts.ReadTimeout,
			Outputs: outputs,
		}, receiverOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create receiver")
	}

	eg, ctx := errgroup.WithContext(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	eg.Go(func() error {
		select {
		case <-sigChan:
		case <-ctx.Done():
		}

		receiver.Stop()
		return nil
	})

	eg.Go(func() error {
		return receiver.Start(ctx)
	})

	err = eg.Wait()
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, io.EOF):
		log.Info().Str("path", opts.PlaybackLocation).Msg("playback finished")
	default:
		log.Error().Err(err).Msg("exited program")
		os.Exit(1)
	}
	log.Info().Interface("status", receiver.Status()).Msg("stopped")
}
