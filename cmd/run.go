// cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tneurolab/crossdetect/internal/audio"
	"github.com/tneurolab/crossdetect/internal/config"
	"github.com/tneurolab/crossdetect/internal/detect"
	"github.com/tneurolab/crossdetect/internal/sink"
)

func runDetector(cmd *cobra.Command, args []string) error {
	settings, err := config.Get()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	detector, err := detect.New(settings.DetectorConfig())
	if err != nil {
		return fmt.Errorf("detector: %w", err)
	}

	sinks, err := buildSinks(cmd, settings)
	if err != nil {
		return err
	}
	defer sinks.Close()

	detector.SetEmit(func(ev detect.Event) {
		if err := sinks.Emit(ev); err != nil && settings.Debug {
			fmt.Fprintf(cmd.ErrOrStderr(), "sink error: %v\n", err)
		}
	})

	capture := audio.New(audio.Config{
		DeviceIndex: settings.DeviceIndex,
		SampleRate:  uint32(settings.SampleRate),
		Channels:    uint32(settings.Channels),
		BufferSize:  uint32(settings.BufferSize),
	})
	if err := capture.Init(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	defer capture.Close()

	inputCh := settings.InputChannel
	threshCh := settings.ThresholdChannel
	capture.SetCallback(func(f audio.Frames) {
		if inputCh >= len(f.Channels) {
			return
		}
		block := detect.Block{
			StartIndex: f.StartFrame,
			Samples:    f.Channels[inputCh],
		}
		if threshCh >= 0 && threshCh < len(f.Channels) {
			block.Threshold = f.Channels[threshCh]
		}
		detector.Process(block)
	})

	if err := detector.Enable(settings.SampleRate); err != nil {
		return fmt.Errorf("detector: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := capture.Start(ctx); err != nil {
		return fmt.Errorf("audio: %w", err)
	}

	if settings.Debug {
		fmt.Fprintf(cmd.OutOrStdout(), "detecting on channel %d at %g Hz (mode %s), Ctrl-C to stop\n",
			inputCh, settings.SampleRate, settings.ThresholdMode)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}

	detector.Disable()
	return nil
}

// buildSinks assembles the event outputs: stdout always, serial when a
// port is configured (the flag overrides the config file through viper).
func buildSinks(cmd *cobra.Command, settings *config.Settings) (sink.Fanout, error) {
	sinks := sink.Fanout{sink.NewWriter(cmd.OutOrStdout())}

	if settings.SerialPort != "" {
		serial := sink.NewSerial(settings.SerialPort, settings.SerialBaud)
		if err := serial.Open(); err != nil {
			return nil, fmt.Errorf("serial: %w", err)
		}
		sinks = append(sinks, serial)
	}

	return sinks, nil
}
