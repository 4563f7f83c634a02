package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/loopscribe/loopscribe/internal/capture"
	"github.com/loopscribe/loopscribe/internal/config"
	"github.com/loopscribe/loopscribe/internal/device"
	"github.com/loopscribe/loopscribe/internal/logging"
	"github.com/loopscribe/loopscribe/internal/session"
	"github.com/loopscribe/loopscribe/internal/stt"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "loopscribe",
		Short:         "Live transcription of microphone and system audio",
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newDevicesCmd(), newRecordCmd())
	return root
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		log := logging.New()
		log.Error().Err(err).Msg("Failed to load config")
		return nil, log, err
	}
	return cfg, logging.NewWithLevel(cfg.LogLevel), nil
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture devices and how they are classified",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, err := loadConfig()
			if err != nil {
				return err
			}

			sub, err := device.NewSubsystem()
			if err != nil {
				return err
			}
			defer sub.Terminate()

			catalog := device.NewCatalog(nil, log)
			for _, d := range catalog.Scan() {
				kind := "microphone"
				if d.Loopback {
					kind = "system audio"
				}
				marker := " "
				if d.DefaultInput {
					marker = "*"
				}
				state := ""
				if !d.Available {
					state = " [unavailable]"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-40s %-12s %d ch @ %.0f Hz%s\n",
					marker, d.DisplayName, kind, d.MaxInputChannels, d.DefaultSampleRate, state)
			}
			return nil
		},
	}
}

func newRecordCmd() *cobra.Command {
	var (
		micDevice string
		sysDevice string
		noMic     bool
		noSystem  bool
		outputDir string
		engines   []string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Capture and transcribe until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if micDevice != "" {
				cfg.Audio.Microphone.DeviceID = micDevice
			}
			if sysDevice != "" {
				cfg.Audio.SystemAudio.DeviceID = sysDevice
			}
			if noMic {
				cfg.Audio.Microphone.Enabled = false
			}
			if noSystem {
				cfg.Audio.SystemAudio.Enabled = false
			}
			if outputDir != "" {
				cfg.OutputDir = outputDir
			}
			if len(engines) > 0 {
				cfg.Engines = engines
			}
			return runRecord(cmd, cfg, log)
		},
	}

	cmd.Flags().StringVar(&micDevice, "mic-device", "", "microphone device ID (empty = auto-select)")
	cmd.Flags().StringVar(&sysDevice, "system-device", "", "system-audio loopback device ID (empty = auto-select)")
	cmd.Flags().BoolVar(&noMic, "no-mic", false, "disable microphone capture")
	cmd.Flags().BoolVar(&noSystem, "no-system", false, "disable system-audio capture")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for saved recordings")
	cmd.Flags().StringSliceVar(&engines, "engine", nil, "transcription engines in fallback order (whisper, openai)")
	return cmd
}

func runRecord(cmd *cobra.Command, cfg *config.Config, log zerolog.Logger) error {
	sub, err := device.NewSubsystem()
	if err != nil {
		return err
	}
	defer sub.Terminate()

	transcriber, err := buildEngines(cfg, log)
	if err != nil {
		return err
	}
	defer transcriber.Close()

	catalog := device.NewCatalog(nil, log)
	controller := session.NewController(session.Config{
		Scan:        catalog.Scan,
		Opener:      capture.PortAudioOpener{},
		Transcriber: transcriber,
		Sink:        &consoleSink{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()},
		Logger:      log,
		Window:      time.Duration(cfg.Audio.WindowSeconds) * time.Second,
		ChunkSize:   cfg.Audio.ChunkSize,
		QueueDepth:  cfg.Audio.QueueDepth,
		OutputDir:   cfg.OutputDir,
		Microphone:  cfg.Audio.Microphone,
		SystemAudio: cfg.Audio.SystemAudio,
	})

	if err := controller.Start(); err != nil {
		return err
	}
	log.Info().Str("session_id", controller.ID()).Msg("Recording, press Ctrl-C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down...")
	if err := controller.Stop(); err != nil {
		log.Error().Err(err).Msg("Stop error")
	}
	for _, path := range controller.SavedFiles() {
		fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", path)
	}
	return nil
}

// buildEngines assembles the configured fallback chain. A single
// engine still goes through the chain so the failure handling is
// uniform.
func buildEngines(cfg *config.Config, log zerolog.Logger) (stt.Transcriber, error) {
	var providers []stt.Transcriber
	for _, name := range cfg.Engines {
		switch name {
		case "whisper":
			t, err := stt.NewWhisper(cfg.Whisper)
			if err != nil {
				log.Warn().Err(err).Msg("Whisper engine unavailable, skipping")
				continue
			}
			providers = append(providers, t)
		case "openai":
			t, err := stt.NewOpenAI(cfg.OpenAIKey(), cfg.OpenAI, cfg.Language)
			if err != nil {
				log.Warn().Err(err).Msg("OpenAI engine unavailable, skipping")
				continue
			}
			providers = append(providers, t)
		default:
			log.Warn().Str("engine", name).Msg("Unknown engine in config, skipping")
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no usable transcription engine (configured: %v)", cfg.Engines)
	}
	return stt.NewChain(log, providers...), nil
}

// consoleSink prints transcriptions as they arrive, one line per
// segment, tagged with wall-clock time and source.
type consoleSink struct {
	out    io.Writer
	errOut io.Writer
}

func (c *consoleSink) OnResult(src capture.Source, text string, ts time.Time) {
	fmt.Fprintf(c.out, "[%s] [%s] %s\n", ts.Format("15:04:05"), src, text)
}

func (c *consoleSink) OnStatus(src capture.Source, status string) {
	fmt.Fprintf(c.out, "[%s] %s\n", src, status)
}

func (c *consoleSink) OnFatalError(msg string) {
	fmt.Fprintf(c.errOut, "error: %s\n", msg)
}
