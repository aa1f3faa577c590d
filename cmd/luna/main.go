// Command luna runs the L.U.N.A. voice and text assistant.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	orchestration "github.com/koscakluka/luna/core"
	"github.com/koscakluka/luna/core/config"
	"github.com/koscakluka/luna/core/logging"
	"github.com/koscakluka/luna/core/texttospeech/deepgram"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&rootOptions{}).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	debug    bool
	logLevel string
	noUI     bool
	noAudio  bool
	noSpeech bool
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "luna",
		Short: "L.U.N.A. - Logical Unified Network Assistant",
		Long: `L.U.N.A. listens for speech, answers with a local language model and
can run desktop tools on your behalf.

Settings are read from LUNA_ prefixed environment variables; the flags below
override them.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (DEBUG, INFO, WARNING, ERROR)")
	flags.BoolVar(&opts.noUI, "no-ui", false, "use plain line output instead of the terminal UI")
	flags.BoolVar(&opts.noAudio, "no-audio", false, "disable voice input")
	flags.BoolVar(&opts.noSpeech, "no-speech", false, "disable spoken responses")

	cmd.AddCommand(newVersionCmd(), newVoicesCmd())
	return cmd
}

// loadConfig reads the environment and applies flags that were set.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	if cmd.Flags().Changed("debug") {
		cfg.Debug = opts.debug
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if opts.noUI {
		cfg.UI.Enabled = false
	}
	if opts.noAudio {
		cfg.Audio.Enabled = false
	}
	if opts.noSpeech {
		cfg.TTS.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(cmd *cobra.Command, cfg config.Config) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	// The terminal UI owns the screen; records go to the log file and the
	// UI's log pane instead.
	closer, err := logging.Configure(logging.Options{
		Level:   cfg.Level(),
		JSON:    cfg.LogJSON,
		Output:  cmd.ErrOrStderr(),
		Discard: cfg.UI.Enabled,
		File:    cfg.LogFilePath(),
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	app := orchestration.NewApplication(cfg)
	if err := app.Run(cmd.Context()); err != nil {
		return err
	}

	cmd.Printf("👋 %s shutdown complete\n", cfg.AppName)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("luna version %s\n", version)
		},
	}
}

func newVoicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the voices available to the deepgram speech engine",
		Run: func(cmd *cobra.Command, _ []string) {
			for _, voice := range deepgram.AvailableVoices() {
				cmd.Println(voice)
			}
		},
	}
}
