package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blebeacon/internal/coordinator"
	"github.com/srg/blebeacon/internal/groutine"
	"github.com/srg/blebeacon/internal/presentation"
	"github.com/srg/blebeacon/internal/radio"
	"github.com/srg/blebeacon/internal/radio/goble"
	"github.com/srg/blebeacon/internal/radio/sim"
	"github.com/srg/blebeacon/pkg/config"
	"golang.org/x/term"
)

// NewCapability opens the radio backend selected by cfg. The returned close
// function releases it after the run. Tests override this to inject a backend.
//
//nolint:revive
var NewCapability = func(cfg *config.Config, logger *logrus.Logger) (radio.Capability, func() error, error) {
	switch cfg.Radio {
	case config.RadioSim:
		r := sim.New(cfg.SimOptions(), logger)
		return r, func() error { r.Close(); return nil }, nil
	case config.RadioGoBLE:
		c := goble.New(cfg.GoBLEOptions(), logger)
		return c, c.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown radio %q", config.ErrInvalidConfig, cfg.Radio)
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Advertise and scan until interrupted",
		Long: `Start advertising the configured service and scanning for peers that
advertise it. Every result is printed as it arrives. Ctrl+C (or --duration)
stops both roles, printing scan results the radio still buffered.`,
		Example: `  blebeacon run
  blebeacon run --duration 30s --format json
  blebeacon run --radio sim --config peers.yaml`,
		Args: cobra.NoArgs,
		RunE: runBeacon,
	}

	cmd.Flags().DurationP("duration", "d", 0, "Stop after this long (0 runs until interrupted)")
	cmd.Flags().String("radio", config.RadioGoBLE, "Radio backend (goble, sim)")
	cmd.Flags().StringP("format", "f", config.FormatText, "Output format (text, json)")
	cmd.Flags().Bool("no-color", false, "Disable colored text output")

	return cmd
}

// loadConfig reads --config and applies the command-line overrides that were set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("duration") {
		cfg.Duration, _ = flags.GetDuration("duration")
	}
	if flags.Changed("radio") {
		cfg.Radio, _ = flags.GetString("radio")
	}
	if flags.Changed("format") {
		cfg.Format, _ = flags.GetString("format")
	}
	if noColor, _ := flags.GetBool("no-color"); noColor {
		cfg.Color = config.ColorNever
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runBeacon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, "verbose", cfg.Level())
	if err != nil {
		return err
	}

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	capability, closeRadio, err := NewCapability(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeRadio(); err != nil {
			logger.WithError(err).Warn("Failed to release radio")
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	stream := presentation.NewStreamSink(0)
	c := coordinator.New(capability, stream,
		coordinator.WithLogger(logger),
		coordinator.WithPolicy(policy),
	)

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	g, gctx := groutine.WithContext(runCtx)

	fatal := make(chan struct{})
	out := newOutputSink(cmd.OutOrStdout(), cfg, logger)
	g.Go("coordinator", func(ctx context.Context) error {
		if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go("render", func(context.Context) error {
		return render(stream, out, fatal)
	})

	c.OnForeground()

	var runErr error
	select {
	case <-ctx.Done():
		logger.WithField("reason", context.Cause(ctx)).Debug("Session ending")
	case <-fatal:
		runErr = ErrRadioUnavailable
	case <-gctx.Done():
		logger.Debug("Event loop ended")
	}

	// stopping flushes buffered results into the stream, so it closes afterwards
	c.OnBackground()
	stream.Close()
	stopRun()

	if err := g.Wait(); err != nil {
		return err
	}
	if dropped := stream.Dropped(); dropped > 0 {
		logger.WithField("dropped", dropped).Warn("Output could not keep up, entries were dropped")
	}
	return runErr
}

// render copies stream entries to out until the stream closes. The first fatal
// outcome closes fatal.
func render(stream *presentation.StreamSink, out presentation.Sink, fatal chan<- struct{}) error {
	signalled := false
	for e := range stream.Entries() {
		e.Apply(out)
		if e.Kind == presentation.EntryOutcome && e.Outcome.Fatal() && !signalled {
			signalled = true
			close(fatal)
		}
	}
	return nil
}

func newOutputSink(w io.Writer, cfg *config.Config, logger *logrus.Logger) presentation.Sink {
	if cfg.Format == config.FormatJSON {
		return presentation.NewJSONSink(w, logger)
	}
	return presentation.NewTextSink(w, useColor(w, cfg.Color), logger)
}

func useColor(w io.Writer, mode string) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
