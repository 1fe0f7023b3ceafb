// dcmictl is a command-line front end for the accelerator management
// library. It enumerates cards and devices, prints telemetry, and can poll
// continuously, optionally recording samples into a local sqlite database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"codeberg.org/ferrule/dcmictl/dcmi"
	"codeberg.org/ferrule/dcmictl/dcmi/rawsim"
	"codeberg.org/ferrule/dcmictl/internal/config"
	"codeberg.org/ferrule/dcmictl/internal/errors"
	"codeberg.org/ferrule/dcmictl/internal/logger"
	"codeberg.org/ferrule/dcmictl/internal/telemetry"
)

const (
	// ErrNoRawAPI means no native surface is registered and simulation was
	// not requested.
	ErrNoRawAPI = errors.ErrorCode("no_raw_api")

	// ErrNoDevices means enumeration found nothing to report on.
	ErrNoDevices = errors.ErrorCode("no_devices")
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.ErrorWithCode(appErr).Send()
		} else {
			logger.Error().Err(err).Send()
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "dcmictl",
		Short:         "Inspect and monitor accelerator cards",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			cfg = loaded
			logger.Init(cfg.LogLevel, logger.IsService())
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.Int("interval", config.DefaultInterval, "polling interval in seconds for watch mode")
	flags.String("log-level", config.DefaultLogLevel, "log level (debug, info, warning, error)")
	flags.Bool("telemetry", false, "record watch-mode samples into the telemetry database")
	flags.String("database", "", "telemetry database path")
	flags.Bool("simulate", false, "use the built-in simulated card topology")

	root.AddCommand(
		newListCmd(&cfg),
		newStatusCmd(&cfg),
		newWatchCmd(&cfg),
	)

	return root
}

// openLibrary initializes the management library against either the
// registered native surface or the simulator. The returned closer rolls the
// library back to uninitialized.
func openLibrary(cfg *config.Config) (*dcmi.Library, func(), error) {
	var raw dcmi.RawAPI
	if cfg.Simulate {
		raw = rawsim.Demo()
	} else {
		registered, ok := dcmi.Registered()
		if !ok {
			return nil, nil, errors.New(ErrNoRawAPI).
				WithMessage("No native management surface is linked in; pass --simulate to explore the CLI")
		}
		raw = registered
	}

	lib := dcmi.New(raw, dcmi.WithLogger(logger.Logger()))
	if err := lib.Init(); err != nil {
		return nil, nil, err
	}

	closer := func() {
		if err := lib.Shutdown(); err != nil {
			logger.Warn().Err(err).Msg("Library shutdown failed")
		}
	}
	return lib, closer, nil
}

func newListCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List present cards and devices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			lib, closer, err := openLibrary(*cfg)
			if err != nil {
				return err
			}
			defer closer()

			version, err := lib.DriverVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "driver version: %s\n", version)

			list, err := lib.ListDevices()
			if err != nil {
				return err
			}
			if list.Len() == 0 {
				return errors.New(ErrNoDevices).WithMessage("No devices found")
			}

			for {
				h, ok := list.Next()
				if !ok {
					return nil
				}
				line := fmt.Sprintf("card %d device %d", h.Card(), h.Device())
				if chip, err := h.ChipInfo(); err == nil {
					line += fmt.Sprintf("  %s %s %s", chip.Type, chip.Name, chip.Version)
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
		},
	}
}

func newStatusCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print a one-shot telemetry report for every device",
		RunE: func(cmd *cobra.Command, _ []string) error {
			lib, closer, err := openLibrary(*cfg)
			if err != nil {
				return err
			}
			defer closer()

			list, err := lib.ListDevices()
			if err != nil {
				return err
			}
			if list.Len() == 0 {
				return errors.New(ErrNoDevices).WithMessage("No devices found")
			}

			for _, h := range list.Rest() {
				fmt.Fprintln(cmd.OutOrStdout(), collectReport(h).format())
			}
			return nil
		},
	}
}

func newWatchCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll device telemetry at a fixed interval",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := *cfg

			lib, closer, err := openLibrary(c)
			if err != nil {
				return err
			}
			defer closer()

			var collector telemetry.Collector
			if c.Telemetry {
				collector, err = telemetry.NewCollector(c.TelemetryDB)
				if err != nil {
					return err
				}
				defer collector.Close()
				logger.Info().Str("database", c.TelemetryDB).Msg("Recording telemetry")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ticker := time.NewTicker(time.Duration(c.Interval) * time.Second)
			defer ticker.Stop()

			for {
				if err := watchOnce(ctx, cmd, lib, collector); err != nil {
					return err
				}
				select {
				case <-ctx.Done():
					logger.Info().Msg("Shutting down")
					return nil
				case <-ticker.C:
				}
			}
		},
	}
}

func watchOnce(ctx context.Context, cmd *cobra.Command, lib *dcmi.Library, collector telemetry.Collector) error {
	list, err := lib.ListDevices()
	if err != nil {
		return err
	}

	now := time.Now()
	for _, h := range list.Rest() {
		report := collectReport(h)
		fmt.Fprintln(cmd.OutOrStdout(), report.format())

		if collector == nil {
			continue
		}
		if err := collector.Record(ctx, report.snapshot(now)); err != nil {
			logger.Warn().Err(err).
				Int32("card", report.card).
				Int32("device", report.device).
				Msg("Failed to record sample")
		}
	}
	return nil
}

// deviceReport holds one device's telemetry, queried exactly once per
// class so the printed line and the recorded sample come from the same
// native calls.
type deviceReport struct {
	card   int32
	device int32

	temp      dcmi.Temperature
	tempErr   error
	power     dcmi.PowerInfo
	powerErr  error
	mem       dcmi.MemoryInfo
	memErr    error
	util      dcmi.UtilizationInfo
	utilErr   error
	health    dcmi.HealthInfo
	healthErr error
	faults    []uint32
}

func collectReport(h *dcmi.DeviceHandle) *deviceReport {
	r := &deviceReport{card: int32(h.Card()), device: int32(h.Device())}
	r.temp, r.tempErr = h.Temperature()
	r.power, r.powerErr = h.Power()
	r.mem, r.memErr = h.Memory()
	r.util, r.utilErr = h.Utilization()
	r.health, r.healthErr = h.Health()
	r.faults, _ = h.ErrorCodes()
	return r
}

// format renders the report on a single line. Individual query failures
// degrade to a per-field marker instead of aborting the whole report.
func (r *deviceReport) format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "card %d device %d", r.card, r.device)

	if r.tempErr == nil {
		fmt.Fprintf(&b, "  temp=%s°C", r.temp.Celsius)
	} else {
		b.WriteString("  temp=" + queryFailure(r.tempErr))
	}

	if r.powerErr == nil && r.power.Draw.Valid {
		fmt.Fprintf(&b, "  power=%.1fW", r.power.Watts())
	} else if r.powerErr != nil {
		b.WriteString("  power=" + queryFailure(r.powerErr))
	} else {
		b.WriteString("  power=N/A")
	}

	if r.memErr == nil {
		if r.mem.TotalMB.Valid && r.mem.AvailableMB.Valid {
			fmt.Fprintf(&b, "  mem=%d/%dMB", r.mem.TotalMB.Value-r.mem.AvailableMB.Value, r.mem.TotalMB.Value)
		} else {
			b.WriteString("  mem=N/A")
		}
	} else {
		b.WriteString("  mem=" + queryFailure(r.memErr))
	}

	if r.utilErr == nil {
		fmt.Fprintf(&b, "  aicore=%s%%", r.util.AICore)
	} else {
		b.WriteString("  aicore=" + queryFailure(r.utilErr))
	}

	if r.healthErr == nil {
		fmt.Fprintf(&b, "  health=%s", r.health.State)
	} else {
		b.WriteString("  health=" + queryFailure(r.healthErr))
	}

	if len(r.faults) > 0 {
		parts := make([]string, len(r.faults))
		for i, c := range r.faults {
			parts[i] = fmt.Sprintf("0x%08x", c)
		}
		fmt.Fprintf(&b, "  faults=[%s]", strings.Join(parts, " "))
	}

	return b.String()
}

func queryFailure(err error) string {
	if errors.HasCode(err, dcmi.ErrUnsupported) {
		return "unsupported"
	}
	if errors.HasCode(err, dcmi.ErrDeviceUnavailable) {
		return "gone"
	}
	return "error"
}

// snapshot converts the report into a telemetry sample. Failed or
// sentinel-marked readings stay invalid and store as NULL.
func (r *deviceReport) snapshot(now time.Time) *telemetry.Snapshot {
	s := &telemetry.Snapshot{
		Timestamp: now,
		Card:      r.card,
		Device:    r.device,
	}

	if r.tempErr == nil && r.temp.Celsius.Valid {
		s.TemperatureC = telemetry.Reading{Value: int64(r.temp.Celsius.Value), Valid: true}
	}
	if r.powerErr == nil && r.power.Draw.Valid {
		s.PowerDrawW = telemetry.Reading{Value: int64(r.power.Watts()), Valid: true}
	}
	if r.memErr == nil && r.mem.TotalMB.Valid && r.mem.AvailableMB.Valid {
		used := r.mem.TotalMB.Value - r.mem.AvailableMB.Value
		s.MemoryUsedMB = telemetry.Reading{Value: int64(used), Valid: true}
	}
	if r.utilErr == nil && r.util.AICore.Valid {
		s.UtilAICore = telemetry.Reading{Value: int64(r.util.AICore.Value), Valid: true}
	}
	if r.healthErr == nil {
		s.Health = r.health.State.String()
	}

	return s
}
