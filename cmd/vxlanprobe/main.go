// Command vxlanprobe runs the VXLAN flow-aggregation daemon: it binds a UDP
// endpoint, repeatedly runs the ingest loop for a configured cycle duration,
// flushes the resulting flow table, and publishes gross counters and flow
// state as Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vxlanprobe/vxlanprobe/internal/capture"
	"github.com/vxlanprobe/vxlanprobe/internal/config"
	vxmetrics "github.com/vxlanprobe/vxlanprobe/internal/metrics"
	appversion "github.com/vxlanprobe/vxlanprobe/internal/version"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath  string
	portFlag    int
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:           "vxlanprobe",
	Short:         "VXLAN flow-aggregation daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDaemon(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (optional)")
	rootCmd.PersistentFlags().IntVar(&portFlag, "port", 0, "override probe.port (0 = use config)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "override metrics.addr (empty = use config)")
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		RunE: func(*cobra.Command, []string) error {
			fmt.Println(appversion.Full("vxlanprobe"))
			return nil
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd.SetContext(ctx)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if portFlag != 0 {
		cfg.Probe.Port = portFlag
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func runDaemon(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logLevel := &slog.LevelVar{}
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: logLevel}
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	reg := prometheus.NewRegistry()
	metricsCollector := vxmetrics.NewCollector(reg)

	capCtx, err := capture.New(capture.Config{
		Port:       cfg.Probe.Port,
		RcvBufHint: cfg.Probe.RcvBufHint,
	})
	if err != nil {
		return fmt.Errorf("create capture context: %w", err)
	}
	defer capCtx.Close()

	logger.Info("capture context bound",
		slog.Int("port", cfg.Probe.Port),
		slog.Int("rcvbuf", capCtx.RcvBuf()),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}

	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		// Once the cycles end, cancelling shuts the metrics server down so
		// the daemon exits.
		defer cancel()
		return runCycles(gctx, capCtx, metricsCollector, cfg.Probe.CycleDuration, cfg.Probe.Iterations, logger)
	})

	if ok, _ := daemon.SdNotify(false, daemon.SdNotifyReady); !ok {
		logger.Debug("systemd notify socket not present, skipping READY=1")
	}

	err = g.Wait()

	daemon.SdNotify(false, daemon.SdNotifyStopping)

	return err
}

// runCycles drives repeated run/flush cycles until the parent context is
// cancelled or the configured iteration count is reached (0 means forever).
func runCycles(ctx context.Context, capCtx *capture.Context, collector *vxmetrics.Collector, cycleDuration time.Duration, iterations int, logger *slog.Logger) error {
	for i := 0; iterations == 0 || i < iterations; i++ {
		if ctx.Err() != nil {
			return nil
		}

		if _, err := capCtx.Run(ctx, cycleDuration); err != nil {
			return fmt.Errorf("ingest loop: %w", err)
		}

		flowsBefore := capCtx.NumFlows()
		records := capCtx.Flush()

		var packetSum uint64
		for _, rec := range capCtx.FlushBuf() {
			packetSum += rec.Counters.Packets
		}

		// Run resets the gross counters at its start, so their values now are
		// this cycle's deltas.
		collector.ObserveCycle(
			capCtx.TotalPackets(),
			capCtx.TotalBytes(),
			capCtx.TotalParsed(),
			flowsBefore,
			records,
			packetSum,
		)

		logger.Debug("cycle complete",
			slog.Int("records", records),
			slog.Int("flows_active", flowsBefore),
			slog.Uint64("total_parsed", capCtx.TotalParsed()),
		)
	}

	return nil
}
