// Command relay-server runs the byte-forwarding relay: pairing two
// RequestRelay sockets on a shared token and bridging their traffic under
// bandwidth governance, downgrade, and blocklist controls.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/shurlinet/punchrelay/internal/config"
	"github.com/shurlinet/punchrelay/internal/control"
	"github.com/shurlinet/punchrelay/internal/relay"
	"github.com/shurlinet/punchrelay/internal/telemetry"
	"github.com/shurlinet/punchrelay/internal/watchdog"
)

var version = "dev"

const defaultConfigFile = "relay-server.yaml"

func main() {
	configFile := defaultConfigFile
	for i, arg := range os.Args[1:] {
		if (arg == "--config" || arg == "-config") && i+2 < len(os.Args) {
			configFile = os.Args[i+2]
			break
		}
		if strings.HasPrefix(arg, "--config=") {
			configFile = strings.TrimPrefix(arg, "--config=")
			break
		}
	}

	cfg, err := config.Load(os.Args[1:], configFile, ".env")
	if err != nil {
		fatal("load config: %v", err)
	}
	if err := config.ValidateRelayConfig(cfg); err != nil {
		fatal("invalid config: %v", err)
	}
	if err := config.Archive(configFile); err != nil {
		log.Printf("warning: failed to archive config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	state := relay.NewState()
	state.SetTotalBandwidthMbps(cfg.TotalBandwidthMbps)
	state.SetSingleBandwidthMbps(cfg.SingleBandwidthMbps)
	state.SetLimitSpeedMbps(cfg.LimitSpeedMbps)
	state.SetDowngradeThreshold(cfg.DowngradeThreshold)
	state.SetDowngradeStartCheckSeconds(int64(cfg.DowngradeStartCheckSec))

	pending := relay.NewPendingHalves()

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Metrics.Enabled {
		metrics = telemetry.NewMetrics(version, runtime.Version())
	}

	console := control.New()
	relay.RegisterControlCommands(console, state)

	go func() {
		if err := relay.ListenAndServe(ctx, cfg.RelayPort, state, pending, metrics, cfg.LicenceKey, console); err != nil {
			fatal("listen: %v", err)
		}
	}()

	watchdog.Ready()
	go watchdog.Run(ctx, watchdog.Config{Component: "relay-server", Interval: 30 * time.Second}, []watchdog.HealthCheck{
		{Name: "bandwidth-state", Check: func() error {
			if state.TotalBandwidthMbps() <= 0 {
				return fmt.Errorf("total bandwidth cap is non-positive")
			}
			return nil
		}},
	})

	var healthServer *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		healthServer = &http.Server{
			Addr:         cfg.Telemetry.Metrics.ListenAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("telemetry endpoint started", "addr", cfg.Telemetry.Metrics.ListenAddress)
			if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("telemetry endpoint error", "err", err)
			}
		}()
	}

	slog.Info("relay-server running", "port", cfg.RelayPort, "version", version)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	watchdog.Stopping()
	slog.Info("shutting down")
	if healthServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		healthServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	cancel()
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "relay-server: "+format+"\n", args...)
	os.Exit(1)
}
