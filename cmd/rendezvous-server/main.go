// Command rendezvous-server runs the UDP/TCP/WebSocket signaling
// endpoint: peer registration, NAT punch-hole coordination, and relay
// fallback negotiation.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/shurlinet/punchrelay/internal/abuse"
	"github.com/shurlinet/punchrelay/internal/config"
	"github.com/shurlinet/punchrelay/internal/control"
	"github.com/shurlinet/punchrelay/internal/identity"
	"github.com/shurlinet/punchrelay/internal/peerdir"
	"github.com/shurlinet/punchrelay/internal/rendezvous"
	"github.com/shurlinet/punchrelay/internal/telemetry"
	"github.com/shurlinet/punchrelay/internal/watchdog"
)

var version = "dev"

const defaultConfigFile = "rendezvous-server.yaml"

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
	if err := config.ValidateRendezvousConfig(cfg); err != nil {
		fatal("invalid config: %v", err)
	}
	if err := config.Archive(configFile); err != nil {
		log.Printf("warning: failed to archive config: %v", err)
	}

	id, err := identity.Resolve(cfg.Key, "id_ed25519", "id_ed25519.pub")
	if err != nil {
		fatal("identity: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := peerdir.OpenStore(ctx, cfg.DBURL, cfg.MaxDatabaseConnections)
	if err != nil {
		fatal("open peer store: %v", err)
	}
	defer store.Close()
	dir := peerdir.NewDirectory(store)

	throttle := abuse.NewThrottle()
	ipChanges := abuse.NewIpChangeHistory()

	var mask *net.IPNet
	if cfg.Mask != "" {
		_, parsed, err := net.ParseCIDR(cfg.Mask)
		if err != nil {
			fatal("invalid mask %q: %v", cfg.Mask, err)
		}
		mask = parsed
	}
	localIP := net.ParseIP(cfg.LocalIP)

	state := rendezvous.NewState(int32(cfg.Serial), cfg.AlwaysUseRelay, cfg.RelayServers, cfg.RendezvousServers, mask, localIP, cfg.SoftwareURL, cfg.LicenceKey)

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Metrics.Enabled {
		metrics = telemetry.NewMetrics(version, runtime.Version())
	}

	server := rendezvous.NewServer(dir, throttle, ipChanges, id, metrics, state)

	console := control.New()
	rendezvous.RegisterControlCommands(console, state, throttle, ipChanges)
	server.Console = console

	go func() {
		if err := server.ListenAndServe(ctx, cfg.Port); err != nil {
			fatal("listen: %v", err)
		}
	}()

	watchdog.Ready()
	go watchdog.Run(ctx, watchdog.Config{Component: "rendezvous-server", Interval: 30 * time.Second}, []watchdog.HealthCheck{
		{Name: "peer-store", Check: func() error { return store.Ping(ctx) }},
	})

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ipChanges.Sweep()
			}
		}
	}()

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

	slog.Info("rendezvous-server running", "port", cfg.Port, "version", version)

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
	fmt.Fprintf(os.Stderr, "rendezvous-server: "+format+"\n", args...)
	os.Exit(1)
}
