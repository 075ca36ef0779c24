package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/splitbench/splitbench/internal/archive"
	"github.com/splitbench/splitbench/internal/devices"
	"github.com/splitbench/splitbench/internal/monitor"
	"github.com/splitbench/splitbench/internal/probe"
	"github.com/splitbench/splitbench/pkg/offload"
	"github.com/splitbench/splitbench/pkg/offload/spec"
)

var (
	flagDevices     = flag.String("devices", "", "Device source YAML; its SERVER entry provides the listen endpoint")
	flagKeystore    = flag.String("keystore", "", "Directory holding device private keys")
	flagHost        = flag.String("host", "", "Address to listen on for offload sessions")
	flagPort        = flag.Int("port", spec.DefaultPort, "Port to listen on for offload sessions")
	flagMonitorAddr = flag.String("monitor_addr", ":8080", "Listen address/port for the monitor endpoints")
	flagDataDir     = flag.String("datadir", "./data", "Directory to store data in")
	flagArchiveTTL  = flag.Duration("archive_ttl", archive.DefaultTTL, "How long archived sessions stay queryable in memory")

	// Context for the whole program.
	ctx, cancel = context.WithCancel(context.Background())
)

// endpointFromRegistry reads the SERVER device's endpoint from the device
// source. The same YAML drives hosts and servers, so a server deployed next
// to its registry needs no per-machine flags.
func endpointFromRegistry(logger *log.Logger) (string, int, bool) {
	registry, err := devices.NewRegistry(devices.RegistryConfig{
		Source: *flagDevices,
		KeyDir: *flagKeystore,
	}, probe.New(logger), logger)
	rtx.Must(err, "failed to load device registry")

	device, ok := registry.FindByType(devices.Server)
	if !ok {
		logger.Fatal("no SERVER device in the registry", "source", *flagDevices)
	}
	if !device.Reachable() {
		logger.Warn("SERVER device has no working credential, using flag endpoint")
		return "", 0, false
	}
	host, err := device.Host()
	rtx.Must(err, "failed to read server host")
	port, err := device.Port()
	rtx.Must(err, "failed to read server port")
	if port == 0 {
		// The registry entry has no experiment port.
		port = spec.DefaultPort
	}
	return host, port, true
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "failed to read args from env")

	// Initialize logging and metrics.
	log.SetReportCaller(true)
	log.SetReportTimestamp(true)
	log.SetLevel(log.DebugLevel)
	logger := log.Default()

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Close()

	host, port := *flagHost, *flagPort
	if *flagDevices != "" {
		if h, p, ok := endpointFromRegistry(logger); ok {
			host, port = h, p
		}
	}

	store := archive.NewStore(*flagDataDir, *flagArchiveTTL, logger)
	defer store.Stop()

	ln, err := offload.Listen(host, port)
	rtx.Must(err, "failed to create listener")
	srv := offload.NewServer(store, logger)

	mux := http.NewServeMux()
	monitor.New(store, srv, logger).Register(mux)
	monitorSrv := &http.Server{
		Addr:    *flagMonitorAddr,
		Handler: mux,
		// NOTE: set absolute read and write timeouts for server connections.
		// This prevents clients, or middleboxes, from opening a connection
		// and holding it open indefinitely. Hijacked watch connections are
		// not affected.
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
	}
	go func() {
		logger.Info("monitor listening", "addr", *flagMonitorAddr)
		if err := monitorSrv.ListenAndServe(); err != http.ErrServerClosed {
			rtx.Must(err, "monitor server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	rtx.Must(srv.Serve(ctx, ln), "offload server failed")

	// Write out any session archives still in memory before exiting.
	monitorSrv.Close()
	store.Flush()
}
