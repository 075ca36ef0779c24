package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"
	"github.com/splitbench/splitbench/internal/devices"
	"github.com/splitbench/splitbench/internal/persistence"
	"github.com/splitbench/splitbench/internal/probe"
	"github.com/splitbench/splitbench/pkg/codec"
	"github.com/splitbench/splitbench/pkg/offload"
	"github.com/splitbench/splitbench/pkg/offload/model"
	"github.com/splitbench/splitbench/pkg/offload/spec"
	"github.com/splitbench/splitbench/pkg/pipeline"
	"github.com/splitbench/splitbench/pkg/sweep"
)

var (
	flagConfig      = flag.String("config", "", "Experiment config YAML")
	flagDevices     = flag.String("devices", "", "Device source YAML")
	flagKeystore    = flag.String("keystore", "", "Directory holding device private keys")
	flagServer      = flag.String("server", "", "Offload server address (host:port), bypassing the device registry")
	flagCC          = flag.String("cc", "", "Congestion control algorithm to request for the session")
	flagMID         = flag.String("mid", "", "Measurement ID; a random UUID when empty")
	flagCopyResults = flag.String("copy_results", "", "Copy the results directory to the SERVER device at this path after the sweep")

	// Context for the whole program.
	ctx, cancel = context.WithCancel(context.Background())
)

// logLevel maps the experiment config's logging.level to a charm level.
// Unknown values fall back to info.
func logLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// loadRegistry builds the device registry, or returns nil when no device
// source was configured.
func loadRegistry(logger *log.Logger) *devices.Registry {
	if *flagDevices == "" {
		return nil
	}
	registry, err := devices.NewRegistry(devices.RegistryConfig{
		Source: *flagDevices,
		KeyDir: *flagKeystore,
	}, probe.New(logger), logger)
	rtx.Must(err, "failed to load device registry")
	return registry
}

// serverAddr resolves the offload server endpoint: the -server flag wins,
// then the registry's reachable SERVER device. The second return is false
// when neither is available.
func serverAddr(registry *devices.Registry) (string, bool) {
	if *flagServer != "" {
		return *flagServer, true
	}
	if registry == nil {
		return "", false
	}
	device, ok := registry.FindByType(devices.Server)
	if !ok || !device.Reachable() {
		return "", false
	}
	host, err := device.Host()
	rtx.Must(err, "failed to read server host")
	port, err := device.Port()
	rtx.Must(err, "failed to read server port")
	if port == 0 {
		port = spec.DefaultPort
	}
	return offload.Addr(host, port), true
}

// selectBackend picks the sweep backend per the experiment type. It returns
// the backend, a name for the results record, and a close function.
func selectBackend(cfg model.SessionConfig, runner pipeline.Runner, cdc codec.Codec,
	registry *devices.Registry, logger *log.Logger) (sweep.Backend, string, func()) {
	addr, haveServer := serverAddr(registry)

	switch cfg.Experiment.Type {
	case spec.ExperimentLocal:
		logger.Info("running the suffix in-process")
		return sweep.NewLocalBackend(runner, cdc), "local", func() {}
	case spec.ExperimentNetworked:
		if !haveServer {
			logger.Fatal("networked experiment needs -server or a reachable SERVER device")
		}
	case spec.ExperimentAuto:
		if !haveServer {
			logger.Info("no reachable server, running the suffix in-process")
			return sweep.NewLocalBackend(runner, cdc), "local", func() {}
		}
	}

	logger.Info("offloading the suffix", "server", addr)
	client, err := offload.Dial(ctx, addr, cfg, logger)
	rtx.Must(err, "failed to establish offload session")
	return client, addr, func() { client.Close() }
}

// writeResults writes the archival JSON record and the per-boundary CSV.
func writeResults(dir, mid string, result *sweep.Result, logger *log.Logger) {
	df, err := persistence.WriteDataFile(dir, "sweep", result.Config.Pipeline.Name, mid, result)
	rtx.Must(err, "failed to write sweep archive")
	logger.Info("sweep archived", "path", df.Path)

	csvPath := filepath.Join(dir, fmt.Sprintf("sweep-%s.csv", mid))
	f, err := os.Create(csvPath)
	rtx.Must(err, "failed to create results CSV")
	defer f.Close()
	rtx.Must(sweep.WriteCSV(f, result), "failed to write results CSV")
	logger.Info("sweep results written", "path", csvPath)
}

// copyResults transfers the results directory to the SERVER device so a
// sweep's records end up next to the server-side session archives.
func copyResults(registry *devices.Registry, src, dst string, logger *log.Logger) {
	if registry == nil {
		logger.Error("-copy_results needs -devices")
		return
	}
	device, ok := registry.FindByType(devices.Server)
	if !ok || !device.Reachable() {
		logger.Error("no reachable SERVER device to copy results to")
		return
	}
	if err := device.Transfer(ctx, src, dst); err != nil {
		logger.Error("failed to copy results", "dest", dst, "err", err)
		return
	}
	host, _ := device.Host()
	logger.Info("results copied", "host", host, "dest", dst)
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "failed to read args from env")

	cfg := defaultConfig()
	if *flagConfig != "" {
		var err error
		cfg, err = loadConfig(*flagConfig)
		rtx.Must(err, "failed to load experiment config")
	}
	if *flagCC != "" {
		cfg.Congestion = *flagCC
	}

	// Initialize logging per the experiment config.
	log.SetLevel(logLevel(cfg.Logging.Level))
	log.SetReportTimestamp(true)
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File,
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		rtx.Must(err, "failed to open log file")
		defer f.Close()
		log.SetOutput(f)
	}
	logger := log.Default()

	mid := *flagMID
	if mid == "" {
		mid = uuid.NewString()
	}
	sessionCfg := cfg.sessionConfig(mid)
	rtx.Must(sessionCfg.Validate(), "invalid experiment config")

	runner, err := pipeline.New(sessionCfg.Pipeline)
	rtx.Must(err, "failed to create pipeline")
	cdc, err := codec.FromConfig(sessionCfg.Compression)
	rtx.Must(err, "failed to create codec")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, aborting sweep", "signal", sig)
		cancel()
	}()

	registry := loadRegistry(logger)
	backend, serverName, closeBackend := selectBackend(sessionCfg, runner, cdc, registry, logger)
	defer closeBackend()

	items := pipeline.MakeItems(cfg.Sweep.Items, sessionCfg.Pipeline.Width)
	boundaries := sweep.Boundaries(sessionCfg.Pipeline.Stages)
	logger.Info("starting sweep", "mid", mid, "server", serverName,
		"boundaries", len(boundaries), "items", len(items))

	emitter := sweep.HumanReadable{Debug: cfg.Logging.Level == "debug"}
	ctrl := sweep.NewController(backend, runner, cdc, emitter, logger)
	result, err := ctrl.Run(ctx, items, boundaries)
	rtx.Must(err, "sweep failed")
	result.MeasurementID = mid
	result.Server = serverName
	result.Config = sessionCfg

	writeResults(cfg.Results.Dir, mid, result, logger)
	if *flagCopyResults != "" {
		copyResults(registry, cfg.Results.Dir, *flagCopyResults, logger)
	}
}
