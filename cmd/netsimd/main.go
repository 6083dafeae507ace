package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"netsim/internal/capture"
	"netsim/internal/eventbus"
	"netsim/internal/facade"
	"netsim/internal/httpapi"
	"netsim/internal/netsimconfig"
	"netsim/internal/registry"
	"netsim/internal/supervisor"
	"netsim/internal/transport"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagGrpcPort      int
	flagWebPort       int
	flagCaptureDir    string
	flagInstance      string
	flagNoShutdown    bool
	flagStartupInfo   string
	flagRadioDefaults string
)

var rootCmd = &cobra.Command{
	Use:   "netsimd",
	Short: "Network radio simulator daemon",
	Long: `netsimd brokers emulated Bluetooth LE/Classic, Wi-Fi, and UWB radio
traffic between virtual devices, records packet captures, and exposes a
front-end API for enumerating and controlling them.`,
	Version: version,
	RunE:    runDaemon,
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.Flags().IntVar(&flagGrpcPort, "grpc-port", 0, "gRPC port (recorded in the config only; no gRPC server is started)")
	rootCmd.Flags().IntVar(&flagWebPort, "web-port", 0, "HTTP port (0 picks an ephemeral port)")
	rootCmd.Flags().StringVar(&flagCaptureDir, "capture-dir", "", "Directory for capture files (default: <temp>/pcaps)")
	rootCmd.Flags().StringVar(&flagInstance, "instance", "", "Instance name, suffixes the discovery file")
	rootCmd.Flags().BoolVar(&flagNoShutdown, "no-shutdown", false, "Disable the idle-shutdown supervisor")
	rootCmd.Flags().StringVar(&flagStartupInfo, "startup-info", "", "StartupInfo JSON document preregistering pipe-transport devices")
	rootCmd.Flags().StringVar(&flagRadioDefaults, "radio-defaults", "", "YAML file overriding built-in radio defaults (e.g. beacon mode/tx power)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "netsimd: %s\n", err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	cfg := netsimconfig.DefaultConfig()
	cfg.LogLevel = logger.GetLevel()
	if flagGrpcPort != 0 {
		cfg.GrpcPort = flagGrpcPort
	}
	if flagWebPort != 0 {
		cfg.WebPort = flagWebPort
	}
	if flagCaptureDir != "" {
		cfg.CaptureDir = flagCaptureDir
	}
	if !filepath.IsAbs(cfg.CaptureDir) {
		cfg.CaptureDir = filepath.Join(os.TempDir(), cfg.CaptureDir)
	}
	cfg.ShutdownOnIdle = !flagNoShutdown

	info, err := ParseStartupInfo(flagStartupInfo)
	if err != nil {
		return err
	}

	radioDefaults, err := netsimconfig.LoadRadioDefaults(flagRadioDefaults)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bus := eventbus.New()
	captures := capture.NewRegistry(cfg.CaptureDir, logger)
	transports := transport.NewRegistry(logger)

	var devices *registry.Devices
	devicesRef := func() *registry.Devices { return devices }
	devices = registry.New(bus, newAdaptorFactory(devicesRef, captures, radioDefaults))

	if err := wireStartupDevices(ctx, info, devices, transports, logger); err != nil {
		return err
	}

	sup := supervisor.New(bus, logger)
	if cfg.ShutdownOnIdle {
		sup.Run(ctx)
	}

	shutdown := make(chan struct{})
	go watchForShutdown(ctx, bus, cancel, shutdown)

	f := facade.New(devices, captures, bus)
	router := httpapi.NewRouter(f, logger)

	listener, actualPort, err := listenOnPort(cfg.WebPort)
	if err != nil {
		return fmt.Errorf("netsimd: listen on web port: %w", err)
	}
	server := &http.Server{Handler: router}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(listener) }()

	if err := writeDiscoveryFile(flagInstance, actualPort); err != nil {
		logger.WithError(err).Warn("netsimd: failed to write discovery file")
	}
	logger.WithField("web_port", actualPort).Info("netsimd: listening")

	select {
	case <-ctx.Done():
	case <-shutdown:
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func watchForShutdown(ctx context.Context, bus *eventbus.Bus, cancel context.CancelFunc, done chan<- struct{}) {
	sub := bus.Subscribe(8)
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			if e.Kind == eventbus.ShutDown {
				close(done)
				return
			}
		}
	}
}
