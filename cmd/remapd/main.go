// remapd - context-sensitive key remapping back-end
//
// remapd grabs physical input devices, translates their key events through
// the active keymap and publishes the result on a virtual device. The
// keymap and focus updates arrive from a front-end (remapctl or a desktop
// integration) over a unix socket; action keys are reported back to it.
//
//	remapd                     Run with the default settings file
//	remapd --config FILE       Run with an explicit settings file
//	remapd --verbose           Log at debug level
//	remapd --debounce          Space out bouncing button presses
//	remapd --grab-and-exit     Probe device access permissions and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"remapd/internal/config"
	"remapd/internal/debounce"
	"remapd/internal/device"
	"remapd/internal/history"
	"remapd/internal/ipc"
	"remapd/internal/keymap"
	"remapd/internal/logging"
	"remapd/internal/metrics"
	"remapd/internal/session"
	"remapd/internal/stage"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", config.DefaultConfigPath(), "settings file")
	verbose := flag.Bool("verbose", false, "log at debug level")
	debounceFlag := flag.Bool("debounce", false, "space out bouncing button presses")
	grabAndExit := flag.Bool("grab-and-exit", false, "probe device access permissions and exit")
	flag.Parse()

	loader := config.NewLoader(*configPath)
	settings, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "remapd: %v\n", err)
		return 1
	}
	defer loader.Close()

	if *verbose {
		settings.Daemon.Verbose = true
	}
	if *debounceFlag {
		settings.Daemon.Debounce = true
	}

	logger, err := setupLogging(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "remapd: %v\n", err)
		return 1
	}
	defer logger.Close()

	if *grabAndExit {
		// permission probe: try to grab and release immediately
		g, err := device.Grab(device.Selection{
			Allow:       settings.Devices.Allow,
			Deny:        settings.Devices.Deny,
			VirtualName: settings.Daemon.VirtualName,
		})
		if err != nil {
			logging.Error("grab probe failed", "error", err)
			return 1
		}
		g.Close()
		return 0
	}

	d := &daemon{settings: settings}

	if settings.Metrics.Enabled {
		if _, err := metrics.Default().Serve(settings.Metrics.Addr); err == nil {
			logging.Info("metrics endpoint started", "addr", settings.Metrics.Addr)
		}
	}

	if settings.History.Enabled {
		hist, err := history.Open(settings.History.Path)
		if err != nil {
			logging.Warn("opening history store failed", "error", err)
		} else {
			d.hist = hist
			defer hist.Close()
		}
	}

	if settings.Daemon.Debounce {
		d.debouncer = debounce.New(time.Duration(settings.Daemon.DebounceDelayMs) * time.Millisecond)
	}

	// hot-reload log level on settings change
	loader.OnChange(func(cfg *config.Config) {
		if level, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
			logger.SetLevel(level)
		}
	})
	if err := loader.Watch(); err != nil {
		logging.Debug("settings watch unavailable", "error", err)
	}

	d.port = ipc.NewServerPort(settings.Daemon.SocketPath)
	if err := d.port.Start(); err != nil {
		logging.Error("initializing front-end connection failed", "error", err)
		return 1
	}
	defer d.port.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return d.connectionLoop(ctx)
}

// setupLogging builds the process logger from the settings.
func setupLogging(settings *config.Config) (*logging.Logger, error) {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(settings.Logging.Level); err == nil {
		cfg.Level = level
	}
	if settings.Daemon.Verbose {
		cfg.Level = logging.LevelDebug
	}
	if format, err := logging.ParseFormat(settings.Logging.Format); err == nil {
		cfg.Format = format
	}
	if settings.Logging.Output != "" {
		cfg.Output = settings.Logging.Output
	}
	if settings.Logging.FilePath != "" {
		cfg.FilePath = settings.Logging.FilePath
	}
	if settings.Logging.MaxSizeMB > 0 {
		cfg.MaxSize = settings.Logging.MaxSizeMB
	}
	if settings.Logging.MaxBackups > 0 {
		cfg.MaxBackups = settings.Logging.MaxBackups
	}
	cfg.Compress = settings.Logging.Compress

	logger, err := logging.New(cfg)
	if err != nil {
		return nil, err
	}
	logging.SetDefault(logger)
	return logger, nil
}

// daemon wires the collaborators together. They are injected here instead
// of living as package globals so teardown order stays explicit.
type daemon struct {
	settings  *config.Config
	port      *ipc.ServerPort
	hist      *history.Store
	debouncer *debounce.Debouncer
}

func (d *daemon) record(kind, detail string) {
	if d.hist == nil {
		return
	}
	if err := d.hist.Record(kind, detail); err != nil {
		logging.Debug("recording history event failed", "error", err)
	}
}

// connectionLoop accepts one front-end at a time and runs the update loop
// for the duration of its connection.
func (d *daemon) connectionLoop(ctx context.Context) int {
	for {
		logging.Info("waiting for front-end to connect", "socket", d.port.SocketPath())
		msgs, err := d.port.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return 0
			}
			logging.Error("accepting front-end connection failed", "error", err)
			continue
		}

		st, ok := d.readInitialConfig(ctx, msgs)
		if ok {
			code, done := d.runSession(ctx, st, msgs)
			if done {
				return code
			}
		}
		d.port.Disconnect()
		logging.Info("front-end connection reset")
	}
}

// readInitialConfig waits for the first configuration message.
func (d *daemon) readInitialConfig(ctx context.Context, msgs <-chan *ipc.Message) (*stage.Stage, bool) {
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case msg, ok := <-msgs:
			if !ok {
				logging.Error("receiving configuration failed")
				return nil, false
			}
			if msg.Header.Type != ipc.MsgConfiguration {
				continue
			}
			cfg, err := keymap.Parse(msg.Payload)
			if err != nil {
				logging.Error("configuration rejected", "error", err)
				return nil, false
			}
			metrics.ConfigsReceived.Inc()
			d.record(history.KindConfigReceived, "")
			logging.Info("received configuration", "contexts", len(cfg.Contexts))
			return stage.New(cfg), true
		}
	}
}

// runSession creates the devices for a configuration and drives the update
// loop. done is true when the process should exit with code.
func (d *daemon) runSession(ctx context.Context, st *stage.Stage, msgs <-chan *ipc.Message) (code int, done bool) {
	virt, err := device.CreateVirtual(d.settings.Daemon.VirtualName, st.HasMouseMappings())
	if err != nil {
		logging.Error("creating virtual device failed", "error", err)
		return 1, true
	}
	defer virt.Close()

	grabber, err := device.Grab(device.Selection{
		WithPointers: st.HasMouseMappings(),
		Allow:        d.settings.Devices.Allow,
		Deny:         d.settings.Devices.Deny,
		VirtualName:  d.settings.Daemon.VirtualName,
	})
	if err != nil {
		logging.Error("initializing input device grabbing failed", "error", err)
		return 1, true
	}
	defer grabber.Close()

	names := grabber.Names()
	metrics.DevicesGrabbed.Set(int64(len(names)))
	defer metrics.DevicesGrabbed.Set(0)
	d.record(history.KindDevicesGrabbed, strconv.Itoa(len(names))+" devices")
	defer d.record(history.KindDevicesReleased, strconv.Itoa(len(names))+" devices")
	st.EvaluateDeviceFilters(names)

	var sessionEvents <-chan session.Event
	if d.settings.Session.ReleaseOnLock {
		if mon, err := session.NewMonitor(); err == nil {
			sessionEvents = mon.Events()
			defer mon.Close()
		} else {
			logging.Debug("session monitoring unavailable", "error", err)
		}
	}

	logging.Info("entering update loop")
	loop := &updateLoop{
		daemon:  d,
		stage:   st,
		virt:    virt,
		grabber: grabber,
		msgs:    msgs,
		session: sessionEvents,
	}
	return loop.run(ctx)
}
