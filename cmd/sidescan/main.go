package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/banshee-data/sidescan/internal/api"
	"github.com/banshee-data/sidescan/internal/config"
	"github.com/banshee-data/sidescan/internal/console"
	"github.com/banshee-data/sidescan/internal/db"
	"github.com/banshee-data/sidescan/internal/events"
	"github.com/banshee-data/sidescan/internal/healthcheck"
	"github.com/banshee-data/sidescan/internal/monitoring"
	"github.com/banshee-data/sidescan/internal/params"
	"github.com/banshee-data/sidescan/internal/presets"
	"github.com/banshee-data/sidescan/internal/sensors"
	"github.com/banshee-data/sidescan/internal/serialmux"
	"github.com/banshee-data/sidescan/internal/session"
	"github.com/banshee-data/sidescan/internal/sonarlink"
	"github.com/banshee-data/sidescan/internal/units"
	"github.com/banshee-data/sidescan/internal/version"
)

const shutdownTimeout = 2 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("sidescan: %v", err)
	}
}

// run is main without the process exits. stdin carries operator commands,
// stdout receives their results.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) > 0 && args[0] == "migrate" {
		return runMigrate(stdout, args[1:])
	}

	opts, fs, err := config.ParseArgs("sidescan", args)
	if err != nil {
		return err
	}
	if opts.ShowVersion {
		fmt.Fprintln(stdout, version.String())
		return nil
	}
	if err := opts.Normalize(); err != nil {
		fs.Usage()
		return err
	}

	var file *config.File
	if opts.ConfigFile != "" {
		if file, err = config.LoadFile(opts.ConfigFile); err != nil {
			return err
		}
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := monitoring.NewMetrics(promReg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	database, err := db.NewDB(opts.DBURI)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	project, err := database.EnsureProject(opts.ProjectName)
	if err != nil {
		return err
	}

	var health *healthcheck.Server
	if opts.GRPCListen != "" {
		health = healthcheck.New()
		if err := health.Listen(opts.GRPCListen); err != nil {
			return err
		}
		defer health.Stop()
	}

	var pub events.Publisher = events.Nop{}
	if opts.MQTTBroker != "" {
		p, err := events.NewMQTTPublisher(events.MQTTConfig{Broker: opts.MQTTBroker, TopicPrefix: opts.MQTTTopic, QoS: 1})
		if err != nil {
			return err
		}
		pub = p
	}
	defer pub.Close()

	// Without a sonar the console browses tracks only.
	cfg := session.Config{
		Counter: project,
		Prefix:  opts.TrackPrefix,
		Metrics: metrics,
		Display: session.Display{
			SoundVelocity: opts.SoundVelocity,
			ShipSpeed:     opts.ShipSpeed,
			FullScreen:    opts.FullScreen,
		},
	}
	gain := params.GainCurve(params.AutoGain{Level: 0.5, Sensitivity: 0.6})
	var (
		ports    *sensors.Table
		registry *presets.Registry
		linkMux  serialmux.SerialMuxInterface = serialmux.NewDisabledSerialMux()
	)

	if opts.SonarURI != "" {
		// The link is closed explicitly so a recording can still be stopped
		// after ctx is done.
		link, err := sonarlink.Open(context.Background(), sonarlink.Options{
			DriverName: opts.DriverName,
			DriverPath: opts.DriverPath,
			URI:        opts.SonarURI,
			Metrics:    metrics,
			Projects: func(name string) (sonarlink.TrackRecorder, error) {
				p, err := database.EnsureProject(name)
				if err != nil {
					return nil, err
				}
				return p, nil
			},
		})
		if err != nil {
			return fmt.Errorf("connect to sonar: %w", err)
		}
		defer link.Close()
		linkMux = link.Mux

		var setup sonarlink.GainSetup
		if registry, setup, ports, err = initSonar(link.Client, file, opts.ProjectName); err != nil {
			return err
		}
		metrics.SetSensorPorts(ports.Counts())
		if gain, err = params.DefaultGainCurve(setup.Caps, setup.MinGain); err != nil {
			return err
		}
		cfg.Control = link.Client
		cfg.Presets = registry
		cfg.GainCaps = setup.Caps
		if health != nil {
			health.SetSonar(true)
		}
	} else {
		monitoring.Opsf("[main] no sonar URI, browse-only mode")
	}

	mgr := session.NewManager(cfg)
	if err := mgr.Init(gain); err != nil {
		return fmt.Errorf("apply initial parameters: %w", err)
	}

	con := console.New(console.Options{
		Manager:   mgr,
		Tracks:    project,
		Policy:    opts.Policy(),
		Publisher: pub,
		Project:   opts.ProjectName,
		Metrics:   metrics,
	})

	// The console loop outlives ctx so a recording can be stopped on the
	// way out.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := con.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Opsf("[main] console stopped: %v", err)
		}
	}()

	watcher := db.NewTrackWatcher(project, con.TracksChanged)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Opsf("[main] track watcher stopped: %v", err)
		}
	}()

	// stdin is not closed on shutdown, so this goroutine is not waited for.
	go func() {
		if err := console.ReadCommands(ctx, stdin, con, stdout); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Opsf("[main] reading commands: %v", err)
		}
	}()

	var server *http.Server
	if opts.Listen != "" {
		mux := api.NewServer(con, ports, registry, metrics).ServeMux()
		linkMux.AttachAdminRoutes(mux)
		if err := database.AttachAdminRoutes(mux); err != nil {
			return err
		}
		lis, err := net.Listen("tcp", opts.Listen)
		if err != nil {
			return fmt.Errorf("listen %s: %w", opts.Listen, err)
		}
		server = &http.Server{Handler: api.LoggingMiddleware(mux)}

		wg.Add(1)
		go func() {
			defer wg.Done()
			monitoring.Diagf("[main] HTTP listening on %s", lis.Addr())
			if err := server.Serve(lis); err != nil && err != http.ErrServerClosed {
				monitoring.Opsf("[main] HTTP server: %v", err)
			}
		}()
	}

	monitoring.Diagf("[main] sound velocity %g m/s, ship speed %.1f kn, cache %d MB",
		opts.SoundVelocity, units.ConvertSpeed(opts.ShipSpeed, units.Knots), opts.CacheSize)
	monitoring.Opsf("[main] %s ready: project %q, db %s", version.Version, opts.ProjectName, database.Path())
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Opsf("[main] HTTP server shutdown: %v", err)
			server.Close()
		}
	}
	if snap, err := con.State(shutdownCtx); err == nil && snap.State.Session.State == session.Recording {
		if _, err := con.Do(shutdownCtx, session.Event{Kind: session.EventStop}); err != nil {
			monitoring.Opsf("[main] stop recording on shutdown: %v", err)
		}
	}
	stopLoop()
	wg.Wait()
	monitoring.Diagf("[main] graceful shutdown complete")
	return nil
}

// initSonar runs the startup sequence against a connected device. Any
// failure is fatal for the console.
func initSonar(c *sonarlink.Client, file *config.File, project string) (*presets.Registry, sonarlink.GainSetup, *sensors.Table, error) {
	var setup sonarlink.GainSetup
	if err := sonarlink.Initialize(c); err != nil {
		return nil, setup, nil, fmt.Errorf("initialise sonar: %w", err)
	}
	reg, err := presets.Load(c)
	if err != nil {
		return nil, setup, nil, fmt.Errorf("load signal presets: %w", err)
	}
	if setup, err = sonarlink.QueryGain(c); err != nil {
		return nil, setup, nil, err
	}
	table, err := sensors.Setup(c, file)
	if err != nil {
		return nil, setup, table, fmt.Errorf("configure sensor ports: %w", err)
	}
	if err := sensors.SetupAntennas(c, file); err != nil {
		return nil, setup, table, fmt.Errorf("configure sonar antennas: %w", err)
	}
	if err := c.SetProject(project); err != nil {
		return nil, setup, table, fmt.Errorf("select project %q: %w", project, err)
	}
	monitoring.Diagf("[main] sonar ready: %d presets, gain caps %#x, gain %g..%g dB",
		reg.Len(), uint8(setup.Caps), setup.MinGain, setup.MaxGain)
	return reg, setup, table, nil
}

// runMigrate handles "sidescan migrate <action> --db-uri path".
func runMigrate(w io.Writer, args []string) error {
	fs := pflag.NewFlagSet("sidescan migrate", pflag.ContinueOnError)
	dbPath := fs.StringP("db-uri", "d", "", "Database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return db.RunMigrateCommand(w, fs.Args(), *dbPath)
}
