package sonarlink

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/sidescan/internal/monitoring"
	"github.com/banshee-data/sidescan/internal/serialmux"
	"github.com/banshee-data/sidescan/internal/timeutil"
)

// ErrUnknownDriver is returned by Open for an unregistered driver name.
var ErrUnknownDriver = errors.New("unknown sonar driver")

// SimDriver is the name of the in-process simulated device driver.
const SimDriver = "sim"

// Options selects and configures a driver.
type Options struct {
	// DriverName picks the driver; empty means the URI is a serial device.
	DriverName string
	// DriverPath is where drivers look for their support files.
	DriverPath string
	URI        string
	Timeout    time.Duration
	Metrics    *monitoring.Metrics
	// Projects receives tracks recorded by the simulated device.
	Projects ProjectOpener
	Clock    timeutil.Clock
}

// Link is an open connection to a sonar.
type Link struct {
	Client *Client
	Mux    serialmux.SerialMuxInterface
	// Device is set for the simulated driver only.
	Device *Device

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Driver opens a Link.
type Driver func(ctx context.Context, opts Options) (*Link, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]Driver{
		"":        openSerial,
		SimDriver: openSim,
	}
)

// Register adds or replaces a named driver.
func Register(name string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = d
}

// Drivers lists the registered driver names.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		if n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// Open connects to the sonar using the driver named in opts.
func Open(ctx context.Context, opts Options) (*Link, error) {
	driversMu.RLock()
	d, ok := drivers[opts.DriverName]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (have %v)", ErrUnknownDriver, opts.DriverName, Drivers())
	}
	return d(ctx, opts)
}

func openSerial(ctx context.Context, opts Options) (*Link, error) {
	path, portOpts, err := serialmux.ParsePortURI(opts.URI)
	if err != nil {
		return nil, err
	}
	mux, err := serialmux.NewRealSerialMux(path, portOpts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	l := newLink(ctx, mux, opts)
	monitoring.Diagf("[sonarlink] serial link on %s", path)
	return l, nil
}

func openSim(ctx context.Context, opts Options) (*Link, error) {
	profile, err := LoadProfile(opts.DriverPath)
	if err != nil {
		return nil, err
	}
	dev, err := NewDevice(profile, opts.Projects, opts.Clock)
	if err != nil {
		return nil, err
	}
	host, devEnd := serialmux.NewPipePair()
	l := newLink(ctx, serialmux.NewSerialMux(host), opts)
	l.Device = dev

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer devEnd.Close()
		if err := dev.Serve(ctx, devEnd); err != nil {
			monitoring.Opsf("[sim] device stopped: %v", err)
		}
	}()
	monitoring.Diagf("[sonarlink] simulated device (%d sensor ports)", len(profile.Sensors))
	return l, nil
}

func newLink(ctx context.Context, mux serialmux.SerialMuxInterface, opts Options) *Link {
	ctx, cancel := context.WithCancel(ctx)
	l := &Link{
		Client: NewClient(mux, opts.Timeout, opts.Metrics),
		Mux:    mux,
		cancel: cancel,
	}
	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Opsf("[sonarlink] link monitor stopped: %v", err)
		}
	}()
	go func() {
		defer l.wg.Done()
		serialmux.LogUnsolicited(ctx, mux)
	}()
	return l
}

// Close stops the link and waits for its goroutines.
func (l *Link) Close() error {
	var err error
	l.once.Do(func() {
		l.cancel()
		err = l.Mux.Close()
		l.wg.Wait()
	})
	return err
}
