package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/banshee-data/sidescan/internal/catalog"
)

// Defaults for the console options.
const (
	DefaultCacheSize     = 256
	DefaultTrackPrefix   = "SS"
	DefaultSoundVelocity = 1500.0
	DefaultShipSpeed     = 1.8
	DefaultListen        = ":8080"
	DefaultMQTTTopic     = "sidescan"
	defaultDriverPath    = "/usr/lib/sidescan/drivers"
)

// DriverPathEnv overrides the built-in driver search path.
const DriverPathEnv = "SONAR_DRIVERS_PATH"

// ErrMissingRequired is wrapped by Normalize when a required option is empty.
var ErrMissingRequired = errors.New("missing required option")

// DefaultDriverPath returns the driver search path from the environment or
// the built-in location.
func DefaultDriverPath() string {
	if p := os.Getenv(DriverPathEnv); p != "" {
		return p
	}
	return defaultDriverPath
}

// Options are the console's command-line settings.
type Options struct {
	CacheSize     int
	DriverPath    string
	DriverName    string
	SonarURI      string
	DBURI         string
	ProjectName   string
	TrackPrefix   string
	SoundVelocity float64
	ShipSpeed     float64
	FullScreen    bool

	Listen        string
	GRPCListen    string
	MQTTBroker    string
	MQTTTopic     string
	CatalogPolicy string
	ShowVersion   bool

	// ConfigFile is the optional positional path to the declarative file.
	ConfigFile string
}

// BindFlags registers every option on fs.
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.IntVarP(&o.CacheSize, "cache-size", "c", DefaultCacheSize, "Cache size, MB")
	fs.StringVarP(&o.DriverPath, "driver-path", "a", "", "Path to sonar drivers (default $"+DriverPathEnv+" or "+defaultDriverPath+")")
	fs.StringVarP(&o.DriverName, "driver-name", "n", "", "Sonar driver name (empty for a serial device, \"sim\" for the simulator)")
	fs.StringVarP(&o.SonarURI, "sonar-uri", "s", "", "Sonar address; browse-only when empty")
	fs.StringVarP(&o.DBURI, "db-uri", "d", "", "Database path (required)")
	fs.StringVarP(&o.ProjectName, "project-name", "p", "", "Project name (required)")
	fs.StringVarP(&o.TrackPrefix, "track-prefix", "t", DefaultTrackPrefix, "Track name prefix")
	fs.Float64VarP(&o.SoundVelocity, "sound-velocity", "v", DefaultSoundVelocity, "Sound velocity, m/s")
	fs.Float64VarP(&o.ShipSpeed, "ship-speed", "e", DefaultShipSpeed, "Ship speed, m/s")
	fs.BoolVarP(&o.FullScreen, "full-screen", "f", false, "Full screen mode")

	fs.StringVar(&o.Listen, "listen", DefaultListen, "HTTP listen address for the API and debug routes; empty disables")
	fs.StringVar(&o.GRPCListen, "grpc-listen", "", "gRPC health listen address; empty disables")
	fs.StringVar(&o.MQTTBroker, "mqtt-broker", "", "MQTT broker URL for session events; empty disables")
	fs.StringVar(&o.MQTTTopic, "mqtt-topic", DefaultMQTTTopic, "MQTT topic prefix for session events")
	fs.StringVar(&o.CatalogPolicy, "catalog-policy", catalog.RawOrComputed.String(), "Track catalog filter: raw-only or raw-or-computed")
	fs.BoolVar(&o.ShowVersion, "version", false, "Print version and exit")
}

// ParseArgs parses command-line arguments into Options without applying
// Normalize. The returned FlagSet prints usage.
func ParseArgs(name string, args []string) (*Options, *pflag.FlagSet, error) {
	o := &Options{}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options] [config-file]\n", name)
		fs.PrintDefaults()
	}
	o.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	switch fs.NArg() {
	case 0:
	case 1:
		o.ConfigFile = fs.Arg(0)
	default:
		return nil, fs, fmt.Errorf("expected at most one config file, got %d arguments", fs.NArg())
	}
	return o, fs, nil
}

// Normalize applies defaults and checks required options.
func (o *Options) Normalize() error {
	if o.CacheSize <= 0 {
		o.CacheSize = DefaultCacheSize
	}
	if o.DriverPath == "" {
		o.DriverPath = DefaultDriverPath()
	}
	if o.TrackPrefix == "" {
		o.TrackPrefix = DefaultTrackPrefix
	}
	if o.MQTTTopic == "" {
		o.MQTTTopic = DefaultMQTTTopic
	}
	if _, err := catalog.ParsePolicy(o.CatalogPolicy); err != nil {
		return err
	}
	if o.SoundVelocity <= 0 {
		return fmt.Errorf("sound velocity must be positive, got %g", o.SoundVelocity)
	}

	var missing []string
	if strings.TrimSpace(o.DBURI) == "" {
		missing = append(missing, "--db-uri")
	}
	if strings.TrimSpace(o.ProjectName) == "" {
		missing = append(missing, "--project-name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}
	return nil
}

// Policy returns the parsed catalog policy. Call after Normalize.
func (o *Options) Policy() catalog.Policy {
	p, _ := catalog.ParsePolicy(o.CatalogPolicy)
	return p
}
