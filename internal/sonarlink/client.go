package sonarlink

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/sidescan/internal/monitoring"
	"github.com/banshee-data/sidescan/internal/serialmux"
	"github.com/banshee-data/sidescan/internal/sonar"
)

// DefaultTimeout bounds the wait for one reply.
const DefaultTimeout = 5 * time.Second

// ErrTimeout is returned when the device does not answer in time.
var ErrTimeout = errors.New("sonar did not reply in time")

// DeviceError is an ERR reply.
type DeviceError struct {
	Verb    string
	Path    string
	Message string
}

func (e *DeviceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("sonar %s: %s", e.Verb, e.Message)
	}
	return fmt.Sprintf("sonar %s %s: %s", e.Verb, e.Path, e.Message)
}

// Client implements sonar.Control and sonar.SensorControl over a line
// transport. Requests are serialised: the device sees one at a time.
type Client struct {
	mux     serialmux.SerialMuxInterface
	timeout time.Duration
	metrics *monitoring.Metrics

	mu     sync.Mutex
	nextID atomic.Uint64
}

var (
	_ sonar.Control       = (*Client)(nil)
	_ sonar.SensorControl = (*Client)(nil)
)

// NewClient wraps mux. A zero timeout selects DefaultTimeout; metrics may
// be nil.
func NewClient(mux serialmux.SerialMuxInterface, timeout time.Duration, metrics *monitoring.Metrics) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{mux: mux, timeout: timeout, metrics: metrics}
}

// Do sends one request and returns the payload fields of its OK reply.
func (c *Client) Do(verb, path string, args ...any) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	fields, err := c.roundTrip(verb, path, args...)
	c.metrics.ObserveLink(verb, time.Since(start), err)
	if err != nil {
		monitoring.Diagf("[sonarlink] %s %s: %v", verb, path, err)
	}
	return fields, err
}

func (c *Client) roundTrip(verb, path string, args ...any) ([]string, error) {
	id := c.nextID.Add(1)
	subID, lines := c.mux.Subscribe()
	defer c.mux.Unsubscribe(subID)

	if err := c.mux.SendCommand(FormatRequest(id, verb, path, args...)); err != nil {
		return nil, fmt.Errorf("send %s %s: %w", verb, path, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return nil, fmt.Errorf("%s %s: %w", verb, path, ErrTimeout)
		case line, ok := <-lines:
			if !ok {
				return nil, fmt.Errorf("%s %s: link closed", verb, path)
			}
			if serialmux.ClassifyPayload(line) != serialmux.EventTypeReply {
				continue
			}
			reply, err := ParseReply(line)
			if err != nil {
				return nil, err
			}
			if reply.ID != id {
				// a late reply to an earlier, timed out request
				continue
			}
			if !reply.OK {
				return nil, &DeviceError{Verb: verb, Path: path, Message: reply.Message}
			}
			return reply.Fields, nil
		}
	}
}

func (c *Client) exec(verb, path string, args ...any) error {
	_, err := c.Do(verb, path, args...)
	return err
}

func (c *Client) getUint(path string, args ...any) (uint64, error) {
	fields, err := c.Do(VerbGet, path, args...)
	if err != nil {
		return 0, err
	}
	if len(fields) != 1 {
		return 0, fmt.Errorf("GET %s: want 1 field, got %d", path, len(fields))
	}
	return strconv.ParseUint(fields[0], 0, 64)
}

func (c *Client) list(path string, args ...any) ([]sonar.EnumValue, error) {
	fields, err := c.Do(VerbList, path, args...)
	if err != nil {
		return nil, err
	}
	values, err := ParseEnum(fields)
	if err != nil {
		return nil, fmt.Errorf("LIST %s: %w", path, err)
	}
	return values, nil
}

// Master claims control of the device for this console.
func (c *Client) Master() error { return c.exec(VerbMaster, "") }

// SetParameter writes one device-wide parameter.
func (c *Client) SetParameter(name string, value any) error {
	return c.exec(VerbSet, "/parameters/"+name, value)
}

func (c *Client) GeneratorCapabilities(src sonar.Source) (sonar.GeneratorMode, error) {
	v, err := c.getUint(generatorPath(src, "capabilities"))
	return sonar.GeneratorMode(v), err
}

func (c *Client) EnableGenerator(src sonar.Source) error {
	return c.exec(VerbEnable, generatorPath(src, ""))
}

func (c *Client) ListPresets(src sonar.Source) ([]sonar.EnumValue, error) {
	return c.list(generatorPath(src, "presets"))
}

func (c *Client) SetPreset(src sonar.Source, id uint32) error {
	return c.exec(VerbSet, generatorPath(src, "preset"), id)
}

func (c *Client) GainCapabilities(src sonar.Source) (sonar.GainMode, error) {
	v, err := c.getUint(gainPath(src, "capabilities"))
	return sonar.GainMode(v), err
}

func (c *Client) EnableGain(src sonar.Source) error {
	return c.exec(VerbEnable, gainPath(src, ""))
}

func (c *Client) GainRange(src sonar.Source) (float64, float64, error) {
	fields, err := c.Do(VerbGet, gainPath(src, "range"))
	if err != nil {
		return 0, 0, err
	}
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("GET gain range: want 2 fields, got %d", len(fields))
	}
	lo, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, err
	}
	hi, err := strconv.ParseFloat(fields[1], 64)
	return lo, hi, err
}

func (c *Client) SetGainAuto(src sonar.Source, level, sensitivity float64) error {
	return c.exec(VerbSet, gainPath(src, "auto"), level, sensitivity)
}

func (c *Client) SetGainLinearDB(src sonar.Source, gain0, slope float64) error {
	return c.exec(VerbSet, gainPath(src, "linear-db"), gain0, slope)
}

func (c *Client) SetReceiveTime(src sonar.Source, seconds float64) error {
	return c.exec(VerbSet, "/receiver/"+src.String()+"/time", seconds)
}

func (c *Client) SetAntennaPosition(src sonar.Source, pos sonar.AntennaPosition) error {
	return c.exec(VerbSet, "/antenna/"+src.String()+"/position", positionArgs(pos)...)
}

func (c *Client) SetProject(name string) error {
	return c.exec(VerbSet, "/project", name)
}

func (c *Client) Start(track string) error {
	return c.exec(VerbStart, "/track", track)
}

func (c *Client) Stop() error {
	return c.exec(VerbStop, "/track")
}

func (c *Client) ListPorts() ([]string, error) {
	return c.Do(VerbList, "/sensors")
}

func (c *Client) PortType(port string) (sonar.PortType, error) {
	fields, err := c.Do(VerbGet, "/sensor/type", port)
	if err != nil {
		return sonar.PortUnknown, err
	}
	if len(fields) != 1 {
		return sonar.PortUnknown, fmt.Errorf("GET sensor type: want 1 field, got %d", len(fields))
	}
	return sonar.ParsePortType(fields[0]), nil
}

func (c *Client) ListUARTDevices(port string) ([]sonar.EnumValue, error) {
	return c.list("/sensor/uart-devices", port)
}

func (c *Client) ListUARTModes(port string) ([]sonar.EnumValue, error) {
	return c.list("/sensor/uart-modes", port)
}

func (c *Client) ListIPAddresses(port string) ([]sonar.EnumValue, error) {
	return c.list("/sensor/ip-addresses", port)
}

func (c *Client) SetEnable(port string, enable bool) error {
	if enable {
		return c.exec(VerbEnable, "/sensor", port)
	}
	return c.exec(VerbDisable, "/sensor", port)
}

func (c *Client) SetVirtualParam(port string, channel uint, timeOffset int64) error {
	return c.exec(VerbSet, "/sensor/virtual", port, channel, timeOffset)
}

func (c *Client) SetUARTParam(port string, channel uint, timeOffset int64, device, mode uint32) error {
	return c.exec(VerbSet, "/sensor/uart", port, channel, timeOffset, device, mode)
}

func (c *Client) SetUDPIPParam(port string, channel uint, timeOffset int64, address uint32, udpPort uint16) error {
	return c.exec(VerbSet, "/sensor/udp-ip", port, channel, timeOffset, address, udpPort)
}

func (c *Client) SetSensorPosition(port string, pos sonar.AntennaPosition) error {
	args := append([]any{port}, positionArgs(pos)...)
	return c.exec(VerbSet, "/sensor/position", args...)
}

func generatorPath(src sonar.Source, leaf string) string {
	p := "/generator/" + src.String()
	if leaf != "" {
		p += "/" + leaf
	}
	return p
}

func gainPath(src sonar.Source, leaf string) string {
	p := "/gain/" + src.String()
	if leaf != "" {
		p += "/" + leaf
	}
	return p
}

func positionArgs(pos sonar.AntennaPosition) []any {
	return []any{pos.Offset.X, pos.Offset.Y, pos.Offset.Z, pos.Psi, pos.Gamma, pos.Theta}
}
