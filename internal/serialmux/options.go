package serialmux

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaudRate is the sonar's factory line speed.
const DefaultBaudRate = 115200

// PortOptions describes the serial connection parameters used when opening a
// real serial port.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	switch parity {
	case "", "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}

	opts.Parity = parity
	return opts, nil
}

// SerialMode converts the port options into the serial.Mode structure required by
// go.bug.st/serial when opening a port.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	} else {
		mode.StopBits = serial.OneStopBit
	}

	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	return mode, nil
}

// ParsePortURI splits a sonar URI into a device path and line options.
// Accepted forms are a bare path ("/dev/ttyUSB0") and
// "serial:///dev/ttyUSB0?baud=57600&parity=E&data=7&stop=2".
func ParsePortURI(uri string) (string, PortOptions, error) {
	var opts PortOptions
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", opts, fmt.Errorf("empty sonar uri")
	}
	if !strings.HasPrefix(uri, "serial://") {
		return uri, opts, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return "", opts, fmt.Errorf("parse sonar uri: %w", err)
	}
	path := u.Host + u.Path
	if path == "" {
		return "", opts, fmt.Errorf("sonar uri %q has no device path", uri)
	}

	q := u.Query()
	for key, dst := range map[string]*int{"baud": &opts.BaudRate, "data": &opts.DataBits, "stop": &opts.StopBits} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return "", opts, fmt.Errorf("sonar uri %s=%q: %w", key, v, err)
		}
		*dst = n
	}
	opts.Parity = q.Get("parity")

	opts, err = opts.Normalize()
	if err != nil {
		return "", opts, err
	}
	return path, opts, nil
}
