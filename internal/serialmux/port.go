package serialmux

import (
	"io"
	"sync"
	"time"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter extends SerialPorter with timeout capabilities.
// This is an optional interface that serial ports may implement.
type TimeoutSerialPorter interface {
	SerialPorter
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}

// PipePort is one end of an in-memory duplex line. Bytes written to one end
// are read from the other.
type PipePort struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	once sync.Once
}

// NewPipePair returns two connected PipePorts. The host end is handed to a
// SerialMux; the device end is served by an in-process device.
func NewPipePair() (host, device *PipePort) {
	hr, dw := io.Pipe()
	dr, hw := io.Pipe()
	return &PipePort{r: hr, w: hw}, &PipePort{r: dr, w: dw}
}

func (p *PipePort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *PipePort) Write(b []byte) (int, error) { return p.w.Write(b) }

// Close closes both directions; the peer sees io.EOF on read and
// io.ErrClosedPipe on write.
func (p *PipePort) Close() error {
	p.once.Do(func() {
		p.w.Close()
		p.r.Close()
	})
	return nil
}
