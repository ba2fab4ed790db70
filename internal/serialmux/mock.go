package serialmux

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

var errPortClosed = errors.New("serial port closed")

// TestableSerialPort is a SerialPorter over in-memory buffers. Reads block
// until data is added or the port is closed when BlockReads is set;
// otherwise an empty buffer reads as io.EOF.
type TestableSerialPort struct {
	mu   sync.Mutex
	cond *sync.Cond

	read    bytes.Buffer
	written bytes.Buffer

	// BlockReads makes Read wait for AddReadData instead of returning EOF.
	BlockReads bool
	// WriteError is returned, once, by the next Write.
	WriteError error
	// ShortWrite makes Write report one byte fewer than it was given.
	ShortWrite bool

	ReadTimeout time.Duration
	Closed      bool
}

func NewTestableSerialPort() *TestableSerialPort {
	t := &TestableSerialPort{}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.BlockReads && !t.Closed && t.read.Len() == 0 {
		t.cond.Wait()
	}
	if t.Closed {
		return 0, errPortClosed
	}
	return t.read.Read(p)
}

func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Closed {
		return 0, errPortClosed
	}
	if err := t.WriteError; err != nil {
		t.WriteError = nil
		return 0, err
	}
	n, _ := t.written.Write(p)
	if t.ShortWrite && n > 0 {
		n--
	}
	return n, nil
}

func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	t.cond.Broadcast()
	return nil
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadTimeout = d
	return nil
}

// AddReadData queues data for subsequent reads.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.read.Write(data)
	t.cond.Broadcast()
}

// Written returns everything written to the port so far.
func (t *TestableSerialPort) Written() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written.String()
}
