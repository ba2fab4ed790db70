package serialmux

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendCommandAppendsNewline(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	require.NoError(t, mux.SendCommand("1 GET /generator/starboard/presets"))
	require.NoError(t, mux.SendCommand("2 STOP\n"))
	assert.Equal(t, "1 GET /generator/starboard/presets\n2 STOP\n", port.Written())
}

func TestSendCommandErrors(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	boom := errors.New("unplugged")
	port.WriteError = boom
	assert.ErrorIs(t, mux.SendCommand("1 STOP"), boom)

	port.ShortWrite = true
	assert.ErrorIs(t, mux.SendCommand("2 STOP"), ErrWriteFailed)
}

func TestMonitorFansOutToAllSubscribers(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte("1 OK\n!overheat\n2 ERR busy\n"))
	mux := NewSerialMux(port)

	_, a := mux.Subscribe()
	idB, b := mux.Subscribe()

	require.NoError(t, mux.Monitor(context.Background()))

	for _, ch := range []chan string{a, b} {
		var got []string
		for len(ch) > 0 {
			got = append(got, <-ch)
		}
		assert.Equal(t, []string{"1 OK", "!overheat", "2 ERR busy"}, got)
	}

	mux.Unsubscribe(idB)
	_, open := <-b
	assert.False(t, open, "unsubscribed channel is closed")
	mux.Unsubscribe(idB)
}

func TestMonitorDropsForFullSubscriber(t *testing.T) {
	port := NewTestableSerialPort()
	for i := 0; i < SubscriberBuffer+10; i++ {
		port.AddReadData([]byte("!tick\n"))
	}
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Monitor(context.Background()))
	assert.Len(t, ch, SubscriberBuffer)
}

func TestMonitorStopsOnCancel(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
	require.NoError(t, mux.Close())
	assert.True(t, port.Closed)
}

func TestCloseClosesSubscribers(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	_, ch := mux.Subscribe()
	require.NoError(t, mux.Close())
	_, open := <-ch
	assert.False(t, open)
}

func TestPipePair(t *testing.T) {
	host, device := NewPipePair()
	mux := NewSerialMux(host)
	_, lines := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	go func() {
		buf := make([]byte, 64)
		n, _ := device.Read(buf)
		device.Write(append([]byte("echo "), buf[:n]...))
	}()
	require.NoError(t, mux.SendCommand("ping"))

	select {
	case line := <-lines:
		assert.Equal(t, "echo ping", line)
	case <-time.After(2 * time.Second):
		t.Fatal("no line from device end")
	}

	require.NoError(t, device.Close())
	require.NoError(t, device.Close(), "Close is idempotent")
	_, err := host.Write([]byte("x"))
	assert.Error(t, err)
}
