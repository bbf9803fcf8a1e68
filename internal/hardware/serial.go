package hardware

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"
	"golang.org/x/time/rate"
)

// Serial bridge framing: sync, op, len, data..., xor of op/len/data.
// The bridge answers every frame with sync, status, len, data..., xor.
const (
	frameSync  byte = 0xA5
	opWrite    byte = 'W'
	opRead     byte = 'R'
	statusOK   byte = 0x00
	maxFrame        = 255
	serialBaud      = 115200

	serialReadTimeout = 200 * time.Millisecond
)

// SerialChannel carries DCS traffic to a microcontroller bridge over a UART.
type SerialChannel struct {
	mu      sync.Mutex
	port    io.ReadWriteCloser
	limiter *rate.Limiter
}

// OpenSerial opens the bridge at dev (e.g. /dev/ttyACM0).
func OpenSerial(dev string) (*SerialChannel, error) {
	port, err := serial.Open(dev, &serial.Mode{
		BaudRate: serialBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", dev, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("serial: set timeout: %w", err)
	}
	slog.Info("serial: panel bridge opened", "device", dev, "baud", serialBaud)
	return NewSerialChannel(port), nil
}

// NewSerialChannel wraps an already-open port.
func NewSerialChannel(port io.ReadWriteCloser) *SerialChannel {
	return &SerialChannel{
		port:    port,
		limiter: rate.NewLimiter(rate.Limit(maxOpsPerSec/4), 8),
	}
}

func (s *SerialChannel) SendCommand(ctx context.Context, payload []byte) error {
	if len(payload) == 0 || len(payload) > maxFrame {
		return fmt.Errorf("serial: invalid command length %d", len(payload))
	}
	_, err := s.roundTrip(ctx, opWrite, payload)
	if err != nil {
		return fmt.Errorf("serial: write cmd=0x%02x: %w", payload[0], err)
	}
	return nil
}

func (s *SerialChannel) ReadRegister(ctx context.Context, reg byte, n int) ([]byte, error) {
	if n <= 0 || n > maxFrame {
		return nil, fmt.Errorf("serial: invalid read length %d", n)
	}
	data, err := s.roundTrip(ctx, opRead, []byte{reg, byte(n)})
	if err != nil {
		return nil, fmt.Errorf("serial: read reg=0x%02x: %w", reg, err)
	}
	if len(data) != n {
		return nil, fmt.Errorf("serial: read reg=0x%02x: got %d bytes, want %d", reg, len(data), n)
	}
	return data, nil
}

func (s *SerialChannel) roundTrip(ctx context.Context, op byte, data []byte) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.port.Write(encodeFrame(op, data)); err != nil {
		return nil, err
	}

	var hdr [3]byte
	if _, err := io.ReadFull(s.port, hdr[:]); err != nil {
		return nil, fmt.Errorf("response header: %w", err)
	}
	if hdr[0] != frameSync {
		return nil, fmt.Errorf("bad sync byte 0x%02x", hdr[0])
	}
	body := make([]byte, int(hdr[2])+1)
	if _, err := io.ReadFull(s.port, body); err != nil {
		return nil, fmt.Errorf("response body: %w", err)
	}
	resp, sum := body[:len(body)-1], body[len(body)-1]
	if checksum(hdr[1], hdr[2], resp) != sum {
		return nil, fmt.Errorf("checksum mismatch")
	}
	if hdr[1] != statusOK {
		return nil, fmt.Errorf("bridge status 0x%02x", hdr[1])
	}
	return resp, nil
}

// Close closes the port.
func (s *SerialChannel) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}

func encodeFrame(op byte, data []byte) []byte {
	f := make([]byte, 0, len(data)+4)
	f = append(f, frameSync, op, byte(len(data)))
	f = append(f, data...)
	return append(f, checksum(op, byte(len(data)), data))
}

func checksum(op, n byte, data []byte) byte {
	sum := op ^ n
	for _, b := range data {
		sum ^= b
	}
	return sum
}
