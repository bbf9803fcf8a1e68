package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
)

const maxOpsPerSec = 2000

// ConnChannel carries DCS traffic over a periph.io connection, typically an
// I2C-attached DSI bridge. Writes go out as a single transaction; register
// reads are a write of the register followed by a repeated-start read.
type ConnChannel struct {
	mu      sync.Mutex
	c       conn.Conn
	closer  func() error
	limiter *rate.Limiter
}

// NewConnChannel wraps an existing connection.
func NewConnChannel(c conn.Conn) *ConnChannel {
	return &ConnChannel{
		c:       c,
		limiter: rate.NewLimiter(rate.Limit(maxOpsPerSec), 16),
	}
}

// OpenI2C opens a bridge on the named I2C bus ("" for the first bus found).
// host.Init must have run first.
func OpenI2C(busName string, addr uint16) (*ConnChannel, error) {
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("i2c: open bus %q: %w", busName, err)
	}
	ch := NewConnChannel(&i2c.Dev{Bus: bus, Addr: addr})
	ch.closer = bus.Close
	slog.Info("i2c: panel bridge opened", "bus", bus.String(), "addr", fmt.Sprintf("0x%02x", addr))
	return ch, nil
}

func (c *ConnChannel) SendCommand(ctx context.Context, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("i2c: empty command")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.c.Tx(payload, nil); err != nil {
		return fmt.Errorf("i2c: write cmd=0x%02x len=%d: %w", payload[0], len(payload), err)
	}
	return nil
}

func (c *ConnChannel) ReadRegister(ctx context.Context, reg byte, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("i2c: invalid read length %d", n)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, n)
	if err := c.c.Tx([]byte{reg}, buf); err != nil {
		return nil, fmt.Errorf("i2c: read reg=0x%02x len=%d: %w", reg, n, err)
	}
	return buf, nil
}

// Close releases the underlying bus when the channel opened it.
func (c *ConnChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closer == nil {
		return nil
	}
	err := c.closer()
	c.closer = nil
	return err
}
