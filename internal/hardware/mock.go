package hardware

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/micro-nova/panel-go/internal/models"
)

var errMock = errors.New("mock: failure configured")

// Mock is a thread-safe in-memory panel for testing and development.
// It records every command and serves register reads from a static map,
// with optional per-register FIFO responses queued ahead of it.
type Mock struct {
	mu        sync.Mutex
	cmds      [][]byte
	regs      map[byte][]byte
	queued    map[byte][][]byte
	failWrite bool
	failRead  bool
	failAfter int // writes left before failing, -1 for never
	block     chan struct{}
	latency   time.Duration
}

// NewMock creates a mock panel that answers 0x52 with brightness 0.
func NewMock() *Mock {
	return &Mock{
		regs:      map[byte][]byte{DCSGetDisplayBrightness: {0x00, 0x00}},
		queued:    make(map[byte][][]byte),
		failAfter: -1,
	}
}

// SetLatency simulates bus timing on every operation.
func (m *Mock) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// SetFailWrite configures the mock to fail all write operations.
func (m *Mock) SetFailWrite(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrite = fail
}

// SetFailRead configures the mock to fail all read operations.
func (m *Mock) SetFailRead(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRead = fail
}

// FailAfter lets n more writes succeed, then fails every write.
func (m *Mock) FailAfter(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
}

// Block holds every SendCommand until the returned release func is called.
func (m *Mock) Block() (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.block = ch
	m.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.block == ch {
				m.block = nil
			}
			m.mu.Unlock()
			close(ch)
		})
	}
}

// SetRegister sets the static response for reg.
func (m *Mock) SetRegister(reg byte, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[reg] = bytes.Clone(data)
}

// QueueRead queues one response for reg, served before the static value.
func (m *Mock) QueueRead(reg byte, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued[reg] = append(m.queued[reg], bytes.Clone(data))
}

func (m *Mock) SendCommand(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	block, latency := m.block, m.latency
	m.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if latency > 0 {
		time.Sleep(latency)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return errMock
	}
	if m.failAfter == 0 {
		return errMock
	}
	if m.failAfter > 0 {
		m.failAfter--
	}
	m.cmds = append(m.cmds, bytes.Clone(payload))
	return nil
}

func (m *Mock) ReadRegister(ctx context.Context, reg byte, n int) ([]byte, error) {
	m.mu.Lock()
	latency := m.latency
	m.mu.Unlock()
	if latency > 0 {
		time.Sleep(latency)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRead {
		return nil, errMock
	}
	src := m.regs[reg]
	if q := m.queued[reg]; len(q) > 0 {
		src = q[0]
		m.queued[reg] = q[1:]
	}
	out := make([]byte, n)
	copy(out, src)
	return out, nil
}

// Commands returns a copy of every command sent so far.
func (m *Mock) Commands() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.cmds))
	for i, c := range m.cmds {
		out[i] = bytes.Clone(c)
	}
	return out
}

// CommandsWith returns the sent commands whose first byte is cmd.
func (m *Mock) CommandsWith(cmd byte) [][]byte {
	var out [][]byte
	for _, c := range m.Commands() {
		if len(c) > 0 && c[0] == cmd {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears the command log.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cmds = nil
}

// MockRegulator records supply mode changes.
type MockRegulator struct {
	mu    sync.Mutex
	modes []models.RegulatorMode
	fail  bool
}

func (r *MockRegulator) SetMode(ctx context.Context, mode models.RegulatorMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errMock
	}
	r.modes = append(r.modes, mode)
	return nil
}

// SetFail makes every SetMode fail.
func (r *MockRegulator) SetFail(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

// Modes returns the modes set so far.
func (r *MockRegulator) Modes() []models.RegulatorMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.RegulatorMode(nil), r.modes...)
}
