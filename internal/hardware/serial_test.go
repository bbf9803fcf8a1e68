package hardware

import (
	"bytes"
	"context"
	"testing"
)

// fakePort is a scripted bridge: writes are captured, reads replay resp.
type fakePort struct {
	written bytes.Buffer
	resp    bytes.Buffer
	closed  bool
}

func (p *fakePort) Read(b []byte) (int, error)  { return p.resp.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) { return p.written.Write(b) }
func (p *fakePort) Close() error                { p.closed = true; return nil }

func (p *fakePort) reply(status byte, data []byte) {
	p.resp.Write([]byte{frameSync, status, byte(len(data))})
	p.resp.Write(data)
	p.resp.WriteByte(checksum(status, byte(len(data)), data))
}

func TestSerialChannelWriteFrame(t *testing.T) {
	port := &fakePort{}
	port.reply(statusOK, nil)
	ch := NewSerialChannel(port)

	if err := ch.SendCommand(context.Background(), []byte{0x51, 0x80}); err != nil {
		t.Fatal(err)
	}
	want := []byte{frameSync, opWrite, 2, 0x51, 0x80, opWrite ^ 2 ^ 0x51 ^ 0x80}
	if !bytes.Equal(port.written.Bytes(), want) {
		t.Errorf("frame = % X, want % X", port.written.Bytes(), want)
	}
}

func TestSerialChannelRead(t *testing.T) {
	port := &fakePort{}
	port.reply(statusOK, []byte{0x03, 0xFF})
	ch := NewSerialChannel(port)

	got, err := ch.ReadRegister(context.Background(), 0x52, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0x03, 0xFF}) {
		t.Errorf("got % X", got)
	}
}

func TestSerialChannelErrors(t *testing.T) {
	port := &fakePort{}
	port.reply(0x01, nil)
	ch := NewSerialChannel(port)
	if err := ch.SendCommand(context.Background(), []byte{0x28}); err == nil {
		t.Error("expected error for non-OK status")
	}

	port = &fakePort{}
	port.resp.Write([]byte{frameSync, statusOK, 0, 0x55})
	ch = NewSerialChannel(port)
	if err := ch.SendCommand(context.Background(), []byte{0x28}); err == nil {
		t.Error("expected checksum error")
	}

	port = &fakePort{}
	port.reply(statusOK, []byte{0x01})
	ch = NewSerialChannel(port)
	if _, err := ch.ReadRegister(context.Background(), 0x0A, 2); err == nil {
		t.Error("expected short read error")
	}
	if err := ch.Close(); err != nil || !port.closed {
		t.Errorf("Close: %v closed=%v", err, port.closed)
	}
}
