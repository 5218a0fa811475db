package fx2boot

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
)

func TestNewWriteRAMRequest(t *testing.T) {
	tests := []struct {
		address      uint32
		value, index uint16
	}{
		{0x0000, 0x0000, 0},
		{0xE600, 0xE600, 0},
		{0x1FFFF, 0xFFFF, 1},
	}
	for _, tt := range tests {
		c, err := NewWriteRAMRequest(tt.address, []byte{1, 2})
		if err != nil {
			t.Fatalf("NewWriteRAMRequest(%X) failed: %v", tt.address, err)
		}
		if c.RequestType != 0x40 || c.Request != 0xA0 {
			t.Errorf("request type %X request %X", c.RequestType, c.Request)
		}
		if c.Value != tt.value || c.Index != tt.index {
			t.Errorf("NewWriteRAMRequest(%X) value %X index %X, want %X %X", tt.address, c.Value, c.Index, tt.value, tt.index)
		}
		if c.Address() != tt.address {
			t.Errorf("Address() = %X, want %X", c.Address(), tt.address)
		}
	}

	if _, err := NewWriteRAMRequest(0x20000, nil); !errors.Is(err, ErrAddressRange) {
		t.Errorf("error = %v, want %v", err, ErrAddressRange)
	}
	if _, err := NewWriteRAMRequest(0, make([]byte, 0x10000)); err == nil {
		t.Error("oversized request accepted")
	}
}

func TestNewCPUControlRequest(t *testing.T) {
	halt := NewCPUControlRequest(0xE600, true)
	if halt.Address() != 0xE600 || !bytes.Equal(halt.Data, []byte{1}) {
		t.Errorf("halt = %+v", halt)
	}
	resume := NewCPUControlRequest(0x7F92, false)
	if resume.Address() != 0x7F92 || !bytes.Equal(resume.Data, []byte{0}) {
		t.Errorf("resume = %+v", resume)
	}
}

type control struct {
	rType, request uint8
	val, idx       uint16
	data           []byte
}

type fakeControl struct {
	calls []control
	short bool
	err   error
}

func (f *fakeControl) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	f.calls = append(f.calls, control{rType, request, val, idx, append([]byte{}, data...)})
	if f.err != nil {
		return 0, f.err
	}
	if f.short {
		return len(data) - 1, nil
	}
	return len(data), nil
}

func TestUSBLoaderWriteRAM(t *testing.T) {
	ctrl := new(fakeControl)
	l := &usbLoader{ctrl: ctrl}

	if err := l.WriteRAM(0x1E600, []byte{0xAA, 0x55}); err != nil {
		t.Fatalf("WriteRAM() failed: %v", err)
	}
	if len(ctrl.calls) != 1 {
		t.Fatalf("got %d control transfers, want 1", len(ctrl.calls))
	}
	c := ctrl.calls[0]
	if c.rType != 0x40 || c.request != 0xA0 || c.val != 0xE600 || c.idx != 1 || !bytes.Equal(c.data, []byte{0xAA, 0x55}) {
		t.Errorf("control transfer = %+v", c)
	}

	ctrl.short = true
	if err := l.WriteRAM(0, []byte{1, 2, 3}); err == nil {
		t.Error("short transfer not reported")
	}

	ctrl.short = false
	ctrl.err = errWrite
	if err := l.WriteRAM(0, []byte{1}); !errors.Is(err, errWrite) {
		t.Errorf("error = %v, want %v", err, errWrite)
	}

	if err := l.WriteRAM(0x20000, []byte{1}); !errors.Is(err, ErrAddressRange) {
		t.Errorf("error = %v, want %v", err, ErrAddressRange)
	}
}

func TestUSBLoaderNotConnected(t *testing.T) {
	l, err := NewUSBLoader(0x04B4, 0x8613)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.WriteRAM(0, []byte{1}); err == nil {
		t.Error("write without connection succeeded")
	}
	// Disconnect must be safe without a connection.
	l.Disconnect()

	if _, err := NewUSBLoader(0, 0x8613); err == nil {
		t.Error("zero vendor ID accepted")
	}
}

func TestUSBLoaderConnectTwice(t *testing.T) {
	ctrl := new(fakeControl)
	l := &usbLoader{vendor: 0x04B4, product: 0x8613, ctrl: ctrl}

	if err := l.Connect(); err == nil {
		t.Fatal("Connect() on a connected loader succeeded")
	}
	if l.ctrl != ctrl || l.ctx != nil {
		t.Error("Connect() replaced the open handles")
	}
}
