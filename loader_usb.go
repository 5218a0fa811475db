package fx2boot

import (
	"time"

	"github.com/google/gousb"
	"github.com/pkg/errors"
)

// controlTimeout bounds every control transfer.
const controlTimeout = 1000 * time.Millisecond

type controlDevice interface {
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)
}

type usbLoader struct {
	vendor, product gousb.ID

	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	ctrl controlDevice
}

// NewUSBLoader creates a new loader talking to the first USB device with the
// given vendor and product IDs.
func NewUSBLoader(vendor, product gousb.ID) (Loader, error) {
	if vendor == 0 || product == 0 {
		return nil, errors.Errorf("invalid device ID %v:%v", vendor, product)
	}
	l := new(usbLoader)

	l.vendor = vendor
	l.product = product

	return l, nil
}

func (l *usbLoader) Connect() error {
	if l.ctx != nil || l.ctrl != nil {
		return errors.New("device already connected")
	}
	l.ctx = gousb.NewContext()

	dev, err := l.ctx.OpenDeviceWithVIDPID(l.vendor, l.product)
	if err != nil {
		l.Disconnect()
		return errors.Wrapf(err, "open device %v:%v", l.vendor, l.product)
	}
	if dev == nil {
		l.Disconnect()
		return errors.Wrapf(ErrDeviceNotFound, "%v:%v", l.vendor, l.product)
	}
	l.dev = dev
	pkgLog.Debugf("opened device %v:%v on bus %d address %d", l.vendor, l.product, dev.Desc.Bus, dev.Desc.Address)

	if err := dev.SetAutoDetach(true); err != nil {
		l.Disconnect()
		return errors.Wrap(err, "enable kernel driver auto-detach")
	}
	l.cfg, err = dev.Config(1)
	if err != nil {
		l.Disconnect()
		return errors.Wrap(err, "claim configuration")
	}
	l.intf, err = l.cfg.Interface(0, 0)
	if err != nil {
		l.Disconnect()
		return errors.Wrap(err, "claim interface")
	}

	dev.ControlTimeout = controlTimeout
	l.ctrl = dev
	return nil
}

func (l *usbLoader) Disconnect() {
	if l.intf != nil {
		l.intf.Close()
		l.intf = nil
	}
	if l.cfg != nil {
		l.cfg.Close()
		l.cfg = nil
	}
	if l.dev != nil {
		l.dev.Close()
		l.dev = nil
	}
	if l.ctx != nil {
		l.ctx.Close()
		l.ctx = nil
	}
	l.ctrl = nil
}

func (l *usbLoader) send(c ControlRequest) error {
	if l.ctrl == nil {
		return errors.New("device not connected")
	}
	n, err := l.ctrl.Control(c.RequestType, c.Request, c.Value, c.Index, c.Data)
	if err != nil {
		return err
	}
	if n != len(c.Data) {
		return errors.Errorf("short transfer: wrote %d of %d bytes", n, len(c.Data))
	}
	return nil
}

func (l *usbLoader) WriteRAM(address uint32, data []byte) error {
	req, err := NewWriteRAMRequest(address, data)
	if err != nil {
		return err
	}
	if err := l.send(req); err != nil {
		return errors.Wrap(err, "write ram failed")
	}
	return nil
}
