// Package fx2boot loads Intel HEX firmware into the RAM of Cypress EZ-USB
// FX2 (and compatible) microcontrollers over USB.
//
// The package contains two main components: Loader and Uploader. Loader
// provides a transport-agnostic way of writing to the target's RAM using the
// firmware load vendor request that every EZ-USB chip answers in hardware.
// Uploader parses a HEX file line by line and writes its records to the
// device, holding the 8051 core in reset for the duration of the upload.
//
// Also included is a command line tool, found in the cmd/fx2upload directory,
// that serves as both an example on how to use the library and a fully
// functional host program to allow HEX files to be uploaded to devices.
package fx2boot

import (
	"github.com/pkg/errors"
)

// The Loader interface allows writes to the target's RAM in a transport-agnostic fashion.
// For uploading whole HEX files, use an Uploader.
type Loader interface {
	Connect() error
	Disconnect()
	WriteRAM(address uint32, data []byte) error
}

// Control request fields of the firmware load request.
const (
	// Vendor request, host to device, device recipient.
	RequestTypeVendorOut = 0x40
	// RequestFirmwareLoad reads or writes on-chip RAM; it is handled by the
	// chip itself and works without any firmware loaded.
	RequestFirmwareLoad = 0xA0
)

// Values written to the CPU control register.
const (
	CPUHalt   byte = 1
	CPUResume byte = 0
)

// maxAddress is the highest address expressible as value (low 16 bits)
// plus index (bit 16) of the firmware load request.
const maxAddress = 0x1FFFF

// maxTransfer is the largest data stage a control request can carry.
const maxTransfer = 0xFFFF

// ControlRequest represents a single USB control transfer.
type ControlRequest struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Data        []byte
}

// Address returns the RAM address targeted by the request.
func (c ControlRequest) Address() uint32 {
	return uint32(c.Index)<<16 | uint32(c.Value)
}

// NewWriteRAMRequest returns the firmware load request that writes data at address.
func NewWriteRAMRequest(address uint32, data []byte) (ControlRequest, error) {
	if address > maxAddress {
		return ControlRequest{}, errors.Wrapf(ErrAddressRange, "address %X", address)
	}
	if len(data) > maxTransfer {
		return ControlRequest{}, errors.Errorf("write of %d bytes exceeds control transfer limit", len(data))
	}
	c := ControlRequest{
		RequestType: RequestTypeVendorOut,
		Request:     RequestFirmwareLoad,
		Value:       uint16(address & 0xFFFF),
		Index:       uint16(address >> 16),
		Data:        data,
	}
	return c, nil
}

// NewCPUControlRequest returns the request that halts or resumes the CPU
// through the control register at cpucs.
func NewCPUControlRequest(cpucs uint16, halt bool) ControlRequest {
	v := CPUResume
	if halt {
		v = CPUHalt
	}
	c, _ := NewWriteRAMRequest(uint32(cpucs), []byte{v})
	return c
}
