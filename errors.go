package fx2boot

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrDeviceNotFound is returned by Connect when no device matches the
	// requested vendor and product IDs.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrAddressRange is returned when a write targets an address that the
	// firmware load request cannot encode.
	ErrAddressRange = errors.New("address out of range")
	// ErrSessionUsed is returned when an Uploader is run a second time.
	ErrSessionUsed = errors.New("upload session already used")
)

// ParseErrorKind classifies why a HEX line was rejected.
type ParseErrorKind int

// Parse error kinds.
const (
	MissingMarker ParseErrorKind = iota + 1
	ShortLine
	BadHex
	LengthMismatch
	RecordTooLong
	ChecksumMismatch
)

func (k ParseErrorKind) String() string {
	switch k {
	case MissingMarker:
		return "missing :"
	case ShortLine:
		return "short line"
	case BadHex:
		return "bad hex digit"
	case LengthMismatch:
		return "line shorter than declared length"
	case RecordTooLong:
		return "record longer than 255 bytes"
	case ChecksumMismatch:
		return "wrong checksum"
	default:
		return "unknown parse error"
	}
}

// ParseError is returned by ParseRecord.
type ParseError struct {
	Kind ParseErrorKind
	// Offset is the character position of the offending field, when known.
	Offset int
}

func (e *ParseError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("%v at column %d", e.Kind, e.Offset+1)
	}
	return e.Kind.String()
}

// Is reports whether target is a ParseError of the same kind.
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	return ok && t.Kind == e.Kind
}

// LineError ties a parse error to the line it occurred on.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%v in line %d: %s", e.Err, e.Line, e.Text)
}

func (e *LineError) Unwrap() error { return e.Err }

// TransportError reports a failed device write. It is always fatal to an
// upload session.
type TransportError struct {
	Op      string
	Address uint32
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s at %04X: %v", e.Op, e.Address, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
