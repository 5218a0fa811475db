package fx2boot

import (
	"fmt"
	"strings"
)

// RecordType is the Intel HEX record type field.
type RecordType uint8

// Record types. Only Data and EndOfFile affect an upload; the rest are
// named for diagnostics and are otherwise passed through untouched.
const (
	RecordData                   RecordType = 0x00
	RecordEndOfFile              RecordType = 0x01
	RecordExtendedSegmentAddress RecordType = 0x02
	RecordStartSegmentAddress    RecordType = 0x03
	RecordExtendedLinearAddress  RecordType = 0x04
	RecordStartLinearAddress     RecordType = 0x05
)

func (t RecordType) String() string {
	switch t {
	case RecordData:
		return "data"
	case RecordEndOfFile:
		return "end of file"
	case RecordExtendedSegmentAddress:
		return "extended segment address"
	case RecordStartSegmentAddress:
		return "start segment address"
	case RecordExtendedLinearAddress:
		return "extended linear address"
	case RecordStartLinearAddress:
		return "start linear address"
	default:
		return fmt.Sprintf("type %02X", uint8(t))
	}
}

// MaxPayload is the largest number of data bytes a single record can carry.
const MaxPayload = 255

// minRecordLen is the length of a record with no data: marker, length,
// address, type and checksum.
const minRecordLen = 11

// HexRecord holds one decoded Intel HEX line.
type HexRecord struct {
	Type     RecordType
	Address  uint16
	Length   int
	Data     []byte
	Checksum byte
}

// Checksum returns the Intel HEX checksum for a record with the given fields.
func Checksum(length int, address uint16, typ RecordType, data []byte) byte {
	sum := byte(length) + byte(address>>8) + byte(address) + byte(typ)
	for _, b := range data {
		sum += b
	}
	return -sum
}

// ParseRecord decodes a single Intel HEX line. The line must not contain the
// line terminator. Characters following the checksum are ignored.
func ParseRecord(line string) (*HexRecord, error) {
	if !strings.HasPrefix(line, ":") {
		return nil, &ParseError{Kind: MissingMarker}
	}
	if len(line) < minRecordLen {
		return nil, &ParseError{Kind: ShortLine}
	}

	length, ok := hexByte(line, 1)
	if !ok {
		return nil, &ParseError{Kind: BadHex, Offset: 1}
	}
	n := int(length)
	if len(line) < minRecordLen+2*n {
		return nil, &ParseError{Kind: LengthMismatch}
	}

	hi, ok := hexByte(line, 3)
	if !ok {
		return nil, &ParseError{Kind: BadHex, Offset: 3}
	}
	lo, ok := hexByte(line, 5)
	if !ok {
		return nil, &ParseError{Kind: BadHex, Offset: 5}
	}
	typ, ok := hexByte(line, 7)
	if !ok {
		return nil, &ParseError{Kind: BadHex, Offset: 7}
	}

	var buf [MaxPayload]byte
	if n > len(buf) {
		return nil, &ParseError{Kind: RecordTooLong}
	}
	pos := 9
	for i := 0; i < n; i++ {
		b, ok := hexByte(line, pos)
		if !ok {
			return nil, &ParseError{Kind: BadHex, Offset: pos}
		}
		buf[i] = b
		pos += 2
	}

	cksum, ok := hexByte(line, pos)
	if !ok {
		return nil, &ParseError{Kind: BadHex, Offset: pos}
	}

	rec := &HexRecord{
		Type:     RecordType(typ),
		Address:  uint16(hi)<<8 | uint16(lo),
		Length:   n,
		Data:     append([]byte{}, buf[:n]...),
		Checksum: cksum,
	}
	if Checksum(n, rec.Address, rec.Type, rec.Data)+cksum != 0 {
		return nil, &ParseError{Kind: ChecksumMismatch, Offset: pos}
	}
	return rec, nil
}

// Encode returns the record as an Intel HEX line without a line terminator.
// The checksum is computed from the other fields.
func (r *HexRecord) Encode() (string, error) {
	if len(r.Data) > MaxPayload {
		return "", &ParseError{Kind: RecordTooLong}
	}
	var sb strings.Builder
	sb.Grow(minRecordLen + 2*len(r.Data))
	fmt.Fprintf(&sb, ":%02X%04X%02X", len(r.Data), r.Address, uint8(r.Type))
	for _, b := range r.Data {
		fmt.Fprintf(&sb, "%02X", b)
	}
	fmt.Fprintf(&sb, "%02X", Checksum(len(r.Data), r.Address, r.Type, r.Data))
	return sb.String(), nil
}

func (r *HexRecord) String() string {
	s, err := r.Encode()
	if err != nil {
		return fmt.Sprintf("<%v record at %04X: %v>", r.Type, r.Address, err)
	}
	return s
}

// NewDataRecord builds a data record for the given address and payload.
func NewDataRecord(address uint16, data []byte) *HexRecord {
	return &HexRecord{
		Type:     RecordData,
		Address:  address,
		Length:   len(data),
		Data:     data,
		Checksum: Checksum(len(data), address, RecordData, data),
	}
}

// NewEndOfFileRecord builds the terminator record.
func NewEndOfFileRecord() *HexRecord {
	return &HexRecord{Type: RecordEndOfFile, Checksum: Checksum(0, 0, RecordEndOfFile, nil)}
}

// hexByte decodes the two hex digits at s[i:i+2].
func hexByte(s string, i int) (byte, bool) {
	if i+2 > len(s) {
		return 0, false
	}
	hi, ok1 := nibble(s[i])
	lo, ok2 := nibble(s[i+1])
	return hi<<4 | lo, ok1 && ok2
}

func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
