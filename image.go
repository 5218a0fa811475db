package fx2boot

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/marcinbor85/gohex"
)

// Image is a whole HEX file decoded into contiguous segments. It is used for
// inspection only; uploads are driven line by line by an Uploader.
type Image struct {
	Segments []gohex.DataSegment
}

// LoadImage parses a complete HEX file. Unlike an upload, any bad line fails
// the whole image.
func LoadImage(r io.Reader) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, err
	}
	img := &Image{Segments: mem.GetDataSegments()}
	for _, s := range img.Segments {
		pkgLog.Debugf("loaded segment at %X length %v", s.Address, len(s.Data))
	}
	return img, nil
}

// LoadImageFile parses the HEX file at fileName.
func LoadImageFile(fileName string) (*Image, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return LoadImage(file)
}

// Size returns the number of data bytes in the image.
func (img *Image) Size() int {
	n := 0
	for _, s := range img.Segments {
		n += len(s.Data)
	}
	return n
}

// SegmentError lists the segments that fall outside the chip's RAM.
type SegmentError struct {
	Profile  string
	Segments []gohex.DataSegment
}

func (e *SegmentError) Error() string {
	parts := make([]string, len(e.Segments))
	for i, s := range e.Segments {
		parts[i] = fmt.Sprintf("%04X-%04X", s.Address, s.Address+uint32(len(s.Data))-1)
	}
	return fmt.Sprintf("segments outside %s ram: %s", e.Profile, strings.Join(parts, ", "))
}

// Check verifies that every segment can be written to the chip described by p.
func (img *Image) Check(p ChipProfile) error {
	var bad []gohex.DataSegment
	for _, s := range img.Segments {
		if !p.InRAM(s.Address, len(s.Data)) {
			bad = append(bad, s)
		}
	}
	if len(bad) > 0 {
		return &SegmentError{Profile: p.Name, Segments: bad}
	}
	return nil
}
