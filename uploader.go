package fx2boot

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// State is the position of an Uploader in the upload sequence.
type State int

// Upload states. Resumed and Failed are terminal.
const (
	StateNotStarted State = iota
	StateHalted
	StateWriting
	StateResumed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateHalted:
		return "halted"
	case StateWriting:
		return "writing"
	case StateResumed:
		return "resumed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options holds upload options.
type Options struct {
	// If true, the first malformed line aborts the upload and the CPU is
	// left halted. Otherwise malformed lines are reported and skipped.
	Strict bool
}

// Report summarises an upload session.
type Report struct {
	// Lines is the number of input lines consumed, including blank ones.
	Lines        int
	Records      int
	DataRecords  int
	BytesWritten int
	// Terminated is set when an end of file record stopped the upload.
	Terminated  bool
	ParseErrors []*LineError
}

// Uploader runs a single upload session against a connected Loader. It is
// not safe for concurrent use and cannot be reused.
type Uploader struct {
	loader  Loader
	profile ChipProfile
	options Options

	state  State
	line   int
	report Report
}

// NewUploader creates an upload session for the chip described by profile.
// The loader must already be connected.
func NewUploader(loader Loader, profile ChipProfile, options Options) *Uploader {
	u := new(Uploader)

	u.loader = loader
	u.profile = profile
	u.options = options

	return u
}

// State returns the current session state.
func (u *Uploader) State() State {
	return u.state
}

type lineScanner interface {
	Scan() bool
	Text() string
	Err() error
}

type sliceScanner struct {
	lines []string
	pos   int
}

func (s *sliceScanner) Scan() bool {
	if s.pos >= len(s.lines) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceScanner) Text() string { return s.lines[s.pos-1] }
func (s *sliceScanner) Err() error   { return nil }

// readerScanner splits input into lines with no limit on line length.
type readerScanner struct {
	r    *bufio.Reader
	line string
	done bool
	err  error
}

func (s *readerScanner) Scan() bool {
	if s.done {
		return false
	}
	line, err := s.r.ReadString('\n')
	if err != nil {
		s.done = true
		if err != io.EOF {
			s.err = err
			return false
		}
		if line == "" {
			return false
		}
	}
	s.line = strings.TrimRight(line, "\r\n")
	return true
}

func (s *readerScanner) Text() string { return s.line }
func (s *readerScanner) Err() error   { return s.err }

// Upload halts the CPU, writes every data record read from r in file order
// and resumes the CPU once the end of file record or the end of input is
// reached. Malformed lines are collected in the report and never written.
// A transport failure aborts the session without resuming the CPU.
//
// The returned report is non-nil whenever the session was started.
func (u *Uploader) Upload(r io.Reader) (*Report, error) {
	return u.run(&readerScanner{r: bufio.NewReader(r)})
}

// UploadLines is like Upload but takes the file already split into lines.
func (u *Uploader) UploadLines(lines []string) (*Report, error) {
	return u.run(&sliceScanner{lines: lines})
}

func (u *Uploader) run(sc lineScanner) (*Report, error) {
	if u.state != StateNotStarted {
		return nil, ErrSessionUsed
	}
	if err := u.profile.Validate(); err != nil {
		return u.fail(err)
	}

	if err := u.setCPU(true); err != nil {
		return u.fail(err)
	}
	u.state = StateHalted
	pkgLog.Debugf("cpu halted")

	u.state = StateWriting
	for !u.report.Terminated && sc.Scan() {
		u.line++
		u.report.Lines = u.line

		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}

		rec, err := ParseRecord(text)
		if err != nil {
			lerr := &LineError{Line: u.line, Text: text, Err: err}
			u.report.ParseErrors = append(u.report.ParseErrors, lerr)
			pkgLog.Warnf("%v", lerr)
			if u.options.Strict {
				return u.fail(lerr)
			}
			continue
		}
		u.report.Records++

		switch rec.Type {
		case RecordData:
			if err := u.write(rec); err != nil {
				return u.fail(err)
			}
		case RecordEndOfFile:
			u.report.Terminated = true
		default:
			pkgLog.Debugf("skipping %v record in line %d", rec.Type, u.line)
		}
	}
	if err := sc.Err(); err != nil {
		return u.fail(errors.Wrap(err, "failed to read firmware"))
	}
	if !u.report.Terminated {
		pkgLog.Warnf("no end of file record after %d lines", u.line)
	}

	if err := u.setCPU(false); err != nil {
		return u.fail(err)
	}
	u.state = StateResumed
	pkgLog.Debugf("cpu resumed")

	report := u.report
	return &report, nil
}

func (u *Uploader) fail(err error) (*Report, error) {
	u.state = StateFailed
	report := u.report
	return &report, err
}

func (u *Uploader) setCPU(halt bool) error {
	op := "resume cpu"
	if halt {
		op = "halt cpu"
	}
	req := NewCPUControlRequest(u.profile.CPUCS, halt)
	if err := u.loader.WriteRAM(req.Address(), req.Data); err != nil {
		return &TransportError{Op: op, Address: req.Address(), Err: err}
	}
	return nil
}

func (u *Uploader) write(rec *HexRecord) error {
	addr := uint32(rec.Address)
	if !u.profile.InRAM(addr, len(rec.Data)) {
		pkgLog.Warnf("line %d writes outside %s ram at %04X", u.line, u.profile.Name, addr)
	}
	if err := u.loader.WriteRAM(addr, rec.Data); err != nil {
		return &TransportError{Op: "write ram", Address: addr, Err: err}
	}
	u.report.DataRecords++
	u.report.BytesWritten += len(rec.Data)
	pkgLog.Debugf("wrote %d bytes at %04X", len(rec.Data), addr)
	return nil
}

// Flash connects the loader, uploads the HEX file read from r and
// disconnects the loader again, whatever the outcome.
func Flash(loader Loader, r io.Reader, profile ChipProfile, options Options) (*Report, error) {
	if err := loader.Connect(); err != nil {
		return nil, errors.Wrap(err, "failed to open device")
	}
	defer loader.Disconnect()

	return NewUploader(loader, profile, options).Upload(r)
}
