package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"strconv"

	"github.com/amrbekhit/fx2boot"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check FIRMWARE",
	Short: "Parse a HEX file and report malformed lines without touching a device",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var infoCmd = &cobra.Command{
	Use:   "info FIRMWARE",
	Short: "Show the memory segments of a HEX file and check them against the chip's RAM",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var haltCmd = &cobra.Command{
	Use:   "halt",
	Short: "Hold the device CPU in reset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLoader(func(l fx2boot.Loader, p fx2boot.ChipProfile) error {
			return setCPU(l, p, true)
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Release the device CPU from reset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLoader(func(l fx2boot.Loader, p fx2boot.ChipProfile) error {
			return setCPU(l, p, false)
		})
	},
}

var writeCmd = &cobra.Command{
	Use:   "write ADDR DATAFILE",
	Short: "Write a raw binary file to device RAM, e.g. write 0x1000 data.bin",
	Args:  cobra.ExactArgs(2),
	RunE:  runWrite,
}

func init() {
	rootCmd.AddCommand(checkCmd, infoCmd, haltCmd, resumeCmd, writeCmd)
}

// dryRunLoader accepts every write without a device attached.
type dryRunLoader struct{}

func (dryRunLoader) Connect() error                             { return nil }
func (dryRunLoader) Disconnect()                                {}
func (dryRunLoader) WriteRAM(address uint32, data []byte) error { return nil }

func runCheck(cmd *cobra.Command, args []string) error {
	profile, err := resolveProfile()
	if err != nil {
		return err
	}
	file, err := os.Open(args[0])
	if err != nil {
		return errors.Wrap(err, "unable to open firmware file")
	}
	defer file.Close()

	report, err := fx2boot.Flash(dryRunLoader{}, file, profile, fx2boot.Options{})
	if err != nil {
		return err
	}
	fmt.Printf("lines: %d\nrecords: %d\ndata records: %d\nbytes: %d\nterminated: %v\n",
		report.Lines, report.Records, report.DataRecords, report.BytesWritten, report.Terminated)
	if n := len(report.ParseErrors); n > 0 {
		return errors.Errorf("%d malformed lines", n)
	}
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	profile, err := resolveProfile()
	if err != nil {
		return err
	}
	img, err := fx2boot.LoadImageFile(args[0])
	if err != nil {
		return errors.Wrap(err, "failed to load image")
	}
	for _, s := range img.Segments {
		fmt.Printf("%04X-%04X %6d bytes\n", s.Address, s.Address+uint32(len(s.Data))-1, len(s.Data))
	}
	fmt.Printf("total: %d bytes\n", img.Size())
	return img.Check(profile)
}

func runWrite(cmd *cobra.Command, args []string) error {
	addr, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return errors.Wrap(err, "invalid address")
	}
	data, err := ioutil.ReadFile(args[1])
	if err != nil {
		return errors.Wrap(err, "failed to read data file")
	}
	return withLoader(func(l fx2boot.Loader, p fx2boot.ChipProfile) error {
		if err := l.WriteRAM(uint32(addr), data); err != nil {
			return errors.Wrapf(err, "failed to write %d bytes at %X", len(data), addr)
		}
		log.Infof("wrote %d bytes at %X", len(data), addr)
		return nil
	})
}

func setCPU(l fx2boot.Loader, p fx2boot.ChipProfile, halt bool) error {
	req := fx2boot.NewCPUControlRequest(p.CPUCS, halt)
	if err := l.WriteRAM(req.Address(), req.Data); err != nil {
		return errors.Wrapf(err, "failed to write cpucs at %04X", req.Address())
	}
	return nil
}

func withLoader(f func(fx2boot.Loader, fx2boot.ChipProfile) error) error {
	profile, err := resolveProfile()
	if err != nil {
		return err
	}
	vid, pid, err := deviceIDs(profile, nil)
	if err != nil {
		return err
	}
	loader, err := fx2boot.NewUSBLoader(vid, pid)
	if err != nil {
		return err
	}
	if err := loader.Connect(); err != nil {
		return errors.Wrap(err, "failed to open device")
	}
	defer loader.Disconnect()

	return f(loader, profile)
}
