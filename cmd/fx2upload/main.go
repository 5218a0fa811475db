package main

import (
	"bytes"
	"io/ioutil"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/amrbekhit/fx2boot"
	"github.com/google/gousb"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const appVersion = "1.0.0"

var (
	verbose     bool
	chipName    string
	profileFile string
	vidFlag     string
	pidFlag     string
	strict      bool
	beforeCmd   string
	afterCmd    string
)

var rootCmd = &cobra.Command{
	Use:   "fx2upload [flags] FIRMWARE [VID PID]",
	Short: "Upload Intel HEX firmware to a Cypress EZ-USB FX2 device",
	Long: `fx2upload loads an Intel HEX file into the RAM of a Cypress EZ-USB device.

The CPU is halted before the first record is written and resumed after the
end of file record. Malformed lines are reported with their line number and
skipped; use --strict to abort on the first one instead, which leaves the
CPU halted. A failed USB transfer always aborts the upload without resuming
the CPU.

VID and PID are hexadecimal and default to the chip profile's IDs
(04B4:8613 for the FX2).`,
	Version:       appVersion,
	Args:          uploadArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
		fx2boot.SetLogger(log.StandardLogger())
	},
	RunE: runUpload,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&chipName, "chip", "c", fx2boot.ProfileFX2.Name,
		"Chip profile, one of: "+strings.Join(fx2boot.ProfileNames(), ", "))
	rootCmd.PersistentFlags().StringVar(&profileFile, "profile", "", "Chip profile YAML file, overrides --chip")
	rootCmd.PersistentFlags().StringVar(&vidFlag, "vid", "", "USB vendor ID (hex)")
	rootCmd.PersistentFlags().StringVar(&pidFlag, "pid", "", "USB product ID (hex)")
	rootCmd.Flags().BoolVar(&strict, "strict", false, "Abort on the first malformed line")
	rootCmd.Flags().StringVar(&beforeCmd, "before", "", "Command to run before uploading")
	rootCmd.Flags().StringVar(&afterCmd, "after", "", "Command to run after the upload has completed successfully")
}

func uploadArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 1 && len(args) != 3 {
		return errors.New("expected: FIRMWARE [VID PID]")
	}
	return nil
}

func resolveProfile() (fx2boot.ChipProfile, error) {
	if profileFile != "" {
		f, err := os.Open(profileFile)
		if err != nil {
			return fx2boot.ChipProfile{}, errors.Wrap(err, "failed to open profile file")
		}
		defer f.Close()
		return fx2boot.LoadProfile(f)
	}
	p, ok := fx2boot.LookupProfile(chipName)
	if !ok {
		return fx2boot.ChipProfile{}, errors.Errorf("unknown chip %q", chipName)
	}
	return p, nil
}

func parseID(s string) (gousb.ID, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid ID %q", s)
	}
	if v == 0 {
		return 0, errors.New("ID must not be zero")
	}
	return gousb.ID(v), nil
}

// deviceIDs picks the USB IDs from, in order of precedence, the positional
// arguments, the --vid/--pid flags and the chip profile.
func deviceIDs(p fx2boot.ChipProfile, args []string) (gousb.ID, gousb.ID, error) {
	vid, pid := vidFlag, pidFlag
	if len(args) == 2 {
		vid, pid = args[0], args[1]
	}
	v, d := gousb.ID(p.Vendor), gousb.ID(p.Product)
	var err error
	if vid != "" {
		if v, err = parseID(vid); err != nil {
			return 0, 0, err
		}
	}
	if pid != "" {
		if d, err = parseID(pid); err != nil {
			return 0, 0, err
		}
	}
	return v, d, nil
}

// preflight reports image segments that fall outside the chip's RAM. It only
// warns; the upload itself writes whatever the file contains.
func preflight(data []byte, p fx2boot.ChipProfile) {
	img, err := fx2boot.LoadImage(bytes.NewReader(data))
	if err != nil {
		log.Debugf("skipping image check: %v", err)
		return
	}
	log.Debugf("image has %d segments, %d bytes", len(img.Segments), img.Size())
	if err := img.Check(p); err != nil {
		log.Warn(err)
	}
}

// runHook runs an external command, if one is given, and fails if it does.
func runHook(what, name string) error {
	if name == "" {
		return nil
	}
	log.Infof("running %s command...", what)
	if err := exec.Command(name).Run(); err != nil {
		return errors.Wrapf(err, "failed to run %s command", what)
	}
	return nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	profile, err := resolveProfile()
	if err != nil {
		return err
	}
	vid, pid, err := deviceIDs(profile, args[1:])
	if err != nil {
		return err
	}

	data, err := ioutil.ReadFile(args[0])
	if err != nil {
		return errors.Wrap(err, "unable to read firmware file")
	}
	log.Debugf("read %d bytes from %s", len(data), args[0])
	if verbose {
		preflight(data, profile)
	}

	if err := runHook("before", beforeCmd); err != nil {
		return err
	}

	loader, err := fx2boot.NewUSBLoader(vid, pid)
	if err != nil {
		return err
	}
	log.Infof("uploading to %v:%v...", vid, pid)
	report, err := fx2boot.Flash(loader, bytes.NewReader(data), profile, fx2boot.Options{Strict: strict})
	if report != nil {
		log.Debugf("%d lines, %d records, %d bytes written", report.Lines, report.Records, report.BytesWritten)
		if n := len(report.ParseErrors); n > 0 {
			log.Warnf("%d malformed lines were skipped", n)
		}
	}
	if err != nil {
		return err
	}
	log.Infof("upload complete")

	return runHook("after", afterCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
