package fx2boot

import (
	"io"
	"io/ioutil"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Region is a block of on-chip RAM that can be written by the loader.
type Region struct {
	Start uint32 `yaml:"start"`
	Size  uint32 `yaml:"size"`
}

// Contains reports whether [address, address+length) lies inside the region.
func (r Region) Contains(address uint32, length int) bool {
	return address >= r.Start && uint64(address)+uint64(length) <= uint64(r.Start)+uint64(r.Size)
}

// ChipProfile describes the parts of an EZ-USB chip that matter when loading firmware.
type ChipProfile struct {
	Name string `yaml:"name"`
	// Default USB IDs of the chip before any firmware is loaded.
	Vendor  uint16 `yaml:"vendor"`
	Product uint16 `yaml:"product"`
	// Address of the CPU control register.
	CPUCS uint16   `yaml:"cpucs"`
	RAM   []Region `yaml:"ram"`
}

// Built-in profiles.
var (
	ProfileFX2 = ChipProfile{
		Name:    "fx2",
		Vendor:  0x04B4,
		Product: 0x8613,
		CPUCS:   0xE600,
		RAM:     []Region{{Start: 0x0000, Size: 0x4000}, {Start: 0xE000, Size: 0x0200}},
	}
	ProfileFX2LP = ChipProfile{
		Name:    "fx2lp",
		Vendor:  0x04B4,
		Product: 0x8613,
		CPUCS:   0xE600,
		RAM:     []Region{{Start: 0x0000, Size: 0x4000}, {Start: 0xE000, Size: 0x0200}},
	}
	ProfileAN21 = ChipProfile{
		Name:    "an21",
		Vendor:  0x0547,
		Product: 0x2131,
		CPUCS:   0x7F92,
		RAM:     []Region{{Start: 0x0000, Size: 0x2000}},
	}
)

var profiles = map[string]ChipProfile{
	ProfileFX2.Name:   ProfileFX2,
	ProfileFX2LP.Name: ProfileFX2LP,
	ProfileAN21.Name:  ProfileAN21,
}

// LookupProfile returns the built-in profile with the given name.
func LookupProfile(name string) (ChipProfile, bool) {
	p, ok := profiles[name]
	return p, ok
}

// ProfileNames lists the built-in profiles.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InRAM reports whether a write of length bytes at address stays inside one RAM region.
// A profile without regions accepts every address.
func (p ChipProfile) InRAM(address uint32, length int) bool {
	if len(p.RAM) == 0 {
		return true
	}
	for _, r := range p.RAM {
		if r.Contains(address, length) {
			return true
		}
	}
	return false
}

// Validate checks that the profile can drive an upload.
func (p ChipProfile) Validate() error {
	if p.CPUCS == 0 {
		return errors.New("profile has no cpucs address")
	}
	for _, r := range p.RAM {
		if r.Size == 0 {
			return errors.Errorf("empty ram region at %X", r.Start)
		}
		if uint64(r.Start)+uint64(r.Size) > maxAddress+1 {
			return errors.Errorf("ram region at %X exceeds the loader address range", r.Start)
		}
	}
	return nil
}

// LoadProfile reads a YAML chip profile.
func LoadProfile(r io.Reader) (ChipProfile, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return ChipProfile{}, err
	}
	var p ChipProfile
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return ChipProfile{}, errors.Wrap(err, "failed to parse profile")
	}
	if err := p.Validate(); err != nil {
		return ChipProfile{}, errors.Wrap(err, "invalid profile")
	}
	return p, nil
}
