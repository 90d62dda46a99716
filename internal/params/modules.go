package params

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ModuleID is a bit position in the module enable and update masks.
type ModuleID uint

const (
	DPCC ModuleID = iota
	BLS
	SDG
	HST
	LSC
	AWBGain
	FLT
	BDM
	CTK
	GOC
	CPROC
	AFC
	AWB
	IE
	AEC
	WDR
	DPF
	DPFStrength

	// ModuleCount is one past the highest module id.
	ModuleCount
)

// Mask returns the module's bit.
func (id ModuleID) Mask() uint32 { return 1 << id }

func (id ModuleID) String() string {
	if id < ModuleCount {
		return modules[id].name
	}
	return fmt.Sprintf("module(%d)", uint(id))
}

// module is one dispatch-table entry: how to size, copy and validate a
// module's payload. A nil copy means updates for that module are
// ignored.
type module struct {
	name     string
	size     func(version int) int
	copy     func(dst, src *Set, id ModuleID)
	validate func(payload []byte, version int) error
}

func fixed(n int) func(int) int { return func(int) int { return n } }

// copyPayload replaces dst's payload with a copy of src's.
func copyPayload(dst, src *Set, id ModuleID) {
	dst.Configs[id] = append(dst.Configs[id][:0], src.Configs[id]...)
}

// Histogram weight grid grows from 5x5 to 9x9 on v12 and later.
func hstSize(version int) int {
	if version >= 12 {
		return 96
	}
	return 40
}

var modules = [ModuleCount]module{
	DPCC:        {name: "dpcc", size: fixed(92), copy: copyPayload, validate: validateDPCC},
	BLS:         {name: "bls", size: fixed(28), copy: copyPayload},
	SDG:         {name: "sdg", size: fixed(104), copy: copyPayload},
	HST:         {name: "hst", size: hstSize, copy: copyPayload, validate: validateHST},
	LSC:         {name: "lsc", size: fixed(2516), copy: copyPayload, validate: validateLSC},
	AWBGain:     {name: "awb_gain", size: fixed(8), copy: copyPayload},
	FLT:         {name: "flt", size: fixed(48), copy: copyPayload, validate: validateFLT},
	BDM:         {name: "bdm", size: fixed(4), copy: copyPayload},
	CTK:         {name: "ctk", size: fixed(24), copy: copyPayload},
	GOC:         {name: "goc", size: fixed(40), copy: copyPayload, validate: validateMode(1)},
	CPROC:       {name: "cproc", size: fixed(8), copy: copyPayload},
	AFC:         {name: "afc", size: fixed(36), copy: copyPayload, validate: validateAFC},
	AWB:         {name: "awb", size: fixed(20), copy: copyPayload, validate: validateAWB},
	IE:          {name: "ie", size: fixed(16), copy: copyPayload},
	AEC:         {name: "aec", size: fixed(16), copy: copyPayload, validate: validateMode(1)},
	WDR:         {name: "wdr", size: fixed(0)},
	DPF:         {name: "dpf", size: fixed(72), copy: copyPayload},
	DPFStrength: {name: "dpf_strength", size: fixed(4), copy: copyPayload},
}

// ModuleByName resolves a module name as used in configuration.
func ModuleByName(name string) (ModuleID, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for id := ModuleID(0); id < ModuleCount; id++ {
		if modules[id].name == name {
			return id, true
		}
	}
	return 0, false
}

// PayloadSize is the expected payload length of a module on an ISP
// revision.
func PayloadSize(id ModuleID, version int) int {
	if id >= ModuleCount {
		return 0
	}
	return modules[id].size(version)
}

func u32(b []byte, off int) uint32 { return binary.LittleEndian.Uint32(b[off : off+4]) }

func validateMode(maxMode uint32) func([]byte, int) error {
	return func(p []byte, _ int) error {
		if m := u32(p, 0); m > maxMode {
			return fmt.Errorf("mode %d out of range 0..%d", m, maxMode)
		}
		return nil
	}
}

func validateDPCC(p []byte, _ int) error {
	if m := u32(p, 0); m > 0x7 {
		return fmt.Errorf("mode 0x%x out of range", m)
	}
	if m := u32(p, 4); m > 0xf {
		return fmt.Errorf("output mode 0x%x out of range", m)
	}
	if m := u32(p, 8); m > 0xf {
		return fmt.Errorf("set use 0x%x out of range", m)
	}
	return nil
}

func validateHST(p []byte, _ int) error {
	if m := u32(p, 0); m > 5 {
		return fmt.Errorf("histogram mode %d out of range 0..5", m)
	}
	if div := p[4]; div == 0 || div > 0x7f {
		return fmt.Errorf("predivider %d out of range 1..127", div)
	}
	return nil
}

// Every LSC sector size must be nonzero.
func validateLSC(p []byte, _ int) error {
	const sizeTbl = 2448 + 32 // after the gain tables and gradients
	for i := 0; i < 16; i++ {
		if binary.LittleEndian.Uint16(p[sizeTbl+2*i:]) == 0 {
			return fmt.Errorf("sector size %d is zero", i)
		}
	}
	return nil
}

func validateFLT(p []byte, _ int) error {
	if m := u32(p, 0); m > 1 {
		return fmt.Errorf("mode %d out of range 0..1", m)
	}
	if p[4] > 8 {
		return fmt.Errorf("green stage %d out of range 0..8", p[4])
	}
	return nil
}

func validateAFC(p []byte, _ int) error {
	if n := p[0]; n == 0 || n > 3 {
		return fmt.Errorf("window count %d out of range 1..3", n)
	}
	return nil
}

func validateAWB(p []byte, _ int) error {
	if m := u32(p, 8); m > 2 {
		return fmt.Errorf("awb mode %d out of range 0..2", m)
	}
	return nil
}
