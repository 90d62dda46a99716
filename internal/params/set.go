// Package params keeps the controller's full ISP parameter set, merges
// partial analyzer updates into it and submits the result to the driver.
package params

import (
	"encoding/binary"
	"fmt"

	"github.com/tamzrod/isp-controlloop/internal/isp"
)

// Set is a full or partial ISP parameter set.
//
// ModuleEns holds the enable state of every module; ModuleEnUpdate marks
// the modules whose enable bit is meaningful; ModuleCfgUpdate marks the
// modules whose payload in Configs is meaningful.
type Set struct {
	ModuleEns       uint32
	ModuleEnUpdate  uint32
	ModuleCfgUpdate uint32
	Configs         [ModuleCount][]byte
}

// Clone returns a deep copy.
func (s *Set) Clone() Set {
	c := Set{
		ModuleEns:       s.ModuleEns,
		ModuleEnUpdate:  s.ModuleEnUpdate,
		ModuleCfgUpdate: s.ModuleCfgUpdate,
	}
	for i, p := range s.Configs {
		if p != nil {
			c.Configs[i] = append([]byte(nil), p...)
		}
	}
	return c
}

// Merge folds a partial update into full. For every module id, a set
// enable-update bit replaces exactly that enable bit, and a set
// config-update bit copies that payload through the dispatch table.
// Updates flagged for WDR are recorded but carry no payload.
func Merge(full, upd *Set) {
	for id := ModuleID(0); id < ModuleCount; id++ {
		bit := id.Mask()
		if upd.ModuleEnUpdate&bit != 0 {
			full.ModuleEnUpdate |= bit
			full.ModuleEns = full.ModuleEns&^bit | upd.ModuleEns&bit
		}
		if upd.ModuleCfgUpdate&bit != 0 {
			full.ModuleCfgUpdate |= bit
			if m := modules[id]; m.copy != nil {
				m.copy(full, upd, id)
			}
		}
	}
}

// Check validates a merged set against an ISP revision. Every module
// whose config is flagged must carry a payload of the revision's size
// that passes the module's validator.
func Check(s *Set, version int) error {
	for id := ModuleID(0); id < ModuleCount; id++ {
		if id == WDR {
			continue
		}
		if s.ModuleCfgUpdate&id.Mask() == 0 {
			continue
		}
		m := modules[id]
		p := s.Configs[id]
		if want := m.size(version); len(p) != want {
			return paramError(id, fmt.Sprintf("payload is %d bytes, want %d for isp v%d", len(p), want, version))
		}
		if m.validate != nil {
			if err := m.validate(p, version); err != nil {
				return paramError(id, err.Error())
			}
		}
	}
	return nil
}

// encodeOrder mirrors the driver's parameter buffer: measurement
// modules first, then the processing modules.
var encodeOrder = [...]ModuleID{
	AWB, HST, AEC, AFC,
	DPCC, BLS, SDG, LSC, AWBGain, FLT, BDM, CTK, GOC, DPF, DPFStrength, CPROC, IE,
}

// EncodedSize is the parameter buffer size for an ISP revision.
func EncodedSize(version int) int {
	n := 12
	for _, id := range encodeOrder {
		n += modules[id].size(version)
	}
	return n
}

// Encode appends the driver representation of s to dst. Modules without
// a payload are zero-filled.
func (s *Set) Encode(dst []byte, version int) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, s.ModuleEnUpdate)
	dst = binary.LittleEndian.AppendUint32(dst, s.ModuleEns)
	dst = binary.LittleEndian.AppendUint32(dst, s.ModuleCfgUpdate)
	for _, id := range encodeOrder {
		size := modules[id].size(version)
		p := s.Configs[id]
		if len(p) > size {
			p = p[:size]
		}
		dst = append(dst, p...)
		for i := len(p); i < size; i++ {
			dst = append(dst, 0)
		}
	}
	return dst
}

func paramError(id ModuleID, reason string) error {
	return &isp.ParamError{Module: id.String(), Reason: reason}
}
