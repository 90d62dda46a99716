// Package v4l2 provides the Video4Linux2 plumbing the control loop needs:
// sub-device controls and format queries, frame-sync events, and the
// metadata buffer streams that carry ISP statistics and parameters.
//
// Everything in this file is portable; the ioctl implementations are
// linux-only.
package v4l2

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tamzrod/isp-controlloop/internal/isp"
)

// ErrStopped is returned by blocking waits whose done channel closed.
var ErrStopped = fmt.Errorf("v4l2: wait stopped: %w", isp.ErrBypassed)

// Control classes.
const (
	CtrlClassUser        uint32 = 0x00980000
	CtrlClassCamera      uint32 = 0x009a0000
	CtrlClassImageSource uint32 = 0x009e0000
	CtrlClassImageProc   uint32 = 0x009f0000
)

// Control ids.
const (
	CIDExposure      uint32 = 0x00980911
	CIDGain          uint32 = 0x00980913
	CIDFocusAbsolute uint32 = 0x009a090a
	CIDVBlank        uint32 = 0x009e0901
	CIDHBlank        uint32 = 0x009e0902
	CIDAnalogueGain  uint32 = 0x009e0903
	CIDPixelRate     uint32 = 0x009f0902

	CIDPrivateBase uint32 = 0x08000000
	// CIDGainPercent is the vendor control written alongside exposure and
	// gain on combined ISP video nodes.
	CIDGainPercent = CIDPrivateBase + 4
)

// Media bus codes of monochrome sensors.
const (
	MbusY8  uint32 = 0x2001
	MbusY10 uint32 = 0x200a
	MbusY12 uint32 = 0x2013
)

// Buffer and event constants.
const (
	BufTypeMetaCapture uint32 = 13
	BufTypeMetaOutput  uint32 = 14
	MemoryMMAP         uint32 = 1
	EventFrameSync     uint32 = 4

	subdevFormatActive uint32 = 1
)

// ClassOf returns the control class an id belongs to.
func ClassOf(id uint32) uint32 {
	return id & 0x0fff0000
}

// ControlName is a short label for logs and errors.
func ControlName(id uint32) string {
	switch id {
	case CIDExposure:
		return "EXPOSURE"
	case CIDGain:
		return "GAIN"
	case CIDFocusAbsolute:
		return "FOCUS_ABSOLUTE"
	case CIDVBlank:
		return "VBLANK"
	case CIDHBlank:
		return "HBLANK"
	case CIDAnalogueGain:
		return "ANALOGUE_GAIN"
	case CIDPixelRate:
		return "PIXEL_RATE"
	case CIDGainPercent:
		return "GAIN_PERCENT"
	}
	return fmt.Sprintf("0x%08x", id)
}

// IsMonochrome reports whether a media bus code is a luma-only format.
func IsMonochrome(code uint32) bool {
	switch code {
	case MbusY8, MbusY10, MbusY12:
		return true
	}
	return false
}

// Control is one id/value pair of a batched control write.
type Control struct {
	ID    uint32
	Value int32
}

// ControlRange is the queried range of a control.
type ControlRange struct {
	Min     int32
	Max     int32
	Step    int32
	Default int32
}

// Format is the active pad format of a sub-device.
type Format struct {
	Width  uint32
	Height uint32
	Code   uint32
}

// HDRExposure is the aggregate register block of a multi-exposure sensor
// (long, middle, short).
type HDRExposure struct {
	TimeRegs [3]uint32
	GainRegs [3]uint32
	Times    [3]float32
	Gains    [3]float32
}

// ParseISPVersion extracts the ISP revision from a driver name such as
// "rkisp1_v2". Drivers without a version suffix are not accepted.
func ParseISPVersion(driver string) (int, error) {
	driver = strings.TrimRight(driver, "\x00")
	i := strings.LastIndexByte(driver, '_')
	if i < 0 || i+1 >= len(driver) || driver[i+1] != 'v' {
		return 0, fmt.Errorf("v4l2: no isp version in driver name %q", driver)
	}
	v, err := strconv.Atoi(driver[i+2:])
	if err != nil {
		return 0, fmt.Errorf("v4l2: bad isp version in driver name %q: %w", driver, err)
	}
	return v, nil
}

// ---- ioctl request encoding (asm-generic) ----

const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	iocTypeV = 'V'

	baseVidiocPrivate = 192
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<iocDirShift | iocTypeV<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift
}

func ior(nr, size uintptr) uintptr  { return ioc(iocRead, nr, size) }
func iow(nr, size uintptr) uintptr  { return ioc(iocWrite, nr, size) }
func iowr(nr, size uintptr) uintptr { return ioc(iocRead|iocWrite, nr, size) }
