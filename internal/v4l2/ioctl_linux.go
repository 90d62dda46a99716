//go:build linux && (amd64 || arm64)

package v4l2

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Kernel structures, 64-bit layouts.

type v4l2Capability struct {
	driver       [16]byte
	card         [32]byte
	busInfo      [32]byte
	version      uint32
	capabilities uint32
	deviceCaps   uint32
	reserved     [3]uint32
}

type v4l2Control struct {
	id    uint32
	value int32
}

type v4l2QueryCtrl struct {
	id           uint32
	typ          uint32
	name         [32]byte
	minimum      int32
	maximum      int32
	step         int32
	defaultValue int32
	flags        uint32
	reserved     [2]uint32
}

// v4l2ExtControl is packed in the kernel; value holds the union.
type v4l2ExtControl struct {
	id        uint32
	size      uint32
	reserved2 uint32
	value     [8]byte
}

type v4l2ExtControls struct {
	which     uint32
	count     uint32
	errorIdx  uint32
	requestFd int32
	reserved  uint32
	_         uint32
	controls  unsafe.Pointer
}

type v4l2MbusFramefmt struct {
	width        uint32
	height       uint32
	code         uint32
	field        uint32
	colorspace   uint32
	ycbcrEnc     uint16
	quantization uint16
	xferFunc     uint16
	flags        uint16
	reserved     [10]uint16
}

type v4l2SubdevFormat struct {
	which    uint32
	pad      uint32
	format   v4l2MbusFramefmt
	stream   uint32
	reserved [7]uint32
}

type v4l2Fract struct {
	numerator   uint32
	denominator uint32
}

type v4l2SubdevFrameInterval struct {
	pad      uint32
	interval v4l2Fract
	stream   uint32
	which    uint32
	reserved [7]uint32
}

type v4l2EventSubscription struct {
	typ      uint32
	id       uint32
	flags    uint32
	reserved [5]uint32
}

type v4l2Event struct {
	typ      uint32
	_        uint32
	u        [64]byte
	pending  uint32
	sequence uint32
	tsSec    int64
	tsNsec   int64
	id       uint32
	reserved [8]uint32
	_        uint32
}

type v4l2RequestBuffers struct {
	count        uint32
	typ          uint32
	memory       uint32
	capabilities uint32
	flags        uint8
	reserved     [3]uint8
}

type v4l2Timecode struct {
	typ      uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}

type v4l2Buffer struct {
	index         uint32
	typ           uint32
	bytesused     uint32
	flags         uint32
	field         uint32
	_             uint32
	timestampSec  int64
	timestampUsec int64
	timecode      v4l2Timecode
	sequence      uint32
	memory        uint32
	m             uint64
	length        uint32
	reserved2     uint32
	requestFd     int32
	_             uint32
}

// hdrAERegs mirrors the vendor HDR auto-exposure ioctl payload.
type hdrAERegs struct {
	timeRegs [3]uint32
	gainRegs [3]uint32
	times    [3]float32
	gains    [3]float32
}

// Compile-time size checks; a mismatch fails to build.
var (
	_ [104 - unsafe.Sizeof(v4l2Capability{})]struct{}
	_ [unsafe.Sizeof(v4l2Capability{}) - 104]struct{}
	_ [8 - unsafe.Sizeof(v4l2Control{})]struct{}
	_ [unsafe.Sizeof(v4l2Control{}) - 8]struct{}
	_ [68 - unsafe.Sizeof(v4l2QueryCtrl{})]struct{}
	_ [unsafe.Sizeof(v4l2QueryCtrl{}) - 68]struct{}
	_ [20 - unsafe.Sizeof(v4l2ExtControl{})]struct{}
	_ [unsafe.Sizeof(v4l2ExtControl{}) - 20]struct{}
	_ [32 - unsafe.Sizeof(v4l2ExtControls{})]struct{}
	_ [unsafe.Sizeof(v4l2ExtControls{}) - 32]struct{}
	_ [88 - unsafe.Sizeof(v4l2SubdevFormat{})]struct{}
	_ [unsafe.Sizeof(v4l2SubdevFormat{}) - 88]struct{}
	_ [48 - unsafe.Sizeof(v4l2SubdevFrameInterval{})]struct{}
	_ [unsafe.Sizeof(v4l2SubdevFrameInterval{}) - 48]struct{}
	_ [32 - unsafe.Sizeof(v4l2EventSubscription{})]struct{}
	_ [unsafe.Sizeof(v4l2EventSubscription{}) - 32]struct{}
	_ [136 - unsafe.Sizeof(v4l2Event{})]struct{}
	_ [unsafe.Sizeof(v4l2Event{}) - 136]struct{}
	_ [20 - unsafe.Sizeof(v4l2RequestBuffers{})]struct{}
	_ [unsafe.Sizeof(v4l2RequestBuffers{}) - 20]struct{}
	_ [88 - unsafe.Sizeof(v4l2Buffer{})]struct{}
	_ [unsafe.Sizeof(v4l2Buffer{}) - 88]struct{}
	_ [48 - unsafe.Sizeof(hdrAERegs{})]struct{}
	_ [unsafe.Sizeof(hdrAERegs{}) - 48]struct{}
)

var (
	vidiocQuerycap             = ior(0, unsafe.Sizeof(v4l2Capability{}))
	vidiocSubdevGFmt           = iowr(4, unsafe.Sizeof(v4l2SubdevFormat{}))
	vidiocReqbufs              = iowr(8, unsafe.Sizeof(v4l2RequestBuffers{}))
	vidiocQuerybuf             = iowr(9, unsafe.Sizeof(v4l2Buffer{}))
	vidiocQbuf                 = iowr(15, unsafe.Sizeof(v4l2Buffer{}))
	vidiocDqbuf                = iowr(17, unsafe.Sizeof(v4l2Buffer{}))
	vidiocStreamon             = iow(18, unsafe.Sizeof(int32(0)))
	vidiocStreamoff            = iow(19, unsafe.Sizeof(int32(0)))
	vidiocSubdevGFrameInterval = iowr(21, unsafe.Sizeof(v4l2SubdevFrameInterval{}))
	vidiocGCtrl                = iowr(27, unsafe.Sizeof(v4l2Control{}))
	vidiocSCtrl                = iowr(28, unsafe.Sizeof(v4l2Control{}))
	vidiocQueryctrl            = iowr(36, unsafe.Sizeof(v4l2QueryCtrl{}))
	vidiocGExtCtrls            = iowr(71, unsafe.Sizeof(v4l2ExtControls{}))
	vidiocSExtCtrls            = iowr(72, unsafe.Sizeof(v4l2ExtControls{}))
	vidiocDqevent              = ior(89, unsafe.Sizeof(v4l2Event{}))
	vidiocSubscribeEvent       = iow(90, unsafe.Sizeof(v4l2EventSubscription{}))
	vidiocSetHDRAE             = iow(baseVidiocPrivate+1, unsafe.Sizeof(hdrAERegs{}))
)

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return errno
		}
	}
}

func openNode(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("v4l2: open %s: %w", path, err)
	}
	return fd, nil
}

// waitFd polls fd for events in slices of interval, returning
// ErrStopped as soon as done is closed.
func waitFd(fd int, events int16, interval int, done <-chan struct{}) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	for {
		select {
		case <-done:
			return ErrStopped
		default:
		}
		n, err := unix.Poll(fds, interval)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("v4l2: poll: %w", err)
		}
		if n > 0 {
			if fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 && fds[0].Revents&events == 0 {
				return fmt.Errorf("v4l2: poll: revents 0x%x", fds[0].Revents)
			}
			return nil
		}
	}
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
