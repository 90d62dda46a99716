//go:build linux && (amd64 || arm64)

package v4l2

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Node is a control-capable device node: a sensor, lens or ISP
// sub-device, or a video node accepting extended controls.
type Node struct {
	mu   sync.Mutex
	path string
	fd   int

	// PollInterval bounds every blocking wait, in milliseconds.
	PollInterval int
}

// OpenNode opens a device node for control access.
func OpenNode(path string) (*Node, error) {
	fd, err := openNode(path)
	if err != nil {
		return nil, err
	}
	return &Node{path: path, fd: fd, PollInterval: 3}, nil
}

func (n *Node) Path() string { return n.path }

func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fd < 0 {
		return nil
	}
	err := unix.Close(n.fd)
	n.fd = -1
	return err
}

// SetControl writes a single control with VIDIOC_S_CTRL.
func (n *Node) SetControl(id uint32, value int32) error {
	c := v4l2Control{id: id, value: value}
	if err := ioctl(n.fd, vidiocSCtrl, unsafe.Pointer(&c)); err != nil {
		return fmt.Errorf("v4l2: %s: S_CTRL %s=%d: %w", n.path, ControlName(id), value, err)
	}
	return nil
}

// Control reads a single control with VIDIOC_G_CTRL.
func (n *Node) Control(id uint32) (int32, error) {
	c := v4l2Control{id: id}
	if err := ioctl(n.fd, vidiocGCtrl, unsafe.Pointer(&c)); err != nil {
		return 0, fmt.Errorf("v4l2: %s: G_CTRL %s: %w", n.path, ControlName(id), err)
	}
	return c.value, nil
}

// QueryControl returns the range of a control.
func (n *Node) QueryControl(id uint32) (ControlRange, error) {
	q := v4l2QueryCtrl{id: id}
	if err := ioctl(n.fd, vidiocQueryctrl, unsafe.Pointer(&q)); err != nil {
		return ControlRange{}, fmt.Errorf("v4l2: %s: QUERYCTRL %s: %w", n.path, ControlName(id), err)
	}
	return ControlRange{Min: q.minimum, Max: q.maximum, Step: q.step, Default: q.defaultValue}, nil
}

// SetControls writes a batch of controls of one class atomically with
// VIDIOC_S_EXT_CTRLS.
func (n *Node) SetControls(class uint32, ctrls []Control) error {
	if len(ctrls) == 0 {
		return nil
	}
	ext := make([]v4l2ExtControl, len(ctrls))
	for i, c := range ctrls {
		ext[i].id = c.ID
		binary.LittleEndian.PutUint32(ext[i].value[:4], uint32(c.Value))
	}
	req := v4l2ExtControls{
		which:    class,
		count:    uint32(len(ext)),
		controls: unsafe.Pointer(&ext[0]),
	}
	if err := ioctl(n.fd, vidiocSExtCtrls, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("v4l2: %s: S_EXT_CTRLS (failed index %d): %w", n.path, req.errorIdx, err)
	}
	return nil
}

// PixelRate reads the 64-bit PIXEL_RATE control.
func (n *Node) PixelRate() (int64, error) {
	ext := v4l2ExtControl{id: CIDPixelRate}
	req := v4l2ExtControls{
		which:    CtrlClassImageProc,
		count:    1,
		controls: unsafe.Pointer(&ext),
	}
	if err := ioctl(n.fd, vidiocGExtCtrls, unsafe.Pointer(&req)); err != nil {
		return 0, fmt.Errorf("v4l2: %s: G_EXT_CTRLS PIXEL_RATE: %w", n.path, err)
	}
	return int64(binary.LittleEndian.Uint64(ext.value[:])), nil
}

// Format returns the active format of pad 0.
func (n *Node) Format() (Format, error) {
	f := v4l2SubdevFormat{which: subdevFormatActive}
	if err := ioctl(n.fd, vidiocSubdevGFmt, unsafe.Pointer(&f)); err != nil {
		return Format{}, fmt.Errorf("v4l2: %s: SUBDEV_G_FMT: %w", n.path, err)
	}
	return Format{Width: f.format.width, Height: f.format.height, Code: f.format.code}, nil
}

// FrameInterval returns the active frame interval of pad 0.
func (n *Node) FrameInterval() (num, den uint32, err error) {
	fi := v4l2SubdevFrameInterval{which: subdevFormatActive}
	if err := ioctl(n.fd, vidiocSubdevGFrameInterval, unsafe.Pointer(&fi)); err != nil {
		return 0, 0, fmt.Errorf("v4l2: %s: SUBDEV_G_FRAME_INTERVAL: %w", n.path, err)
	}
	return fi.interval.numerator, fi.interval.denominator, nil
}

// SetHDRExposure writes the aggregate multi-exposure register block.
func (n *Node) SetHDRExposure(e HDRExposure) error {
	regs := hdrAERegs{timeRegs: e.TimeRegs, gainRegs: e.GainRegs, times: e.Times, gains: e.Gains}
	if err := ioctl(n.fd, vidiocSetHDRAE, unsafe.Pointer(&regs)); err != nil {
		return fmt.Errorf("v4l2: %s: HDRAE: %w", n.path, err)
	}
	return nil
}

// SubscribeFrameSync subscribes to V4L2_EVENT_FRAME_SYNC.
func (n *Node) SubscribeFrameSync() error {
	sub := v4l2EventSubscription{typ: EventFrameSync}
	if err := ioctl(n.fd, vidiocSubscribeEvent, unsafe.Pointer(&sub)); err != nil {
		return fmt.Errorf("v4l2: %s: SUBSCRIBE_EVENT FRAME_SYNC: %w", n.path, err)
	}
	return nil
}

// NextFrameSync blocks until the next frame-sync event and returns its
// frame sequence and monotonic timestamp in nanoseconds. It returns
// ErrStopped once done is closed.
func (n *Node) NextFrameSync(done <-chan struct{}) (uint32, int64, error) {
	for {
		if err := waitFd(n.fd, unix.POLLPRI, n.PollInterval, done); err != nil {
			return 0, 0, err
		}
		var ev v4l2Event
		if err := ioctl(n.fd, vidiocDqevent, unsafe.Pointer(&ev)); err != nil {
			if err == unix.EAGAIN || err == unix.ENOENT {
				continue
			}
			return 0, 0, fmt.Errorf("v4l2: %s: DQEVENT: %w", n.path, err)
		}
		if ev.typ != EventFrameSync {
			continue
		}
		seq := binary.LittleEndian.Uint32(ev.u[:4])
		return seq, ev.tsSec*1e9 + ev.tsNsec, nil
	}
}

// DriverName returns the driver name reported by VIDIOC_QUERYCAP.
func (n *Node) DriverName() (string, error) {
	var c v4l2Capability
	if err := ioctl(n.fd, vidiocQuerycap, unsafe.Pointer(&c)); err != nil {
		return "", fmt.Errorf("v4l2: %s: QUERYCAP: %w", n.path, err)
	}
	return cstring(c.driver[:]), nil
}
