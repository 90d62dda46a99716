//go:build linux && (amd64 || arm64)

package v4l2

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tamzrod/isp-controlloop/internal/isp"
)

// MetaStream is a memory-mapped metadata buffer queue: statistics
// (capture) or ISP parameters (output).
type MetaStream struct {
	mu   sync.Mutex
	node *Node
	typ  uint32
	bufs [][]byte

	// output side
	free    []uint32
	pending int
}

// OpenMetaStream requests count mmap buffers on a metadata node and
// starts streaming. Capture buffers are queued up front.
func OpenMetaStream(path string, typ uint32, count int, pollInterval int) (*MetaStream, error) {
	if typ != BufTypeMetaCapture && typ != BufTypeMetaOutput {
		return nil, fmt.Errorf("v4l2: %s: unsupported buffer type %d", path, typ)
	}
	node, err := OpenNode(path)
	if err != nil {
		return nil, err
	}
	node.PollInterval = pollInterval
	s := &MetaStream{node: node, typ: typ}
	if err := s.setup(count); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *MetaStream) setup(count int) error {
	req := v4l2RequestBuffers{count: uint32(count), typ: s.typ, memory: MemoryMMAP}
	if err := ioctl(s.node.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("v4l2: %s: REQBUFS: %w", s.node.path, err)
	}
	if req.count == 0 {
		return fmt.Errorf("v4l2: %s: REQBUFS: no buffers granted", s.node.path)
	}
	for i := uint32(0); i < req.count; i++ {
		b := v4l2Buffer{index: i, typ: s.typ, memory: MemoryMMAP}
		if err := ioctl(s.node.fd, vidiocQuerybuf, unsafe.Pointer(&b)); err != nil {
			return fmt.Errorf("v4l2: %s: QUERYBUF %d: %w", s.node.path, i, err)
		}
		mem, err := unix.Mmap(s.node.fd, int64(uint32(b.m)), int(b.length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return fmt.Errorf("v4l2: %s: mmap %d: %w", s.node.path, i, err)
		}
		s.bufs = append(s.bufs, mem)
		if s.typ == BufTypeMetaCapture {
			if err := s.qbuf(i, 0); err != nil {
				return err
			}
		} else {
			s.free = append(s.free, i)
		}
	}
	typ := int32(s.typ)
	if err := ioctl(s.node.fd, vidiocStreamon, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("v4l2: %s: STREAMON: %w", s.node.path, err)
	}
	return nil
}

func (s *MetaStream) qbuf(index uint32, bytesused uint32) error {
	b := v4l2Buffer{index: index, typ: s.typ, memory: MemoryMMAP, bytesused: bytesused}
	if err := ioctl(s.node.fd, vidiocQbuf, unsafe.Pointer(&b)); err != nil {
		return fmt.Errorf("v4l2: %s: QBUF %d: %w", s.node.path, index, err)
	}
	return nil
}

func (s *MetaStream) dqbuf() (v4l2Buffer, error) {
	b := v4l2Buffer{typ: s.typ, memory: MemoryMMAP}
	err := ioctl(s.node.fd, vidiocDqbuf, unsafe.Pointer(&b))
	return b, err
}

// Dequeue waits for the next filled statistics buffer. The returned Data
// aliases the mapping until Queue is called with the buffer.
func (s *MetaStream) Dequeue(done <-chan struct{}) (isp.StatsBuffer, error) {
	for {
		if err := waitFd(s.node.fd, unix.POLLIN, s.node.PollInterval, done); err != nil {
			return isp.StatsBuffer{}, err
		}
		s.mu.Lock()
		b, err := s.dqbuf()
		s.mu.Unlock()
		if err == unix.EAGAIN {
			continue
		}
		if err != nil {
			return isp.StatsBuffer{}, fmt.Errorf("v4l2: %s: DQBUF: %w", s.node.path, err)
		}
		if int(b.index) >= len(s.bufs) {
			return isp.StatsBuffer{}, fmt.Errorf("v4l2: %s: DQBUF: index %d out of range", s.node.path, b.index)
		}
		return isp.StatsBuffer{
			Index:     b.index,
			FrameID:   b.sequence,
			Timestamp: b.timestampSec*1e9 + b.timestampUsec*1e3,
			Data:      s.bufs[b.index][:b.bytesused],
		}, nil
	}
}

// Queue hands a dequeued statistics buffer back to the driver.
func (s *MetaStream) Queue(buf isp.StatsBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qbuf(buf.Index, 0)
}

// Submit copies a parameter snapshot into a free output buffer and
// queues it.
func (s *MetaStream) Submit(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.free) == 0 {
		// reclaim anything the driver already consumed
		for {
			b, err := s.dqbuf()
			if err != nil {
				break
			}
			s.free = append(s.free, b.index)
			s.pending--
		}
		if len(s.free) == 0 {
			return fmt.Errorf("v4l2: %s: no free parameter buffer", s.node.path)
		}
	}
	idx := s.free[len(s.free)-1]
	mem := s.bufs[idx]
	if len(data) > len(mem) {
		return fmt.Errorf("v4l2: %s: parameter snapshot %d bytes exceeds buffer %d", s.node.path, len(data), len(mem))
	}
	copy(mem, data)
	if err := s.qbuf(idx, uint32(len(data))); err != nil {
		return err
	}
	s.free = s.free[:len(s.free)-1]
	s.pending++
	return nil
}

// WaitAck waits until the driver hands back a submitted parameter
// buffer, polling so that a closed done channel is observed promptly.
func (s *MetaStream) WaitAck(done <-chan struct{}) error {
	for {
		s.mu.Lock()
		if s.pending == 0 {
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
		if err := waitFd(s.node.fd, unix.POLLOUT, s.node.PollInterval, done); err != nil {
			return err
		}
		s.mu.Lock()
		b, err := s.dqbuf()
		if err == nil {
			s.free = append(s.free, b.index)
			s.pending--
		}
		s.mu.Unlock()
		if err != nil && err != unix.EAGAIN {
			return fmt.Errorf("v4l2: %s: DQBUF: %w", s.node.path, err)
		}
		if err == nil {
			return nil
		}
	}
}

// DriverName reports the driver behind the stream node.
func (s *MetaStream) DriverName() (string, error) {
	return s.node.DriverName()
}

// Close stops streaming and releases the mappings.
func (s *MetaStream) Close() error {
	typ := int32(s.typ)
	_ = ioctl(s.node.fd, vidiocStreamoff, unsafe.Pointer(&typ))
	for _, m := range s.bufs {
		_ = unix.Munmap(m)
	}
	s.bufs = nil
	return s.node.Close()
}
