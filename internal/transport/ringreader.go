package transport

import (
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
)

// ringBufferedReader decouples the blocking read syscall on a pipe-transport
// fd from the H4/UCI framer: a background goroutine continuously drains the
// underlying reader into a smallnest/ringbuffer.RingBuffer, so a burst of
// guest-origin bytes that arrives faster than the framer consumes it is
// absorbed instead of stalling the fd's read loop. Mirrors the buffering role
// smallnest/ringbuffer played in the teacher's async PTY wrapper (retry on
// ErrIsFull/ErrIsEmpty rather than a blocking mode), here scoped to one fd
// direction instead of a full duplex terminal.
type ringBufferedReader struct {
	buf    *ringbuffer.RingBuffer
	closed atomic.Bool
	done   chan struct{}
	logger *logrus.Logger
}

// pollInterval bounds how long Read/pump spin-wait on an empty/full ring
// buffer before retrying.
const pollInterval = time.Millisecond

// newRingBufferedReader starts pumping src into a size-byte ring buffer and
// returns an io.Reader over it. Closing src (EOF) propagates as EOF from
// Read once the buffered bytes are drained.
func newRingBufferedReader(src io.Reader, size int, logger *logrus.Logger) *ringBufferedReader {
	if logger == nil {
		logger = logrus.New()
	}
	r := &ringBufferedReader{
		buf:    ringbuffer.New(size),
		done:   make(chan struct{}),
		logger: logger,
	}
	go r.pump(src)
	return r
}

func (r *ringBufferedReader) pump(src io.Reader) {
	defer close(r.done)
	defer r.closed.Store(true)

	chunk := make([]byte, 4096)
	for {
		n, err := src.Read(chunk)
		if n > 0 {
			if werr := r.writeAll(chunk[:n]); werr != nil {
				r.logger.WithError(werr).Warn("transport: ring buffer write failed, dropping bytes")
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (r *ringBufferedReader) writeAll(p []byte) error {
	for len(p) > 0 {
		n, err := r.buf.Write(p)
		if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
			return err
		}
		p = p[n:]
		if len(p) > 0 {
			time.Sleep(pollInterval)
		}
	}
	return nil
}

// Read implements io.Reader by draining the ring buffer; it blocks until
// bytes are available or the pump goroutine has observed EOF and drained.
func (r *ringBufferedReader) Read(p []byte) (int, error) {
	for {
		n, err := r.buf.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			return 0, err
		}
		if r.closed.Load() && r.buf.IsEmpty() {
			return 0, io.EOF
		}
		time.Sleep(pollInterval)
	}
}

// ringBufferCap is the byte budget for a pipe transport's read-side buffer;
// generous relative to a single H4/UCI frame (max ~64KiB ACL payload).
const ringBufferCap = 64 * 1024

// BufferedFdReader wraps a real pipe/PTY file descriptor's reader with a
// ring-buffered pump (spec.md §4.I), used by cmd/netsimd for inherited
// fd_in/fd_out pairs. Tests construct PipeReader directly over bytes.Reader
// and skip this wrapper.
func BufferedFdReader(src io.Reader, logger *logrus.Logger) io.Reader {
	return newRingBufferedReader(src, ringBufferCap, logger)
}
