package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/types/known/timestamppb"

	"netsim/internal/chipkind"
	"netsim/internal/idgen"
)

// State is the on/off switch exposed to PatchCapture.
type State int

const (
	StateOff State = iota
	StateOn
)

// NotFoundError reports an unknown capture id (spec.md §7 NotFound).
type NotFoundError struct {
	ChipId idgen.ChipId
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("capture: no capture for chip %d", e.ChipId)
}

// Capture is the per-chip sink state described in spec.md §3.
type Capture struct {
	ChipId     idgen.ChipId
	DeviceName string
	ChipKind   chipkind.Kind
	Extension  Extension
	State      State
	Size       int64
	Records    int64
	Seconds    int64
	Nanos      int32
	Valid      bool

	mu     sync.Mutex
	path   string
	file   *os.File
	writer RecordWriter
}

// snapshot returns a value copy safe to hand to callers outside the lock.
func (c *Capture) snapshot() Capture {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *c
	cp.file = nil
	cp.writer = nil
	return cp
}

// Registry is the process-wide capture registry (spec.md §4.D), one entry
// per live chip, surviving removal with Valid=false.
type Registry struct {
	mu       sync.RWMutex
	captures map[idgen.ChipId]*Capture
	dir      string
	logger   *logrus.Logger
}

// NewRegistry creates a capture registry rooted at baseDir (typically
// "<temp>/pcaps", spec.md §6).
func NewRegistry(baseDir string, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		captures: make(map[idgen.ChipId]*Capture),
		dir:      baseDir,
		logger:   logger,
	}
}

// OnChipAdded creates the (initially off) capture slot for a newly added chip.
func (r *Registry) OnChipAdded(chipID idgen.ChipId, deviceName string, kind chipkind.Kind) {
	ext := ExtPcap
	if kind.CaptureExtension() == string(ExtPcapng) {
		ext = ExtPcapng
	}
	ts := timestamppb.Now()
	c := &Capture{
		ChipId:     chipID,
		DeviceName: deviceName,
		ChipKind:   kind,
		Extension:  ext,
		State:      StateOff,
		Valid:      true,
		Seconds:    ts.Seconds,
		Nanos:      ts.Nanos,
		path:       r.filePath(chipID, deviceName, kind, ext),
	}
	r.mu.Lock()
	r.captures[chipID] = c
	r.mu.Unlock()
}

// OnChipRemoved marks a capture invalid; it remains listable/downloadable.
func (r *Registry) OnChipRemoved(chipID idgen.ChipId) {
	r.mu.RLock()
	c, ok := r.captures[chipID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	c.mu.Lock()
	c.Valid = false
	if c.file != nil {
		_ = c.writer.Close()
		_ = c.file.Close()
		c.file = nil
		c.writer = nil
		c.State = StateOff
	}
	c.mu.Unlock()
}

func (r *Registry) filePath(chipID idgen.ChipId, deviceName string, kind chipkind.Kind, ext Extension) string {
	safeName := strings.ReplaceAll(deviceName, " ", "_")
	fname := fmt.Sprintf("netsim-%d-%s-%s.%s", chipID, safeName, kind.String(), ext)
	return filepath.Join(r.dir, fname)
}

// List returns a snapshot of every known capture, including invalid ones.
func (r *Registry) List() []Capture {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Capture, 0, len(r.captures))
	for _, c := range r.captures {
		out = append(out, c.snapshot())
	}
	return out
}

// Get returns the capture metadata and a readable file handle positioned at
// 0. It fails if the capture is unknown, empty, or its file does not exist
// (spec.md §4.D).
func (r *Registry) Get(chipID idgen.ChipId) (Capture, *os.File, error) {
	r.mu.RLock()
	c, ok := r.captures[chipID]
	r.mu.RUnlock()
	if !ok {
		return Capture{}, nil, &NotFoundError{ChipId: chipID}
	}

	c.mu.Lock()
	size, path := c.Size, c.path
	c.mu.Unlock()

	if size == 0 {
		return Capture{}, nil, fmt.Errorf("capture: chip %d capture is empty", chipID)
	}
	if _, err := os.Stat(path); err != nil {
		return Capture{}, nil, fmt.Errorf("capture: chip %d capture file missing: %w", chipID, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return Capture{}, nil, err
	}
	return c.snapshot(), f, nil
}

// Patch transitions a capture on or off. Turning off closes the handle;
// turning on (re)opens the file in append mode, creating the pcaps directory
// and a fresh PCAP/PCAPNG global header the first time. Double-on is
// idempotent.
func (r *Registry) Patch(chipID idgen.ChipId, state State) (Capture, error) {
	r.mu.RLock()
	c, ok := r.captures[chipID]
	r.mu.RUnlock()
	if !ok {
		return Capture{}, &NotFoundError{ChipId: chipID}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.Valid {
		return Capture{}, fmt.Errorf("capture: chip %d capture is no longer valid", chipID)
	}

	switch state {
	case StateOff:
		if c.file != nil {
			_ = c.writer.Close()
			_ = c.file.Close()
			c.file = nil
			c.writer = nil
		}
		c.State = StateOff
	case StateOn:
		if c.State == StateOn {
			return *dup(c), nil // already on: idempotent
		}
		if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
			return Capture{}, fmt.Errorf("capture: mkdir: %w", err)
		}
		existing, statErr := os.Stat(c.path)
		appending := statErr == nil && existing.Size() > 0

		f, err := os.OpenFile(c.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
		if err != nil {
			return Capture{}, fmt.Errorf("capture: open %s: %w", c.path, err)
		}

		var w RecordWriter
		if appending {
			w = openWriterForKind(f, c.ChipKind)
		} else {
			w, err = newWriterForKind(f, c.ChipKind)
			if err != nil {
				_ = f.Close()
				return Capture{}, err
			}
		}
		c.file = f
		c.writer = w
		c.State = StateOn
		if info, err := f.Stat(); err == nil {
			c.Size = info.Size()
		}
	}

	return *dup(c), nil
}

func dup(c *Capture) *Capture {
	cp := *c
	cp.file = nil
	cp.writer = nil
	return &cp
}

func newWriterForKind(f *os.File, kind chipkind.Kind) (RecordWriter, error) {
	switch kind {
	case chipkind.Uwb:
		return NewPcapngWriter(f)
	case chipkind.Wifi:
		return NewPcapWriter(f, layers.LinkTypeIEEE802_11Radio)
	default:
		return NewPcapWriter(f, layers.LinkTypeBluetoothHCIH4WithPhdr)
	}
}

// openWriterForKind resumes an already-framed capture file without
// re-emitting its global/section header (spec.md §4.D append semantics).
func openWriterForKind(f *os.File, kind chipkind.Kind) RecordWriter {
	switch kind {
	case chipkind.Uwb:
		return OpenPcapngWriter(f)
	case chipkind.Wifi:
		return OpenPcapWriter(f, layers.LinkTypeIEEE802_11Radio)
	default:
		return OpenPcapWriter(f, layers.LinkTypeBluetoothHCIH4WithPhdr)
	}
}

// Send is the hot path invoked by the transport dispatcher for every
// delivered packet (spec.md §4.D). I/O errors are logged and swallowed: the
// capture continues and size/records only grow on success.
func (r *Registry) Send(chipID idgen.ChipId, payload []byte, pt PacketType, dir Direction) {
	r.mu.RLock()
	c, ok := r.captures[chipID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State != StateOn || c.writer == nil {
		return
	}

	var (
		n   int
		err error
	)
	switch c.ChipKind {
	case chipkind.Uwb:
		n, err = c.writer.WriteUwbRecord(time.Now(), payload)
	case chipkind.Wifi:
		n, err = c.writer.WriteWifiRecord(time.Now(), payload)
	default:
		n, err = c.writer.WriteBluetoothRecord(time.Now(), dir, pt, payload)
	}
	if err != nil {
		r.logger.WithError(err).WithField("chip_id", chipID).Warn("capture write failed")
		return
	}
	c.Size += int64(n)
	c.Records++
}
