// Package transport implements the packet-transport dispatcher of
// spec.md §4.I: a process-wide chip_id->Transport map, the framed-pipe
// reader loop, and teardown-on-disconnect. The goroutine-per-connection
// read loop and logrus field logging follow internal/ptyio.go's pattern;
// concurrent map access follows scanner.Scanner's hashmap.Map-guarded
// registration idiom.
package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"netsim/internal/capture"
	"netsim/internal/chipkind"
	"netsim/internal/groutine"
	"netsim/internal/idgen"
)

// Transport is any object that can deliver a controller->guest packet.
type Transport interface {
	Respond(packet []byte, pt capture.PacketType) error
}

// RequestHandler is the per-chip callback the reader loop invokes for every
// decoded guest->controller packet (backed by adaptor.Adaptor.HandleRequest
// in production).
type RequestHandler func(chipID idgen.ChipId, payload []byte, pt capture.PacketType) error

// RemoveChipFunc tears the chip down in the device registry once its
// transport has been unregistered.
type RemoveChipFunc func(chipID idgen.ChipId) error

// Registry is the process-wide chip_id->Transport map.
type Registry struct {
	m      *hashmap.Map[idgen.ChipId, Transport]
	logger *logrus.Logger
}

// NewRegistry creates an empty transport registry.
func NewRegistry(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{m: hashmap.New[idgen.ChipId, Transport](), logger: logger}
}

// Register binds chipID to t. A chip has exactly one active transport at a
// time; registering over an existing entry replaces it and logs a warning,
// abandoning the previous endpoint (spec.md §4.I).
func (r *Registry) Register(chipID idgen.ChipId, t Transport) {
	if _, existed := r.m.Get(chipID); existed {
		r.logger.WithField("chip_id", chipID).Warn("transport: replacing existing transport for chip")
	}
	r.m.Set(chipID, t)
}

// Unregister removes chipID's transport, if any.
func (r *Registry) Unregister(chipID idgen.ChipId) {
	r.m.Del(chipID)
}

// Get returns the transport bound to chipID, if any.
func (r *Registry) Get(chipID idgen.ChipId) (Transport, bool) {
	return r.m.Get(chipID)
}

// Respond looks up chipID's transport and forwards the packet, per
// spec.md §4.G handle_response. Missing transports are logged and ignored:
// the guest is expected to reconnect.
func (r *Registry) Respond(chipID idgen.ChipId, packet []byte, pt capture.PacketType) {
	t, ok := r.m.Get(chipID)
	if !ok {
		r.logger.WithField("chip_id", chipID).Warn("transport: respond to unregistered chip, dropping")
		return
	}
	if err := t.Respond(packet, pt); err != nil {
		r.logger.WithError(err).WithField("chip_id", chipID).Warn("transport: respond failed")
	}
}

// H4 type octets (spec.md §4.I pipe reader loop).
const (
	h4TypeCommand = 1
	h4TypeAcl     = 2
	h4TypeSco     = 3
	h4TypeEvent   = 4
	h4TypeIso     = 5
)

// h4HeaderLen is the type-specific header length (excluding the leading
// type octet) for each H4 packet type.
var h4HeaderLen = map[byte]int{
	h4TypeCommand: 3,
	h4TypeAcl:     4,
	h4TypeSco:     3,
	h4TypeEvent:   2,
	h4TypeIso:     4,
}

// h4PayloadLength reads the payload length from the trailing length
// octet(s) of the type-specific header. Command/Event/SCO carry a 1-byte
// length in the last header octet; ACL/ISO carry a 2-byte little-endian
// length in the last two header octets.
func h4PayloadLength(h4Type byte, header []byte) int {
	switch h4Type {
	case h4TypeCommand, h4TypeEvent, h4TypeSco:
		return int(header[len(header)-1])
	default: // Acl, Iso
		return int(binary.LittleEndian.Uint16(header[len(header)-2:]))
	}
}

// PipeReader reads framed packets for one chip off r and calls handle for
// each decoded payload (spec.md §4.I pipe reader loop).
type PipeReader struct {
	ChipId  idgen.ChipId
	Kind    chipkind.Kind
	R       io.Reader
	Handle  RequestHandler
	Logger  *logrus.Logger
}

// Run blocks reading frames until EOF or an unrecoverable error, then calls
// onExit(chipID) exactly once so the caller can unregister the transport
// and remove the chip, in that order (spec.md §4.I "on exit").
func (p *PipeReader) Run(ctx context.Context, onExit func(idgen.ChipId)) {
	logger := p.Logger
	if logger == nil {
		logger = logrus.New()
	}
	groutine.Go(ctx, fmt.Sprintf("pipe-reader-chip-%d", p.ChipId), func(ctx context.Context) {
		defer onExit(p.ChipId)
		var err error
		switch p.Kind {
		case chipkind.Uwb:
			err = p.readUwbLoop()
		case chipkind.Bluetooth:
			err = p.readBluetoothLoop()
		default:
			err = fmt.Errorf("transport: pipe reader does not support kind %s", p.Kind)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				logger.WithField("chip_id", p.ChipId).Info("transport: pipe closed, exiting reader")
			} else {
				logger.WithError(err).WithField("chip_id", p.ChipId).Warn("transport: pipe reader exiting on error")
			}
		}
	})
}

func (p *PipeReader) readBluetoothLoop() error {
	for {
		var typeByte [1]byte
		if _, err := io.ReadFull(p.R, typeByte[:]); err != nil {
			return err
		}
		h4Type := typeByte[0]
		headerLen, ok := h4HeaderLen[h4Type]
		if !ok {
			return fmt.Errorf("transport: unknown h4 type %d", h4Type)
		}
		header := make([]byte, headerLen)
		if _, err := io.ReadFull(p.R, header); err != nil {
			return err
		}
		payloadLen := h4PayloadLength(h4Type, header)
		payload := make([]byte, payloadLen)
		if payloadLen > 0 {
			if _, err := io.ReadFull(p.R, payload); err != nil {
				return err
			}
		}
		if err := p.Handle(p.ChipId, payload, capture.PacketType(h4Type)); err != nil {
			return err
		}
	}
}

const uciHeaderLen = 4

func (p *PipeReader) readUwbLoop() error {
	for {
		header := make([]byte, uciHeaderLen)
		if _, err := io.ReadFull(p.R, header); err != nil {
			return err
		}
		payloadLen := int(header[3])
		payload := make([]byte, payloadLen)
		if payloadLen > 0 {
			if _, err := io.ReadFull(p.R, payload); err != nil {
				return err
			}
		}
		if err := p.Handle(p.ChipId, payload, capture.PacketTypeUnspecified); err != nil {
			return err
		}
	}
}

// PipeTransport is the Cuttlefish-style transport: a pair of file
// descriptors, one for reading guest-origin packets and one for writing
// controller-origin packets.
type PipeTransport struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPipeTransport wraps the write-half of a pipe transport.
func NewPipeTransport(out io.Writer) *PipeTransport {
	return &PipeTransport{out: out}
}

// Respond prepends the packet-type octet (unless Unspecified) and writes
// the concatenated buffer in one call; partial failure is logged by the
// caller and ignored, per spec.md §4.I.
func (t *PipeTransport) Respond(packet []byte, pt capture.PacketType) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var buf []byte
	if pt != capture.PacketTypeUnspecified {
		buf = append([]byte{byte(pt)}, packet...)
	} else {
		buf = packet
	}
	_, err := t.out.Write(buf)
	return err
}
