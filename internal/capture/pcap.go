// Package capture implements the PCAP/PCAPNG record writer (spec.md §4.C)
// and the per-chip capture registry (spec.md §4.D).
package capture

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Direction tags which way a captured packet travelled, used for the
// Bluetooth H4 direction/packet-type prefix.
type Direction int

const (
	DirectionHostToController Direction = 0
	DirectionControllerToHost Direction = 1
)

// PacketType mirrors the H4 type octet carried alongside every request/response.
type PacketType uint8

const (
	PacketTypeUnspecified PacketType = 0
	PacketTypeCommand     PacketType = 1
	PacketTypeAcl         PacketType = 2
	PacketTypeSco         PacketType = 3
	PacketTypeEvent       PacketType = 4
	PacketTypeIso         PacketType = 5
)

// RecordWriter appends one record at a time and reports the bytes written so
// the caller can maintain size accounting (spec.md: "append_record ...
// returns written_bytes").
type RecordWriter interface {
	// WriteBluetoothRecord writes an H4-framed Bluetooth record: a 4-byte
	// direction/packet-type header followed by payload.
	WriteBluetoothRecord(ts time.Time, dir Direction, pt PacketType, payload []byte) (int, error)
	// WriteWifiRecord writes an 802.11 record wrapped in a minimal RadioTap header.
	WriteWifiRecord(ts time.Time, payload []byte) (int, error)
	// WriteUwbRecord writes a raw UCI payload as a PCAPNG enhanced packet block.
	WriteUwbRecord(ts time.Time, payload []byte) (int, error)
	Close() error
}

// Extension identifies the on-disk capture file format, selected by chip kind
// per spec.md §6 ("Extension is pcapng iff chip kind is Uwb, else pcap").
type Extension string

const (
	ExtPcap   Extension = "pcap"
	ExtPcapng Extension = "pcapng"
)

// minimalRadioTap is an 8-byte RadioTap header with an empty present-flags
// bitmap: version 0, one padding byte, little-endian length, no fields.
func minimalRadioTap() []byte {
	return []byte{0, 0, 8, 0, 0, 0, 0, 0}
}

// pcapWriter implements RecordWriter for Bluetooth/Wi-Fi over classic PCAP.
type pcapWriter struct {
	w        *pcapgo.Writer
	linkType layers.LinkType
}

// NewPcapWriter writes a PCAP global header selecting the given link type
// (Bluetooth HCI H4 with direction, or IEEE-802.11 RadioTap) and returns a
// RecordWriter bound to it.
func NewPcapWriter(w io.Writer, linkType layers.LinkType) (RecordWriter, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(0xFFFF, linkType); err != nil {
		return nil, fmt.Errorf("capture: write pcap header: %w", err)
	}
	return &pcapWriter{w: pw, linkType: linkType}, nil
}

// OpenPcapWriter resumes an already-framed PCAP file: no global header is
// (re)written, so callers must only use it against a file that already
// carries one (spec.md §4.D: "off->on (re)opens the file in append mode").
func OpenPcapWriter(w io.Writer, linkType layers.LinkType) RecordWriter {
	return &pcapWriter{w: pcapgo.NewWriter(w), linkType: linkType}
}

func (p *pcapWriter) WriteBluetoothRecord(ts time.Time, dir Direction, pt PacketType, payload []byte) (int, error) {
	header := []byte{byte(dir), byte(pt), 0, 0}
	return p.write(ts, append(header, payload...))
}

func (p *pcapWriter) WriteWifiRecord(ts time.Time, payload []byte) (int, error) {
	return p.write(ts, append(minimalRadioTap(), payload...))
}

func (p *pcapWriter) WriteUwbRecord(time.Time, []byte) (int, error) {
	return 0, fmt.Errorf("capture: UWB records require a PCAPNG writer")
}

func (p *pcapWriter) write(ts time.Time, data []byte) (int, error) {
	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(data),
		Length:        len(data),
	}
	if err := p.w.WritePacket(ci, data); err != nil {
		return 0, err
	}
	// 16-byte per-record header (ts_sec, ts_usec, incl_len, orig_len) + payload.
	return 16 + len(data), nil
}

func (p *pcapWriter) Close() error { return nil }

// pcapngWriter implements RecordWriter for UWB over PCAPNG. Blocks are
// written by hand (rather than through pcapgo.NgWriter) so that reopening an
// existing capture file in append mode can skip straight to emitting
// Enhanced Packet Blocks without re-running section/interface setup
// (spec.md §4.D: "off->on (re)opens the file in append mode").
type pcapngWriter struct {
	w io.Writer
}

const (
	pcapngBlockTypeSectionHeader = 0x0A0D0D0A
	pcapngBlockTypeInterfaceDesc = 0x00000001
	pcapngBlockTypeEnhancedPkt   = 0x00000006
	pcapngByteOrderMagic         = 0x1A2B3C4D
	pcapngLinkTypeUser0          = 147 // DLT_USER0, used for the opaque UCI payload
)

// NewPcapngWriter opens a fresh PCAPNG section for UWB captures: a Section
// Header Block followed by one Interface Description Block, ready for
// Enhanced Packet Blocks (spec.md §4.C).
func NewPcapngWriter(w io.Writer) (RecordWriter, error) {
	pw := &pcapngWriter{w: w}
	if err := pw.writeSectionHeader(); err != nil {
		return nil, err
	}
	if err := pw.writeInterfaceDescription(); err != nil {
		return nil, err
	}
	return pw, nil
}

// OpenPcapngWriter resumes an existing PCAPNG file: no section/interface
// blocks are (re)written.
func OpenPcapngWriter(w io.Writer) RecordWriter {
	return &pcapngWriter{w: w}
}

func (p *pcapngWriter) writeSectionHeader() error {
	buf := make([]byte, 28)
	binary.LittleEndian.PutUint32(buf[0:4], pcapngBlockTypeSectionHeader)
	binary.LittleEndian.PutUint32(buf[4:8], 28)
	binary.LittleEndian.PutUint32(buf[8:12], pcapngByteOrderMagic)
	binary.LittleEndian.PutUint16(buf[12:14], 1) // major version
	binary.LittleEndian.PutUint16(buf[14:16], 0) // minor version
	binary.LittleEndian.PutUint64(buf[16:24], 0xFFFFFFFFFFFFFFFF) // section length unknown
	binary.LittleEndian.PutUint32(buf[24:28], 28)
	_, err := p.w.Write(buf)
	return err
}

func (p *pcapngWriter) writeInterfaceDescription() error {
	buf := make([]byte, 20)
	binary.LittleEndian.PutUint32(buf[0:4], pcapngBlockTypeInterfaceDesc)
	binary.LittleEndian.PutUint32(buf[4:8], 20)
	binary.LittleEndian.PutUint16(buf[8:10], pcapngLinkTypeUser0)
	binary.LittleEndian.PutUint16(buf[10:12], 0) // reserved
	binary.LittleEndian.PutUint32(buf[12:16], 0xFFFF) // snaplen
	binary.LittleEndian.PutUint32(buf[16:20], 20)
	_, err := p.w.Write(buf)
	return err
}

func (p *pcapngWriter) WriteBluetoothRecord(time.Time, Direction, PacketType, []byte) (int, error) {
	return 0, fmt.Errorf("capture: Bluetooth records require a PCAP writer")
}

func (p *pcapngWriter) WriteWifiRecord(time.Time, []byte) (int, error) {
	return 0, fmt.Errorf("capture: Wi-Fi records require a PCAP writer")
}

// WriteUwbRecord writes one Enhanced Packet Block: fixed fields, the
// payload padded to a 4-byte boundary, and a trailing total-length field.
func (p *pcapngWriter) WriteUwbRecord(ts time.Time, payload []byte) (int, error) {
	padded := (len(payload) + 3) &^ 3
	total := 32 + padded

	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], pcapngBlockTypeEnhancedPkt)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(total))
	binary.LittleEndian.PutUint32(buf[8:12], 0) // interface id

	micros := uint64(ts.UnixMicro())
	binary.LittleEndian.PutUint32(buf[12:16], uint32(micros>>32))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(micros))

	binary.LittleEndian.PutUint32(buf[20:24], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(len(payload)))
	copy(buf[28:28+len(payload)], payload)
	binary.LittleEndian.PutUint32(buf[total-4:total], uint32(total))

	if _, err := p.w.Write(buf); err != nil {
		return 0, err
	}
	return total, nil
}

func (p *pcapngWriter) Close() error { return nil }
