package transport

import (
	"fmt"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"netsim/internal/capture"
	"netsim/internal/idgen"
)

// ChipInfo is the metadata frame that precedes a gRPC connector's stream
// (spec.md §4.I: "upon receiving an initial ChipInfo frame, it opens a
// stream, injects an initial_info PacketRequest").
type ChipInfo struct {
	ChipId idgen.ChipId
	Kind   string
	Name   string
}

// PacketRequest mirrors the client->server message shape of the streaming
// RPC: either an initial_info frame or a framed packet, never both.
type PacketRequest struct {
	InitialInfo *ChipInfo
	HciPacket   []byte
	Packet      []byte
	PacketType  capture.PacketType
}

// PacketResponse mirrors the server->client message shape.
type PacketResponse struct {
	Packet     []byte
	PacketType capture.PacketType
}

// Stream is the subset of a gRPC client stream the connector needs; it
// exists so the connector is testable without a real network transport.
type Stream interface {
	Send(*PacketRequest) error
	Recv() (*PacketResponse, error)
	CloseSend() error
}

// StreamDialer opens a new outbound stream, analogous to calling the
// generated client stub's streaming method.
type StreamDialer func() (Stream, error)

// GrpcConnector forwards one pipe-transport chip's traffic to another
// netsim instance over a gRPC stream, per spec.md §4.I gRPC connector.
// The stream id is allocated by the gRPC client library; this connector
// only needs to remember which local pipe a given stream's responses
// belong to.
type GrpcConnector struct {
	mu      sync.Mutex
	dial    StreamDialer
	streams map[idgen.ChipId]Stream
}

// NewGrpcConnector creates a connector that dials new streams via dial.
func NewGrpcConnector(dial StreamDialer) *GrpcConnector {
	return &GrpcConnector{dial: dial, streams: make(map[idgen.ChipId]Stream)}
}

// Open starts forwarding for chip: opens a stream, sends the initial_info
// frame, then returns. Responses must be drained separately via Drain.
func (c *GrpcConnector) Open(info ChipInfo) error {
	stream, err := c.dial()
	if err != nil {
		return status.Errorf(codes.Unavailable, "transport: dial gRPC connector stream: %v", err)
	}
	if err := stream.Send(&PacketRequest{InitialInfo: &info}); err != nil {
		return status.Errorf(codes.Unavailable, "transport: send initial_info: %v", err)
	}

	c.mu.Lock()
	c.streams[info.ChipId] = stream
	c.mu.Unlock()
	return nil
}

// Forward sends a guest->controller packet read from the local pipe onto
// chip's gRPC stream, per spec.md §4.I ("forwards every framed packet from
// the pipe as a PacketRequest").
func (c *GrpcConnector) Forward(chipID idgen.ChipId, payload []byte, pt capture.PacketType) error {
	c.mu.Lock()
	stream, ok := c.streams[chipID]
	c.mu.Unlock()
	if !ok {
		return status.Errorf(codes.NotFound, "transport: no gRPC connector stream for chip %d", chipID)
	}
	return stream.Send(&PacketRequest{Packet: payload, PacketType: pt})
}

// Drain reads PacketResponse messages from chip's stream until it closes,
// handing each one to onResponse ("every PacketResponse back to the
// pipe" per spec.md §4.I).
func (c *GrpcConnector) Drain(chipID idgen.ChipId, onResponse func(payload []byte, pt capture.PacketType)) error {
	c.mu.Lock()
	stream, ok := c.streams[chipID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: no gRPC connector stream for chip %d", chipID)
	}
	for {
		resp, err := stream.Recv()
		if err != nil {
			c.mu.Lock()
			delete(c.streams, chipID)
			c.mu.Unlock()
			return err
		}
		onResponse(resp.Packet, resp.PacketType)
	}
}

// Close ends chip's forwarding stream.
func (c *GrpcConnector) Close(chipID idgen.ChipId) error {
	c.mu.Lock()
	stream, ok := c.streams[chipID]
	delete(c.streams, chipID)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return stream.CloseSend()
}
