package transport

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsim/internal/capture"
	"netsim/internal/idgen"
)

type fakeStream struct {
	sent      []*PacketRequest
	responses []*PacketResponse
	recvIdx   int
	closed    bool
}

func (s *fakeStream) Send(req *PacketRequest) error {
	s.sent = append(s.sent, req)
	return nil
}

func (s *fakeStream) Recv() (*PacketResponse, error) {
	if s.recvIdx >= len(s.responses) {
		return nil, io.EOF
	}
	r := s.responses[s.recvIdx]
	s.recvIdx++
	return r, nil
}

func (s *fakeStream) CloseSend() error {
	s.closed = true
	return nil
}

func TestGrpcConnectorOpenSendsInitialInfo(t *testing.T) {
	stream := &fakeStream{}
	c := NewGrpcConnector(func() (Stream, error) { return stream, nil })

	err := c.Open(ChipInfo{ChipId: idgen.ChipId(1000), Kind: "BLUETOOTH", Name: "bt0"})
	require.NoError(t, err)

	require.Len(t, stream.sent, 1)
	require.NotNil(t, stream.sent[0].InitialInfo)
	assert.Equal(t, idgen.ChipId(1000), stream.sent[0].InitialInfo.ChipId)
}

func TestGrpcConnectorForwardFailsWithoutOpen(t *testing.T) {
	c := NewGrpcConnector(func() (Stream, error) { return &fakeStream{}, nil })
	err := c.Forward(idgen.ChipId(1), []byte{1}, capture.PacketTypeAcl)
	assert.Error(t, err)
}

func TestGrpcConnectorForwardSendsPacket(t *testing.T) {
	stream := &fakeStream{}
	c := NewGrpcConnector(func() (Stream, error) { return stream, nil })
	require.NoError(t, c.Open(ChipInfo{ChipId: idgen.ChipId(1)}))

	err := c.Forward(idgen.ChipId(1), []byte{1, 2}, capture.PacketTypeAcl)
	require.NoError(t, err)
	require.Len(t, stream.sent, 2)
	assert.Equal(t, []byte{1, 2}, stream.sent[1].Packet)
}

func TestGrpcConnectorDrainDeliversResponses(t *testing.T) {
	stream := &fakeStream{responses: []*PacketResponse{
		{Packet: []byte{9}, PacketType: capture.PacketTypeEvent},
	}}
	c := NewGrpcConnector(func() (Stream, error) { return stream, nil })
	require.NoError(t, c.Open(ChipInfo{ChipId: idgen.ChipId(1)}))

	var got []byte
	err := c.Drain(idgen.ChipId(1), func(payload []byte, pt capture.PacketType) { got = payload })
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []byte{9}, got)
}

func TestGrpcConnectorCloseEndsStream(t *testing.T) {
	stream := &fakeStream{}
	c := NewGrpcConnector(func() (Stream, error) { return stream, nil })
	require.NoError(t, c.Open(ChipInfo{ChipId: idgen.ChipId(1)}))

	require.NoError(t, c.Close(idgen.ChipId(1)))
	assert.True(t, stream.closed)

	err := c.Forward(idgen.ChipId(1), []byte{1}, capture.PacketTypeAcl)
	assert.Error(t, err)
}
