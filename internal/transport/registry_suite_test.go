package transport

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"netsim/internal/capture"
	"netsim/internal/idgen"
)

// RegistryTestSuite groups Registry tests that register/replace/unregister
// more than one chip and need the transport left over the fixture's
// lifetime, the same fixture/body split the teacher's CommandTestSuite uses.
type RegistryTestSuite struct {
	suite.Suite
	reg *Registry
}

func (s *RegistryTestSuite) SetupTest() {
	s.reg = NewRegistry(nil)
}

func (s *RegistryTestSuite) TestUnregisterStopsFurtherDelivery() {
	ft := &fakeTransport{}
	chipID := idgen.ChipId(42)
	s.reg.Register(chipID, ft)

	s.reg.Respond(chipID, []byte{1}, capture.PacketTypeEvent)
	s.reg.Unregister(chipID)
	s.reg.Respond(chipID, []byte{2}, capture.PacketTypeEvent)

	ft.mu.Lock()
	defer ft.mu.Unlock()
	s.Require().Len(ft.got, 1)
	s.Equal([]byte{1}, ft.got[0])
}

func (s *RegistryTestSuite) TestIndependentChipsDoNotCrossDeliver() {
	a, b := &fakeTransport{}, &fakeTransport{}
	s.reg.Register(idgen.ChipId(1), a)
	s.reg.Register(idgen.ChipId(2), b)

	s.reg.Respond(idgen.ChipId(1), []byte{0xA}, capture.PacketTypeEvent)
	s.reg.Respond(idgen.ChipId(2), []byte{0xB}, capture.PacketTypeEvent)

	a.mu.Lock()
	s.Equal([][]byte{{0xA}}, a.got)
	a.mu.Unlock()

	b.mu.Lock()
	s.Equal([][]byte{{0xB}}, b.got)
	b.mu.Unlock()
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}
