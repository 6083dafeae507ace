package main

import (
	"fmt"

	"netsim/internal/capture"
	"netsim/internal/idgen"
	"netsim/internal/registry"
	"netsim/internal/transport"
)

// newRequestHandler adapts a chip's registered adaptor into the
// transport.RequestHandler the pipe/gRPC readers call for every decoded
// guest->controller packet (spec.md §4.I).
func newRequestHandler(devices *registry.Devices, transports *transport.Registry) transport.RequestHandler {
	return func(chipID idgen.ChipId, payload []byte, pt capture.PacketType) error {
		a, ok := devices.ChipAdaptor(chipID)
		if !ok {
			return fmt.Errorf("netsimd: no adaptor registered for chip %d", chipID)
		}
		return a.HandleRequest(payload, pt)
	}
}
