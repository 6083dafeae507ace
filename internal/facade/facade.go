// Package facade implements the protocol-agnostic front-end surface of
// spec.md §4.J: a single set of operations consumed by both the HTTP and
// gRPC bindings, the same way bridge.BridgeCallback[R] lets one generic
// callback serve more than one transport in the teacher codebase.
package facade

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"netsim/internal/adaptor"
	"netsim/internal/capture"
	"netsim/internal/chipkind"
	"netsim/internal/eventbus"
	"netsim/internal/idgen"
	"netsim/internal/registry"
)

// Version is the static string GetVersion reports.
const Version = "netsim-0.1"

// SubscribeTimeout bounds how long SubscribeDevice blocks for a new event
// before giving up (spec.md §4.J).
const SubscribeTimeout = 15 * time.Second

// ErrSubscribeTimeout is returned by SubscribeDevice when no qualifying
// event arrived within SubscribeTimeout (spec.md §5: "on timeout it returns
// HTTP 404 with the timeout message").
var ErrSubscribeTimeout = errors.New("subscribe timed out waiting for a device event")

// ChipCreate is one chip in a CreateDevice request.
type ChipCreate struct {
	Kind chipkind.Kind
	Name string
}

// DeviceCreate is the CreateDevice request body.
type DeviceCreate struct {
	Name  string
	Chips []ChipCreate
}

// PatchDeviceFields identifies the target device (by id or name) and carries
// the optional fields to mutate, mirroring registry.DevicePatch.
type PatchDeviceFields struct {
	Id          *idgen.DeviceId
	Name        string
	Visible     *bool
	Position    *registry.Position
	Orientation *registry.Orientation
	Chips       []ChipPatchFields
}

// ChipPatchFields identifies one chip within PatchDeviceFields.Chips.
type ChipPatchFields struct {
	Kind    chipkind.Kind
	Name    string
	Request adaptor.PatchRequest
}

// ListDeviceResponse is ListDevice's and SubscribeDevice's return shape.
type ListDeviceResponse struct {
	Devices      []*registry.Device
	LastModified time.Time
}

// CapturePatch carries PatchCapture's requested state.
type CapturePatch struct {
	State capture.State
}

// CaptureChunk is one frame of GetCapture's server stream.
type CaptureChunk struct {
	Data []byte
}

// Facade binds a device registry and a capture registry behind the
// operations spec.md §4.J names. It has no transport-specific knowledge;
// httpapi and any gRPC service wrap it.
type Facade struct {
	devices          *registry.Devices
	captures         *capture.Registry
	bus              *eventbus.Bus
	subscribeTimeout time.Duration
}

// New creates a facade over an already-constructed registry pair.
func New(devices *registry.Devices, captures *capture.Registry, bus *eventbus.Bus) *Facade {
	return &Facade{devices: devices, captures: captures, bus: bus, subscribeTimeout: SubscribeTimeout}
}

// WithSubscribeTimeout overrides the SubscribeDevice wait, primarily for tests.
func (f *Facade) WithSubscribeTimeout(d time.Duration) *Facade {
	f.subscribeTimeout = d
	return f
}

// GetVersion reports the static daemon version string.
func (f *Facade) GetVersion(ctx context.Context) (string, error) {
	return Version, nil
}

// CreateDevice implements spec.md §4.H create_device via the registry.
func (f *Facade) CreateDevice(ctx context.Context, req DeviceCreate) (*registry.Device, error) {
	chips := make([]registry.CreateChipRequest, len(req.Chips))
	for i, c := range req.Chips {
		chips[i] = registry.CreateChipRequest{Kind: c.Kind, Name: c.Name}
	}
	deviceID, err := f.devices.CreateDevice(registry.CreateDeviceRequest{Name: req.Name, Chips: chips})
	if err != nil {
		return nil, toStatus(err)
	}
	for _, dev := range f.devices.ListDevice() {
		if dev.Id == deviceID {
			return dev, nil
		}
	}
	return nil, status.Errorf(codes.Internal, "facade: created device %d vanished before it could be read back", deviceID)
}

// DeleteChip implements spec.md §4.H delete_chip.
func (f *Facade) DeleteChip(ctx context.Context, chipID idgen.ChipId) error {
	_, err := f.devices.DeleteChip(chipID)
	return toStatus(err)
}

// PatchDevice implements spec.md §4.H patch_device.
func (f *Facade) PatchDevice(ctx context.Context, fields PatchDeviceFields) error {
	patch := registry.DevicePatch{
		Visible:     fields.Visible,
		Position:    fields.Position,
		Orientation: fields.Orientation,
	}
	for _, cp := range fields.Chips {
		patch.Chips = append(patch.Chips, registry.ChipPatch{Kind: cp.Kind, Name: cp.Name, Request: cp.Request})
	}
	_, err := f.devices.PatchDevice(fields.Id, fields.Name, patch)
	return toStatus(err)
}

// ListDevice returns a snapshot of every device plus the registry's
// last-modified timestamp.
func (f *Facade) ListDevice(ctx context.Context) ListDeviceResponse {
	return ListDeviceResponse{Devices: f.devices.ListDevice(), LastModified: f.devices.LastModified()}
}

// Reset implements spec.md §4.H reset.
func (f *Facade) Reset(ctx context.Context) error {
	f.devices.Reset()
	return nil
}

// SubscribeDevice implements spec.md §4.J SubscribeDevice: if the registry
// has changed since lastModified it returns immediately, otherwise it blocks
// on the event bus for up to SubscribeTimeout and reports ErrSubscribeTimeout
// if nothing qualifying arrived in time.
func (f *Facade) SubscribeDevice(ctx context.Context, lastModified time.Time) (ListDeviceResponse, error) {
	if f.devices.LastModified().After(lastModified) {
		return f.ListDevice(ctx), nil
	}

	sub := f.bus.Subscribe(8)
	defer sub.Unsubscribe()

	timer := time.NewTimer(f.subscribeTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ListDeviceResponse{}, status.FromContextError(ctx.Err()).Err()
		case <-timer.C:
			return ListDeviceResponse{}, toStatus(ErrSubscribeTimeout)
		case e, ok := <-sub.C():
			if !ok {
				return ListDeviceResponse{}, toStatus(ErrSubscribeTimeout)
			}
			switch e.Kind {
			case eventbus.DeviceAdded, eventbus.DeviceRemoved, eventbus.DevicePatched,
				eventbus.ChipAdded, eventbus.ChipRemoved, eventbus.DeviceReset:
				return f.ListDevice(ctx), nil
			}
		}
	}
}

// ListCapture returns every known capture, optionally filtered by CLI-style
// patterns (spec.md §4.J): a capture matches iff every supplied pattern
// matches, case-insensitively, at least one of its id, device name, or chip
// kind string.
func (f *Facade) ListCapture(ctx context.Context, patterns []string) []capture.Capture {
	all := f.captures.List()
	if len(patterns) == 0 {
		return all
	}

	out := make([]capture.Capture, 0, len(all))
	for _, c := range all {
		if matchesAllPatterns(c, patterns) {
			out = append(out, c)
		}
	}
	return out
}

func matchesAllPatterns(c capture.Capture, patterns []string) bool {
	fields := []string{
		strconv.FormatUint(uint64(c.ChipId), 10),
		c.DeviceName,
		c.ChipKind.String(),
	}
	for _, p := range patterns {
		p = strings.ToLower(p)
		matched := false
		for _, field := range fields {
			if strings.Contains(strings.ToLower(field), p) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// PatchCapture implements spec.md §4.D patch.
func (f *Facade) PatchCapture(ctx context.Context, chipID idgen.ChipId, patch CapturePatch) error {
	_, err := f.captures.Patch(chipID, patch.State)
	return toStatus(err)
}

// GetCapture streams a capture file in fixed-size chunks, calling send for
// each one (spec.md §4.J server-stream of chunks).
func (f *Facade) GetCapture(ctx context.Context, chipID idgen.ChipId, chunkSize int, send func(CaptureChunk) error) error {
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	_, file, err := f.captures.Get(chipID)
	if err != nil {
		return toStatus(err)
	}
	defer file.Close()

	buf := make([]byte, chunkSize)
	for {
		n, rerr := file.Read(buf)
		if n > 0 {
			if serr := send(CaptureChunk{Data: append([]byte(nil), buf[:n]...)}); serr != nil {
				return serr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return status.Errorf(codes.Internal, "facade: read capture %d: %v", chipID, rerr)
		}
	}
}

// toStatus maps the registry/capture error taxonomy of spec.md §7 onto gRPC
// status codes; HTTP bindings translate the code to a status line.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSubscribeTimeout) {
		return status.Error(codes.NotFound, err.Error())
	}
	switch err.(type) {
	case *registry.NotFoundError, *capture.NotFoundError:
		return status.Error(codes.NotFound, err.Error())
	case *registry.AmbiguousMatchError:
		return status.Error(codes.FailedPrecondition, err.Error())
	case *registry.DuplicateChipError:
		return status.Error(codes.AlreadyExists, err.Error())
	}
	msg := err.Error()
	if strings.Contains(msg, "already exists") {
		return status.Error(codes.AlreadyExists, msg)
	}
	if strings.Contains(msg, "requires at least one chip") || strings.Contains(msg, "only accepts built-in") {
		return status.Error(codes.InvalidArgument, msg)
	}
	return status.Error(codes.Unknown, fmt.Sprintf("facade: %s", msg))
}
