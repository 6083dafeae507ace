// Package registry implements the device/chip registry of spec.md §4.H: a
// process-wide catalogue of devices and their radio chips, guarded by a
// single reader-writer lock held for the shortest possible window, the same
// discipline internal/device/go-ble/ble_device.go uses around its own
// connection state.
package registry

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"netsim/internal/adaptor"
	"netsim/internal/chipkind"
	"netsim/internal/eventbus"
	"netsim/internal/idgen"
	"netsim/internal/pose"
)

// Position and Orientation mirror spec.md §3's Device fields.
type Position struct{ X, Y, Z float32 }
type Orientation struct{ Yaw, Pitch, Roll float32 }

// Chip is the per-radio record a Device owns.
type Chip struct {
	Id          idgen.ChipId
	DeviceId    idgen.DeviceId
	Kind        chipkind.Kind
	Address     string
	Name        string
	DeviceName  string
	Manufacturer string
	ProductName string
	StartTime   time.Time
	Adaptor     *adaptor.Adaptor
}

// Device is the per-guid record spec.md §3 describes.
type Device struct {
	Id          idgen.DeviceId
	Guid        string
	Name        string
	Visible     bool `default:"true"`
	Position    Position
	Orientation Orientation
	Chips       *orderedmap.OrderedMap[idgen.ChipId, *Chip]
	Builtin     bool
	Kind        string
}

// NotFoundError reports an unknown device or chip id.
type NotFoundError struct {
	What string
	Id   uint32
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("registry: %s %d not found", e.What, e.Id)
}

// AmbiguousMatchError reports a substring name match with more than one hit.
type AmbiguousMatchError struct {
	Substring string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("Multiple ambiguous matches were found with substring %s", e.Substring)
}

// DuplicateChipError reports a (kind,name) collision within one device.
type DuplicateChipError struct {
	ExistingId idgen.ChipId
}

func (e *DuplicateChipError) Error() string {
	return fmt.Sprintf("duplicate at id %d, skipping", e.ExistingId)
}

// AdaptorFactory constructs a chip's adaptor outside the registry's write
// lock, per spec.md §4.H add_chip step 3 ("release the lock, construct the
// adaptor... reacquire the write lock").
type AdaptorFactory func(chipID idgen.ChipId, kind chipkind.Kind) (*adaptor.Adaptor, error)

// Devices is the process-wide registry.
type Devices struct {
	mu             sync.RWMutex
	entries        *orderedmap.OrderedMap[idgen.DeviceId, *Device]
	guidIndex      map[string]idgen.DeviceId
	chipIndex      map[idgen.ChipId]idgen.DeviceId
	deviceIds      *idgen.DeviceFactory
	chipIds        *idgen.ChipFactory
	lastModified   time.Time
	bus            *eventbus.Bus
	newAdaptor     AdaptorFactory
}

// New creates an empty registry.
func New(bus *eventbus.Bus, newAdaptor AdaptorFactory) *Devices {
	return &Devices{
		entries:    orderedmap.New[idgen.DeviceId, *Device](),
		guidIndex:  make(map[string]idgen.DeviceId),
		chipIndex:  make(map[idgen.ChipId]idgen.DeviceId),
		deviceIds:  idgen.NewDeviceFactory(),
		chipIds:    idgen.NewChipFactory(),
		bus:        bus,
		newAdaptor: newAdaptor,
	}
}

func (d *Devices) touch() {
	d.lastModified = time.Now()
}

// LastModified reports the wall-clock time of the last successful mutation.
func (d *Devices) LastModified() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastModified
}

// AddChip implements spec.md §4.H add_chip.
func (d *Devices) AddChip(guid, deviceName string, kind chipkind.Kind, chipName string) (idgen.DeviceId, idgen.ChipId, error) {
	d.mu.Lock()
	deviceID, ok := d.guidIndex[guid]
	var dev *Device
	if !ok {
		deviceID = d.deviceIds.Next()
		dev = &Device{
			Id:      deviceID,
			Guid:    guid,
			Name:    deviceName,
			Chips:   orderedmap.New[idgen.ChipId, *Chip](),
			Builtin: kind.IsBuiltin(),
			Kind:    kind.String(),
		}
		defaults.SetDefaults(dev)
		d.entries.Set(deviceID, dev)
		d.guidIndex[guid] = deviceID
		d.touch()
		d.mu.Unlock()
		d.bus.Publish(eventbus.Event{Kind: eventbus.DeviceAdded, DeviceId: deviceID, Name: deviceName, Builtin: dev.Builtin})
		d.mu.Lock()
	} else {
		dev, _ = d.entries.Get(deviceID)
	}

	chipID := d.chipIds.Next()
	if chipName == "" {
		chipName = fmt.Sprintf("chip-%d", chipID)
	}
	for pair := dev.Chips.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Kind == kind && pair.Value.Name == chipName {
			existing := pair.Value.Id
			d.mu.Unlock()
			return 0, 0, &DuplicateChipError{ExistingId: existing}
		}
	}

	chip := &Chip{
		Id:         chipID,
		DeviceId:   deviceID,
		Kind:       kind,
		Name:       chipName,
		DeviceName: deviceName,
		StartTime:  time.Now(),
	}
	dev.Chips.Set(chipID, chip)
	d.chipIndex[chipID] = deviceID
	d.mu.Unlock()

	a, err := d.newAdaptor(chipID, kind)
	if err != nil {
		d.mu.Lock()
		dev.Chips.Delete(chipID)
		delete(d.chipIndex, chipID)
		d.mu.Unlock()
		return 0, 0, fmt.Errorf("registry: construct adaptor: %w", err)
	}

	d.mu.Lock()
	chip.Adaptor = a
	d.touch()
	d.mu.Unlock()

	d.bus.Publish(eventbus.Event{Kind: eventbus.ChipAdded, DeviceId: deviceID, ChipId: chipID, ChipKind: kind, Builtin: kind.IsBuiltin()})
	return deviceID, chipID, nil
}

// countNonBuiltin must be called with the lock held.
func (d *Devices) countNonBuiltin() int {
	n := 0
	for pair := d.entries.Oldest(); pair != nil; pair = pair.Next() {
		if !pair.Value.Builtin {
			n++
		}
	}
	return n
}

// RemoveChip implements spec.md §4.H remove_chip.
func (d *Devices) RemoveChip(deviceID idgen.DeviceId, chipID idgen.ChipId) ([]eventbus.RadioStat, error) {
	d.mu.Lock()
	dev, ok := d.entries.Get(deviceID)
	if !ok {
		d.mu.Unlock()
		return nil, &NotFoundError{What: "device", Id: uint32(deviceID)}
	}
	chip, ok := dev.Chips.Get(chipID)
	if !ok {
		d.mu.Unlock()
		return nil, &NotFoundError{What: "chip", Id: uint32(chipID)}
	}
	dev.Chips.Delete(chipID)
	delete(d.chipIndex, chipID)
	deviceRemoved := dev.Chips.Len() == 0
	if deviceRemoved {
		d.entries.Delete(deviceID)
		delete(d.guidIndex, dev.Guid)
	}
	d.touch()
	d.mu.Unlock()

	var stats []eventbus.RadioStat
	if chip.Adaptor != nil {
		stats = chip.Adaptor.GetStats()
		_ = chip.Adaptor.Close()
	}

	if deviceRemoved {
		d.bus.Publish(eventbus.Event{Kind: eventbus.DeviceRemoved, DeviceId: deviceID, Name: dev.Name})
	}

	d.mu.RLock()
	remaining := d.countNonBuiltin()
	d.mu.RUnlock()

	d.bus.Publish(eventbus.Event{
		Kind:                       eventbus.ChipRemoved,
		DeviceId:                   deviceID,
		ChipId:                     chipID,
		ChipKind:                   chip.Kind,
		RemainingNonBuiltinDevices: remaining,
		RadioStats:                 stats,
	})
	return stats, nil
}

// DeleteChip implements spec.md §4.H delete_chip: reverse lookup chip_id ->
// device_id, then RemoveChip.
func (d *Devices) DeleteChip(chipID idgen.ChipId) ([]eventbus.RadioStat, error) {
	d.mu.RLock()
	deviceID, ok := d.chipIndex[chipID]
	d.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{What: "chip", Id: uint32(chipID)}
	}
	return d.RemoveChip(deviceID, chipID)
}

// DevicePatch carries the optional fields PatchDevice may mutate.
type DevicePatch struct {
	Visible     *bool
	Position    *Position
	Orientation *Orientation
	Chips       []ChipPatch
}

// ChipPatch carries a single chip-scoped patch, identified by kind and an
// optional exact/substring name.
type ChipPatch struct {
	Kind    chipkind.Kind
	Name    string
	Request adaptor.PatchRequest
}

func (d *Devices) findDeviceLocked(id *idgen.DeviceId, name string) (*Device, error) {
	if id != nil {
		dev, ok := d.entries.Get(*id)
		if !ok {
			return nil, &NotFoundError{What: "device", Id: uint32(*id)}
		}
		return dev, nil
	}

	var exact *Device
	var substringMatches []*Device
	for pair := d.entries.Oldest(); pair != nil; pair = pair.Next() {
		dev := pair.Value
		if dev.Name == name {
			exact = dev
			break
		}
		if strings.Contains(dev.Name, name) {
			substringMatches = append(substringMatches, dev)
		}
	}
	if exact != nil {
		return exact, nil
	}
	if len(substringMatches) == 1 {
		return substringMatches[0], nil
	}
	if len(substringMatches) > 1 {
		return nil, &AmbiguousMatchError{Substring: name}
	}
	return nil, fmt.Errorf("registry: no device matches name %q", name)
}

func findChipLocked(dev *Device, kind chipkind.Kind, name string) (*Chip, error) {
	var exact *Chip
	var matches []*Chip
	for pair := dev.Chips.Oldest(); pair != nil; pair = pair.Next() {
		chip := pair.Value
		if chip.Kind != kind {
			continue
		}
		if name != "" && chip.Name == name {
			exact = chip
			break
		}
		matches = append(matches, chip)
	}
	if exact != nil {
		return exact, nil
	}
	if name != "" {
		var substringMatches []*Chip
		for _, c := range matches {
			if strings.Contains(c.Name, name) {
				substringMatches = append(substringMatches, c)
			}
		}
		if len(substringMatches) == 1 {
			return substringMatches[0], nil
		}
		if len(substringMatches) > 1 {
			return nil, &AmbiguousMatchError{Substring: name}
		}
		return nil, fmt.Errorf("registry: no chip of kind %s matches name %q", kind, name)
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("registry: no chip of kind %s", kind)
	}
	return nil, fmt.Errorf("registry: multiple chips of kind %s, name required", kind)
}

// PatchDevice implements spec.md §4.H patch_device.
func (d *Devices) PatchDevice(id *idgen.DeviceId, name string, patch DevicePatch) (idgen.DeviceId, error) {
	d.mu.Lock()
	dev, err := d.findDeviceLocked(id, name)
	if err != nil {
		d.mu.Unlock()
		return 0, err
	}

	if patch.Visible != nil {
		dev.Visible = *patch.Visible
	}
	if patch.Position != nil {
		dev.Position = *patch.Position
	}
	if patch.Orientation != nil {
		dev.Orientation = *patch.Orientation
	}

	var chipsToPatch []struct {
		chip *Chip
		req  adaptor.PatchRequest
	}
	for _, cp := range patch.Chips {
		chip, cerr := findChipLocked(dev, cp.Kind, cp.Name)
		if cerr != nil {
			d.mu.Unlock()
			return 0, cerr
		}
		chipsToPatch = append(chipsToPatch, struct {
			chip *Chip
			req  adaptor.PatchRequest
		}{chip, cp.Request})
	}
	d.touch()
	deviceID := dev.Id
	deviceFinalName := dev.Name
	d.mu.Unlock()

	for _, cp := range chipsToPatch {
		if cp.chip.Adaptor != nil {
			if err := cp.chip.Adaptor.Patch(cp.req); err != nil {
				return 0, err
			}
		}
	}

	d.bus.Publish(eventbus.Event{Kind: eventbus.DevicePatched, DeviceId: deviceID, Name: deviceFinalName})
	return deviceID, nil
}

// CreateChipRequest is one chip in a CreateDevice request.
type CreateChipRequest struct {
	Kind chipkind.Kind
	Name string
}

// CreateDeviceRequest mirrors spec.md §4.H create_device's parsed shape.
type CreateDeviceRequest struct {
	Name  string
	Chips []CreateChipRequest
}

// CreateDevice implements spec.md §4.H create_device: every chip must be a
// built-in radio kind (currently only BluetoothBeacon), names are unique,
// default name is "device-<id>".
func (d *Devices) CreateDevice(req CreateDeviceRequest) (idgen.DeviceId, error) {
	if len(req.Chips) == 0 {
		return 0, fmt.Errorf("registry: create_device requires at least one chip")
	}
	for _, c := range req.Chips {
		if !c.Kind.IsBuiltin() {
			return 0, fmt.Errorf("registry: create_device only accepts built-in radio kinds, got %s", c.Kind)
		}
	}

	d.mu.Lock()
	deviceID := d.deviceIds.Next()
	name := req.Name
	if name == "" {
		name = fmt.Sprintf("device-%d", deviceID)
	}
	for pair := d.entries.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Name == name {
			d.mu.Unlock()
			return 0, fmt.Errorf("registry: device name %q already exists", name)
		}
	}
	dev := &Device{
		Id:      deviceID,
		Guid:    fmt.Sprintf("builtin:%d", deviceID),
		Name:    name,
		Chips:   orderedmap.New[idgen.ChipId, *Chip](),
		Builtin: true,
		Kind:    "BLUETOOTH_BEACON",
	}
	defaults.SetDefaults(dev)
	d.entries.Set(deviceID, dev)
	d.guidIndex[dev.Guid] = deviceID
	d.touch()
	d.mu.Unlock()

	d.bus.Publish(eventbus.Event{Kind: eventbus.DeviceAdded, DeviceId: deviceID, Name: name, Builtin: true})

	for _, c := range req.Chips {
		d.mu.Lock()
		chipID := d.chipIds.Next()
		chipName := c.Name
		if chipName == "" {
			chipName = fmt.Sprintf("chip-%d", chipID)
		}
		chip := &Chip{Id: chipID, DeviceId: deviceID, Kind: c.Kind, Name: chipName, DeviceName: name, StartTime: time.Now()}
		dev.Chips.Set(chipID, chip)
		d.chipIndex[chipID] = deviceID
		d.mu.Unlock()

		a, err := d.newAdaptor(chipID, c.Kind)
		if err != nil {
			return deviceID, fmt.Errorf("registry: construct adaptor: %w", err)
		}
		d.mu.Lock()
		chip.Adaptor = a
		d.touch()
		d.mu.Unlock()

		d.bus.Publish(eventbus.Event{Kind: eventbus.ChipAdded, DeviceId: deviceID, ChipId: chipID, ChipKind: c.Kind, Builtin: c.Kind.IsBuiltin()})
	}

	return deviceID, nil
}

// Reset implements spec.md §4.H reset.
func (d *Devices) Reset() {
	d.mu.Lock()
	var chips []*Chip
	for pair := d.entries.Oldest(); pair != nil; pair = pair.Next() {
		dev := pair.Value
		dev.Visible = true
		dev.Position = Position{}
		dev.Orientation = Orientation{}
		for cp := dev.Chips.Oldest(); cp != nil; cp = cp.Next() {
			chips = append(chips, cp.Value)
		}
	}
	d.touch()
	d.mu.Unlock()

	for _, chip := range chips {
		if chip.Adaptor != nil {
			chip.Adaptor.Reset()
		}
	}

	d.bus.Publish(eventbus.Event{Kind: eventbus.DeviceReset})
}

// GetDistance implements spec.md §4.H get_distance.
func (d *Devices) GetDistance(chipA, chipB idgen.ChipId) (float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	devA, err := d.deviceForChipLocked(chipA)
	if err != nil {
		return 0, err
	}
	devB, err := d.deviceForChipLocked(chipB)
	if err != nil {
		return 0, err
	}
	return pose.Distance(
		float64(devA.Position.X), float64(devA.Position.Y), float64(devA.Position.Z),
		float64(devB.Position.X), float64(devB.Position.Y), float64(devB.Position.Z),
	), nil
}

// ChipDeviceName returns the owning device's name for chipID, for use by an
// AdaptorFactory that needs it to register a capture file before the
// adaptor itself exists (spec.md §4.H add_chip runs the factory after the
// chip row, including DeviceName, is already visible under lock).
func (d *Devices) ChipDeviceName(chipID idgen.ChipId) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dev, err := d.deviceForChipLocked(chipID)
	if err != nil {
		return "", false
	}
	return dev.Name, true
}

// ChipAdaptor returns chipID's adaptor, for use by a transport dispatcher
// that received a guest->controller packet and needs to deliver it without
// walking the whole device list itself.
func (d *Devices) ChipAdaptor(chipID idgen.ChipId) (*adaptor.Adaptor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dev, err := d.deviceForChipLocked(chipID)
	if err != nil {
		return nil, false
	}
	chip, ok := dev.Chips.Get(chipID)
	if !ok || chip.Adaptor == nil {
		return nil, false
	}
	return chip.Adaptor, true
}

func (d *Devices) deviceForChipLocked(chipID idgen.ChipId) (*Device, error) {
	deviceID, ok := d.chipIndex[chipID]
	if !ok {
		return nil, &NotFoundError{What: "chip", Id: uint32(chipID)}
	}
	dev, ok := d.entries.Get(deviceID)
	if !ok {
		return nil, &NotFoundError{What: "device", Id: uint32(deviceID)}
	}
	return dev, nil
}

// ChipRadioStats pairs a device id with one chip's reported stats.
type ChipRadioStats struct {
	DeviceId idgen.DeviceId
	ChipId   idgen.ChipId
	Stats    []eventbus.RadioStat
}

// GetRadioStats implements spec.md §4.H get_radio_stats.
func (d *Devices) GetRadioStats() []ChipRadioStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []ChipRadioStats
	for pair := d.entries.Oldest(); pair != nil; pair = pair.Next() {
		dev := pair.Value
		for cp := dev.Chips.Oldest(); cp != nil; cp = cp.Next() {
			chip := cp.Value
			if chip.Adaptor == nil {
				continue
			}
			out = append(out, ChipRadioStats{DeviceId: dev.Id, ChipId: chip.Id, Stats: chip.Adaptor.GetStats()})
		}
	}
	return out
}

// ListDevice returns a snapshot of every device, in insertion order.
func (d *Devices) ListDevice() []*Device {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*Device, 0, d.entries.Len())
	for pair := d.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}
