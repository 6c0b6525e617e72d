package provision

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"
)

// bluezService is the D-Bus name BlueZ objects live under.
const bluezService = "org.bluez"

// BLERadio implements Radio over the host's Bluetooth adapter.
type BLERadio struct {
	adapter *bluetooth.Adapter

	mu      sync.Mutex
	enabled bool
}

// NewBLERadio returns a radio over the default host adapter.
func NewBLERadio() *BLERadio {
	return &BLERadio{adapter: bluetooth.DefaultAdapter}
}

// enable powers the adapter on first use.
func (r *BLERadio) enable() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enabled {
		return nil
	}
	if err := r.adapter.Enable(); err != nil {
		return fmt.Errorf("enabling bluetooth adapter: %w", err)
	}
	r.enabled = true
	return nil
}

// Scan blocks until a peripheral advertising the name prefix appears or
// ctx ends.
func (r *BLERadio) Scan(ctx context.Context, namePrefix string) (Peripheral, error) {
	if err := r.enable(); err != nil {
		return nil, err
	}

	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)

	go func() {
		err := r.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !strings.HasPrefix(result.LocalName(), namePrefix) {
				return
			}
			adapter.StopScan() //nolint:errcheck // Scan result already captured
			select {
			case found <- result:
			default:
			}
		})
		if err != nil {
			scanErr <- err
		}
	}()

	select {
	case result := <-found:
		return &blePeripheral{radio: r, result: result}, nil
	case err := <-scanErr:
		return nil, fmt.Errorf("scanning: %w", err)
	case <-ctx.Done():
		r.adapter.StopScan() //nolint:errcheck // Best-effort stop on cancellation
		return nil, ctx.Err()
	}
}

type blePeripheral struct {
	radio  *BLERadio
	result bluetooth.ScanResult
}

func (p *blePeripheral) Name() string {
	return p.result.LocalName()
}

func (p *blePeripheral) Connect(_ context.Context) (Connection, error) {
	device, err := p.radio.adapter.Connect(p.result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	return &bleConnection{
		device:      device,
		devFragment: devicePathFragment(p.result.Address.String()),
	}, nil
}

type bleConnection struct {
	device      bluetooth.Device
	devFragment string
}

func (c *bleConnection) DiscoverService(_ context.Context, serviceUUID string) (Service, error) {
	uuid, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("parsing service uuid: %w", err)
	}

	services, err := c.device.DiscoverServices([]bluetooth.UUID{uuid})
	if err != nil {
		return nil, fmt.Errorf("discovering service %s: %w", serviceUUID, err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("service %s not present", serviceUUID)
	}

	return &bleService{service: services[0], devFragment: c.devFragment}, nil
}

func (c *bleConnection) Disconnect() error {
	return c.device.Disconnect()
}

type bleService struct {
	service     bluetooth.DeviceService
	devFragment string

	mu        sync.Mutex
	chars     map[string]bluetooth.DeviceCharacteristic
	charPaths map[string]dbus.ObjectPath
}

// characteristic resolves and caches one characteristic by UUID.
func (s *bleService) characteristic(charUUID string) (bluetooth.DeviceCharacteristic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chars == nil {
		s.chars = make(map[string]bluetooth.DeviceCharacteristic)
	}
	if c, ok := s.chars[charUUID]; ok {
		return c, nil
	}

	uuid, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("parsing characteristic uuid: %w", err)
	}

	chars, err := s.service.DiscoverCharacteristics([]bluetooth.UUID{uuid})
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("discovering characteristic %s: %w", charUUID, err)
	}
	if len(chars) == 0 {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("characteristic %s not present", charUUID)
	}

	s.chars[charUUID] = chars[0]
	return chars[0], nil
}

// WriteCharacteristic performs an acknowledged GATT write.
//
// The bluetooth library only exposes write-without-response, which
// would break the write/ack sequencing the session depends on, so
// the write request goes to BlueZ directly: WriteValue with
// type=request blocks until the peripheral's ATT acknowledgement.
func (s *bleService) WriteCharacteristic(_ context.Context, charUUID string, value []byte) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("connecting to system bus: %w", err)
	}

	path, err := s.characteristicPath(conn, charUUID)
	if err != nil {
		return err
	}

	options := map[string]dbus.Variant{
		"type": dbus.MakeVariant("request"),
	}
	call := conn.Object(bluezService, path).Call("org.bluez.GattCharacteristic1.WriteValue", 0, value, options)
	if call.Err != nil {
		return fmt.Errorf("writing characteristic %s: %w", charUUID, call.Err)
	}
	return nil
}

// characteristicPath resolves and caches the BlueZ object path for one
// of this peripheral's characteristics.
func (s *bleService) characteristicPath(conn *dbus.Conn, charUUID string) (dbus.ObjectPath, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.charPaths[charUUID]; ok {
		return p, nil
	}

	var objects managedObjects
	err := conn.Object(bluezService, "/").Call("org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&objects)
	if err != nil {
		return "", fmt.Errorf("listing bluez objects: %w", err)
	}

	path, ok := findCharacteristic(objects, s.devFragment, charUUID)
	if !ok {
		return "", fmt.Errorf("characteristic %s not present", charUUID)
	}

	if s.charPaths == nil {
		s.charPaths = make(map[string]dbus.ObjectPath)
	}
	s.charPaths[charUUID] = path
	return path, nil
}

func (s *bleService) Notify(charUUID string, fn func(value []byte)) error {
	char, err := s.characteristic(charUUID)
	if err != nil {
		return err
	}
	if err := char.EnableNotifications(fn); err != nil {
		return fmt.Errorf("enabling notifications on %s: %w", charUUID, err)
	}
	return nil
}

// managedObjects is the shape of BlueZ's ObjectManager tree:
// object path to interface name to property name to value.
type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// devicePathFragment converts a peripheral MAC into the fragment BlueZ
// embeds in that device's object paths, e.g. "dev_AA_BB_CC_DD_EE_FF".
func devicePathFragment(mac string) string {
	return "dev_" + strings.ReplaceAll(strings.ToUpper(mac), ":", "_")
}

// findCharacteristic locates the GATT characteristic with the given
// UUID under the given device, so writes never target an identical
// characteristic on another connected peripheral.
func findCharacteristic(objects managedObjects, devFragment string, charUUID string) (dbus.ObjectPath, bool) {
	want := strings.ToLower(charUUID)
	for path, interfaces := range objects {
		if !strings.Contains(string(path), devFragment) {
			continue
		}
		props, ok := interfaces["org.bluez.GattCharacteristic1"]
		if !ok {
			continue
		}
		uuid, _ := props["UUID"].Value().(string)
		if strings.ToLower(uuid) == want {
			return path, true
		}
	}
	return "", false
}
