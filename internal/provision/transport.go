package provision

import "context"

// Radio is the short-range radio used for onboarding. The BLE adapter
// implements it in production; session tests substitute a fake.
type Radio interface {
	// Scan blocks until a peripheral advertising a name with the given
	// prefix is found or ctx ends.
	Scan(ctx context.Context, namePrefix string) (Peripheral, error)
}

// Peripheral is a discovered advertisement that can be connected to.
type Peripheral interface {
	Name() string
	Connect(ctx context.Context) (Connection, error)
}

// Connection is an open radio link to a peripheral.
type Connection interface {
	// DiscoverService resolves the provisioning service. An unknown
	// service means the peripheral is not one of ours.
	DiscoverService(ctx context.Context, serviceUUID string) (Service, error)

	// Disconnect releases the link. Safe to call more than once.
	Disconnect() error
}

// Service exposes the provisioning characteristics.
type Service interface {
	// WriteCharacteristic writes value and blocks until the peripheral
	// acknowledges. Device firmware processes one characteristic at a
	// time, so callers must keep writes strictly sequential.
	WriteCharacteristic(ctx context.Context, charUUID string, value []byte) error

	// Notify enables notifications on the characteristic, invoking fn
	// for every pushed value.
	Notify(charUUID string, fn func(value []byte)) error
}
