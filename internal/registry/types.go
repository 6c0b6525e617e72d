package registry

import (
	"time"

	"github.com/aerosense-io/aerosense-core/internal/store"
)

// Role is an account's relationship to a device.
type Role string

const (
	// RoleAdmin is the single claiming account. Admins can share,
	// unclaim, and wipe the device.
	RoleAdmin Role = "admin"

	// RoleViewer is an account linked through a share code. Viewers
	// observe telemetry but cannot re-share or unclaim.
	RoleViewer Role = "viewer"
)

// UnclaimedName is the global display name a device reverts to when its
// administrator removes it.
const UnclaimedName = "Unclaimed Device"

// Device is the global record for one sensor, shared by every account
// that links to it.
type Device struct {
	ID            string
	Name          string
	AdminAccount  string // empty when unclaimed
	ShareCode     string // empty when unclaimed
	LastSeen      time.Time
	NetworkAddr   string
	ProvisionedAt time.Time
	RegisteredAt  time.Time
}

// Claimed reports whether the device currently has an administrator.
func (d Device) Claimed() bool {
	return d.AdminAccount != ""
}

// DeviceLink is one account's private view of a device. Names are
// per-observer: two accounts may call the same device different things.
type DeviceLink struct {
	AccountID string
	DeviceID  string
	Role      Role
	Name      string
	ShareCode string // only present on admin links
	LinkedAt  time.Time
}

// Document field names shared between the registry and the bridge.
const (
	fieldName          = "name"
	fieldAdminAccount  = "admin_account"
	fieldShareCode     = "share_code"
	fieldLastSeen      = "last_seen"
	fieldNetworkAddr   = "network_addr"
	fieldProvisionedAt = "provisioned_at"
	fieldRegisteredAt  = "registered_at"
	fieldDeviceID      = "device_id"
	fieldRole          = "role"
	fieldLinkedAt      = "linked_at"
)

func deviceFromDoc(id string, doc store.Document) Device {
	return Device{
		ID:            id,
		Name:          docString(doc, fieldName),
		AdminAccount:  docString(doc, fieldAdminAccount),
		ShareCode:     docString(doc, fieldShareCode),
		LastSeen:      docTime(doc, fieldLastSeen),
		NetworkAddr:   docString(doc, fieldNetworkAddr),
		ProvisionedAt: docTime(doc, fieldProvisionedAt),
		RegisteredAt:  docTime(doc, fieldRegisteredAt),
	}
}

func linkFromDoc(account string, deviceID string, doc store.Document) DeviceLink {
	return DeviceLink{
		AccountID: account,
		DeviceID:  deviceID,
		Role:      Role(docString(doc, fieldRole)),
		Name:      docString(doc, fieldName),
		ShareCode: docString(doc, fieldShareCode),
		LinkedAt:  docTime(doc, fieldLinkedAt),
	}
}

func docString(doc store.Document, field string) string {
	s, _ := doc[field].(string)
	return s
}

func docTime(doc store.Document, field string) time.Time {
	t, _ := doc[field].(time.Time)
	return t
}
