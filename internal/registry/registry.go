package registry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aerosense-io/aerosense-core/internal/infrastructure/logging"
	"github.com/aerosense-io/aerosense-core/internal/store"
)

// Wipe batching. Each pass lists up to wipeBatchSize readings and
// deletes them in one batch; passes repeat until a list comes back
// empty or maxWipePasses is reached. Readings appended after the final
// pass survive the wipe.
const (
	wipeBatchSize = 100
	maxWipePasses = 50
)

// Registry implements device ownership and sharing over the document
// store. It holds no state of its own; the store is the source of truth
// and its own consistency guarantees are all the locking required.
type Registry struct {
	store  store.Store
	logger *logging.Logger
	now    func() time.Time
}

// New creates a Registry backed by the given store.
func New(st store.Store, logger *logging.Logger) *Registry {
	return &Registry{
		store:  st,
		logger: logger.With("component", "registry"),
		now:    time.Now,
	}
}

// Claim makes account the administrator of the device.
//
// A fresh share code is generated and two writes are applied as one
// atomic batch: a merge into the global device record (preserving any
// telemetry fields already present) and the creation of the account's
// admin link. Claiming a device that already has a different
// administrator fails with ErrAlreadyClaimed.
func (r *Registry) Claim(ctx context.Context, deviceID string, name string, account string) (DeviceLink, error) {
	if account == "" {
		return DeviceLink{}, ErrUnauthenticated
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return DeviceLink{}, ErrInvalidDeviceID
	}
	if name == "" {
		name = UnclaimedName
	}

	existing, err := r.store.Get(ctx, devicePath(deviceID))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return DeviceLink{}, err
	}
	if admin := docString(existing, fieldAdminAccount); admin != "" && admin != account {
		return DeviceLink{}, ErrAlreadyClaimed
	}

	code, err := NewShareCode()
	if err != nil {
		return DeviceLink{}, err
	}
	now := r.now()

	link := DeviceLink{
		AccountID: account,
		DeviceID:  deviceID,
		Role:      RoleAdmin,
		Name:      name,
		ShareCode: code,
		LinkedAt:  now,
	}

	err = r.store.Apply(ctx, []store.Write{
		{
			Op:   store.OpMerge,
			Path: devicePath(deviceID),
			Doc: store.Document{
				fieldName:         name,
				fieldAdminAccount: account,
				fieldShareCode:    code,
				fieldRegisteredAt: now,
			},
		},
		{
			Op:   store.OpSet,
			Path: linkPath(account, deviceID),
			Doc: store.Document{
				fieldDeviceID:  deviceID,
				fieldRole:      string(RoleAdmin),
				fieldName:      name,
				fieldShareCode: code,
				fieldLinkedAt:  now,
			},
		},
	})
	if err != nil {
		return DeviceLink{}, err
	}

	r.logger.Info("device claimed", "device_id", deviceID, "account", account)
	return link, nil
}

// Link grants account viewer access to the device identified by shareCode.
//
// The viewer's link carries the device's current global name as its
// initial cached name and no share code: viewers cannot re-share.
func (r *Registry) Link(ctx context.Context, shareCode string, account string) (DeviceLink, error) {
	if account == "" {
		return DeviceLink{}, ErrUnauthenticated
	}
	shareCode = strings.TrimSpace(strings.ToUpper(shareCode))
	if shareCode == "" {
		return DeviceLink{}, ErrInvalidShareCode
	}

	matches, err := r.store.Query(ctx, devicesCollection, fieldShareCode, shareCode)
	if err != nil {
		return DeviceLink{}, err
	}
	if len(matches) == 0 {
		return DeviceLink{}, ErrInvalidShareCode
	}

	device := deviceFromDoc(matches[0].ID, matches[0].Doc)
	now := r.now()

	link := DeviceLink{
		AccountID: account,
		DeviceID:  device.ID,
		Role:      RoleViewer,
		Name:      device.Name,
		LinkedAt:  now,
	}

	err = r.store.Set(ctx, linkPath(account, device.ID), store.Document{
		fieldDeviceID: device.ID,
		fieldRole:     string(RoleViewer),
		fieldName:     device.Name,
		fieldLinkedAt: now,
	})
	if err != nil {
		return DeviceLink{}, err
	}

	r.logger.Info("device linked", "device_id", device.ID, "account", account)
	return link, nil
}

// Rename changes the calling account's cached name for the device.
// The global device record is never touched: names are per-observer.
func (r *Registry) Rename(ctx context.Context, deviceID string, newName string, account string) error {
	if account == "" {
		return ErrUnauthenticated
	}
	if deviceID == "" {
		return ErrInvalidDeviceID
	}
	if newName == "" {
		return ErrInvalidName
	}

	if _, err := r.store.Get(ctx, linkPath(account, deviceID)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotLinked
		}
		return err
	}

	return r.store.Merge(ctx, linkPath(account, deviceID), store.Document{
		fieldName: newName,
	})
}

// Remove deletes the calling account's link to the device.
//
// When the caller is the device's administrator this cascades to a full
// unclaim: the administrator and share code are cleared, the global name
// reverts to the unclaimed placeholder, and the reading history is wiped
// in batches. The wipe is not transactional with the unclaim; a crash
// mid-wipe leaves partial history that the next Remove pass cleans up.
func (r *Registry) Remove(ctx context.Context, deviceID string, account string) error {
	if account == "" {
		return ErrUnauthenticated
	}
	if deviceID == "" {
		return ErrInvalidDeviceID
	}

	if _, err := r.store.Get(ctx, linkPath(account, deviceID)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotLinked
		}
		return err
	}

	device, err := r.Device(ctx, deviceID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	isAdmin := device.AdminAccount == account

	if err := r.store.Delete(ctx, linkPath(account, deviceID)); err != nil {
		return err
	}
	if !isAdmin {
		r.logger.Info("device unlinked", "device_id", deviceID, "account", account)
		return nil
	}

	err = r.store.Merge(ctx, devicePath(deviceID), store.Document{
		fieldName:         UnclaimedName,
		fieldAdminAccount: "",
		fieldShareCode:    "",
	})
	if err != nil {
		return err
	}

	if err := r.wipeReadings(ctx, deviceID); err != nil {
		return err
	}

	r.logger.Info("device unclaimed and wiped", "device_id", deviceID, "account", account)
	return nil
}

// wipeReadings deletes the device's reading history in bounded batches.
// Listing and deleting repeat until a pass finds nothing; readings
// appended after that final pass survive.
func (r *Registry) wipeReadings(ctx context.Context, deviceID string) error {
	collection := readingsPath(deviceID)

	for pass := 0; pass < maxWipePasses; pass++ {
		entries, err := r.store.List(ctx, collection, wipeBatchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		writes := make([]store.Write, 0, len(entries))
		for _, e := range entries {
			writes = append(writes, store.Write{
				Op:   store.OpDelete,
				Path: collection + "/" + e.ID,
			})
		}
		if err := r.store.Apply(ctx, writes); err != nil {
			return err
		}
	}

	r.logger.Warn("reading wipe hit pass limit", "device_id", deviceID, "passes", maxWipePasses)
	return nil
}

// Device returns the global device record.
func (r *Registry) Device(ctx context.Context, deviceID string) (Device, error) {
	if deviceID == "" {
		return Device{}, ErrInvalidDeviceID
	}

	doc, err := r.store.Get(ctx, devicePath(deviceID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Device{}, ErrNotFound
		}
		return Device{}, err
	}
	return deviceFromDoc(deviceID, doc), nil
}

// Links returns every device link owned by the account.
func (r *Registry) Links(ctx context.Context, account string) ([]DeviceLink, error) {
	if account == "" {
		return nil, ErrUnauthenticated
	}

	entries, err := r.store.List(ctx, linksCollection(account), 0)
	if err != nil {
		return nil, err
	}

	links := make([]DeviceLink, 0, len(entries))
	for _, e := range entries {
		links = append(links, linkFromDoc(account, e.ID, e.Doc))
	}
	return links, nil
}

// HasLink reports whether the account holds any link to the device.
// Used as the ACL check by surfaces that filter per-account telemetry.
func (r *Registry) HasLink(ctx context.Context, deviceID string, account string) (bool, error) {
	if account == "" || deviceID == "" {
		return false, nil
	}

	_, err := r.store.Get(ctx, linkPath(account, deviceID))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

const devicesCollection = "devices"

func devicePath(deviceID string) string {
	return devicesCollection + "/" + deviceID
}

func readingsPath(deviceID string) string {
	return devicePath(deviceID) + "/readings"
}

func linksCollection(account string) string {
	return "users/" + account + "/devices"
}

func linkPath(account string, deviceID string) string {
	return linksCollection(account) + "/" + deviceID
}
