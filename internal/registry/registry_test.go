package registry_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/aerosense-io/aerosense-core/internal/infrastructure/logging"
	"github.com/aerosense-io/aerosense-core/internal/registry"
	"github.com/aerosense-io/aerosense-core/internal/store"
)

func newTestRegistry(t *testing.T) (*registry.Registry, *store.Memory) {
	t.Helper()

	mem := store.NewMemory()
	t.Cleanup(func() { mem.Close() })

	return registry.New(mem, logging.Default()), mem
}

func TestClaim(t *testing.T) {
	reg, mem := newTestRegistry(t)
	ctx := context.Background()

	link, err := reg.Claim(ctx, "sensor-42", "Kitchen", "alice")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}

	if link.Role != registry.RoleAdmin {
		t.Errorf("link role = %v, want admin", link.Role)
	}
	if !regexp.MustCompile(`^[A-Z0-9]{6}$`).MatchString(link.ShareCode) {
		t.Errorf("share code %q not 6 upper-alphanumeric chars", link.ShareCode)
	}

	device, err := reg.Device(ctx, "sensor-42")
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}
	if device.AdminAccount != "alice" {
		t.Errorf("admin = %q, want alice", device.AdminAccount)
	}
	if device.ShareCode != link.ShareCode {
		t.Errorf("device share code %q != link share code %q", device.ShareCode, link.ShareCode)
	}
	if device.RegisteredAt.IsZero() {
		t.Error("registered_at not set")
	}

	links, err := reg.Links(ctx, "alice")
	if err != nil {
		t.Fatalf("Links() error = %v", err)
	}
	if len(links) != 1 || links[0].Role != registry.RoleAdmin {
		t.Errorf("Links() = %v, want exactly one admin link", links)
	}

	// Claim must merge, not replace: telemetry fields written before the
	// claim survive it.
	doc, err := mem.Get(ctx, "devices/sensor-42")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc["name"] != "Kitchen" {
		t.Errorf("global name = %v, want Kitchen", doc["name"])
	}
}

func TestClaimPreservesTelemetryFields(t *testing.T) {
	reg, mem := newTestRegistry(t)
	ctx := context.Background()

	if err := mem.Set(ctx, "devices/sensor-42", store.Document{"network_addr": "192.168.1.50"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, err := reg.Claim(ctx, "sensor-42", "Kitchen", "alice"); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}

	device, err := reg.Device(ctx, "sensor-42")
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}
	if device.NetworkAddr != "192.168.1.50" {
		t.Errorf("network_addr = %q, want preserved value", device.NetworkAddr)
	}
}

func TestClaimFailsClosed(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Claim(ctx, "sensor-42", "Kitchen", ""); !errors.Is(err, registry.ErrUnauthenticated) {
		t.Errorf("Claim() with empty account error = %v, want ErrUnauthenticated", err)
	}
	if _, err := reg.Claim(ctx, "", "Kitchen", "alice"); !errors.Is(err, registry.ErrInvalidDeviceID) {
		t.Errorf("Claim() with empty device error = %v, want ErrInvalidDeviceID", err)
	}
}

func TestClaimAlreadyClaimed(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Claim(ctx, "sensor-42", "Kitchen", "alice"); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if _, err := reg.Claim(ctx, "sensor-42", "Stolen", "bob"); !errors.Is(err, registry.ErrAlreadyClaimed) {
		t.Errorf("second Claim() error = %v, want ErrAlreadyClaimed", err)
	}

	// Re-claiming your own device rotates the share code.
	link, err := reg.Claim(ctx, "sensor-42", "Kitchen", "alice")
	if err != nil {
		t.Errorf("re-Claim() by admin error = %v", err)
	}
	if link.ShareCode == "" {
		t.Error("re-claim returned empty share code")
	}
}

func TestLink(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	admin, err := reg.Claim(ctx, "sensor-42", "Kitchen", "alice")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}

	link, err := reg.Link(ctx, admin.ShareCode, "bob")
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if link.Role != registry.RoleViewer {
		t.Errorf("role = %v, want viewer", link.Role)
	}
	if link.ShareCode != "" {
		t.Error("viewer link exposes share code")
	}
	if link.Name != "Kitchen" {
		t.Errorf("cached name = %q, want Kitchen", link.Name)
	}

	// Linking never mutates the administrator.
	device, err := reg.Device(ctx, "sensor-42")
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}
	if device.AdminAccount != "alice" {
		t.Errorf("admin after link = %q, want alice", device.AdminAccount)
	}

	// Surrounding whitespace is tolerated.
	if _, err := reg.Link(ctx, "  "+admin.ShareCode+" ", "carol"); err != nil {
		t.Errorf("Link() with padded code error = %v", err)
	}
}

func TestLinkInvalidCode(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Link(ctx, "", "bob"); !errors.Is(err, registry.ErrInvalidShareCode) {
		t.Errorf("Link() with empty code error = %v, want ErrInvalidShareCode", err)
	}
	if _, err := reg.Link(ctx, "ZZZZZZ", "bob"); !errors.Is(err, registry.ErrInvalidShareCode) {
		t.Errorf("Link() with unknown code error = %v, want ErrInvalidShareCode", err)
	}
	if _, err := reg.Link(ctx, "ABC123", ""); !errors.Is(err, registry.ErrUnauthenticated) {
		t.Errorf("Link() with empty account error = %v, want ErrUnauthenticated", err)
	}
}

func TestRenameIsPerObserver(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	admin, err := reg.Claim(ctx, "sensor-42", "Kitchen", "alice")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if _, err := reg.Link(ctx, admin.ShareCode, "bob"); err != nil {
		t.Fatalf("Link() error = %v", err)
	}

	if err := reg.Rename(ctx, "sensor-42", "Downstairs", "bob"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	bobLinks, _ := reg.Links(ctx, "bob")
	if len(bobLinks) != 1 || bobLinks[0].Name != "Downstairs" {
		t.Errorf("bob's link = %v, want name Downstairs", bobLinks)
	}

	aliceLinks, _ := reg.Links(ctx, "alice")
	if len(aliceLinks) != 1 || aliceLinks[0].Name != "Kitchen" {
		t.Errorf("alice's link = %v, want name Kitchen unchanged", aliceLinks)
	}

	device, _ := reg.Device(ctx, "sensor-42")
	if device.Name != "Kitchen" {
		t.Errorf("global name = %q, want Kitchen unchanged", device.Name)
	}
}

func TestRenameNotLinked(t *testing.T) {
	reg, _ := newTestRegistry(t)

	err := reg.Rename(context.Background(), "sensor-42", "Downstairs", "mallory")
	if !errors.Is(err, registry.ErrNotLinked) {
		t.Errorf("Rename() error = %v, want ErrNotLinked", err)
	}
}

func TestRemoveViewer(t *testing.T) {
	reg, mem := newTestRegistry(t)
	ctx := context.Background()

	admin, err := reg.Claim(ctx, "sensor-42", "Kitchen", "alice")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if _, err := reg.Link(ctx, admin.ShareCode, "bob"); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if _, err := mem.Add(ctx, "devices/sensor-42/readings", store.Document{"co2": 800.0}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := reg.Remove(ctx, "sensor-42", "bob"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	bobLinks, _ := reg.Links(ctx, "bob")
	if len(bobLinks) != 0 {
		t.Errorf("bob still has links: %v", bobLinks)
	}

	// Viewer removal never touches the device or its history.
	device, err := reg.Device(ctx, "sensor-42")
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}
	if device.AdminAccount != "alice" || device.Name != "Kitchen" {
		t.Errorf("device mutated by viewer removal: %+v", device)
	}
	readings, _ := mem.List(ctx, "devices/sensor-42/readings", 0)
	if len(readings) != 1 {
		t.Errorf("readings wiped by viewer removal: %d left", len(readings))
	}
}

func TestRemoveAdminCascades(t *testing.T) {
	reg, mem := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Claim(ctx, "sensor-42", "Kitchen", "alice"); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}

	// More readings than one wipe pass handles, to exercise the loop.
	for i := 0; i < 250; i++ {
		if _, err := mem.Add(ctx, "devices/sensor-42/readings", store.Document{"co2": float64(600 + i)}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	if err := reg.Remove(ctx, "sensor-42", "alice"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	device, err := reg.Device(ctx, "sensor-42")
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}
	if device.Claimed() {
		t.Errorf("device still claimed: admin=%q", device.AdminAccount)
	}
	if device.ShareCode != "" {
		t.Errorf("share code not cleared: %q", device.ShareCode)
	}
	if device.Name != registry.UnclaimedName {
		t.Errorf("name = %q, want %q", device.Name, registry.UnclaimedName)
	}

	readings, _ := mem.List(ctx, "devices/sensor-42/readings", 0)
	if len(readings) != 0 {
		t.Errorf("%d readings survived the wipe", len(readings))
	}

	// A stale share code no longer grants access.
	if _, err := reg.Link(ctx, device.ShareCode, "bob"); !errors.Is(err, registry.ErrInvalidShareCode) {
		t.Errorf("Link() after unclaim error = %v, want ErrInvalidShareCode", err)
	}
}

func TestHasLink(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Claim(ctx, "sensor-42", "Kitchen", "alice"); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}

	got, err := reg.HasLink(ctx, "sensor-42", "alice")
	if err != nil || !got {
		t.Errorf("HasLink(alice) = %v, %v, want true", got, err)
	}
	got, err = reg.HasLink(ctx, "sensor-42", "bob")
	if err != nil || got {
		t.Errorf("HasLink(bob) = %v, %v, want false", got, err)
	}
	got, err = reg.HasLink(ctx, "sensor-42", "")
	if err != nil || got {
		t.Errorf("HasLink(empty account) = %v, %v, want false", got, err)
	}
}

func TestNewShareCode(t *testing.T) {
	seen := make(map[string]bool)
	pattern := regexp.MustCompile(`^[A-Z0-9]{6}$`)

	for i := 0; i < 100; i++ {
		code, err := registry.NewShareCode()
		if err != nil {
			t.Fatalf("NewShareCode() error = %v", err)
		}
		if !pattern.MatchString(code) {
			t.Fatalf("code %q not 6 upper-alphanumeric chars", code)
		}
		seen[code] = true
	}

	// 100 draws from a 36^6 space colliding would point at a broken RNG.
	if len(seen) < 95 {
		t.Errorf("only %d distinct codes in 100 draws", len(seen))
	}
}
