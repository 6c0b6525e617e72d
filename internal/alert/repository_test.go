package alert_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aerosense-io/aerosense-core/internal/alert"
	"github.com/aerosense-io/aerosense-core/internal/infrastructure/database"
	_ "github.com/aerosense-io/aerosense-core/migrations"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return db
}

func TestSettingsRepositoryDefaults(t *testing.T) {
	repo := alert.NewSettingsRepository(setupTestDB(t))

	s, err := repo.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !s.Enabled {
		t.Error("default enabled = false, want true")
	}
	if s.Sensitivity != alert.SensitivityAll {
		t.Errorf("default sensitivity = %v, want ALL", s.Sensitivity)
	}
}

func TestSettingsRepositoryUpdate(t *testing.T) {
	repo := alert.NewSettingsRepository(setupTestDB(t))
	ctx := context.Background()

	err := repo.Update(ctx, alert.Settings{Enabled: false, Sensitivity: alert.SensitivityCritical})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	s, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if s.Enabled {
		t.Error("enabled = true after disabling")
	}
	if s.Sensitivity != alert.SensitivityCritical {
		t.Errorf("sensitivity = %v, want CRITICAL", s.Sensitivity)
	}
}

func TestSettingsRepositoryRejectsBadSensitivity(t *testing.T) {
	repo := alert.NewSettingsRepository(setupTestDB(t))

	err := repo.Update(context.Background(), alert.Settings{Enabled: true, Sensitivity: "LOUD"})
	if !errors.Is(err, alert.ErrInvalidSensitivity) {
		t.Errorf("Update() error = %v, want ErrInvalidSensitivity", err)
	}
}

func TestHistoryRepository(t *testing.T) {
	repo := alert.NewHistoryRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		err := repo.Append(ctx, alert.Alert{
			DeviceID:  "as-3f9c",
			Channel:   alert.ChannelAirQuality,
			Label:     alert.LabelAirQuality,
			Value:     float64(2600 + i),
			EmittedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	alerts, err := repo.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("Recent(2) returned %d alerts", len(alerts))
	}
	if alerts[0].Value != 2602 {
		t.Errorf("newest alert value = %v, want 2602", alerts[0].Value)
	}
	if alerts[0].Channel != alert.ChannelAirQuality {
		t.Errorf("channel = %v", alerts[0].Channel)
	}
}

func TestHistoryRepositoryPurge(t *testing.T) {
	repo := alert.NewHistoryRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		err := repo.Append(ctx, alert.Alert{
			DeviceID:  "d",
			Channel:   alert.ChannelSmoke,
			Label:     alert.LabelSmoke,
			Value:     0.9,
			EmittedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	n, err := repo.Purge(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Purge() removed %d rows, want 2", n)
	}

	remaining, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("%d alerts remain, want 2", len(remaining))
	}
}
