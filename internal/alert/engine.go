package alert

import (
	"context"
	"time"

	"github.com/aerosense-io/aerosense-core/internal/infrastructure/config"
	"github.com/aerosense-io/aerosense-core/internal/infrastructure/logging"
	"github.com/aerosense-io/aerosense-core/internal/telemetry"
)

// SettingsSource provides the current notification policy.
type SettingsSource interface {
	Get(ctx context.Context) (Settings, error)
}

// History records emitted alerts for the local history view.
type History interface {
	Append(ctx context.Context, a Alert) error
}

// Notifier delivers an alert to the user. Delivery is fire-and-forget:
// no acknowledgement, no retry.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Mirror records emitted alerts to the optional time-series store.
type Mirror interface {
	WriteAlert(deviceID string, channel string, label string, value float64)
}

// Engine converts readings into at most one notification each,
// respecting the user's policy and suppressing per-channel storms.
//
// Evaluate is called only from the bridge's single ingestion path, so
// the suppression map needs no locking.
type Engine struct {
	cfg      config.AlertsConfig
	settings SettingsSource
	history  History
	notifier Notifier
	logger   *logging.Logger
	now      func() time.Time

	// Optional, nil when the time-series mirror is disabled.
	mirror Mirror

	lastEmit map[Channel]time.Time
}

// NewEngine creates an Engine. history and notifier must be non-nil;
// use LogNotifier when push delivery is disabled.
func NewEngine(cfg config.AlertsConfig, settings SettingsSource, history History, notifier Notifier, logger *logging.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		settings: settings,
		history:  history,
		notifier: notifier,
		logger:   logger.With("component", "alerts"),
		now:      time.Now,
		lastEmit: make(map[Channel]time.Time),
	}
}

// SetClock overrides the engine's time source. Tests use this to drive
// the suppression window deterministically.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// SetMirror attaches the time-series mirror. Call before the first
// Evaluate.
func (e *Engine) SetMirror(m Mirror) {
	e.mirror = m
}

// Classify returns the reading's threshold label independent of the
// notification policy. The bridge stamps it onto persisted readings.
func (e *Engine) Classify(r telemetry.Reading) string {
	smoke := r.Smoke > e.cfg.SmokeThreshold
	gas := r.GasRaw > e.cfg.GasRawThreshold || r.CO2 > e.cfg.CO2Threshold

	switch {
	case smoke && gas:
		return LabelCritical
	case smoke:
		return LabelSmoke
	case gas:
		return LabelAirQuality
	default:
		return LabelNormal
	}
}

// Evaluate runs the full alert path for one reading.
//
// Thresholds are strict: a value exactly at a threshold does not
// trigger. The smoke condition is only evaluated at SensitivityAll;
// the gas/CO2 condition is always evaluated.
func (e *Engine) Evaluate(ctx context.Context, r telemetry.Reading) {
	settings, err := e.settings.Get(ctx)
	if err != nil {
		// A broken settings read must not silence a safety product.
		e.logger.Error("reading notification settings", "error", err)
		settings = Settings{Enabled: true, Sensitivity: SensitivityAll}
	}
	if !settings.Enabled {
		return
	}

	smoke := settings.Sensitivity == SensitivityAll && r.Smoke > e.cfg.SmokeThreshold
	gas := r.GasRaw > e.cfg.GasRawThreshold || r.CO2 > e.cfg.CO2Threshold

	var a Alert
	switch {
	case smoke && gas:
		a = Alert{DeviceID: r.DeviceID, Channel: ChannelCritical, Label: LabelCritical, Value: r.Smoke}
	case smoke:
		a = Alert{DeviceID: r.DeviceID, Channel: ChannelSmoke, Label: LabelSmoke, Value: r.Smoke}
	case gas:
		a = Alert{DeviceID: r.DeviceID, Channel: ChannelAirQuality, Label: LabelAirQuality, Value: gasValue(r, e.cfg)}
	default:
		return
	}

	now := e.now()
	if last, ok := e.lastEmit[a.Channel]; ok && now.Sub(last) < e.cfg.MinInterval {
		e.logger.Debug("alert suppressed", "channel", a.Channel, "device_id", a.DeviceID)
		return
	}
	e.lastEmit[a.Channel] = now
	a.EmittedAt = now

	if err := e.notifier.Notify(ctx, a); err != nil {
		e.logger.Error("delivering notification", "channel", a.Channel, "error", err)
	}
	if err := e.history.Append(ctx, a); err != nil {
		e.logger.Error("recording alert", "channel", a.Channel, "error", err)
	}
	if e.mirror != nil {
		e.mirror.WriteAlert(a.DeviceID, string(a.Channel), a.Label, a.Value)
	}

	e.logger.Info("alert emitted",
		"channel", a.Channel,
		"device_id", a.DeviceID,
		"value", a.Value,
	)
}

// gasValue picks the channel value that actually crossed its threshold.
func gasValue(r telemetry.Reading, cfg config.AlertsConfig) float64 {
	if r.GasRaw > cfg.GasRawThreshold {
		return r.GasRaw
	}
	return r.CO2
}
