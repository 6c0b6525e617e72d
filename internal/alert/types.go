package alert

import "time"

// Channel is a logical alert category. Suppression is tracked per
// channel, not per device: a storm of smoke readings from three sensors
// is still one smoke situation for the household.
type Channel string

const (
	ChannelSmoke      Channel = "smoke"
	ChannelAirQuality Channel = "air_quality"
	ChannelCritical   Channel = "critical"
)

// Reading classification labels.
const (
	LabelNormal     = "normal"
	LabelSmoke      = "smoke"
	LabelAirQuality = "air_quality"
	LabelCritical   = "critical"
)

// Alert is one emitted notification event.
type Alert struct {
	DeviceID  string
	Channel   Channel
	Label     string
	Value     float64
	EmittedAt time.Time
}

// Sensitivity selects which conditions the engine evaluates.
type Sensitivity string

const (
	// SensitivityAll evaluates smoke and gas conditions.
	SensitivityAll Sensitivity = "ALL"

	// SensitivityCritical skips the smoke channel and evaluates only
	// the gas/CO2 condition.
	SensitivityCritical Sensitivity = "CRITICAL"
)

// Settings is the per-installation notification policy. There is one
// row of it, mutated only by the local user.
type Settings struct {
	Enabled     bool
	Sensitivity Sensitivity
	UpdatedAt   time.Time
}
