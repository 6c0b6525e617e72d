package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the AeroSense relay.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site         SiteConfig         `yaml:"site"`
	Database     DatabaseConfig     `yaml:"database"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Store        StoreConfig        `yaml:"store"`
	Relay        RelayConfig        `yaml:"relay"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Alerts       AlertsConfig       `yaml:"alerts"`
	Discovery    DiscoveryConfig    `yaml:"discovery"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// SiteConfig identifies this relay installation.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings for local state
// (notification settings, alert log).
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
// The relay is the only component holding broker credentials; interactive
// clients go through the relay instead of the broker.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// StoreConfig contains hosted document store settings.
type StoreConfig struct {
	// Backend selects the store implementation: "firestore" or "memory".
	// The memory backend is for development and tests only.
	Backend string `yaml:"backend"`

	// CredentialsFile is the path to the service account credentials JSON.
	// If empty, application default credentials are used.
	CredentialsFile string `yaml:"credentials_file"`

	// ProjectID is the cloud project hosting the document store.
	ProjectID string `yaml:"project_id"`
}

// RelayConfig contains the interactive client relay server settings.
type RelayConfig struct {
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	WebSocket WebSocketConfig `yaml:"websocket"`

	// RequireAuth makes subscribe requests present an account ID token.
	// When false (trusted local network) subscriptions are unauthenticated.
	RequireAuth bool `yaml:"require_auth"`
}

// WebSocketConfig contains WebSocket connection tuning.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains the optional telemetry mirror settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// AlertsConfig contains threshold evaluation and notification settings.
type AlertsConfig struct {
	// SmokeThreshold is the smoke channel level above which (strict >)
	// a smoke condition is raised.
	SmokeThreshold float64 `yaml:"smoke_threshold"`

	// GasRawThreshold is the raw gas channel level above which (strict >)
	// a gas condition is raised.
	GasRawThreshold float64 `yaml:"gas_raw_threshold"`

	// CO2Threshold is the derived CO2 level above which (strict >)
	// a gas condition is raised.
	CO2Threshold float64 `yaml:"co2_threshold"`

	// MinInterval is the per-channel suppression window between alerts.
	// Deliberately short default (5s) for rapid iteration; raise in production.
	MinInterval time.Duration `yaml:"min_interval"`

	// FCM contains push notification settings. Disabled when credentials
	// are absent; alerts then go to the log only.
	FCM FCMConfig `yaml:"fcm"`
}

// FCMConfig contains Firebase Cloud Messaging settings.
type FCMConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CredentialsFile string `yaml:"credentials_file"`

	// Topic is the FCM topic alerts are published to. Mobile clients of
	// this installation subscribe to it.
	Topic string `yaml:"topic"`
}

// DiscoveryConfig contains UDP discovery probe settings.
type DiscoveryConfig struct {
	// Port is the fixed UDP port devices listen on for discovery datagrams.
	Port int `yaml:"port"`

	// BroadcastAddr overrides the broadcast destination. Empty means the
	// local broadcast address (255.255.255.255).
	BroadcastAddr string `yaml:"broadcast_addr"`

	// Timeout is the default total wait for a matching response.
	Timeout time.Duration `yaml:"timeout"`
}

// ProvisioningConfig contains BLE provisioning settings.
type ProvisioningConfig struct {
	// NamePrefix is the advertised name prefix checked while scanning.
	NamePrefix string `yaml:"name_prefix"`

	// ServiceUUID is the provisioning GATT service.
	ServiceUUID string `yaml:"service_uuid"`

	// SSIDCharUUID, PasswordCharUUID and StatusCharUUID identify the three
	// characteristics under the provisioning service.
	SSIDCharUUID     string `yaml:"ssid_char_uuid"`
	PasswordCharUUID string `yaml:"password_char_uuid"`
	StatusCharUUID   string `yaml:"status_char_uuid"`

	// ScanTimeout is the wall-clock limit from scan start to device found.
	ScanTimeout time.Duration `yaml:"scan_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads, parses and validates a configuration file.
// Defaults are applied first, then the YAML file, then environment
// variable overrides (AEROSENSE_*).
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config populated with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "aerosense-relay",
			Name: "AeroSense Relay",
		},
		Database: DatabaseConfig{
			Path:        "data/aerosense.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "aerosense-relay",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Store: StoreConfig{
			Backend: "firestore",
		},
		Relay: RelayConfig{
			Host: "0.0.0.0",
			Port: 8585,
			WebSocket: WebSocketConfig{
				Path:           "/relay",
				MaxMessageSize: 65536,
				PingInterval:   30,
				PongTimeout:    60,
			},
		},
		Alerts: AlertsConfig{
			SmokeThreshold:  0.5,
			GasRawThreshold: 2500,
			CO2Threshold:    1500,
			MinInterval:     5 * time.Second,
			FCM: FCMConfig{
				Topic: "aerosense-alerts",
			},
		},
		Discovery: DiscoveryConfig{
			Port:    4210,
			Timeout: 3 * time.Second,
		},
		Provisioning: ProvisioningConfig{
			NamePrefix:       "AeroSense-",
			ServiceUUID:      "0000a1f0-0000-1000-8000-00805f9b34fb",
			SSIDCharUUID:     "0000a1f1-0000-1000-8000-00805f9b34fb",
			PasswordCharUUID: "0000a1f2-0000-1000-8000-00805f9b34fb",
			StatusCharUUID:   "0000a1f3-0000-1000-8000-00805f9b34fb",
			ScanTimeout:      10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides for values that
// commonly differ between deployments or must stay out of the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AEROSENSE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("AEROSENSE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AEROSENSE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("AEROSENSE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("AEROSENSE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("AEROSENSE_STORE_CREDENTIALS"); v != "" {
		cfg.Store.CredentialsFile = v
	}
	if v := os.Getenv("AEROSENSE_STORE_PROJECT"); v != "" {
		cfg.Store.ProjectID = v
	}
	if v := os.Getenv("AEROSENSE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.MQTT.Broker.Host == "" {
		return fmt.Errorf("mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port <= 0 || c.MQTT.Broker.Port > 65535 {
		return fmt.Errorf("mqtt.broker.port must be 1-65535, got %d", c.MQTT.Broker.Port)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	switch strings.ToLower(c.Store.Backend) {
	case "firestore", "memory":
	default:
		return fmt.Errorf("store.backend must be firestore or memory, got %q", c.Store.Backend)
	}
	if strings.EqualFold(c.Store.Backend, "firestore") && c.Store.ProjectID == "" {
		return fmt.Errorf("store.project_id is required for the firestore backend")
	}
	if c.Relay.Port <= 0 || c.Relay.Port > 65535 {
		return fmt.Errorf("relay.port must be 1-65535, got %d", c.Relay.Port)
	}
	if c.Discovery.Port <= 0 || c.Discovery.Port > 65535 {
		return fmt.Errorf("discovery.port must be 1-65535, got %d", c.Discovery.Port)
	}
	if c.Alerts.MinInterval < 0 {
		return fmt.Errorf("alerts.min_interval must not be negative")
	}
	if c.Alerts.FCM.Enabled && c.Alerts.FCM.Topic == "" {
		return fmt.Errorf("alerts.fcm.topic is required when fcm is enabled")
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			return fmt.Errorf("influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			return fmt.Errorf("influxdb.bucket is required when influxdb is enabled")
		}
	}
	return nil
}
