package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeConfigFile writes a config file into a temp directory and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("loads minimal config with defaults", func(t *testing.T) {
		path := writeConfigFile(t, `
store:
  backend: memory
`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.MQTT.Broker.Host != "localhost" {
			t.Errorf("MQTT host = %q, want localhost", cfg.MQTT.Broker.Host)
		}
		if cfg.MQTT.Broker.Port != 1883 {
			t.Errorf("MQTT port = %d, want 1883", cfg.MQTT.Broker.Port)
		}
		if cfg.Alerts.SmokeThreshold != 0.5 {
			t.Errorf("smoke threshold = %v, want 0.5", cfg.Alerts.SmokeThreshold)
		}
		if cfg.Alerts.GasRawThreshold != 2500 {
			t.Errorf("gas raw threshold = %v, want 2500", cfg.Alerts.GasRawThreshold)
		}
		if cfg.Alerts.MinInterval != 5*time.Second {
			t.Errorf("min interval = %v, want 5s", cfg.Alerts.MinInterval)
		}
		if cfg.Provisioning.ScanTimeout != 10*time.Second {
			t.Errorf("scan timeout = %v, want 10s", cfg.Provisioning.ScanTimeout)
		}
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := writeConfigFile(t, `
store:
  backend: memory
mqtt:
  broker:
    host: broker.example.com
    port: 8883
    tls: true
relay:
  port: 9000
`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.MQTT.Broker.Host != "broker.example.com" {
			t.Errorf("MQTT host = %q", cfg.MQTT.Broker.Host)
		}
		if !cfg.MQTT.Broker.TLS {
			t.Error("MQTT TLS should be enabled")
		}
		if cfg.Relay.Port != 9000 {
			t.Errorf("relay port = %d, want 9000", cfg.Relay.Port)
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("AEROSENSE_MQTT_HOST", "env-broker")
		t.Setenv("AEROSENSE_MQTT_PORT", "2883")

		path := writeConfigFile(t, `
store:
  backend: memory
mqtt:
  broker:
    host: file-broker
`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.MQTT.Broker.Host != "env-broker" {
			t.Errorf("MQTT host = %q, want env-broker", cfg.MQTT.Broker.Host)
		}
		if cfg.MQTT.Broker.Port != 2883 {
			t.Errorf("MQTT port = %d, want 2883", cfg.MQTT.Broker.Port)
		}
	})

	t.Run("missing file returns error", func(t *testing.T) {
		if _, err := Load("/nonexistent/config.yaml"); err == nil {
			t.Fatal("Load() expected error for missing file")
		}
	})

	t.Run("invalid YAML returns error", func(t *testing.T) {
		path := writeConfigFile(t, "mqtt: [not: valid")
		if _, err := Load(path); err == nil {
			t.Fatal("Load() expected error for invalid YAML")
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Store.Backend = "memory"
		return cfg
	}

	t.Run("default config is valid", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
	})

	t.Run("rejects invalid QoS", func(t *testing.T) {
		cfg := valid()
		cfg.MQTT.QoS = 3
		if err := cfg.Validate(); err == nil {
			t.Fatal("Validate() expected error for QoS 3")
		}
	})

	t.Run("rejects unknown store backend", func(t *testing.T) {
		cfg := valid()
		cfg.Store.Backend = "dynamo"
		if err := cfg.Validate(); err == nil {
			t.Fatal("Validate() expected error for unknown backend")
		}
	})

	t.Run("firestore backend requires project id", func(t *testing.T) {
		cfg := valid()
		cfg.Store.Backend = "firestore"
		cfg.Store.ProjectID = ""
		if err := cfg.Validate(); err == nil {
			t.Fatal("Validate() expected error for missing project id")
		}
	})

	t.Run("influxdb enabled requires url", func(t *testing.T) {
		cfg := valid()
		cfg.InfluxDB.Enabled = true
		cfg.InfluxDB.Bucket = "telemetry"
		if err := cfg.Validate(); err == nil {
			t.Fatal("Validate() expected error for missing influxdb url")
		}
	})

	t.Run("rejects out-of-range ports", func(t *testing.T) {
		cfg := valid()
		cfg.Discovery.Port = 70000
		if err := cfg.Validate(); err == nil {
			t.Fatal("Validate() expected error for discovery port")
		}
	})
}
