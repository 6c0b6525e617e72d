// Package config provides configuration loading for the AeroSense relay.
//
// Configuration is loaded from a YAML file with sensible defaults applied
// first, then environment variable overrides (AEROSENSE_*) for values that
// differ between deployments or must stay out of version control, such as
// broker credentials and store tokens.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
