// AeroSense Setup - Device Onboarding Tool
//
// Puts a factory-fresh sensor on the local WiFi network: finds the
// device over BLE, writes the network credentials, waits for the
// device to confirm it joined, then verifies it answers on the LAN
// with a UDP discovery probe. Claiming the device to an account
// happens afterwards in the mobile app.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aerosense-io/aerosense-core/internal/discovery"
	"github.com/aerosense-io/aerosense-core/internal/infrastructure/config"
	"github.com/aerosense-io/aerosense-core/internal/infrastructure/logging"
	"github.com/aerosense-io/aerosense-core/internal/provision"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to the configuration file")
		ssid       = flag.String("ssid", "", "WiFi network name to configure")
		password   = flag.String("password", "", "WiFi network password")
		skipProbe  = flag.Bool("skip-probe", false, "skip the post-provisioning network probe")
	)
	flag.Parse()

	if *ssid == "" {
		return fmt.Errorf("-ssid is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, "setup")

	session := provision.NewSession(provision.NewBLERadio(), cfg.Provisioning, log)
	session.OnStatus(func(state provision.State, detail string) {
		fmt.Printf("  [%s] %s\n", state, detail)
	})
	defer session.Close()

	fmt.Println("Provisioning device...")
	deviceID, err := session.Start(ctx, *ssid, *password)
	if err != nil {
		return fmt.Errorf("provisioning failed: %w", err)
	}
	fmt.Printf("Device %s configured.\n", deviceID)

	if *skipProbe {
		return nil
	}

	fmt.Println("Verifying device on the local network...")
	probe := discovery.NewProbe(cfg.Discovery, log)
	if !probe.Verify(ctx, deviceID, cfg.Discovery.Timeout) {
		return fmt.Errorf("device %s did not answer on the local network; check the WiFi credentials and try again", deviceID)
	}

	fmt.Printf("Device %s is online. Claim it in the app to finish setup.\n", deviceID)
	return nil
}
