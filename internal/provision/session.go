package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aerosense-io/aerosense-core/internal/infrastructure/config"
	"github.com/aerosense-io/aerosense-core/internal/infrastructure/logging"
)

// State is a provisioning session's position in the handshake.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateServiceDiscovery
	StateWritingSSID
	StateWritingPassword
	StateAwaitingNotification
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateConnecting:
		return "connecting"
	case StateServiceDiscovery:
		return "service_discovery"
	case StateWritingSSID:
		return "writing_ssid"
	case StateWritingPassword:
		return "writing_password"
	case StateAwaitingNotification:
		return "awaiting_notification"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// successPrefix marks the status notification that carries the device's
// generated ID. Any other notification value is an intermediate status.
const successPrefix = "SUCCESS:"

// StatusFunc receives a human-readable status at every state transition.
type StatusFunc func(state State, detail string)

// Session is one interactive onboarding attempt. Sessions are transient
// and single-use: construct, Start, and discard.
//
// The handshake is an explicit state machine rather than chained radio
// callbacks so the sequencing invariant (never write the password
// before the SSID acknowledgement) is enforced by control flow.
type Session struct {
	radio  Radio
	cfg    config.ProvisioningConfig
	logger *logging.Logger
	status StatusFunc

	mu      sync.Mutex
	state   State
	conn    Connection
	started bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession creates a session over the given radio.
func NewSession(radio Radio, cfg config.ProvisioningConfig, logger *logging.Logger) *Session {
	return &Session{
		radio:  radio,
		cfg:    cfg,
		logger: logger.With("component", "provision"),
		state:  StateIdle,
		done:   make(chan struct{}),
	}
}

// OnStatus registers a status callback. Call before Start.
func (s *Session) OnStatus(fn StatusFunc) {
	s.status = fn
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start runs the handshake to completion and returns the device's
// generated ID. It blocks until success, failure, ctx cancellation, or
// Close. A session can only be started once.
func (s *Session) Start(ctx context.Context, ssid string, password string) (string, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return "", ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	deviceID, err := s.run(ctx, ssid, password)
	if err != nil {
		detail := err.Error()
		if errors.Is(err, ErrDeviceNotFound) {
			detail = FailureDeviceNotFound
		}
		s.setState(StateFailed, detail)
		s.Close()
		return "", err
	}

	s.setState(StateSucceeded, "device configured: "+deviceID)
	s.Close()
	return deviceID, nil
}

func (s *Session) run(ctx context.Context, ssid string, password string) (string, error) {
	// The wall clock for "device not found" runs from scan start.
	s.setState(StateScanning, "scanning for device")
	scanCtx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()

	peripheral, err := s.radio.Scan(scanCtx, s.cfg.NamePrefix)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	}

	s.setState(StateConnecting, "connecting to "+peripheral.Name())
	conn, err := peripheral.Connect(ctx)
	if err != nil {
		return "", fmt.Errorf("connecting to %s: %w", peripheral.Name(), err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.setState(StateServiceDiscovery, "discovering provisioning service")
	service, err := conn.DiscoverService(ctx, s.cfg.ServiceUUID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidDevice, err)
	}

	// Credential writes are strictly sequential: the password write
	// only starts after the SSID write acknowledgement.
	s.setState(StateWritingSSID, "sending network name")
	if err := service.WriteCharacteristic(ctx, s.cfg.SSIDCharUUID, []byte(ssid)); err != nil {
		return "", fmt.Errorf("%w: ssid: %w", ErrWriteFailed, err)
	}

	s.setState(StateWritingPassword, "sending network password")
	if err := service.WriteCharacteristic(ctx, s.cfg.PasswordCharUUID, []byte(password)); err != nil {
		return "", fmt.Errorf("%w: password: %w", ErrWriteFailed, err)
	}

	s.setState(StateAwaitingNotification, "waiting for device to join network")
	return s.awaitResult(ctx, service)
}

// awaitResult waits for the status characteristic to push a success
// marker. Intermediate values are surfaced as status updates and do not
// terminate the session.
func (s *Session) awaitResult(ctx context.Context, service Service) (string, error) {
	result := make(chan string, 1)

	err := service.Notify(s.cfg.StatusCharUUID, func(value []byte) {
		v := string(value)
		if strings.HasPrefix(v, successPrefix) {
			select {
			case result <- strings.TrimPrefix(v, successPrefix):
			default:
			}
			return
		}
		s.notifyStatus(StateAwaitingNotification, v)
	})
	if err != nil {
		return "", fmt.Errorf("enabling status notifications: %w", err)
	}

	select {
	case deviceID := <-result:
		return deviceID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", ErrClosed
	}
}

// Close cancels the session and releases the radio connection. It is
// safe to call from any state, including after success or failure, and
// repeated calls have no further effect.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.mu.Unlock()

		if conn != nil {
			if err := conn.Disconnect(); err != nil {
				s.logger.Debug("disconnect failed", "error", err)
			}
		}
	})
}

func (s *Session) setState(state State, detail string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	s.logger.Info("provisioning state", "state", state.String(), "detail", detail)
	s.notifyStatus(state, detail)
}

func (s *Session) notifyStatus(state State, detail string) {
	if s.status != nil {
		s.status(state, detail)
	}
}
