package provision_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aerosense-io/aerosense-core/internal/infrastructure/config"
	"github.com/aerosense-io/aerosense-core/internal/infrastructure/logging"
	"github.com/aerosense-io/aerosense-core/internal/provision"
)

func testProvisioningConfig() config.ProvisioningConfig {
	return config.ProvisioningConfig{
		NamePrefix:       "AeroSense-",
		ServiceUUID:      "0000a1f0-0000-1000-8000-00805f9b34fb",
		SSIDCharUUID:     "0000a1f1-0000-1000-8000-00805f9b34fb",
		PasswordCharUUID: "0000a1f2-0000-1000-8000-00805f9b34fb",
		StatusCharUUID:   "0000a1f3-0000-1000-8000-00805f9b34fb",
		ScanTimeout:      10 * time.Second,
	}
}

// fakeService scripts the peripheral side of the handshake.
type fakeService struct {
	mu sync.Mutex

	writes     []write
	writeErr   map[string]error
	notifyErr  error
	statusFn   func(value []byte)
	statusUUID string

	// notifications pushed as soon as the status characteristic is armed
	pushOnNotify []string
}

type write struct {
	charUUID string
	value    string
}

func (f *fakeService) WriteCharacteristic(_ context.Context, charUUID string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.writeErr[charUUID]; err != nil {
		return err
	}
	f.writes = append(f.writes, write{charUUID, string(value)})
	return nil
}

func (f *fakeService) Notify(charUUID string, fn func(value []byte)) error {
	if f.notifyErr != nil {
		return f.notifyErr
	}

	f.mu.Lock()
	f.statusUUID = charUUID
	f.statusFn = fn
	pending := f.pushOnNotify
	f.mu.Unlock()

	go func() {
		for _, v := range pending {
			fn([]byte(v))
		}
	}()
	return nil
}

type fakeConnection struct {
	service      *fakeService
	serviceErr   error
	disconnects  int
	disconnectMu sync.Mutex
}

func (f *fakeConnection) DiscoverService(context.Context, string) (provision.Service, error) {
	if f.serviceErr != nil {
		return nil, f.serviceErr
	}
	return f.service, nil
}

func (f *fakeConnection) Disconnect() error {
	f.disconnectMu.Lock()
	defer f.disconnectMu.Unlock()
	f.disconnects++
	return nil
}

type fakePeripheral struct {
	name string
	conn *fakeConnection
}

func (f *fakePeripheral) Name() string { return f.name }

func (f *fakePeripheral) Connect(context.Context) (provision.Connection, error) {
	return f.conn, nil
}

// fakeRadio returns its peripheral immediately, or blocks until ctx
// expires when peripheral is nil.
type fakeRadio struct {
	peripheral *fakePeripheral
}

func (f *fakeRadio) Scan(ctx context.Context, _ string) (provision.Peripheral, error) {
	if f.peripheral == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.peripheral, nil
}

type statusRecorder struct {
	mu      sync.Mutex
	entries []string
}

func (r *statusRecorder) record(state provision.State, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, state.String()+": "+detail)
}

func (r *statusRecorder) states() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	copy(out, r.entries)
	return out
}

func newSession(radio provision.Radio, cfg config.ProvisioningConfig) (*provision.Session, *statusRecorder) {
	session := provision.NewSession(radio, cfg, logging.Default())
	recorder := &statusRecorder{}
	session.OnStatus(recorder.record)
	return session, recorder
}

func TestSessionSuccess(t *testing.T) {
	service := &fakeService{
		pushOnNotify: []string{"CONNECTING_WIFI", "SUCCESS:as-7be1"},
	}
	radio := &fakeRadio{peripheral: &fakePeripheral{
		name: "AeroSense-7BE1",
		conn: &fakeConnection{service: service},
	}}
	session, recorder := newSession(radio, testProvisioningConfig())

	deviceID, err := session.Start(context.Background(), "Home", "secret123")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if deviceID != "as-7be1" {
		t.Errorf("device id = %q, want as-7be1", deviceID)
	}
	if session.State() != provision.StateSucceeded {
		t.Errorf("state = %v, want succeeded", session.State())
	}

	// Credentials were written sequentially with the right values.
	cfg := testProvisioningConfig()
	want := []write{
		{cfg.SSIDCharUUID, "Home"},
		{cfg.PasswordCharUUID, "secret123"},
	}
	if len(service.writes) != 2 || service.writes[0] != want[0] || service.writes[1] != want[1] {
		t.Errorf("writes = %v, want %v", service.writes, want)
	}

	// The intermediate push surfaced as status, not termination.
	var sawIntermediate bool
	for _, s := range recorder.states() {
		if s == "awaiting_notification: CONNECTING_WIFI" {
			sawIntermediate = true
		}
	}
	if !sawIntermediate {
		t.Errorf("intermediate status not surfaced: %v", recorder.states())
	}

	// Success released the connection.
	if radio.peripheral.conn.disconnects == 0 {
		t.Error("connection not released after success")
	}
}

func TestSessionDeviceNotFound(t *testing.T) {
	cfg := testProvisioningConfig()
	cfg.ScanTimeout = 50 * time.Millisecond
	session, recorder := newSession(&fakeRadio{}, cfg)

	start := time.Now()
	_, err := session.Start(context.Background(), "Home", "secret123")
	elapsed := time.Since(start)

	if !errors.Is(err, provision.ErrDeviceNotFound) {
		t.Fatalf("Start() error = %v, want ErrDeviceNotFound", err)
	}
	if elapsed < 40*time.Millisecond {
		t.Errorf("failed after %v, before the scan window elapsed", elapsed)
	}
	if session.State() != provision.StateFailed {
		t.Errorf("state = %v, want failed", session.State())
	}

	states := recorder.states()
	last := states[len(states)-1]
	if last != "failed: "+provision.FailureDeviceNotFound {
		t.Errorf("final status = %q, want the device-not-found message", last)
	}
}

func TestSessionInvalidDevice(t *testing.T) {
	radio := &fakeRadio{peripheral: &fakePeripheral{
		name: "AeroSense-0000",
		conn: &fakeConnection{serviceErr: errors.New("no such service")},
	}}
	session, _ := newSession(radio, testProvisioningConfig())

	_, err := session.Start(context.Background(), "Home", "secret123")
	if !errors.Is(err, provision.ErrInvalidDevice) {
		t.Errorf("Start() error = %v, want ErrInvalidDevice", err)
	}

	if radio.peripheral.conn.disconnects == 0 {
		t.Error("connection not released after failure")
	}
}

func TestSessionWriteFailureStopsSequence(t *testing.T) {
	cfg := testProvisioningConfig()
	service := &fakeService{
		writeErr: map[string]error{cfg.SSIDCharUUID: errors.New("gatt error 0x0e")},
	}
	radio := &fakeRadio{peripheral: &fakePeripheral{
		name: "AeroSense-7BE1",
		conn: &fakeConnection{service: service},
	}}
	session, _ := newSession(radio, cfg)

	_, err := session.Start(context.Background(), "Home", "secret123")
	if !errors.Is(err, provision.ErrWriteFailed) {
		t.Fatalf("Start() error = %v, want ErrWriteFailed", err)
	}

	// The password write must never be attempted after a failed SSID write.
	for _, w := range service.writes {
		if w.charUUID == cfg.PasswordCharUUID {
			t.Error("password written despite SSID write failure")
		}
	}
}

func TestSessionCloseDuringAwait(t *testing.T) {
	// No notifications pushed: the session parks in awaiting_notification.
	service := &fakeService{}
	conn := &fakeConnection{service: service}
	radio := &fakeRadio{peripheral: &fakePeripheral{name: "AeroSense-7BE1", conn: conn}}
	session, _ := newSession(radio, testProvisioningConfig())

	errCh := make(chan error, 1)
	go func() {
		_, err := session.Start(context.Background(), "Home", "secret123")
		errCh <- err
	}()

	// Wait for the notification arm, then cancel.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		service.mu.Lock()
		armed := service.statusFn != nil
		service.mu.Unlock()
		if armed {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	session.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, provision.ErrClosed) {
			t.Errorf("Start() error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after Close()")
	}

	if conn.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", conn.disconnects)
	}

	// Idempotent: further closes change nothing.
	session.Close()
	session.Close()
	if conn.disconnects != 1 {
		t.Errorf("repeated Close() disconnected again: %d", conn.disconnects)
	}
}

func TestSessionStartTwice(t *testing.T) {
	service := &fakeService{pushOnNotify: []string{"SUCCESS:as-1"}}
	radio := &fakeRadio{peripheral: &fakePeripheral{
		name: "AeroSense-1",
		conn: &fakeConnection{service: service},
	}}
	session, _ := newSession(radio, testProvisioningConfig())

	if _, err := session.Start(context.Background(), "Home", "pw"); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	if _, err := session.Start(context.Background(), "Home", "pw"); !errors.Is(err, provision.ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}
