package discovery

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/aerosense-io/aerosense-core/internal/infrastructure/config"
	"github.com/aerosense-io/aerosense-core/internal/infrastructure/logging"
)

const (
	requestPrefix  = "DISCOVER:"
	responsePrefix = "HERE:"

	// probeCount datagrams are sent probeInterval apart so a device that
	// drops one still has two more chances within the wait window.
	probeCount    = 3
	probeInterval = 100 * time.Millisecond

	readBufferSize = 256
	defaultTimeout = 3 * time.Second

	localBroadcast = "255.255.255.255"
)

// Probe locates a specific device on the local network by UDP broadcast.
// It is a presence check, not an enumeration: the caller already knows
// which device it is looking for.
type Probe struct {
	cfg    config.DiscoveryConfig
	logger *logging.Logger
}

func NewProbe(cfg config.DiscoveryConfig, logger *logging.Logger) *Probe {
	if logger == nil {
		logger = logging.Default()
	}
	return &Probe{
		cfg:    cfg,
		logger: logger.With("component", "discovery"),
	}
}

// Verify reports whether the device answers on the local network. It
// broadcasts DISCOVER datagrams and waits up to timeout for a response
// carrying the same device ID. Datagrams from other devices are ignored
// and the wait continues. Every failure mode reports false; the caller
// treats network trouble the same as an absent device.
func (p *Probe) Verify(ctx context.Context, deviceID string, timeout time.Duration) bool {
	if deviceID == "" {
		return false
	}
	if timeout <= 0 {
		timeout = p.cfg.Timeout
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	addr := p.cfg.BroadcastAddr
	if addr == "" {
		addr = localBroadcast
	}
	dest, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", addr, p.cfg.Port))
	if err != nil {
		p.logger.Warn("discovery address unresolvable", "addr", addr, "error", err)
		return false
	}

	conn, err := listenBroadcast(ctx)
	if err != nil {
		p.logger.Warn("discovery socket unavailable", "error", err)
		return false
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		p.logger.Warn("discovery deadline rejected", "error", err)
		return false
	}

	// Unblock the read promptly when the caller cancels.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now()) //nolint:errcheck // best effort wakeup
	})
	defer stop()

	go p.sendProbes(ctx, conn, dest, deviceID)

	want := responsePrefix + deviceID
	buf := make([]byte, readBufferSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			p.logger.Debug("discovery window closed", "device_id", deviceID, "error", err)
			return false
		}
		if string(buf[:n]) == want {
			p.logger.Info("device discovered", "device_id", deviceID, "addr", from.String())
			return true
		}
		p.logger.Debug("discovery response ignored", "device_id", deviceID, "from", from.String())
	}
}

// listenBroadcast opens the probe's UDP socket. Datagrams go to the
// broadcast address, so the socket needs SO_BROADCAST; the kernel
// rejects broadcast sends with EACCES without it.
func listenBroadcast(ctx context.Context) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var optErr error
			err := c.Control(func(fd uintptr) {
				optErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			})
			if err != nil {
				return err
			}
			return optErr
		},
	}

	pc, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

func (p *Probe) sendProbes(ctx context.Context, conn *net.UDPConn, dest *net.UDPAddr, deviceID string) {
	payload := []byte(requestPrefix + deviceID)
	for i := 0; i < probeCount; i++ {
		if _, err := conn.WriteToUDP(payload, dest); err != nil {
			p.logger.Debug("discovery send failed", "device_id", deviceID, "error", err)
			return
		}
		if i < probeCount-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(probeInterval):
			}
		}
	}
}
