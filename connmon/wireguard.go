package connmon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.zx2c4.com/wireguard/wgctrl"
)

const (
	// Peers are expected to re-handshake roughly every 2 minutes; no
	// handshake for 3 of them means the tunnel is dead.
	handshakeStaleAfter = 3 * time.Minute

	defaultPollInterval = 5 * time.Second
)

// WatchWireGuard polls a wireguard device and derives connectivity from
// handshake freshness: the tunnel counts as connected while at least one
// peer completed a handshake within handshakeStaleAfter. Useful where the
// connection manager itself gives no events to subscribe to.
func WatchWireGuard(ctx context.Context, device string, adapter *Adapter, pollInterval time.Duration) error {
	client, err := wgctrl.New()
	if err != nil {
		return fmt.Errorf("connmon: open wireguard control: %w", err)
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	go func() {
		defer client.Close()

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				adapter.deliver(deviceAlive(client, device))
			}
		}
	}()
	return nil
}

func deviceAlive(client *wgctrl.Client, device string) bool {
	dev, err := client.Device(device)
	if err != nil {
		zap.L().Debug("wireguard device not available", zap.String("device", device), zap.Error(err))
		return false
	}
	for _, peer := range dev.Peers {
		if peer.LastHandshakeTime.IsZero() {
			continue
		}
		if time.Since(peer.LastHandshakeTime) < handshakeStaleAfter {
			return true
		}
	}
	return false
}
