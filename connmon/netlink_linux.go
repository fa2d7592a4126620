//go:build linux
// +build linux

package connmon

import (
	"context"
	"fmt"

	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// WatchLink follows the oper-state of the tunnel link via rtnetlink and
// feeds the adapter: link up means connected, link down or deleted means
// disconnected. Returns after subscribing; the watch stops with ctx.
func WatchLink(ctx context.Context, ifname string, adapter *Adapter) error {
	updates := make(chan netlink.LinkUpdate, 16)
	done := make(chan struct{})

	if err := netlink.LinkSubscribe(updates, done); err != nil {
		return fmt.Errorf("connmon: subscribe to link updates: %w", err)
	}

	// Deliver the initial status so a watch started mid-connection does
	// not wait for the next flap.
	if link, err := netlink.LinkByName(ifname); err == nil {
		adapter.deliver(link.Attrs().OperState == netlink.OperUp)
	} else {
		adapter.Disconnected()
	}

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					zap.L().Warn("link update stream closed")
					return
				}
				if upd.Link == nil || upd.Link.Attrs().Name != ifname {
					continue
				}
				if upd.Header.Type == unix.RTM_DELLINK {
					adapter.Disconnected()
					continue
				}
				adapter.deliver(upd.Link.Attrs().OperState == netlink.OperUp)
			}
		}
	}()
	return nil
}
