//go:build !linux
// +build !linux

package netfilter

import (
	"github.com/vpnhouse/killswitch-lib-go/killswitch"
)

// The nftables backend is linux-only; on other platforms the factory stays
// registered but never reports itself available.
func init() {
	killswitch.Register(killswitch.Factory{
		Name:      "nftables",
		Priority:  100,
		Available: func() bool { return false },
		New: func() (killswitch.Backend, error) {
			return nil, killswitch.ErrBackendUnavailable
		},
	})
}
