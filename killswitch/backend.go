package killswitch

import (
	"context"
	"net/netip"
)

// Backend is the platform-specific component that actually installs and
// removes traffic-blocking rules. Implementations must be atomic: if
// InstallRules fails, any partially applied rules are removed before the
// error is returned, and vice versa.
type Backend interface {
	InstallRules(ctx context.Context, rules RuleSet) error
	RemoveRules(ctx context.Context) error
}

// IPv6Protector is an optional backend capability that blocks IPv6 traffic
// separately from the main rule set, for stacks where the tunnel carries
// IPv4 only.
type IPv6Protector interface {
	EnableIPv6LeakProtection(ctx context.Context) error
	DisableIPv6LeakProtection(ctx context.Context) error
}

// Store persists the configured Mode across process restarts.
type Store interface {
	// Load returns the persisted mode. A missing or corrupt record loads
	// as ModeOff without error.
	Load() (Mode, error)
	Save(Mode) error
}

// Settings carries the static part of the rule set; the Switch combines it
// with the active Mode and the current VPN server endpoint on every install.
type Settings struct {
	// TunnelInterface is the tunnel link whose traffic stays permitted.
	TunnelInterface string `yaml:"tunnel_interface"`
	// SplitTunnelIPv4 and SplitTunnelIPv6 are destinations excluded from
	// blocking even while enforcement is active.
	SplitTunnelIPv4 []netip.Prefix `yaml:"split_tunnel_ipv4,omitempty"`
	SplitTunnelIPv6 []netip.Prefix `yaml:"split_tunnel_ipv6,omitempty"`
	// DNSServers stay reachable outside the tunnel, so that reconnecting
	// does not require tearing the switch down.
	DNSServers []netip.Addr `yaml:"dns_servers,omitempty"`
	// BlockIPv6 additionally engages the backend's IPv6 leak protection.
	BlockIPv6 bool `yaml:"block_ipv6"`
}

// RuleSet is what the Switch hands to the backend on each install.
type RuleSet struct {
	Mode     Mode
	Settings Settings
	// Server is the VPN server endpoint that must stay reachable so the
	// tunnel can (re)connect. May be the zero Addr when no server is known.
	Server netip.Addr
}
