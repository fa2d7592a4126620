//go:build linux
// +build linux

package netfilter

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"github.com/google/nftables"
	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/vpnhouse/killswitch-lib-go/killswitch"
)

const (
	tableName     = "vpnhouse-killswitch"
	tableNameIPv6 = "vpnhouse-killswitch6"
	chainName     = "output"
)

func init() {
	killswitch.Register(killswitch.Factory{
		Name:     "nftables",
		Priority: 100,
		Available: func() bool {
			conn, err := nftables.New()
			if err != nil {
				return false
			}
			_, err = conn.ListTables()
			return err == nil
		},
		New: func() (killswitch.Backend, error) { return New() },
	})
}

// Backend blocks non-tunnel traffic with an nftables table holding a
// drop-policy output chain plus accept rules for loopback, the tunnel
// interface, split-tunnel destinations, DNS and the VPN server endpoint.
// Install replaces the whole table in one netlink batch, so a failed
// install leaves no partial rule set behind.
type Backend struct {
	lock sync.Mutex
	conn *nftables.Conn
}

func New() (*Backend, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, fmt.Errorf("netfilter: open netlink: %w", err)
	}
	return &Backend{conn: conn}, nil
}

func (b *Backend) InstallRules(_ context.Context, rules killswitch.RuleSet) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.deleteTable(tableName)

	table := b.conn.AddTable(&nftables.Table{
		Family: nftables.TableFamilyINet,
		Name:   tableName,
	})

	policy := nftables.ChainPolicyDrop
	chain := b.conn.AddChain(&nftables.Chain{
		Name:     chainName,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookOutput,
		Priority: nftables.ChainPriorityFilter,
		Policy:   &policy,
	})

	b.acceptInterface(table, chain, "lo")
	if rules.Settings.TunnelInterface != "" {
		b.acceptInterface(table, chain, rules.Settings.TunnelInterface)
	}
	b.acceptEstablished(table, chain)

	if rules.Server.IsValid() {
		b.acceptAddr(table, chain, rules.Server)
	}
	for _, dns := range rules.Settings.DNSServers {
		b.acceptAddr(table, chain, dns)
	}
	for _, pfx := range rules.Settings.SplitTunnelIPv4 {
		b.acceptPrefix(table, chain, pfx)
	}
	for _, pfx := range rules.Settings.SplitTunnelIPv6 {
		b.acceptPrefix(table, chain, pfx)
	}

	if err := b.conn.Flush(); err != nil {
		// the batch is applied atomically, a rejected one leaves the
		// kernel untouched
		return fmt.Errorf("netfilter: install %s: %w", rules.Mode, err)
	}

	zap.L().Debug("netfilter rules installed",
		zap.Stringer("mode", rules.Mode),
		zap.String("tunnel", rules.Settings.TunnelInterface))
	return nil
}

func (b *Backend) RemoveRules(context.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if !b.deleteTable(tableName) {
		return nil
	}
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("netfilter: remove rules: %w", err)
	}
	return nil
}

// EnableIPv6LeakProtection drops all IPv6 output except loopback in a
// table of its own, independent from the main rule set.
func (b *Backend) EnableIPv6LeakProtection(context.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.deleteTable(tableNameIPv6)

	table := b.conn.AddTable(&nftables.Table{
		Family: nftables.TableFamilyIPv6,
		Name:   tableNameIPv6,
	})
	policy := nftables.ChainPolicyDrop
	chain := b.conn.AddChain(&nftables.Chain{
		Name:     chainName,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookOutput,
		Priority: nftables.ChainPriorityFilter,
		Policy:   &policy,
	})
	b.acceptInterface(table, chain, "lo")

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("netfilter: install ipv6 block: %w", err)
	}
	return nil
}

func (b *Backend) DisableIPv6LeakProtection(context.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if !b.deleteTable(tableNameIPv6) {
		return nil
	}
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("netfilter: remove ipv6 block: %w", err)
	}
	return nil
}

// deleteTable queues a delete for our table if the kernel has it. Returns
// false when there is nothing to delete.
func (b *Backend) deleteTable(name string) bool {
	tables, err := b.conn.ListTables()
	if err != nil {
		return false
	}
	for _, t := range tables {
		if t.Name == name {
			b.conn.DelTable(t)
			return true
		}
	}
	return false
}

func (b *Backend) acceptInterface(table *nftables.Table, chain *nftables.Chain, ifname string) {
	name := make([]byte, 16)
	copy(name, ifname)
	b.conn.AddRule(&nftables.Rule{
		Table: table,
		Chain: chain,
		Exprs: []expr.Any{
			&expr.Meta{Key: expr.MetaKeyOIFNAME, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: name},
			&expr.Verdict{Kind: expr.VerdictAccept},
		},
	})
}

func (b *Backend) acceptEstablished(table *nftables.Table, chain *nftables.Chain) {
	b.conn.AddRule(&nftables.Rule{
		Table: table,
		Chain: chain,
		Exprs: []expr.Any{
			&expr.Ct{Register: 1, Key: expr.CtKeySTATE},
			&expr.Bitwise{
				SourceRegister: 1,
				DestRegister:   1,
				Len:            4,
				Mask:           binaryutil.NativeEndian.PutUint32(expr.CtStateBitESTABLISHED | expr.CtStateBitRELATED),
				Xor:            binaryutil.NativeEndian.PutUint32(0),
			},
			&expr.Cmp{Op: expr.CmpOpNeq, Register: 1, Data: []byte{0, 0, 0, 0}},
			&expr.Verdict{Kind: expr.VerdictAccept},
		},
	})
}

func (b *Backend) acceptAddr(table *nftables.Table, chain *nftables.Chain, addr netip.Addr) {
	b.acceptPrefix(table, chain, netip.PrefixFrom(addr, addr.BitLen()))
}

func (b *Backend) acceptPrefix(table *nftables.Table, chain *nftables.Chain, pfx netip.Prefix) {
	var (
		nfproto  byte
		offset   uint32
		length   uint32
		addrData []byte
	)
	if pfx.Addr().Is4() {
		nfproto = unix.NFPROTO_IPV4
		offset, length = 16, 4
		v4 := pfx.Addr().As4()
		addrData = v4[:]
	} else {
		nfproto = unix.NFPROTO_IPV6
		offset, length = 24, 16
		v6 := pfx.Addr().As16()
		addrData = v6[:]
	}

	mask := prefixMask(pfx.Bits(), int(length))
	for i := range addrData {
		addrData[i] &= mask[i]
	}

	b.conn.AddRule(&nftables.Rule{
		Table: table,
		Chain: chain,
		Exprs: []expr.Any{
			&expr.Meta{Key: expr.MetaKeyNFPROTO, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{nfproto}},
			&expr.Payload{
				DestRegister: 1,
				Base:         expr.PayloadBaseNetworkHeader,
				Offset:       offset,
				Len:          length,
			},
			&expr.Bitwise{
				SourceRegister: 1,
				DestRegister:   1,
				Len:            length,
				Mask:           mask,
				Xor:            make([]byte, length),
			},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: addrData},
			&expr.Verdict{Kind: expr.VerdictAccept},
		},
	})
}

func prefixMask(bits, length int) []byte {
	mask := make([]byte, length)
	for i := 0; i < length; i++ {
		if bits >= 8 {
			mask[i] = 0xff
			bits -= 8
			continue
		}
		mask[i] = ^byte(0xff >> bits)
		break
	}
	return mask
}
