package connmon

import (
	"sync"

	"go.uber.org/zap"
)

// Sink consumes tunnel connectivity statuses. killswitch.Switch satisfies
// it; the adapter never holds enforcement logic of its own.
type Sink interface {
	OnConnectivityChanged(connected bool)
}

// Adapter translates connect/disconnect notifications from a VPN
// connection manager into Sink calls. Statuses are forwarded as delivered,
// duplicates included: the contract treats duplicates as no-ops, and a
// repeated status lets it repair enforcement after a failed rule install.
type Adapter struct {
	sink Sink

	lock  sync.Mutex
	last  bool
	known bool
}

func NewAdapter(sink Sink) *Adapter {
	return &Adapter{sink: sink}
}

func (a *Adapter) Connected() { a.deliver(true) }

func (a *Adapter) Disconnected() { a.deliver(false) }

func (a *Adapter) deliver(connected bool) {
	a.lock.Lock()
	changed := !a.known || a.last != connected
	a.last = connected
	a.known = true
	a.lock.Unlock()

	if changed {
		zap.L().Debug("tunnel connectivity changed", zap.Bool("connected", connected))
	}
	a.sink.OnConnectivityChanged(connected)
}
