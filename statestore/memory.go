package statestore

import (
	"sync"

	"github.com/vpnhouse/killswitch-lib-go/killswitch"
)

// Memory is a non-durable store for tests and ephemeral setups.
type Memory struct {
	lock sync.Mutex
	mode killswitch.Mode
}

func NewMemory(mode killswitch.Mode) *Memory {
	return &Memory{mode: mode}
}

func (m *Memory) Load() (killswitch.Mode, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.mode, nil
}

func (m *Memory) Save(mode killswitch.Mode) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.mode = mode
	return nil
}
