package connmon

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	lock     sync.Mutex
	statuses []bool
}

func (r *recordingSink) OnConnectivityChanged(connected bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.statuses = append(r.statuses, connected)
}

func (r *recordingSink) Statuses() []bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]bool, len(r.statuses))
	copy(out, r.statuses)
	return out
}

func TestAdapterForwardsInOrder(t *testing.T) {
	sink := &recordingSink{}
	a := NewAdapter(sink)

	a.Connected()
	a.Disconnected()
	a.Connected()

	assert.Equal(t, []bool{true, false, true}, sink.Statuses())
}

func TestAdapterForwardsDuplicates(t *testing.T) {
	// duplicates must reach the sink: the switch treats a duplicate in a
	// healthy state as a no-op and uses a repeated one to retry a failed
	// rule install
	sink := &recordingSink{}
	a := NewAdapter(sink)

	a.Disconnected()
	a.Disconnected()
	a.Connected()
	a.Connected()
	a.Connected()

	assert.Equal(t, []bool{false, false, true, true, true}, sink.Statuses())
}
