package killswitch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func enableReq(target Mode) *request {
	r := newRequest(triggerEnable)
	r.target = target
	return r
}

func connReq(connected bool) *request {
	r := newRequest(triggerConnectivity)
	r.connected = connected
	return r
}

func TestDisableAlwaysYieldsOff(t *testing.T) {
	for _, cur := range []state{
		{mode: ModeOff},
		{mode: ModeSoft, enforcing: true},
		{mode: ModeSoft, connected: true},
		{mode: ModeHard, enforcing: true},
	} {
		p := nextState(cur, newRequest(triggerDisable))
		assert.Equal(t, ModeOff, p.next)
		assert.Equal(t, cur.enforcing, p.remove)
		assert.Equal(t, cur.mode != ModeOff, p.persist)
		assert.False(t, p.install)
	}
}

func TestDisableFromOffIsNoop(t *testing.T) {
	p := nextState(state{mode: ModeOff}, newRequest(triggerDisable))
	assert.True(t, p.noop())
}

func TestEnableHard(t *testing.T) {
	// From off and from soft: install unconditionally, connectivity is
	// irrelevant for hard mode.
	for _, cur := range []state{
		{mode: ModeOff},
		{mode: ModeOff, connected: true},
		{mode: ModeSoft, connected: true},
		{mode: ModeSoft, enforcing: true},
	} {
		p := nextState(cur, enableReq(ModeHard))
		assert.Equal(t, ModeHard, p.next)
		assert.True(t, p.install)
		assert.False(t, p.remove)
		assert.True(t, p.persist)
	}
}

func TestEnableSoft(t *testing.T) {
	// Disconnected (or unknown): come up blocking.
	p := nextState(state{mode: ModeOff}, enableReq(ModeSoft))
	assert.Equal(t, ModeSoft, p.next)
	assert.True(t, p.install)
	assert.True(t, p.persist)

	// Connected: soft mode does not block.
	p = nextState(state{mode: ModeOff, connected: true}, enableReq(ModeSoft))
	assert.Equal(t, ModeSoft, p.next)
	assert.False(t, p.install)
	assert.False(t, p.remove)
	assert.True(t, p.persist)
}

func TestEnableSoftDemotesHard(t *testing.T) {
	// Hard -> soft while connected lifts enforcement.
	p := nextState(state{mode: ModeHard, enforcing: true, connected: true}, enableReq(ModeSoft))
	assert.Equal(t, ModeSoft, p.next)
	assert.False(t, p.install)
	assert.True(t, p.remove)
	assert.True(t, p.persist)

	// Hard -> soft while disconnected keeps blocking, reapplied as soft.
	p = nextState(state{mode: ModeHard, enforcing: true}, enableReq(ModeSoft))
	assert.Equal(t, ModeSoft, p.next)
	assert.True(t, p.install)
	assert.False(t, p.remove)
}

func TestEnableSameModeIsNoop(t *testing.T) {
	for _, cur := range []state{
		{mode: ModeSoft, enforcing: true},
		{mode: ModeSoft, connected: true},
		{mode: ModeHard, enforcing: true},
	} {
		p := nextState(cur, enableReq(cur.mode))
		assert.True(t, p.noop())
		assert.Equal(t, cur.mode, p.next)
	}
}

func TestConnectivityOnlyMattersUnderSoft(t *testing.T) {
	for _, cur := range []state{
		{mode: ModeOff},
		{mode: ModeHard, enforcing: true},
	} {
		assert.True(t, nextState(cur, connReq(true)).noop())
		assert.True(t, nextState(cur, connReq(false)).noop())
	}

	p := nextState(state{mode: ModeSoft, enforcing: true}, connReq(true))
	assert.True(t, p.remove)
	assert.False(t, p.install)

	p = nextState(state{mode: ModeSoft, connected: true}, connReq(false))
	assert.True(t, p.install)
	assert.False(t, p.remove)
}

func TestDuplicateConnectivityIsNoop(t *testing.T) {
	cur := state{mode: ModeSoft, enforcing: true}
	assert.True(t, nextState(cur, connReq(false)).noop())

	cur = state{mode: ModeSoft, connected: true}
	assert.True(t, nextState(cur, connReq(true)).noop())
}

func TestRepeatedStatusRepairsEnforcement(t *testing.T) {
	// disconnected was delivered but the install failed: the same status
	// again must plan a fresh install
	p := nextState(state{mode: ModeSoft}, connReq(false))
	assert.True(t, p.install)
	assert.False(t, p.persist)

	// and a repeated connected status removes rules a failed remove left
	// behind
	p = nextState(state{mode: ModeSoft, connected: true, enforcing: true}, connReq(true))
	assert.True(t, p.remove)
}

func TestUpdateReappliesOnlyWhileEnforcing(t *testing.T) {
	p := nextState(state{mode: ModeHard, enforcing: true}, newRequest(triggerUpdate))
	assert.True(t, p.install)
	assert.Equal(t, ModeHard, p.next)

	p = nextState(state{mode: ModeSoft, connected: true}, newRequest(triggerUpdate))
	assert.True(t, p.noop())
}
