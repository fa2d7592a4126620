package killswitch

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type trigger uint8

const (
	triggerEnable trigger = iota
	triggerDisable
	triggerConnectivity
	triggerUpdate
	triggerIPv6On
	triggerIPv6Off
)

type request struct {
	id        uuid.UUID
	trigger   trigger
	target    Mode       // triggerEnable
	connected bool       // triggerConnectivity
	server    netip.Addr // triggerUpdate
	done      chan result
}

type result struct {
	mode Mode
	err  error
}

func newRequest(t trigger) *request {
	return &request{
		id:      uuid.New(),
		trigger: t,
		done:    make(chan result, 1),
	}
}

// Switch owns the kill switch mode and serializes every mutation against
// the backend: at most one transition is in flight at any time, queued
// requests are applied against the post-completion state. Reads never
// enter the queue.
type Switch struct {
	backend  Backend
	store    Store
	settings Settings

	requests chan *request
	stop     chan struct{}
	finished chan struct{}
	stopOnce sync.Once

	// last confirmed values, published for queue-free reads
	mode      atomic.Int32
	enforcing atomic.Bool

	// owned by run(), never touched elsewhere after New returns
	cur    state
	server netip.Addr

	watchLock   sync.Mutex
	watchers    map[chan Mode]struct{}
	watchClosed bool
}

type Option func(*Switch)

// WithSettings sets the static rule set parameters handed to the backend.
func WithSettings(settings Settings) Option {
	return func(s *Switch) { s.settings = settings }
}

// WithServer sets the VPN server endpoint that stays reachable while rules
// are installed. Update changes it later.
func WithServer(server netip.Addr) Option {
	return func(s *Switch) { s.server = server }
}

// New restores the persisted mode, re-applies enforcement for it, and
// starts accepting requests. Restoring assumes the tunnel is disconnected
// until the first connectivity event says otherwise, so a restored ModeSoft
// comes up blocking.
func New(backend Backend, store Store, opts ...Option) (*Switch, error) {
	if backend == nil {
		return nil, ErrBackendUnavailable
	}

	s := &Switch{
		backend:  backend,
		store:    store,
		requests: make(chan *request, 16),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
		watchers: map[chan Mode]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}

	mode, err := store.Load()
	if err != nil || !mode.valid() {
		zap.L().Warn("cannot restore kill switch mode, assuming off", zap.Error(err))
		mode = ModeOff
	}

	s.cur = state{mode: mode}
	if mode != ModeOff {
		if err := s.backend.InstallRules(context.Background(), s.ruleSet(mode)); err != nil {
			return nil, wrapBackendError(err)
		}
		s.cur.enforcing = true
	}
	s.publish()
	modeGauge.Set(float64(mode))

	go s.run()
	return s, nil
}

// Enable requests rules be installed for the given mode and returns the
// resulting mode once the backend confirmed enforcement. Only ModeSoft and
// ModeHard are valid targets, turning the switch off is Disable's job.
func (s *Switch) Enable(ctx context.Context, mode Mode) (Mode, error) {
	if mode != ModeSoft && mode != ModeHard {
		return s.CurrentMode(), fmt.Errorf("%w: cannot enable mode %v", ErrOperationFailed, mode)
	}
	req := newRequest(triggerEnable)
	req.target = mode
	return s.submit(ctx, req)
}

// Disable removes all rules and returns once the backend confirmed removal.
// Disabling an already off switch succeeds without a backend call.
func (s *Switch) Disable(ctx context.Context) error {
	_, err := s.submit(ctx, newRequest(triggerDisable))
	return err
}

// Update re-applies the installed rules for a new VPN server endpoint. The
// mode does not change; with no rules installed this records the endpoint
// for the next install and returns immediately.
func (s *Switch) Update(ctx context.Context, server netip.Addr) error {
	req := newRequest(triggerUpdate)
	req.server = server
	_, err := s.submit(ctx, req)
	return err
}

// EnableIPv6LeakProtection engages the backend's separate IPv6 blocking,
// for tunnels that carry IPv4 only. Fails when the backend does not
// implement IPv6Protector.
func (s *Switch) EnableIPv6LeakProtection(ctx context.Context) error {
	_, err := s.submit(ctx, newRequest(triggerIPv6On))
	return err
}

func (s *Switch) DisableIPv6LeakProtection(ctx context.Context) error {
	_, err := s.submit(ctx, newRequest(triggerIPv6Off))
	return err
}

// CurrentMode returns the last backend-confirmed mode. It never blocks;
// while a transition is in flight it returns the pre-transition value.
func (s *Switch) CurrentMode() Mode {
	return Mode(s.mode.Load())
}

// Enforcing reports whether traffic is being blocked right now. Derived
// from mode and connectivity, not persisted.
func (s *Switch) Enforcing() bool {
	return s.enforcing.Load()
}

// OnConnectivityChanged feeds a tunnel status into the switch. Under
// ModeSoft a disconnect installs rules and a connect removes them; under
// any other mode only the status is recorded. The call does not wait for
// the transition, failures are logged and surface on the next request.
func (s *Switch) OnConnectivityChanged(connected bool) {
	req := newRequest(triggerConnectivity)
	req.connected = connected
	select {
	case s.requests <- req:
	case <-s.stop:
	}
}

// Watch returns a channel that yields the new mode after every confirmed
// transition. The channel is closed on Close; slow readers miss updates
// instead of blocking the switch.
func (s *Switch) Watch() <-chan Mode {
	ch := make(chan Mode, 4)

	s.watchLock.Lock()
	defer s.watchLock.Unlock()
	if s.watchClosed {
		close(ch)
		return ch
	}
	s.watchers[ch] = struct{}{}
	return ch
}

func (s *Switch) Unwatch(ch <-chan Mode) {
	s.watchLock.Lock()
	defer s.watchLock.Unlock()
	for c := range s.watchers {
		if (<-chan Mode)(c) == ch {
			delete(s.watchers, c)
			close(c)
			return
		}
	}
}

// Close stops the switch. The in-flight transition runs to completion,
// queued requests fail with ErrClosed, watcher channels close. Rules stay
// as they are: closing the process must not silently lift enforcement.
func (s *Switch) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.finished
}

func (s *Switch) submit(ctx context.Context, req *request) (Mode, error) {
	// A closed switch rejects new work even while the buffered queue still
	// has room; without this check the enqueue below could win the select
	// against the closed stop channel.
	select {
	case <-s.stop:
		return s.CurrentMode(), ErrClosed
	default:
	}

	select {
	case s.requests <- req:
	case <-s.stop:
		return s.CurrentMode(), ErrClosed
	case <-ctx.Done():
		return s.CurrentMode(), ctx.Err()
	}

	select {
	case res := <-req.done:
		return res.mode, res.err
	case <-s.finished:
		// Closed between enqueue and processing. The run loop may still
		// have answered the request before draining finished.
		select {
		case res := <-req.done:
			return res.mode, res.err
		default:
		}
		return s.CurrentMode(), ErrClosed
	case <-ctx.Done():
		// The transition is not cancelled, the caller just stops waiting.
		return s.CurrentMode(), ctx.Err()
	}
}

func (s *Switch) run() {
	defer close(s.finished)

	for {
		select {
		case req := <-s.requests:
			err := s.apply(req)
			if err != nil {
				zap.L().Warn("kill switch transition failed",
					zap.String("request", req.id.String()),
					zap.Error(err))
			}
			req.done <- result{mode: s.cur.mode, err: err}
		case <-s.stop:
			for {
				select {
				case req := <-s.requests:
					req.done <- result{mode: s.cur.mode, err: ErrClosed}
				default:
					s.closeWatchers()
					return
				}
			}
		}
	}
}

// apply executes one transition against the backend and the store. It is
// called from run() only; ctx is deliberately Background, a transition
// that started mutating backend state is never interrupted.
func (s *Switch) apply(req *request) error {
	ctx := context.Background()

	switch req.trigger {
	case triggerIPv6On, triggerIPv6Off:
		return s.applyIPv6(ctx, req.trigger == triggerIPv6On)
	case triggerUpdate:
		s.server = req.server
	case triggerConnectivity:
		defer func() { s.cur.connected = req.connected }()
	}

	p := nextState(s.cur, req)
	if p.noop() {
		return nil
	}

	prev := s.cur

	if p.install {
		if err := s.backend.InstallRules(ctx, s.ruleSet(p.next)); err != nil {
			transitionFailures.WithLabelValues("backend").Inc()
			return wrapBackendError(err)
		}
	} else if p.remove {
		if err := s.backend.RemoveRules(ctx); err != nil {
			transitionFailures.WithLabelValues("backend").Inc()
			return wrapBackendError(err)
		}
	}

	if p.persist {
		if err := s.store.Save(p.next); err != nil {
			// Enforced and persisted state must not diverge: revert the
			// backend to the pre-transition rule state and fail.
			s.revert(ctx, prev, p)
			transitionFailures.WithLabelValues("persistence").Inc()
			return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
		}
	}

	s.cur.mode = p.next
	if p.install {
		s.cur.enforcing = true
	} else if p.remove {
		s.cur.enforcing = false
	}
	s.publish()

	if p.next != prev.mode {
		transitionsTotal.WithLabelValues(p.next.String()).Inc()
		modeGauge.Set(float64(p.next))
		s.notify(p.next)
		zap.L().Info("kill switch mode changed",
			zap.String("request", req.id.String()),
			zap.Stringer("from", prev.mode),
			zap.Stringer("to", p.next),
			zap.Bool("enforcing", s.cur.enforcing))
	} else {
		zap.L().Debug("kill switch enforcement changed",
			zap.String("request", req.id.String()),
			zap.Stringer("mode", s.cur.mode),
			zap.Bool("enforcing", s.cur.enforcing))
	}
	return nil
}

func (s *Switch) applyIPv6(ctx context.Context, enable bool) error {
	p6, ok := s.backend.(IPv6Protector)
	if !ok {
		return fmt.Errorf("%w: backend cannot block ipv6", ErrOperationFailed)
	}
	var err error
	if enable {
		err = p6.EnableIPv6LeakProtection(ctx)
	} else {
		err = p6.DisableIPv6LeakProtection(ctx)
	}
	if err != nil {
		transitionFailures.WithLabelValues("backend").Inc()
		return wrapBackendError(err)
	}
	return nil
}

func (s *Switch) revert(ctx context.Context, prev state, p plan) {
	var err error
	switch {
	case p.install && prev.enforcing:
		err = s.backend.InstallRules(ctx, s.ruleSet(prev.mode))
	case p.install:
		err = s.backend.RemoveRules(ctx)
	case p.remove:
		err = s.backend.InstallRules(ctx, s.ruleSet(prev.mode))
	}
	if err != nil {
		zap.L().Error("cannot revert filter rules after failed persist",
			zap.Stringer("mode", prev.mode), zap.Error(err))
	}
}

func (s *Switch) ruleSet(mode Mode) RuleSet {
	return RuleSet{
		Mode:     mode,
		Settings: s.settings,
		Server:   s.server,
	}
}

func (s *Switch) publish() {
	s.mode.Store(int32(s.cur.mode))
	s.enforcing.Store(s.cur.enforcing)
}

func (s *Switch) notify(mode Mode) {
	s.watchLock.Lock()
	defer s.watchLock.Unlock()
	for ch := range s.watchers {
		select {
		case ch <- mode:
		default:
		}
	}
}

func (s *Switch) closeWatchers() {
	s.watchLock.Lock()
	defer s.watchLock.Unlock()
	s.watchClosed = true
	for ch := range s.watchers {
		close(ch)
	}
	s.watchers = map[chan Mode]struct{}{}
}

func wrapBackendError(err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrOperationFailed, err)
}
