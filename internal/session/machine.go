package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/adrianva1983/whatsApp-bot/internal/metrics"
	"github.com/adrianva1983/whatsApp-bot/internal/models"
)

// DefaultResetDelay is the pause before reconnecting after the QR references
// of a pairing session ran out.
const DefaultResetDelay = 750 * time.Millisecond

// anyGeneration lets a mutation apply regardless of the current driver.
// Generations start at 1, so 0 never names a live driver.
const anyGeneration uint64 = 0

// QRRenderer turns a pairing code into the payload shown to users.
type QRRenderer func(code string) (string, error)

// Option configures a Machine.
type Option func(*Machine)

// WithResetDelay overrides DefaultResetDelay.
func WithResetDelay(d time.Duration) Option {
	return func(m *Machine) { m.resetDelay = d }
}

// WithQRRenderer sets how pairing codes are rendered. Without it the raw
// code is published.
func WithQRRenderer(r QRRenderer) Option {
	return func(m *Machine) { m.renderQR = r }
}

// Machine owns the single logical session. It creates drivers through a
// Factory, reacts to their events and publishes every state change.
//
// Each driver instance is tagged with a generation. Tearing a driver down
// bumps the generation, so late events from the old instance are dropped.
type Machine struct {
	factory    Factory
	logger     zerolog.Logger
	resetDelay time.Duration
	renderQR   QRRenderer

	connects singleflight.Group

	mu         sync.Mutex
	state      models.SessionState
	published  models.Status
	driver     Driver
	gen        uint64
	resetTimer *time.Timer
	onChange   []func(models.SessionState)
	onMessage  func(models.Inbound)

	// Snapshots are numbered under mu and delivered in that order under
	// notifyMu, so a slow observer never holds mu.
	nextSeq    uint64
	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	notified   uint64
}

// New creates a Machine in the init state.
func New(factory Factory, logger zerolog.Logger, opts ...Option) *Machine {
	m := &Machine{
		factory:    factory,
		logger:     logger.With().Str("component", "session").Logger(),
		resetDelay: DefaultResetDelay,
		renderQR:   func(code string) (string, error) { return code, nil },
		state:      models.SessionState{Status: models.StatusInit},
		published:  models.StatusInit,
	}
	m.notifyCond = sync.NewCond(&m.notifyMu)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnStateChange registers an observer for state snapshots. Observers run
// synchronously and must not call back into the Machine.
func (m *Machine) OnStateChange(fn func(models.SessionState)) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	m.mu.Unlock()
}

// OnMessage sets the handler for inbound messages.
func (m *Machine) OnMessage(fn func(models.Inbound)) {
	m.mu.Lock()
	m.onMessage = fn
	m.mu.Unlock()
}

// State returns a snapshot of the session state.
func (m *Machine) State() models.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Ready reports whether a driver instance is established.
func (m *Machine) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.driver != nil
}

// SendText sends a text message through the current driver. It fails with
// ErrNotConnected when there is none; nothing is queued.
func (m *Machine) SendText(ctx context.Context, to, text string) error {
	m.mu.Lock()
	d := m.driver
	m.mu.Unlock()

	if d == nil {
		return ErrNotConnected
	}
	return d.SendText(ctx, to, text)
}

// Connect starts a connect attempt. Concurrent callers share the attempt in
// flight instead of creating a second driver. The attempt itself outlives
// ctx; ctx only bounds how long the caller waits.
func (m *Machine) Connect(ctx context.Context) error {
	ch := m.connects.DoChan("connect", func() (any, error) {
		return nil, m.connect(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) connect(ctx context.Context) error {
	m.mu.Lock()
	m.stopResetLocked()
	old := m.driver
	m.driver = nil
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	if old != nil {
		old.End()
	}

	d, err := m.factory.Open(ctx, func(event any) { m.dispatch(gen, event) })
	if err != nil {
		return fmt.Errorf("open driver: %w", err)
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		d.End()
		return ErrSuperseded
	}
	m.driver = d
	m.mu.Unlock()

	m.logger.Debug().Uint64("generation", gen).Msg("driver created, connecting")

	err = d.Connect(ctx)

	m.mu.Lock()
	superseded := m.gen != gen
	if err != nil && !superseded {
		m.driver = nil
	}
	m.mu.Unlock()

	switch {
	case superseded:
		return ErrSuperseded
	case err != nil:
		d.End()
		return fmt.Errorf("connect driver: %w", err)
	}
	return nil
}

// Logout unlinks the account, discards the stored credentials and starts a
// fresh connect so a new QR code is issued. Driver logout and teardown are
// best-effort; any other failure leaves the session closed. Cancelling ctx
// does not interrupt the sequence once started.
func (m *Machine) Logout(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	d := m.detach(func(s *models.SessionState) {
		s.Status = models.StatusLoggingOut
	})

	if d != nil {
		if err := d.Logout(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("driver logout failed")
		}
		d.End()
	}

	if err := m.factory.Discard(ctx); err != nil {
		return m.fail(fmt.Errorf("discard credentials: %w", err))
	}

	m.mutate(anyGeneration, func(s *models.SessionState) bool {
		s.Status = models.StatusLoggedOut
		s.Identity = nil
		s.QRPayload = ""
		return true
	})

	if err := m.reconnectNow(ctx); err != nil {
		return m.fail(err)
	}
	return nil
}

// Restart tears the current driver down and connects again, recording
// reason as the last error. Like Logout it runs to completion even if ctx
// is cancelled.
func (m *Machine) Restart(ctx context.Context, reason string) error {
	ctx = context.WithoutCancel(ctx)

	d := m.detach(func(s *models.SessionState) {
		s.Status = models.StatusReconnecting
		s.LastError = reason
	})
	if d != nil {
		d.End()
	}

	metrics.ReconnectAttempts.WithLabelValues("restart").Inc()
	if err := m.reconnectNow(ctx); err != nil {
		return m.fail(err)
	}
	return nil
}

// Close stops the pending reset and ends the current driver.
func (m *Machine) Close() {
	m.mu.Lock()
	m.stopResetLocked()
	d := m.driver
	m.driver = nil
	m.gen++
	m.mu.Unlock()

	if d != nil {
		d.End()
	}
}

// reconnectNow connects once more if the first attempt joined a stale
// attempt that got superseded by the caller's own teardown.
func (m *Machine) reconnectNow(ctx context.Context) error {
	err := m.Connect(ctx)
	if errors.Is(err, ErrSuperseded) {
		err = m.Connect(ctx)
	}
	return err
}

// reconnect runs a background connect attempt and closes the session if it
// fails.
func (m *Machine) reconnect() {
	err := m.Connect(context.Background())
	if err != nil && !errors.Is(err, ErrSuperseded) {
		_ = m.fail(err)
	}
}

// detach discards the current driver, applies fn and publishes. The caller
// owns the returned driver.
func (m *Machine) detach(fn func(s *models.SessionState)) Driver {
	m.mu.Lock()
	m.stopResetLocked()
	d := m.driver
	m.driver = nil
	m.gen++
	fn(&m.state)
	m.publishLocked()
	return d
}

func (m *Machine) fail(err error) error {
	m.logger.Error().Err(err).Msg("session failed")
	m.mutate(anyGeneration, func(s *models.SessionState) bool {
		s.Status = models.StatusClosed
		s.LastError = err.Error()
		return true
	})
	return err
}

// dispatch routes a driver event. Events from superseded drivers are dropped.
func (m *Machine) dispatch(gen uint64, event any) {
	if !m.current(gen) {
		m.logger.Debug().Uint64("generation", gen).Type("event", event).Msg("ignoring event from stale driver")
		return
	}

	switch e := event.(type) {
	case QR:
		m.handleQR(gen, e)
	case Opened:
		m.handleOpened(gen)
	case Closed:
		m.handleClosed(gen, e)
	case CredsUpdated:
		m.handleCredsUpdated(gen)
	case Message:
		m.mu.Lock()
		fn := m.onMessage
		m.mu.Unlock()
		if fn != nil {
			fn(e.Inbound)
		}
	default:
		m.logger.Warn().Type("event", event).Msg("unknown driver event")
	}
}

func (m *Machine) handleQR(gen uint64, e QR) {
	if m.State().Status == models.StatusConnected {
		m.logger.Debug().Msg("ignoring QR code while connected")
		return
	}

	payload, err := m.renderQR(e.Code)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to render QR code")
	}

	m.mutate(gen, func(s *models.SessionState) bool {
		if s.Status == models.StatusConnected {
			return false
		}
		s.Status = models.StatusWaitingQR
		if err == nil {
			s.QRPayload = payload
		}
		return true
	})
}

func (m *Machine) handleOpened(gen uint64) {
	d := m.driverFor(gen)
	if d == nil {
		return
	}
	id := d.Identity()

	m.mutate(gen, func(s *models.SessionState) bool {
		if id == nil {
			s.Status = models.StatusOpenNotLinked
			return true
		}
		s.Status = models.StatusConnected
		s.LastError = ""
		s.QRPayload = ""
		s.Identity = id
		return true
	})

	if id != nil {
		m.logger.Info().Str("jid", id.ID).Msg("linked")
	}
}

func (m *Machine) handleClosed(gen uint64, e Closed) {
	if strings.Contains(e.Reason, QRAttemptsEnded) {
		m.hardReset(gen)
		return
	}

	shouldReconnect := e.StatusCode != CodeLoggedOut
	applied := m.mutate(gen, func(s *models.SessionState) bool {
		s.LastError = e.Reason
		if shouldReconnect {
			s.Status = models.StatusReconnecting
		} else {
			s.Status = models.StatusLoggedOut
		}
		return true
	})

	m.logger.Warn().
		Str("reason", e.Reason).
		Int("code", e.StatusCode).
		Bool("reconnect", shouldReconnect).
		Msg("connection closed")

	if applied && shouldReconnect {
		metrics.ReconnectAttempts.WithLabelValues("closed").Inc()
		go m.reconnect()
	}
}

// hardReset drops the driver of an exhausted pairing session and schedules a
// fresh connect after resetDelay.
func (m *Machine) hardReset(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.stopResetLocked()
	d := m.driver
	m.driver = nil
	m.gen++
	scheduled := m.gen
	m.resetTimer = time.AfterFunc(m.resetDelay, func() {
		if !m.current(scheduled) {
			return
		}
		metrics.ReconnectAttempts.WithLabelValues("qr_exhausted").Inc()
		m.reconnect()
	})
	m.state.Status = models.StatusWaitingQR
	m.state.QRPayload = ""
	m.publishLocked()

	m.logger.Warn().Dur("delay", m.resetDelay).Msg("QR attempts exhausted, resetting driver")
	if d != nil {
		d.End()
	}
}

func (m *Machine) handleCredsUpdated(gen uint64) {
	d := m.driverFor(gen)
	if d == nil {
		return
	}

	if err := d.SaveCredentials(context.Background()); err != nil {
		m.logger.Error().Err(err).Msg("failed to persist credentials")
	}
	id := d.Identity()

	m.mutate(gen, func(s *models.SessionState) bool {
		if id != nil && s.Status == models.StatusConnected {
			s.Identity = id
		}
		return true
	})
}

func (m *Machine) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

func (m *Machine) driverFor(gen uint64) Driver {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return nil
	}
	return m.driver
}

func (m *Machine) stopResetLocked() {
	if m.resetTimer != nil {
		m.resetTimer.Stop()
		m.resetTimer = nil
	}
}

// mutate applies fn when gen is current (or anyGeneration) and publishes the
// result if fn reports a change. It returns whether fn was applied.
func (m *Machine) mutate(gen uint64, fn func(s *models.SessionState) bool) bool {
	m.mu.Lock()
	if gen != anyGeneration && gen != m.gen {
		m.mu.Unlock()
		return false
	}
	if !fn(&m.state) {
		m.mu.Unlock()
		return true
	}
	m.publishLocked()
	return true
}

// publishLocked normalizes the state, releases mu and notifies observers
// once every earlier snapshot has been delivered. It must be called with mu
// held.
func (m *Machine) publishLocked() {
	m.state.Normalize()
	snapshot := m.state.Clone()
	observers := slices.Clone(m.onChange)

	if snapshot.Status != m.published {
		m.published = snapshot.Status
		metrics.SessionTransitions.WithLabelValues(string(snapshot.Status)).Inc()
		m.logger.Info().Str("status", string(snapshot.Status)).Msg("session status changed")
	}

	seq := m.nextSeq
	m.nextSeq++
	m.mu.Unlock()

	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	for m.notified != seq {
		m.notifyCond.Wait()
	}

	for _, fn := range observers {
		fn(snapshot)
	}

	m.notified++
	m.notifyCond.Broadcast()
}
