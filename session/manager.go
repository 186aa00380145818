package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"reservations/entities"
	"reservations/observability"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/sirupsen/logrus"
)

type Correlator interface {
	CorrelateAdminReply(reply entities.AdminReply) (entities.AdminReviewTicket, bool)
}

type ManagerConfig struct {
	InactivityTimeout time.Duration
	// TimeoutRetryInterval re-arms the timer when the timeout transition
	// could not release a hold.
	TimeoutRetryInterval time.Duration
}

// Manager runs one goroutine per open session. Each session has its own
// queue of pending events, handled one at a time in arrival order, so a
// slow session never holds up the others.
type Manager struct {
	machine    *Machine
	correlator Correlator
	notifier   Notifier
	config     ManagerConfig

	mu       sync.Mutex
	sessions map[entities.SessionKey]*task
	closing  bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// maxPendingEvents caps the queue of a single session.
const maxPendingEvents = 64

type task struct {
	key  entities.SessionKey
	wake chan struct{}

	queueMu sync.Mutex
	queue   []envelope
	closed  bool

	summaryMu sync.Mutex
	summary   Summary
}

// envelope carries one event to its session. result is nil when nobody
// waits for the outcome.
type envelope struct {
	ctx    context.Context
	ev     entities.InboundEvent
	result chan error
}

func NewManager(machine *Machine, correlator Correlator, notifier Notifier, config ManagerConfig) *Manager {
	if machine == nil {
		panic("machine is nil")
	}
	if correlator == nil {
		panic("correlator is nil")
	}
	if notifier == nil {
		panic("notifier is nil")
	}
	if config.InactivityTimeout <= 0 {
		config.InactivityTimeout = 15 * time.Minute
	}
	if config.TimeoutRetryInterval <= 0 {
		config.TimeoutRetryInterval = 30 * time.Second
	}

	return &Manager{
		machine:    machine,
		correlator: correlator,
		notifier:   notifier,
		config:     config,
		sessions:   make(map[entities.SessionKey]*task),
		stop:       make(chan struct{}),
	}
}

// Dispatch routes the event to its session and waits until it is handled.
// Admin decisions are routed through the ticket they reply to.
func (m *Manager) Dispatch(ctx context.Context, ev entities.InboundEvent) error {
	for attempt := 0; attempt < 2; attempt++ {
		env := envelope{ctx: ctx, ev: ev, result: make(chan error, 1)}
		if err := m.route(ctx, env); err != nil {
			return err
		}

		select {
		case err := <-env.result:
			if errors.Is(err, errTaskFinished) {
				// the session ended before reaching this event
				continue
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return entities.ErrSessionClosed
}

// Submit routes the event to its session and returns once it is queued
// there. The outcome is logged by the session. Errors are about routing
// only: no open session, a stale admin reply or a full queue.
func (m *Manager) Submit(ctx context.Context, ev entities.InboundEvent) error {
	ctx = context.WithoutCancel(ctx)
	return m.route(ctx, envelope{ctx: ctx, ev: ev})
}

func (m *Manager) route(ctx context.Context, env envelope) error {
	ev := env.ev
	key := ev.Session

	if ev.Kind.IsAdmin() {
		ticket, ok := m.correlator.CorrelateAdminReply(entities.AdminReply{TicketID: ev.TicketID, AdminID: ev.AdminID})
		if !ok {
			m.notifier.NotifyChat(ctx, ev.Session.ChatID, "Too late: this reservation is no longer awaiting review.")
			return entities.ErrStaleCorrelation
		}
		key = ticket.Session
	}

	for attempt := 0; attempt < 2; attempt++ {
		t, err := m.taskFor(key, ev.Kind == entities.InputStart)
		if err != nil {
			return err
		}
		if t == nil {
			if ev.Kind.IsAdmin() {
				m.notifier.NotifyChat(ctx, ev.Session.ChatID, "Too late: this reservation is no longer awaiting review.")
				return entities.ErrStaleCorrelation
			}
			m.notifier.NotifyUser(ctx, key, notStartedNotice)
			return entities.ErrSessionClosed
		}

		err = t.enqueue(env)
		if errors.Is(err, errTaskFinished) {
			// the session ended between lookup and hand-over
			continue
		}
		return err
	}

	return entities.ErrSessionClosed
}

func (m *Manager) taskFor(key entities.SessionKey, create bool) (*task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closing {
		return nil, entities.ErrSessionClosed
	}
	if t, ok := m.sessions[key]; ok {
		return t, nil
	}
	if !create {
		return nil, nil
	}

	t := &task{
		key:  key,
		wake: make(chan struct{}, 1),
	}
	state := NewState(key, "")
	t.summary = state.Summary()
	m.sessions[key] = t

	m.wg.Add(1)
	observability.ActiveSessions.Inc()
	go m.run(t, state)

	return t, nil
}

var errTaskFinished = errors.New("session task finished")

func (t *task) enqueue(env envelope) error {
	t.queueMu.Lock()
	defer t.queueMu.Unlock()

	if t.closed {
		return errTaskFinished
	}
	if len(t.queue) >= maxPendingEvents {
		return entities.ErrSessionBusy
	}
	t.queue = append(t.queue, env)

	select {
	case t.wake <- struct{}{}:
	default:
	}

	return nil
}

func (t *task) next() (envelope, bool) {
	t.queueMu.Lock()
	defer t.queueMu.Unlock()

	if len(t.queue) == 0 {
		return envelope{}, false
	}
	env := t.queue[0]
	t.queue[0] = envelope{}
	t.queue = t.queue[1:]

	return env, true
}

// close stops the queue and returns what was still pending.
func (t *task) close() []envelope {
	t.queueMu.Lock()
	defer t.queueMu.Unlock()

	t.closed = true
	pending := t.queue
	t.queue = nil

	return pending
}

func (m *Manager) run(t *task, state *State) {
	defer m.finish(t)

	logger := log.FromContext(context.Background()).WithField("session", t.key.String())

	timer := time.NewTimer(m.config.InactivityTimeout)
	defer timer.Stop()

	for {
		select {
		case <-t.wake:
			for {
				env, ok := t.next()
				if !ok {
					break
				}

				before := state.Version
				err := m.machine.Handle(env.ctx, state, env.ev)
				if state.Version != before {
					m.machine.keepHold(env.ctx, state)
				}
				t.setSummary(state.Summary())
				env.reply(err)

				if state.Step.Terminal() {
					return
				}
				if state.Version != before {
					resetTimer(timer, m.config.InactivityTimeout)
				}
			}

		case <-timer.C:
			ctx := log.ToContext(context.Background(), logger)
			err := m.machine.Handle(ctx, state, entities.InboundEvent{
				Header:  entities.NewEventHeader(),
				Session: t.key,
				Kind:    entities.InputTimeout,
			})
			t.setSummary(state.Summary())

			if state.Step.Terminal() {
				return
			}
			logger.WithError(err).Warn("Timeout could not close the session, retrying later")
			timer.Reset(m.config.TimeoutRetryInterval)

		case <-m.stop:
			ctx := log.ToContext(context.Background(), logger)
			if err := m.machine.shutdown(ctx, state); err != nil {
				logger.WithError(err).Error("Could not release session on shutdown")
			}
			return
		}
	}
}

func (env envelope) reply(err error) {
	if env.result != nil {
		env.result <- err
		return
	}
	if err != nil {
		log.FromContext(env.ctx).WithError(err).WithField("kind", env.ev.Kind).Info("Inbound event not accepted")
	}
}

func (m *Manager) finish(t *task) {
	m.mu.Lock()
	if m.sessions[t.key] == t {
		delete(m.sessions, t.key)
	}
	m.mu.Unlock()

	// Events queued behind the final one are routed again, so a /start
	// sent right after the session ended opens a new one.
	for _, env := range t.close() {
		if env.result != nil {
			env.result <- errTaskFinished
			continue
		}
		if err := m.route(env.ctx, env); err != nil {
			log.FromContext(env.ctx).WithError(err).WithField("kind", env.ev.Kind).Info("Inbound event not accepted")
		}
	}

	observability.ActiveSessions.Dec()
	m.wg.Done()
}

func resetTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}

func (t *task) setSummary(summary Summary) {
	t.summaryMu.Lock()
	defer t.summaryMu.Unlock()
	t.summary = summary
}

func (t *task) getSummary() Summary {
	t.summaryMu.Lock()
	defer t.summaryMu.Unlock()
	return t.summary
}

// Sessions lists the open sessions as of their last handled event.
func (m *Manager) Sessions() []Summary {
	m.mu.Lock()
	tasks := make([]*task, 0, len(m.sessions))
	for _, t := range m.sessions {
		tasks = append(tasks, t)
	}
	m.mu.Unlock()

	summaries := make([]Summary, 0, len(tasks))
	for _, t := range tasks {
		summaries = append(summaries, t.getSummary())
	}

	return summaries
}

// Close stops accepting events and ends every open session, releasing any
// seats they still hold.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return
	}
	m.closing = true
	m.mu.Unlock()

	close(m.stop)
	m.wg.Wait()

	logrus.Info("Session manager stopped")
}
