// Package cloudsync shares one shopping list and its chat between devices
// through a remote record store. A device either hosts a new shared list and
// hands out a numeric join code, or joins an existing one with that code.
// Local edits are pushed as they happen; remote state is pulled on a
// schedule and applied without echoing back.
package cloudsync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Bache94/ListeByBache/internal/config"
	"github.com/Bache94/ListeByBache/internal/logging"
	"github.com/Bache94/ListeByBache/internal/shoppinglist"
)

type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Hosting      ConnectionState = "hosting"
	Joining      ConnectionState = "joining"
	Connected    ConnectionState = "connected"
)

type Role string

const (
	RoleNone   Role = ""
	RoleHost   Role = "host"
	RoleJoiner Role = "joiner"
)

type ChatMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// State is a copy of the session as observers see it. Zone is set only
// while Connection is Connected.
type State struct {
	Code       string          `json:"code,omitempty"`
	Connection ConnectionState `json:"connection"`
	Role       Role            `json:"role,omitempty"`
	Zone       string          `json:"zone,omitempty"`
	LastError  string          `json:"last_error,omitempty"`
	Peers      []string        `json:"peers"`
	Chat       []ChatMessage   `json:"chat"`
}

func (s State) clone() State {
	s.Peers = append([]string{}, s.Peers...)
	s.Chat = append([]ChatMessage{}, s.Chat...)
	return s
}

// session is one connect attempt. Its ctx is cancelled on teardown.
type session struct {
	epoch  uint64
	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup

	listPulling atomic.Bool
}

// view is what an operation needs to know about the live session.
type view struct {
	zone  string
	epoch uint64
	ctx   context.Context
	sess  *session
}

// bound returns a ctx that ends with either ctx or the session.
func (v view) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(v.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

type Option func(*Manager)

// WithTriggers replaces the default pull schedule. A nil trigger keeps the
// default for that loop.
func WithTriggers(list, chat Trigger) Option {
	return func(m *Manager) {
		m.listTrigger = list
		m.chatTrigger = chat
	}
}

// WithNotifications enables push-triggered pulls in addition to polling.
func WithNotifications(src NotificationSource) Option {
	return func(m *Manager) { m.notes = src }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the sync session of one device. Public methods never block
// on the network except Leave, which waits for the pull loops to stop.
type Manager struct {
	store  RecordStore
	notes  NotificationSource
	cfg    config.CloudSyncConfig
	logger *logging.Logger
	now    func() time.Time

	listTrigger Trigger
	chatTrigger Trigger

	// applyMu is held while pulled items are written to the list and
	// whenever the epoch moves. Lock order is applyMu, then mu.
	applyMu sync.Mutex

	mu           sync.Mutex
	list         *shoppinglist.Store
	state        State
	sess         *session
	epoch        uint64
	chatIDs      map[string]struct{}
	lastSeen     int64
	observers    map[int]func(State)
	nextObserver int

	tasks sync.WaitGroup
}

func NewManager(store RecordStore, cfg config.CloudSyncConfig, logger *logging.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.CodeLength == 0 {
		cfg.CodeLength = 6
	}
	if cfg.ListIntervalSeconds <= 0 {
		cfg.ListIntervalSeconds = 6
	}
	if cfg.ChatIntervalSeconds <= 0 {
		cfg.ChatIntervalSeconds = 4
	}
	m := &Manager{
		store:     store,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		chatIDs:   map[string]struct{}{},
		observers: map[int]func(State){},
	}
	m.resetLocked()
	if cfg.Push {
		if src, ok := store.(NotificationSource); ok {
			m.notes = src
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Bind connects the manager to the local list. User edits on the list are
// pushed while connected; pulled state is applied through ApplyExternal.
func (m *Manager) Bind(list *shoppinglist.Store) {
	m.mu.Lock()
	m.list = list
	m.mu.Unlock()
	list.OnLocalChange(m.HandleLocalChange)
}

// GenerateCode tears down any session, starts hosting under a fresh code and
// returns the code at once. The share is set up in the background.
func (m *Manager) GenerateCode() string {
	m.Leave()
	code := makeCode(m.cfg.CodeLength)

	m.applyMu.Lock()
	m.mu.Lock()
	s := m.beginLocked()
	m.state.Code = code
	m.state.Connection = Hosting
	m.state.Role = RoleHost
	m.mu.Unlock()
	m.applyMu.Unlock()
	m.publish()

	m.logger.Infof("hosting shared list with code %s", code)
	m.goTask(func() { m.runHost(s, code) })
	return code
}

// Join tears down any session and joins the list behind code. A blank code
// is ignored.
func (m *Manager) Join(code string) {
	code = trimCode(code)
	if code == "" {
		return
	}
	m.Leave()

	m.applyMu.Lock()
	m.mu.Lock()
	s := m.beginLocked()
	m.state.Code = code
	m.state.Connection = Joining
	m.state.Role = RoleJoiner
	m.mu.Unlock()
	m.applyMu.Unlock()
	m.publish()

	m.logger.Infof("joining shared list with code %s", code)
	m.goTask(func() { m.runJoin(s, code) })
}

// Leave returns to disconnected and clears the session. Both pull loops have
// stopped when it returns. Observers must not call Leave synchronously.
func (m *Manager) Leave() {
	m.applyMu.Lock()
	m.mu.Lock()
	s := m.sess
	m.sess = nil
	m.epoch++
	wasActive := m.state.Connection != Disconnected
	m.resetLocked()
	m.mu.Unlock()
	m.applyMu.Unlock()

	if s != nil {
		s.cancel()
		s.loops.Wait()
	}
	if wasActive {
		m.logger.Infof("left shared list")
	}
	m.publish()
}

func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Subscribe registers fn for state changes and returns a func that removes
// it. fn gets a copy and runs outside the manager lock.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	id := m.nextObserver
	m.nextObserver++
	m.observers[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

// Wait blocks until background flows, pushes and sends have finished. The
// pull loops are not included.
func (m *Manager) Wait() {
	m.tasks.Wait()
}

func (m *Manager) runHost(s *session, code string) {
	zone, err := m.host(s.ctx, code)
	if err != nil {
		m.fail(s, newError(KindConnectivity, "host", err))
		return
	}
	v, ok := m.connect(s, zone)
	if !ok {
		return
	}
	if err := m.pushSnapshot(v); err != nil {
		m.recordError(v.epoch, newError(KindSync, "snapshot sync", err))
	}
	m.ReconcileListNow(v.ctx)
	m.ReconcileChatNow(v.ctx)
	m.subscribe(v)
}

func (m *Manager) runJoin(s *session, code string) {
	zone, err := m.join(s.ctx, code)
	if err != nil {
		m.fail(s, newError(KindConnectivity, "join", err))
		return
	}
	v, ok := m.connect(s, zone)
	if !ok {
		return
	}
	m.ReconcileListNow(v.ctx)
	m.ReconcileChatNow(v.ctx)
	m.subscribe(v)
}

func (m *Manager) beginLocked() *session {
	if m.sess != nil {
		m.sess.cancel()
	}
	m.epoch++
	m.resetLocked()
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{epoch: m.epoch, ctx: ctx, cancel: cancel}
	m.sess = s
	return s
}

func (m *Manager) resetLocked() {
	m.state = State{Connection: Disconnected, Peers: []string{}, Chat: []ChatMessage{}}
	m.chatIDs = map[string]struct{}{}
	m.lastSeen = 0
}

// connect commits a successful flow and starts the pull loops, unless the
// attempt was torn down in the meantime.
func (m *Manager) connect(s *session, zone string) (view, bool) {
	m.mu.Lock()
	if m.sess != s {
		m.mu.Unlock()
		return view{}, false
	}
	m.state.Zone = zone
	m.state.Connection = Connected
	listTrigger, chatTrigger := m.triggers(zone)
	s.loops.Add(2)
	go m.loop(s, listTrigger, m.ReconcileListNow)
	go m.loop(s, chatTrigger, m.ReconcileChatNow)
	m.mu.Unlock()

	m.logger.With("zone", zone).Infof("connected as %s", m.Snapshot().Role)
	m.publish()
	return view{zone: zone, epoch: s.epoch, ctx: s.ctx, sess: s}, true
}

func (m *Manager) fail(s *session, err *Error) {
	m.applyMu.Lock()
	m.mu.Lock()
	if m.sess != s {
		m.mu.Unlock()
		m.applyMu.Unlock()
		return
	}
	m.sess = nil
	m.epoch++
	m.resetLocked()
	m.state.LastError = err.Error()
	m.mu.Unlock()
	m.applyMu.Unlock()

	s.cancel()
	m.logger.Warnf("%s", err.Error())
	m.publish()
}

func (m *Manager) loop(s *session, t Trigger, pull func(context.Context)) {
	defer s.loops.Done()
	t.Run(s.ctx, pull)
}

func (m *Manager) triggers(zone string) (Trigger, Trigger) {
	var list Trigger = Ticker{Interval: time.Duration(m.cfg.ListIntervalSeconds) * time.Second}
	var chat Trigger = Ticker{Interval: time.Duration(m.cfg.ChatIntervalSeconds) * time.Second}
	if m.notes != nil {
		list = Multi{list, Push{Source: m.notes, Zone: zone, RecordType: TypeListItem}}
		chat = Multi{chat, Push{Source: m.notes, Zone: zone, RecordType: TypeChatMessage}}
	}
	if m.listTrigger != nil {
		list = m.listTrigger
	}
	if m.chatTrigger != nil {
		chat = m.chatTrigger
	}
	return list, chat
}

// current reports the live session, if connected.
func (m *Manager) current() (view, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Connection != Connected || m.sess == nil {
		return view{}, false
	}
	return view{zone: m.state.Zone, epoch: m.epoch, ctx: m.sess.ctx, sess: m.sess}, true
}

// recordError sets LastError if the session that failed is still live.
func (m *Manager) recordError(epoch uint64, err *Error) {
	m.mu.Lock()
	if m.epoch != epoch || m.state.Connection != Connected {
		m.mu.Unlock()
		return
	}
	m.state.LastError = err.Error()
	m.mu.Unlock()

	m.logger.Warnf("%s", err.Error())
	m.publish()
}

func (m *Manager) publish() {
	m.mu.Lock()
	st := m.state.clone()
	fns := make([]func(State), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

func (m *Manager) goTask(fn func()) {
	m.tasks.Add(1)
	go func() {
		defer m.tasks.Done()
		fn()
	}()
}

func (m *Manager) nowMillis() int64 {
	return m.now().UnixMilli()
}
