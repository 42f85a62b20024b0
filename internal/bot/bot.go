// Package bot is the orchestrator: it owns the session lifecycle, drives
// the subsystem scheduler off the feature flags, pumps server push events
// into the notification and stats paths, and exposes the full command
// surface the UI talks to.
package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/505260991/qq-farm-bot/internal/bus"
	"github.com/505260991/qq-farm-bot/internal/game"
	"github.com/505260991/qq-farm-bot/internal/logbuf"
	"github.com/505260991/qq-farm-bot/internal/notify"
	"github.com/505260991/qq-farm-bot/internal/stats"
	"github.com/505260991/qq-farm-bot/internal/store"
	"github.com/505260991/qq-farm-bot/internal/warehouse"
)

// ///////////////////////////////////////////////
// Errors
// ///////////////////////////////////////////////

var (
	// ErrAlreadyConnecting is returned when a connect attempt is started
	// while another is still in flight.
	ErrAlreadyConnecting = errors.New("连接进行中")
	// ErrNotConnected is returned by commands that need a live session.
	ErrNotConnected = errors.New("未连接")
	// ErrConnectionClosed is the connect outcome when the link drops
	// before the handshake completes.
	ErrConnectionClosed = errors.New("连接已关闭")
	// ErrConnectTimeout is the connect outcome when nothing resolves the
	// attempt within the deadline.
	ErrConnectTimeout = errors.New("连接超时")
)

// defaultConnectTimeout bounds a connect attempt.
const defaultConnectTimeout = 15 * time.Second

// infoInterval is the cadence of the periodic informational log line.
const infoInterval = 30 * time.Minute

const projectInfo = "📢 本项目完全开源免费 | GitHub: github.com/505260991/qq-farm-bot"

// ConnState is the session lifecycle state.
type ConnState string

const (
	StateIdle         ConnState = "idle"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
)

// ///////////////////////////////////////////////
// Bot
// ///////////////////////////////////////////////

// Deps bundles the collaborators a Bot orchestrates.
type Deps struct {
	Session game.Session
	Farm    game.FarmEngine
	Friend  game.FriendEngine
	Tasks   game.TaskSystem
	Mall    game.Mall

	Store  *store.Store
	Bus    *bus.Bus
	Notify *notify.System
	Stats  *stats.Accumulator
	Sell   *warehouse.SellLoop
	Logs   *logbuf.Buffer

	Log *slog.Logger
}

// Bot is the session controller. One instance lives for the whole process;
// connect attempts and teardowns are serialized by its mutex, while the
// push-event pump runs on its own goroutine for the process lifetime.
type Bot struct {
	deps  Deps
	sched *scheduler

	// connectTimeout is fixed in production; tests shorten it.
	connectTimeout time.Duration

	mu          sync.Mutex
	state       ConnState
	platform    string
	connectedAt time.Time

	// lastExp and lastLevel are the session-scoped baselines used by the
	// state-changed handler for exp accounting and level-up detection.
	// Zero means unset; both reset on teardown.
	lastExp   int64
	lastLevel int

	// infoDone, when non-nil, cancels the running informational timer.
	infoDone chan struct{}

	pumpOnce sync.Once
}

// New wires a Bot from its collaborators and applies the persisted config
// to the engines. The push-event pump starts on the first Connect.
func New(deps Deps) *Bot {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	b := &Bot{
		deps:           deps,
		connectTimeout: defaultConnectTimeout,
		state:          StateIdle,
	}
	b.sched = &scheduler{
		store:  deps.Store,
		farm:   deps.Farm,
		friend: deps.Friend,
		tasks:  deps.Tasks,
		notify: deps.Notify,
		sell:   deps.Sell,
	}

	// Every game log line lands in the ring, feeds the textual stats
	// fallback, and goes out on the bus.
	deps.Logs.SetOnAppend(func(e logbuf.Entry) {
		b.deps.Stats.ParseLogMessage(e.Message)
		b.deps.Bus.Publish(bus.Event{Type: bus.EventLog, Payload: e})
	})

	deps.Notify.SetFriendIgnored(deps.Store.IsFriendIgnored)
	deps.Notify.SetLogFunc(b.gameLog)
	deps.Sell.SetLogFunc(b.gameLog)

	b.applyConfig(deps.Store.Get())
	return b
}

// applyConfig pushes the persisted intervals and plant settings into the
// engines. Used at startup and again when the config file changes on disk.
func (b *Bot) applyConfig(cfg store.Config) {
	b.deps.Farm.SetInterval(time.Duration(max(cfg.FarmInterval, 1)) * time.Second)
	b.deps.Friend.SetInterval(time.Duration(max(cfg.FriendInterval, 1)) * time.Second)

	if cfg.PlantMode == "manual" && cfg.PlantSeedID > 0 {
		b.deps.Farm.SetSeedOverride(cfg.PlantSeedID)
	} else {
		b.deps.Farm.SetSeedOverride(0)
	}
	if cfg.PlantMode == "fast" || cfg.PlantMode == "advanced" {
		b.deps.Farm.SetPlantStrategy(cfg.PlantMode)
	}
	b.deps.Friend.SetFeatures(cfg.Features)
}

// gameLog appends one categorized line to the log ring.
func (b *Bot) gameLog(category, message string) {
	b.deps.Logs.Append(category, message)
}

// State returns the current session lifecycle state.
func (b *Bot) State() ConnState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Connected reports whether a session is established.
func (b *Bot) Connected() bool {
	return b.State() == StateConnected
}

// SetConnectTimeout overrides the connect deadline. Test hook.
func (b *Bot) SetConnectTimeout(d time.Duration) {
	b.connectTimeout = d
}

// ///////////////////////////////////////////////
// Connect
// ///////////////////////////////////////////////

// Connect establishes a session with the given login code. Blocks until
// the attempt resolves one way: ready, closed, errored, or timed out.
// A failed attempt returns the bot to idle. A second Connect while one is
// in flight fails with [ErrAlreadyConnecting].
func (b *Bot) Connect(code, platform string) error {
	b.mu.Lock()
	if b.state == StateConnecting {
		b.mu.Unlock()
		return ErrAlreadyConnecting
	}
	b.state = StateConnecting

	if platform == "" {
		platform = b.deps.Store.Get().Platform
	}
	if platform == "" {
		platform = "qq"
	}
	b.platform = platform
	b.mu.Unlock()

	b.pumpOnce.Do(func() { go b.pump() })

	// Discard any state a previous session left behind.
	b.deps.Session.ResetState()

	if err := b.deps.Session.Connect(code); err != nil {
		b.mu.Lock()
		b.state = StateIdle
		b.mu.Unlock()
		return fmt.Errorf("连接失败: %w", err)
	}

	timeout := time.NewTimer(b.connectTimeout)
	defer timeout.Stop()

	select {
	case <-b.deps.Session.Ready():
		b.onReady(code)
		return nil
	case <-b.deps.Session.Closed():
		b.mu.Lock()
		b.state = StateIdle
		b.mu.Unlock()
		b.publishDisconnected()
		return ErrConnectionClosed
	case err := <-b.deps.Session.Errored():
		b.mu.Lock()
		b.state = StateIdle
		b.mu.Unlock()
		if err == nil {
			err = errors.New("连接失败")
		}
		return fmt.Errorf("连接失败: %w", err)
	case <-timeout.C:
		b.mu.Lock()
		b.state = StateIdle
		b.mu.Unlock()
		return ErrConnectTimeout
	}
}

// onReady completes a successful connect: baselines, info timer, account
// bookkeeping, best-effort mall calls, then the scheduler.
func (b *Bot) onReady(code string) {
	st := b.deps.Session.UserState()

	b.mu.Lock()
	b.state = StateConnected
	b.connectedAt = time.Now()
	b.lastExp = st.Exp
	b.lastLevel = st.Level
	platform := b.platform
	b.mu.Unlock()

	b.startInfoTimer()

	if st.GID != 0 && st.Name != "" {
		b.deps.Store.AddAccount(store.Account{
			Code:     code,
			Platform: platform,
			Name:     st.Name,
			GID:      st.GID,
			Level:    st.Level,
			LastUsed: time.Now().UnixMilli(),
		})
	}

	if err := b.deps.Mall.ClaimFreeGifts(); err != nil {
		b.deps.Log.Debug("free gift claim failed", "error", err)
	}
	if b.deps.Store.FeatureEnabled("autoBuyFertilizer") {
		if err := b.deps.Mall.BuyFertilizer(); err != nil {
			b.deps.Log.Debug("fertilizer purchase failed", "error", err)
		}
	}

	b.sched.applyAll()

	b.deps.Log.Info("session established", "gid", st.GID, "name", st.Name, "level", st.Level)
	b.publishStatus()
}

// ///////////////////////////////////////////////
// Teardown
// ///////////////////////////////////////////////

// Disconnect tears the session down. Always succeeds; disconnecting while
// already disconnected is a no-op teardown.
func (b *Bot) Disconnect() {
	b.teardown("disconnect")
}

// teardown is the one shared shutdown path for disconnect and kick. It
// must leave zero live timers behind.
func (b *Bot) teardown(reason string) {
	b.stopInfoTimer()
	b.sched.stopAll()
	b.deps.Farm.ClearShopCache()
	b.deps.Session.ResetState()
	b.deps.Notify.ResetBaselines()

	b.mu.Lock()
	b.state = StateDisconnected
	b.connectedAt = time.Time{}
	b.lastExp = 0
	b.lastLevel = 0
	b.mu.Unlock()

	b.deps.Log.Info("session closed", "reason", reason)
	b.publishDisconnected()
}

// ///////////////////////////////////////////////
// Informational Timer
// ///////////////////////////////////////////////

func (b *Bot) startInfoTimer() {
	b.mu.Lock()
	if b.infoDone != nil {
		close(b.infoDone)
	}
	done := make(chan struct{})
	b.infoDone = done
	b.mu.Unlock()

	b.gameLog("系统", projectInfo)

	go func() {
		ticker := time.NewTicker(infoInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				b.gameLog("系统", projectInfo)
			}
		}
	}()
}

func (b *Bot) stopInfoTimer() {
	b.mu.Lock()
	if b.infoDone != nil {
		close(b.infoDone)
		b.infoDone = nil
	}
	b.mu.Unlock()
}

// ///////////////////////////////////////////////
// Push-Event Pump
// ///////////////////////////////////////////////

// pump drains the session's push stream for the life of the process,
// dispatching each event in arrival order.
func (b *Bot) pump() {
	for ev := range b.deps.Session.Events() {
		switch e := ev.(type) {
		case game.KickedNotify:
			b.deps.Log.Warn("kicked by server", "reason", e.Reason)
			b.gameLog("系统", "已被服务器踢下线")
			b.teardown("kicked")
			continue
		case game.StateChangedNotify:
			b.handleStateChanged()
		}
		b.deps.Notify.HandleEvent(ev)
	}
}

// handleStateChanged accounts exp gains, detects level-ups, and pushes a
// status update. Only meaningful while connected; the baselines start from
// the connect snapshot so the first delta is never the whole total.
func (b *Bot) handleStateChanged() {
	if !b.Connected() {
		return
	}
	st := b.deps.Session.UserState()

	b.mu.Lock()
	lastExp, lastLevel := b.lastExp, b.lastLevel
	b.lastExp = st.Exp
	if st.Level > 0 {
		b.lastLevel = st.Level
	}
	b.mu.Unlock()

	if lastExp != 0 && st.Exp > lastExp {
		b.deps.Stats.Record(stats.KindExpGained, st.Exp-lastExp)
	}
	if lastLevel != 0 && st.Level > lastLevel {
		b.gameLog("系统", fmt.Sprintf("升级了！当前等级: %d", st.Level))
		b.deps.Farm.CheckUnlockableLands()
	}

	b.publishStatus()
}

// ///////////////////////////////////////////////
// Bus Helpers
// ///////////////////////////////////////////////

func (b *Bot) publishStatus() {
	b.deps.Bus.Publish(bus.Event{Type: bus.EventStatusUpdate, Payload: b.Status()})
}

func (b *Bot) publishDisconnected() {
	b.deps.Bus.Publish(bus.Event{Type: bus.EventStatusUpdate, Payload: Status{Connected: false}})
}
