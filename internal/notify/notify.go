// Package notify turns server-pushed state changes into classified user
// notifications: level-ups, gold and experience gains, item gains and
// losses, friend events, task completions, and shop unlocks.
//
// The engine keeps its own last-seen gold and experience baselines,
// maintained independently of the session snapshot, so a transient decrease
// followed by a recovery never shows up as a gain.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/505260991/qq-farm-bot/internal/game"
	"github.com/505260991/qq-farm-bot/internal/gamedata"
)

// MaxNotifications caps the retained list; the oldest entries drop silently.
const MaxNotifications = 100

// ///////////////////////////////////////////////
// Notification
// ///////////////////////////////////////////////

// Type classifies a notification.
type Type string

const (
	TypeItemGain          Type = "item_gain"
	TypeItemLoss          Type = "item_loss"
	TypeLevelUp           Type = "level_up"
	TypeGoldGain          Type = "gold_gain"
	TypeExpGain           Type = "exp_gain"
	TypeFriendApplication Type = "friend_application"
	TypeFriendAdded       Type = "friend_added"
	TypeTaskCompleted     Type = "task_completed"
	TypeGoodsUnlock       Type = "goods_unlock"
)

// Notification is one entry of the user-facing notification log.
type Notification struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Icon      string         `json:"icon"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"` // ISO-8601
	Read      bool           `json:"read"`
}

// ///////////////////////////////////////////////
// System
// ///////////////////////////////////////////////

// System is the state-diff engine plus the bounded notification log.
type System struct {
	mu sync.Mutex

	// enabled gates recording entirely: while false nothing is stored.
	enabled bool
	// active is the subsystem registration handle; push events are only
	// processed between Init and Cleanup.
	active bool

	// list is most-recent-first, capped at [MaxNotifications].
	list []Notification

	// lastGold and lastExp are this engine's own diff baselines, updated
	// unconditionally on every basic snapshot.
	lastGold int64
	lastExp  int64

	// userState returns the session's current player snapshot.
	userState func() game.UserState
	// friendIgnored reports whether a friend name is on the ignore list;
	// applications from ignored names are suppressed. May be nil.
	friendIgnored func(name string) bool
	// logf records a categorized game log line. May be nil.
	logf func(category, message string)
}

// New creates a System reading session snapshots from userState.
func New(userState func() game.UserState) *System {
	return &System{userState: userState}
}

// SetFriendIgnored installs the friend-ignore predicate.
func (s *System) SetFriendIgnored(fn func(name string) bool) {
	s.friendIgnored = fn
}

// SetLogFunc installs the game log sink.
func (s *System) SetLogFunc(fn func(category, message string)) {
	s.logf = fn
}

// SetEnabled turns recording on or off. While off no notification is stored,
// not merely hidden.
func (s *System) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

// Enabled reports whether recording is on.
func (s *System) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Init registers the engine for push events. Idempotent.
func (s *System) Init() {
	s.mu.Lock()
	already := s.active
	s.active = true
	s.mu.Unlock()
	if !already {
		s.log("通知", "通知系统已启动")
	}
}

// Cleanup unregisters the engine. Idempotent. The stored list survives so
// the user can still review past notifications after a disconnect.
func (s *System) Cleanup() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// Active reports whether the engine is registered for push events.
func (s *System) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ResetBaselines zeroes the engine's gold/exp diff baselines. Called on
// teardown so a reconnect starts fresh.
func (s *System) ResetBaselines() {
	s.mu.Lock()
	s.lastGold = 0
	s.lastExp = 0
	s.mu.Unlock()
}

func (s *System) log(category, message string) {
	if s.logf != nil {
		s.logf(category, message)
	}
}

// ///////////////////////////////////////////////
// Recording
// ///////////////////////////////////////////////

// newID builds a notification identifier from the creation time plus a
// random suffix, unique even for notifications created in the same instant.
func newID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

// add funnels every notification through one constructor: it assigns the
// ID, stamps an ISO timestamp, marks the entry unread, prepends it, and
// truncates past the cap. A complete no-op while recording is disabled.
func (s *System) add(n Notification) {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	n.ID = newID(now)
	n.Timestamp = now.UTC().Format(time.RFC3339)
	n.Read = false

	s.list = append([]Notification{n}, s.list...)
	if len(s.list) > MaxNotifications {
		s.list = s.list[:MaxNotifications]
	}
	s.mu.Unlock()

	s.log("通知", fmt.Sprintf("[%s] %s", n.Type, n.Title))
}

// ///////////////////////////////////////////////
// Push Event Handling
// ///////////////////////////////////////////////

// HandleEvent classifies one push event. Events arriving while the engine
// is not registered are ignored.
func (s *System) HandleEvent(ev game.PushEvent) {
	if !s.Active() {
		return
	}
	switch e := ev.(type) {
	case game.ItemNotify:
		s.handleItems(e)
	case game.BasicNotify:
		s.handleBasic(e)
	case game.FriendApplicationReceivedNotify:
		s.handleFriendApplications(e)
	case game.FriendAddedNotify:
		s.handleFriendsAdded(e)
	case game.TaskInfoNotify:
		s.handleTaskInfo(e)
	case game.GoodsUnlockNotify:
		s.handleGoodsUnlock(e)
	}
}

func (s *System) handleItems(e game.ItemNotify) {
	for _, item := range e.Items {
		name := gamedata.ItemName(item.ItemID)
		switch {
		case item.Delta > 0:
			s.add(Notification{
				Type:    TypeItemGain,
				Title:   "获得物品",
				Message: fmt.Sprintf("获得 %s x%d", name, item.Count),
				Icon:    "gift",
				Data:    map[string]any{"itemId": item.ItemID, "count": item.Count},
			})
		case item.Delta < 0:
			s.add(Notification{
				Type:    TypeItemLoss,
				Title:   "消耗物品",
				Message: fmt.Sprintf("消耗 %s x%d", name, -item.Delta),
				Icon:    "minus",
				Data:    map[string]any{"itemId": item.ItemID, "count": -item.Delta},
			})
		}
	}
}

// handleBasic diffs a level/gold/exp snapshot. The level compares against
// the session's value; gold and exp compare against this engine's own
// baselines and must also exceed the session's value, so decreases followed
// by partial recoveries never count as gains. The baselines advance
// unconditionally whether or not anything fired.
func (s *System) handleBasic(e game.BasicNotify) {
	st := s.userState()

	if e.Level > st.Level {
		s.add(Notification{
			Type:    TypeLevelUp,
			Title:   "升级了！",
			Message: fmt.Sprintf("恭喜升级到 Lv%d", e.Level),
			Icon:    "star",
			Data:    map[string]any{"oldLevel": st.Level, "newLevel": e.Level},
		})
	}

	s.mu.Lock()
	lastGold, lastExp := s.lastGold, s.lastExp
	s.lastGold, s.lastExp = e.Gold, e.Exp
	s.mu.Unlock()

	if e.Gold > lastGold && e.Gold > st.Gold {
		diff := e.Gold - lastGold
		s.add(Notification{
			Type:    TypeGoldGain,
			Title:   "金币增加",
			Message: fmt.Sprintf("获得 %d 金币", diff),
			Icon:    "coin",
			Data:    map[string]any{"amount": diff},
		})
	}

	if e.Exp > lastExp && e.Exp > st.Exp {
		diff := e.Exp - lastExp
		s.add(Notification{
			Type:    TypeExpGain,
			Title:   "经验增加",
			Message: fmt.Sprintf("获得 %d 经验", diff),
			Icon:    "trend",
			Data:    map[string]any{"amount": diff},
		})
	}
}

func (s *System) handleFriendApplications(e game.FriendApplicationReceivedNotify) {
	for _, app := range e.Applications {
		name := app.Name
		if name == "" {
			name = "未知玩家"
		}
		if s.friendIgnored != nil && s.friendIgnored(name) {
			continue
		}
		s.add(Notification{
			Type:    TypeFriendApplication,
			Title:   "收到好友申请",
			Message: fmt.Sprintf("%s 想要添加你为好友", name),
			Icon:    "user",
			Data: map[string]any{
				"gid": app.GID, "name": app.Name,
				"avatar": app.Avatar, "level": app.Level,
			},
		})
	}
}

func (s *System) handleFriendsAdded(e game.FriendAddedNotify) {
	for _, f := range e.Friends {
		name := f.Name
		if name == "" {
			name = "未知玩家"
		}
		s.add(Notification{
			Type:    TypeFriendAdded,
			Title:   "添加好友成功",
			Message: fmt.Sprintf("已添加 %s 为好友", name),
			Icon:    "success",
			Data:    map[string]any{"gid": f.GID, "name": f.Name},
		})
	}
}

// handleTaskInfo fires one completion notification per finished, unclaimed
// task in the snapshot. Every snapshot re-fires; no completion state is
// remembered between pushes.
func (s *System) handleTaskInfo(e game.TaskInfoNotify) {
	all := make([]game.Task, 0, len(e.Info.Growth)+len(e.Info.Daily))
	all = append(all, e.Info.Growth...)
	all = append(all, e.Info.Daily...)

	for _, task := range all {
		if task.TotalProgress <= 0 || task.Progress < task.TotalProgress || task.Claimed {
			continue
		}
		desc := task.Desc
		if desc == "" {
			desc = "未知任务"
		}
		s.add(Notification{
			Type:    TypeTaskCompleted,
			Title:   "任务完成",
			Message: fmt.Sprintf("任务「%s」已完成", desc),
			Icon:    "check",
			Data:    map[string]any{"taskId": task.ID, "desc": task.Desc},
		})
	}
}

func (s *System) handleGoodsUnlock(e game.GoodsUnlockNotify) {
	for _, g := range e.Goods {
		name := g.Name
		if name == "" {
			name = "新商品"
		}
		s.add(Notification{
			Type:    TypeGoodsUnlock,
			Title:   "商品解锁",
			Message: fmt.Sprintf("%s 已解锁", name),
			Icon:    "unlock",
			Data:    map[string]any{"goodsId": g.GoodsID, "name": g.Name},
		})
	}
}

// ///////////////////////////////////////////////
// List Access
// ///////////////////////////////////////////////

// List returns a copy of the log, most recent first.
func (s *System) List() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.list))
	copy(out, s.list)
	return out
}

// UnreadCount returns the number of unread entries.
func (s *System) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, notif := range s.list {
		if !notif.Read {
			n++
		}
	}
	return n
}

// MarkRead marks one entry read. Unknown IDs are a no-op.
func (s *System) MarkRead(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.list {
		if s.list[i].ID == id {
			s.list[i].Read = true
			return
		}
	}
}

// MarkAllRead marks every entry read.
func (s *System) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.list {
		s.list[i].Read = true
	}
}

// Clear discards the whole log.
func (s *System) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = nil
}
