package bot

import (
	"fmt"
	"sort"
	"time"

	"github.com/505260991/qq-farm-bot/internal/bus"
	"github.com/505260991/qq-farm-bot/internal/game"
	"github.com/505260991/qq-farm-bot/internal/gamedata"
	"github.com/505260991/qq-farm-bot/internal/logbuf"
	"github.com/505260991/qq-farm-bot/internal/notify"
	"github.com/505260991/qq-farm-bot/internal/planner"
	"github.com/505260991/qq-farm-bot/internal/store"
)

// ///////////////////////////////////////////////
// Status
// ///////////////////////////////////////////////

// Status is the composite snapshot the UI renders.
type Status struct {
	Connected   bool                 `json:"connected"`
	ConnectedAt int64                `json:"connectedAt,omitempty"`
	GID         int64                `json:"gid"`
	Name        string               `json:"name"`
	Level       int                  `json:"level"`
	Gold        int64                `json:"gold"`
	Exp         int64                `json:"exp"`
	ExpProgress gamedata.ExpProgress `json:"expProgress"`
	Features    map[string]bool      `json:"features"`
}

// Status assembles the current player snapshot with the feature flags. The
// displayed level is reconciled against the exp curve, since the raw level
// can lag the exp total right after a level-up.
func (b *Bot) Status() Status {
	st := b.deps.Session.UserState()
	cfg := b.deps.Store.Get()

	b.mu.Lock()
	var connectedAt int64
	if !b.connectedAt.IsZero() {
		connectedAt = b.connectedAt.UnixMilli()
	}
	b.mu.Unlock()

	var progress gamedata.ExpProgress
	if st.Level > 0 {
		progress = gamedata.LevelExpProgress(st.Level, st.Exp)
		if progress.Level != st.Level {
			st.Level = progress.Level
		}
	}

	return Status{
		Connected:   b.Connected(),
		ConnectedAt: connectedAt,
		GID:         st.GID,
		Name:        st.Name,
		Level:       st.Level,
		Gold:        st.Gold,
		Exp:         st.Exp,
		ExpProgress: progress,
		Features:    cfg.Features,
	}
}

// ///////////////////////////////////////////////
// Feature Flags
// ///////////////////////////////////////////////

// ToggleFeature persists one flag and, while connected, applies it through
// the scheduler. Returns the resulting flag set.
func (b *Bot) ToggleFeature(flag string, enabled bool) map[string]bool {
	features := b.deps.Store.SetFeature(flag, enabled)
	if b.Connected() {
		b.sched.apply(flag, enabled)
	}
	return features
}

// ///////////////////////////////////////////////
// Config
// ///////////////////////////////////////////////

// Config returns the full persisted configuration.
func (b *Bot) Config() store.Config {
	return b.deps.Store.Get()
}

// SaveConfig merges a partial update into the persisted config and applies
// the affected settings live: loop intervals, plant mode, seed override,
// and friend-feature flags.
func (b *Bot) SaveConfig(p store.Patch) store.Config {
	cfg := b.deps.Store.Update(p)

	if p.FarmInterval != nil {
		b.deps.Farm.SetInterval(time.Duration(max(*p.FarmInterval, 1)) * time.Second)
	}
	if p.FriendInterval != nil {
		b.deps.Friend.SetInterval(time.Duration(max(*p.FriendInterval, 1)) * time.Second)
	}

	if p.PlantMode != nil || p.PlantSeedID != nil {
		if cfg.PlantMode == "manual" && cfg.PlantSeedID > 0 {
			b.deps.Farm.SetSeedOverride(cfg.PlantSeedID)
		} else {
			b.deps.Farm.SetSeedOverride(0)
		}
		if cfg.PlantMode == "fast" || cfg.PlantMode == "advanced" {
			b.deps.Farm.SetPlantStrategy(cfg.PlantMode)
		}
	}

	if p.Features != nil {
		b.deps.Friend.SetFeatures(cfg.Features)
	}
	return cfg
}

// ReloadConfig re-reads the config file after an external edit and, if it
// changed, re-applies the settings and flags.
func (b *Bot) ReloadConfig() {
	if !b.deps.Store.Reload() {
		return
	}
	cfg := b.deps.Store.Get()
	b.applyConfig(cfg)
	if b.Connected() {
		for flag, enabled := range cfg.Features {
			b.sched.apply(flag, enabled)
		}
	}
	b.deps.Log.Info("config reloaded from disk")
	b.publishStatus()
}

// ///////////////////////////////////////////////
// Plant Plan
// ///////////////////////////////////////////////

// PlantPlan ranks the currently plantable crops under the configured
// strategy. The live shop listing constrains the candidate set when it is
// available; manual mode ranks with the fast strategy.
func (b *Bot) PlantPlan() planner.Plan {
	st := b.deps.Session.UserState()
	level := st.Level
	if level <= 0 {
		level = 1
	}

	strategy := b.deps.Store.Get().PlantMode
	if strategy == "manual" {
		strategy = planner.StrategyFast
	}

	goods, err := b.deps.Farm.ShopGoods()
	if err != nil {
		b.deps.Log.Debug("shop listing unavailable", "error", err)
		goods = nil
	}
	return planner.Calculate(level, goods, strategy)
}

// ///////////////////////////////////////////////
// Logs
// ///////////////////////////////////////////////

// Logs returns the retained game log entries, oldest first.
func (b *Bot) Logs() []logbuf.Entry {
	return b.deps.Logs.Entries()
}

// ClearLogs empties the game log ring.
func (b *Bot) ClearLogs() {
	b.deps.Logs.Clear()
}

// ///////////////////////////////////////////////
// Accounts
// ///////////////////////////////////////////////

func (b *Bot) Accounts() []store.Account {
	return b.deps.Store.Accounts()
}

func (b *Bot) AddAccount(a store.Account) []store.Account {
	return b.deps.Store.AddAccount(a)
}

func (b *Bot) RemoveAccount(code string) []store.Account {
	return b.deps.Store.RemoveAccount(code)
}

func (b *Bot) UpdateAccount(code string, p store.AccountPatch) []store.Account {
	return b.deps.Store.UpdateAccount(code, p)
}

// ///////////////////////////////////////////////
// Farm
// ///////////////////////////////////////////////

// Lands returns the player's land detail. Requires a live session.
func (b *Bot) Lands() ([]game.Land, error) {
	if !b.Connected() {
		return nil, ErrNotConnected
	}
	lands, err := b.deps.Farm.Lands()
	if err != nil {
		return nil, fmt.Errorf("获取土地信息失败: %w", err)
	}
	return lands, nil
}

// ///////////////////////////////////////////////
// Friends
// ///////////////////////////////////////////////

// Friends returns the friend list, self excluded, sorted by level
// descending. Requires a live session.
func (b *Bot) Friends() ([]game.Friend, error) {
	if !b.Connected() {
		return nil, ErrNotConnected
	}
	friends, err := b.deps.Friend.Friends()
	if err != nil {
		return nil, fmt.Errorf("获取好友列表失败: %w", err)
	}

	myGID := b.deps.Session.UserState().GID
	out := friends[:0:0]
	for _, f := range friends {
		if f.GID == myGID {
			continue
		}
		if f.Name == "" {
			f.Name = fmt.Sprintf("GID:%d", f.GID)
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Level > out[j].Level })
	return out, nil
}

// EnterFriendFarm returns the detail view of a friend's farm.
func (b *Bot) EnterFriendFarm(gid int64) (game.FriendFarm, error) {
	if !b.Connected() {
		return game.FriendFarm{}, ErrNotConnected
	}
	farm, err := b.deps.Friend.EnterFarm(gid)
	if err != nil {
		return game.FriendFarm{}, fmt.Errorf("进入好友农场失败: %w", err)
	}
	if farm.FriendName == "" {
		farm.FriendName = "未知好友"
	}
	return farm, nil
}

func (b *Bot) friendOp(name string, op func() error) error {
	if !b.Connected() {
		return ErrNotConnected
	}
	if err := op(); err != nil {
		return fmt.Errorf("%s失败: %w", name, err)
	}
	return nil
}

// StealFromFriend steals the harvest on the given plots.
func (b *Bot) StealFromFriend(gid int64, landIDs []int64) error {
	return b.friendOp("偷取", func() error { return b.deps.Friend.Steal(gid, landIDs) })
}

// WaterFriendLand waters the given plots on a friend's farm.
func (b *Bot) WaterFriendLand(gid int64, landIDs []int64) error {
	return b.friendOp("浇水", func() error { return b.deps.Friend.Water(gid, landIDs) })
}

// WeedFriendLand removes weeds on the given plots on a friend's farm.
func (b *Bot) WeedFriendLand(gid int64, landIDs []int64) error {
	return b.friendOp("除草", func() error { return b.deps.Friend.Weed(gid, landIDs) })
}

// InsectFriendLand removes bugs on the given plots on a friend's farm.
func (b *Bot) InsectFriendLand(gid int64, landIDs []int64) error {
	return b.friendOp("除虫", func() error { return b.deps.Friend.Insecticide(gid, landIDs) })
}

// ///////////////////////////////////////////////
// Operation Limits
// ///////////////////////////////////////////////

// OperationLimit is the daily-use bookkeeping for one friend operation.
type OperationLimit struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Remaining int    `json:"remaining"`
	CanGetExp bool   `json:"canGetExp"`
}

// OperationLimits reports remaining daily uses for every friend operation.
// Help operations share one exp-eligibility state; stealing always earns
// exp and the griefing operations never do.
func (b *Bot) OperationLimits() map[string]OperationLimit {
	helpExp := b.deps.Friend.CanGainExp(game.OpWeed)
	remaining := func(op int64) int { return b.deps.Friend.RemainingUses(op) }

	return map[string]OperationLimit{
		"weed":      {ID: game.OpWeed, Name: "除草", Remaining: remaining(game.OpWeed), CanGetExp: helpExp},
		"insect":    {ID: game.OpInsect, Name: "除虫", Remaining: remaining(game.OpInsect), CanGetExp: helpExp},
		"water":     {ID: game.OpWater, Name: "浇水", Remaining: remaining(game.OpWater), CanGetExp: helpExp},
		"steal":     {ID: game.OpSteal, Name: "偷菜", Remaining: remaining(game.OpSteal), CanGetExp: true},
		"putWeed":   {ID: game.OpPutWeed, Name: "放草", Remaining: remaining(game.OpPutWeed), CanGetExp: false},
		"putInsect": {ID: game.OpPutInsect, Name: "放虫", Remaining: remaining(game.OpPutInsect), CanGetExp: false},
	}
}

// ///////////////////////////////////////////////
// Tasks
// ///////////////////////////////////////////////

// TaskData returns the current task snapshot.
func (b *Bot) TaskData() (game.TaskInfo, error) {
	info, err := b.deps.Tasks.TaskInfo()
	if err != nil {
		return game.TaskInfo{}, fmt.Errorf("获取任务信息失败: %w", err)
	}
	return info, nil
}

// ClaimTaskReward claims one task's rewards.
func (b *Bot) ClaimTaskReward(taskID int64, useShare bool) ([]game.Reward, error) {
	rewards, err := b.deps.Tasks.ClaimReward(taskID, useShare)
	if err != nil {
		return nil, fmt.Errorf("领取任务奖励失败: %w", err)
	}
	return rewards, nil
}

// BatchClaimTaskRewards claims several tasks' rewards in one call.
func (b *Bot) BatchClaimTaskRewards(taskIDs []int64, useShare bool) ([]game.Reward, error) {
	rewards, err := b.deps.Tasks.BatchClaim(taskIDs, useShare)
	if err != nil {
		return nil, fmt.Errorf("批量领取任务奖励失败: %w", err)
	}
	return rewards, nil
}

// ///////////////////////////////////////////////
// Stats and Notifications
// ///////////////////////////////////////////////

// DailyStats returns today's counters.
func (b *Bot) DailyStats() store.DailyStats {
	return b.deps.Stats.Current()
}

// NotificationsData is the notification list plus its unread count.
type NotificationsData struct {
	Notifications []notify.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
}

// Notifications returns the retained notifications, most recent first.
func (b *Bot) Notifications() NotificationsData {
	return NotificationsData{
		Notifications: b.deps.Notify.List(),
		UnreadCount:   b.deps.Notify.UnreadCount(),
	}
}

// MarkNotificationRead marks one notification read.
func (b *Bot) MarkNotificationRead(id string) {
	b.deps.Notify.MarkRead(id)
	b.deps.Bus.Publish(bus.Event{Type: bus.EventNotificationsUpdated})
}

// MarkAllNotificationsRead marks every notification read.
func (b *Bot) MarkAllNotificationsRead() {
	b.deps.Notify.MarkAllRead()
	b.deps.Bus.Publish(bus.Event{Type: bus.EventNotificationsUpdated})
}

// ClearNotifications discards the whole notification list.
func (b *Bot) ClearNotifications() {
	b.deps.Notify.Clear()
	b.deps.Bus.Publish(bus.Event{Type: bus.EventNotificationsUpdated})
}
