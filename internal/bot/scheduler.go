package bot

import (
	"time"

	"github.com/505260991/qq-farm-bot/internal/game"
	"github.com/505260991/qq-farm-bot/internal/notify"
	"github.com/505260991/qq-farm-bot/internal/store"
	"github.com/505260991/qq-farm-bot/internal/warehouse"
)

// ///////////////////////////////////////////////
// Flag Groups
// ///////////////////////////////////////////////

// Each automation loop is gated by a group of feature flags; the loop runs
// while at least one flag of its group is enabled. Task, notifications, and
// sell are single-flag groups.
var (
	farmFlags   = []string{"autoHarvest", "autoPlant", "autoFertilize", "autoWeed", "autoBug", "autoWater"}
	friendFlags = []string{"friendPatrol", "autoSteal", "friendHelp"}
)

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ///////////////////////////////////////////////
// Scheduler
// ///////////////////////////////////////////////

// scheduler maps flag state onto the five subsystem handles: farm loop,
// friend loop, task system, notification system, sell loop. All underlying
// handles tolerate redundant start/stop, so the scheduler recomputes freely.
type scheduler struct {
	store  *store.Store
	farm   game.FarmEngine
	friend game.FriendEngine
	tasks  game.TaskSystem
	notify *notify.System
	sell   *warehouse.SellLoop
}

func (s *scheduler) anyEnabled(flags []string) bool {
	for _, f := range flags {
		if s.store.FeatureEnabled(f) {
			return true
		}
	}
	return false
}

// applyAll starts every subsystem whose flag group is enabled. Called once
// per successful connect; the notification system always registers so the
// flag can gate recording alone.
func (s *scheduler) applyAll() {
	if s.anyEnabled(farmFlags) {
		s.farm.StartLoop()
	}
	if s.anyEnabled(friendFlags) {
		s.friend.StartLoop()
	}
	if s.store.FeatureEnabled("autoTask") {
		s.tasks.Init()
	}
	s.notify.SetEnabled(s.store.FeatureEnabled("enableNotifications"))
	s.notify.Init()
	if s.store.FeatureEnabled("autoSell") {
		s.sell.Start(s.sellInterval())
	}
}

// stopAll halts every subsystem. This is the teardown half shared by
// disconnect and kick.
func (s *scheduler) stopAll() {
	s.farm.StopLoop()
	s.friend.StopLoop()
	s.tasks.Cleanup()
	s.notify.Cleanup()
	s.sell.Stop()
}

// apply reacts to one flag change while connected: the owning group's loop
// starts when at least one of its flags is on and stops otherwise. Unknown
// flags have no scheduler effect.
func (s *scheduler) apply(flag string, enabled bool) {
	switch {
	case contains(farmFlags, flag):
		if s.anyEnabled(farmFlags) {
			s.farm.StartLoop()
		} else {
			s.farm.StopLoop()
		}
	case contains(friendFlags, flag):
		if s.anyEnabled(friendFlags) {
			s.friend.StartLoop()
		} else {
			s.friend.StopLoop()
		}
		s.friend.SetFeatures(map[string]bool{flag: enabled})
	case flag == "autoTask":
		if enabled {
			s.tasks.Init()
		} else {
			s.tasks.Cleanup()
		}
	case flag == "enableNotifications":
		s.notify.SetEnabled(enabled)
	case flag == "autoSell":
		if enabled {
			s.sell.Start(s.sellInterval())
		} else {
			s.sell.Stop()
		}
	}
}

func (s *scheduler) sellInterval() time.Duration {
	iv := s.store.Get().SellInterval
	if iv <= 0 {
		iv = 60
	}
	return time.Duration(iv) * time.Second
}
