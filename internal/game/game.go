// Package game defines the contracts the bot core has with its external
// collaborators: the live game session (wire protocol and push stream), the
// farm/friend automation engines, the task system, the warehouse, and the
// mall. The implementations live outside this module; the core only
// orchestrates them.
package game

import "time"

// ///////////////////////////////////////////////
// User State
// ///////////////////////////////////////////////

// UserState is the server-reported snapshot of the logged-in player.
type UserState struct {
	GID   int64  `json:"gid"`
	Name  string `json:"name"`
	Level int    `json:"level"`
	Gold  int64  `json:"gold"`
	Exp   int64  `json:"exp"`
}

// ///////////////////////////////////////////////
// Push Events
// ///////////////////////////////////////////////

// PushEvent is a server-pushed state-change event delivered on the session's
// event stream. The concrete types below form the closed set of events the
// core reacts to; dispatch is by type switch.
type PushEvent interface{ pushEvent() }

// ItemDelta describes one item count change inside an [ItemNotify].
type ItemDelta struct {
	ItemID int64
	Count  int64
	Delta  int64
}

// ItemNotify reports inventory item gains and losses.
type ItemNotify struct {
	Items []ItemDelta
}

// BasicNotify reports the player's current level, gold, and experience.
type BasicNotify struct {
	Level int
	Gold  int64
	Exp   int64
}

// FriendApplication is one pending friend request.
type FriendApplication struct {
	GID    int64
	Name   string
	Avatar string
	Level  int
}

// FriendApplicationReceivedNotify reports newly received friend requests.
type FriendApplicationReceivedNotify struct {
	Applications []FriendApplication
}

// FriendAddedNotify reports friends that were just added.
type FriendAddedNotify struct {
	Friends []Friend
}

// TaskInfoNotify carries a full task snapshot push.
type TaskInfoNotify struct {
	Info TaskInfo
}

// GoodsUnlockNotify reports shop entries that became purchasable.
type GoodsUnlockNotify struct {
	Goods []ShopGood
}

// StateChangedNotify signals that the cached [UserState] was refreshed.
type StateChangedNotify struct{}

// KickedNotify signals a forced session termination by the server.
type KickedNotify struct {
	Reason string
}

func (ItemNotify) pushEvent()                      {}
func (BasicNotify) pushEvent()                     {}
func (FriendApplicationReceivedNotify) pushEvent() {}
func (FriendAddedNotify) pushEvent()               {}
func (TaskInfoNotify) pushEvent()                  {}
func (GoodsUnlockNotify) pushEvent()               {}
func (StateChangedNotify) pushEvent()              {}
func (KickedNotify) pushEvent()                    {}

// ///////////////////////////////////////////////
// Session
// ///////////////////////////////////////////////

// Session is the single live connection to the remote game service.
//
// Connect starts the handshake and returns immediately; completion is
// observed on the Ready, Closed, and Errored channels, of which at most one
// fires per attempt. Events delivers push events for the life of the
// process; it only carries traffic while a session is established.
type Session interface {
	Connect(credential string) error
	Ready() <-chan struct{}
	Closed() <-chan struct{}
	Errored() <-chan error
	Events() <-chan PushEvent

	// ResetState discards all connection-scoped internal state. Safe to
	// call at any time, including before the first connect.
	ResetState()

	// UserState returns the last known player snapshot.
	UserState() UserState
}

// ///////////////////////////////////////////////
// Automation Engines
// ///////////////////////////////////////////////

// LandStatus classifies one land plot.
type LandStatus string

const (
	LandEmpty       LandStatus = "empty"
	LandGrowing     LandStatus = "growing"
	LandHarvestable LandStatus = "harvestable"
	LandDead        LandStatus = "dead"
)

// LandPlant describes the crop currently on a plot.
type LandPlant struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Phase      int    `json:"phase"`
	PhaseName  string `json:"phaseName"`
	NeedsWater bool   `json:"needsWater"`
	HasWeeds   bool   `json:"hasWeeds"`
	HasBugs    bool   `json:"hasBugs"`
}

// Land is one plot of the player's (or a friend's) farm.
type Land struct {
	ID     int64      `json:"id"`
	Status LandStatus `json:"status"`
	Plant  *LandPlant `json:"plant"`
}

// ShopGood is one entry of the seed shop listing.
type ShopGood struct {
	GoodsID int64  `json:"goodsId"`
	SeedID  int64  `json:"seedId"`
	Name    string `json:"name"`
	Price   int64  `json:"price"`
}

// FarmEngine runs the own-farm automation loop (harvest, plant, water,
// weed, de-bug, fertilize). Start and stop are fire-and-forget; the engine
// tolerates redundant calls.
type FarmEngine interface {
	StartLoop()
	StopLoop()
	SetInterval(d time.Duration)
	SetPlantStrategy(strategy string)
	SetSeedOverride(seedID int64)

	Lands() ([]Land, error)
	ShopGoods() ([]ShopGood, error)
	CheckUnlockableLands()
	ClearShopCache()
}

// Friend is one entry of the player's friend list.
type Friend struct {
	GID    int64             `json:"gid"`
	Name   string            `json:"name"`
	Level  int               `json:"level"`
	Avatar string            `json:"avatar"`
	Online bool              `json:"online"`
	Plant  *FriendPlantState `json:"plant"`
}

// FriendPlantState summarizes what can be done on a friend's farm.
type FriendPlantState struct {
	StealNum  int `json:"stealNum"`
	DryNum    int `json:"dryNum"`
	WeedNum   int `json:"weedNum"`
	InsectNum int `json:"insectNum"`
}

// FriendFarm is the detail view returned when visiting a friend.
type FriendFarm struct {
	FriendName string `json:"friendName"`
	Lands      []Land `json:"lands"`
}

// Friend-operation identifiers used by the limit bookkeeping.
const (
	OpPutWeed   int64 = 10003
	OpPutInsect int64 = 10004
	OpWeed      int64 = 10005
	OpInsect    int64 = 10006
	OpWater     int64 = 10007
	OpSteal     int64 = 10008
)

// FriendEngine runs the friend-farm patrol loop and exposes the manual
// friend operations used by the command surface.
type FriendEngine interface {
	StartLoop()
	StopLoop()
	SetInterval(d time.Duration)
	SetFeatures(features map[string]bool)

	Friends() ([]Friend, error)
	EnterFarm(gid int64) (FriendFarm, error)
	Steal(gid int64, landIDs []int64) error
	Water(gid int64, landIDs []int64) error
	Weed(gid int64, landIDs []int64) error
	Insecticide(gid int64, landIDs []int64) error

	RemainingUses(opID int64) int
	CanGainExp(opID int64) bool
}

// ///////////////////////////////////////////////
// Tasks
// ///////////////////////////////////////////////

// Reward is one item granted by a task claim.
type Reward struct {
	ID    int64 `json:"id"`
	Count int64 `json:"count"`
}

// Task is a growth or daily task with its completion progress.
type Task struct {
	ID            int64    `json:"id"`
	Desc          string   `json:"desc"`
	Progress      int64    `json:"progress"`
	TotalProgress int64    `json:"totalProgress"`
	Claimed       bool     `json:"isClaimed"`
	Unlocked      bool     `json:"isUnlocked"`
	ShareMultiple int64    `json:"shareMultiple"`
	TaskType      int64    `json:"taskType"`
	Rewards       []Reward `json:"rewards"`
}

// Active is a limited-time activity entry of the task snapshot.
type Active struct {
	ID     int64    `json:"id"`
	Status int64    `json:"status"`
	Items  []Reward `json:"items"`
}

// TaskInfo is a full snapshot of growth tasks, daily tasks, and actives.
type TaskInfo struct {
	Growth  []Task   `json:"growthTasks"`
	Daily   []Task   `json:"dailyTasks"`
	Actives []Active `json:"actives"`
}

// TaskSystem is the external task automation subsystem.
type TaskSystem interface {
	Init()
	Cleanup()
	TaskInfo() (TaskInfo, error)
	ClaimReward(taskID int64, useShare bool) ([]Reward, error)
	BatchClaim(taskIDs []int64, useShare bool) ([]Reward, error)
}

// ///////////////////////////////////////////////
// Warehouse and Mall
// ///////////////////////////////////////////////

// Item is one inventory stack.
type Item struct {
	ID    int64 `json:"id"`
	Count int64 `json:"count"`
}

// SellResult reports the outcome of a batch sell request.
type SellResult struct {
	Gold int64 `json:"gold"`
}

// Warehouse exposes the player's inventory and the batch sell call.
type Warehouse interface {
	Inventory() ([]Item, error)
	SellBatch(items []Item) (SellResult, error)
}

// Mall exposes the best-effort shop calls run during connect.
type Mall interface {
	ClaimFreeGifts() error
	BuyFertilizer() error
}
