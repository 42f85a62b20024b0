// Package store is the single in-memory authority for persisted settings:
// platform and interval options, feature flags, saved accounts, and the
// day-scoped statistics counters. Every mutation writes through to a JSON
// document on disk; a read or parse failure degrades to defaults with a
// warning instead of failing the caller.
package store

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/505260991/qq-farm-bot/internal/atomicfile"
	"github.com/bmatcuk/doublestar/v4"
)

// ///////////////////////////////////////////////
// Data Types
// ///////////////////////////////////////////////

// Account is one saved login identity. Accounts are upserted on every
// successful connect, keyed by credential code with display name as a
// secondary dedup key, and removed only by explicit request.
type Account struct {
	Code     string `json:"code"`
	Platform string `json:"platform"`
	Name     string `json:"name"`
	GID      int64  `json:"gid"`
	Level    int    `json:"level"`
	LastUsed int64  `json:"lastUsed"`
}

// DailyStats holds the calendar-day-scoped counters. Date is the day the
// counters belong to; when it goes stale every counter resets before the
// next update applies.
type DailyStats struct {
	Date           string `json:"date"`
	ExpGained      int64  `json:"expGained"`
	StartTime      int64  `json:"startTime"`
	HarvestCount   int64  `json:"harvestCount"`
	StealCount     int64  `json:"stealCount"`
	WaterHelpCount int64  `json:"waterHelpCount"`
	WeedHelpCount  int64  `json:"weedHelpCount"`
	BugHelpCount   int64  `json:"bugHelpCount"`
	GoldSold       int64  `json:"goldSold"`
}

// Config is the full persisted document.
type Config struct {
	Platform       string          `json:"platform"`
	Theme          string          `json:"theme"`
	FarmInterval   int             `json:"farmInterval"`   // seconds
	FriendInterval int             `json:"friendInterval"` // seconds
	PlantMode      string          `json:"plantMode"`      // "fast", "advanced", "manual"
	PlantSeedID    int64           `json:"plantSeedId"`
	SellInterval   int             `json:"sellInterval"` // seconds
	LogLevel       string          `json:"logLevel"`
	LogMaxSizeMB   int             `json:"logMaxSizeMb"`
	FriendIgnore   []string        `json:"friendIgnore"`
	Features       map[string]bool `json:"features"`
	Accounts       []Account       `json:"accounts"`
	DailyStats     DailyStats      `json:"dailyStats"`
}

// Patch is a partial config update. Nil fields are left untouched; Features
// entries are merged key-by-key rather than replacing the whole map.
type Patch struct {
	Platform       *string         `json:"platform,omitempty"`
	Theme          *string         `json:"theme,omitempty"`
	FarmInterval   *int            `json:"farmInterval,omitempty"`
	FriendInterval *int            `json:"friendInterval,omitempty"`
	PlantMode      *string         `json:"plantMode,omitempty"`
	PlantSeedID    *int64          `json:"plantSeedId,omitempty"`
	SellInterval   *int            `json:"sellInterval,omitempty"`
	LogLevel       *string         `json:"logLevel,omitempty"`
	FriendIgnore   *[]string       `json:"friendIgnore,omitempty"`
	Features       map[string]bool `json:"features,omitempty"`
}

// AccountPatch is a partial account update applied by [Store.UpdateAccount].
type AccountPatch struct {
	Platform *string `json:"platform,omitempty"`
	Name     *string `json:"name,omitempty"`
	GID      *int64  `json:"gid,omitempty"`
	Level    *int    `json:"level,omitempty"`
	LastUsed *int64  `json:"lastUsed,omitempty"`
}

// ///////////////////////////////////////////////
// Defaults
// ///////////////////////////////////////////////

// DefaultConfig returns the built-in configuration. Feature flags default to
// enabled except the explicitly disabled set (griefing, fertilizer purchase,
// notifications).
func DefaultConfig() Config {
	return Config{
		Platform:       "qq",
		Theme:          "dark",
		FarmInterval:   10,
		FriendInterval: 1,
		PlantMode:      "fast",
		PlantSeedID:    0,
		SellInterval:   300,
		LogLevel:       "info",
		LogMaxSizeMB:   10,
		FriendIgnore:   []string{},
		Features: map[string]bool{
			"autoHarvest":         true,
			"autoPlant":           true,
			"autoFertilize":       true,
			"autoWeed":            true,
			"autoBug":             true,
			"autoWater":           true,
			"friendPatrol":        true,
			"autoSteal":           true,
			"friendHelp":          true,
			"autoTask":            true,
			"autoSell":            true,
			"autoPutBadThings":    false,
			"autoBuyFertilizer":   false,
			"autoUnlockLand":      true,
			"enableNotifications": false,
		},
		Accounts:   []Account{},
		DailyStats: DailyStats{},
	}
}

// ///////////////////////////////////////////////
// Store
// ///////////////////////////////////////////////

// Store owns the in-memory config copy and the file underneath it. All
// mutating methods persist synchronously before returning; persistence
// failures are logged and the in-memory copy stays authoritative.
type Store struct {
	mu   sync.Mutex
	path string
	cfg  Config

	// now is the clock used for day-rollover checks; overridable in tests.
	now func() time.Time
}

// New creates a Store bound to path and loads the persisted document.
// A missing file yields pure defaults; a malformed one logs a warning and
// also yields defaults.
func New(path string) *Store {
	s := &Store{path: path, now: time.Now}
	s.cfg = s.readFile()
	return s
}

// readFile loads and merges the persisted document onto defaults.
func (s *Store) readFile() Config {
	cfg := DefaultConfig()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("config unreadable, using defaults", "path", s.path, "error", err)
		}
		return cfg
	}

	// Unmarshaling into the populated defaults merges top-level keys and,
	// because Features is a non-nil map, merges flags key-by-key so new
	// default flags always survive older files. Unknown flag names are
	// kept verbatim.
	if err := json.Unmarshal(data, &cfg); err != nil {
		slog.Warn("config malformed, using defaults", "path", s.path, "error", err)
		return DefaultConfig()
	}

	// Legacy value from before plant strategies were split.
	if cfg.PlantMode == "auto" {
		cfg.PlantMode = "fast"
	}
	return cfg
}

// persist writes the current document through to disk. Failure degrades to
// a warning; the in-memory copy remains the source of truth.
func (s *Store) persist() {
	if err := atomicfile.WriteJSON(s.path, &s.cfg, 0o644); err != nil {
		slog.Warn("config save failed, continuing unpersisted", "path", s.path, "error", err)
	}
}

// Flush forces a synchronous save of the current document. Called once at
// shutdown so the last mutation is never lost to process exit.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return atomicfile.WriteJSON(s.path, &s.cfg, 0o644)
}

// Get returns a deep copy of the current config.
func (s *Store) Get() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneConfig(s.cfg)
}

// Update merges p into the config, persists, and returns the new document.
func (s *Store) Update(p Patch) Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Platform != nil {
		s.cfg.Platform = *p.Platform
	}
	if p.Theme != nil {
		s.cfg.Theme = *p.Theme
	}
	if p.FarmInterval != nil {
		s.cfg.FarmInterval = *p.FarmInterval
	}
	if p.FriendInterval != nil {
		s.cfg.FriendInterval = *p.FriendInterval
	}
	if p.PlantMode != nil {
		s.cfg.PlantMode = *p.PlantMode
		if s.cfg.PlantMode == "auto" {
			s.cfg.PlantMode = "fast"
		}
	}
	if p.PlantSeedID != nil {
		s.cfg.PlantSeedID = *p.PlantSeedID
	}
	if p.SellInterval != nil {
		s.cfg.SellInterval = *p.SellInterval
	}
	if p.LogLevel != nil {
		s.cfg.LogLevel = *p.LogLevel
	}
	if p.FriendIgnore != nil {
		s.cfg.FriendIgnore = append([]string(nil), (*p.FriendIgnore)...)
	}
	for name, enabled := range p.Features {
		s.cfg.Features[name] = enabled
	}

	s.persist()
	return cloneConfig(s.cfg)
}

// ///////////////////////////////////////////////
// Feature Flags
// ///////////////////////////////////////////////

// FeatureEnabled reports whether a flag is on. Names absent from the map
// default to enabled, matching the forward-compatible flag contract.
func (s *Store) FeatureEnabled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	enabled, ok := s.cfg.Features[name]
	if !ok {
		return true
	}
	return enabled
}

// SetFeature sets one flag and persists. Unknown names are stored but have
// no scheduler effect. Returns a copy of the full flag set.
func (s *Store) SetFeature(name string, enabled bool) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Features[name] = enabled
	s.persist()
	return cloneFlags(s.cfg.Features)
}

// Features returns a copy of the full flag set.
func (s *Store) Features() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneFlags(s.cfg.Features)
}

// ///////////////////////////////////////////////
// Accounts
// ///////////////////////////////////////////////

// Accounts returns a copy of the saved account list.
func (s *Store) Accounts() []Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Account(nil), s.cfg.Accounts...)
}

// AddAccount upserts an account by code, deduplicating by display name when
// the codes differ, then persists.
func (s *Store) AddAccount(a Account) []Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, existing := range s.cfg.Accounts {
		if existing.Code == a.Code || (existing.Name != "" && a.Name != "" && existing.Name == a.Name) {
			idx = i
			break
		}
	}
	if idx >= 0 {
		s.cfg.Accounts[idx] = mergeAccount(s.cfg.Accounts[idx], a)
	} else {
		s.cfg.Accounts = append(s.cfg.Accounts, a)
	}
	s.persist()
	return append([]Account(nil), s.cfg.Accounts...)
}

// mergeAccount overlays non-zero fields of update onto base.
func mergeAccount(base, update Account) Account {
	out := base
	if update.Code != "" {
		out.Code = update.Code
	}
	if update.Platform != "" {
		out.Platform = update.Platform
	}
	if update.Name != "" {
		out.Name = update.Name
	}
	if update.GID != 0 {
		out.GID = update.GID
	}
	if update.Level != 0 {
		out.Level = update.Level
	}
	if update.LastUsed != 0 {
		out.LastUsed = update.LastUsed
	}
	return out
}

// RemoveAccount deletes the account with the given code and persists.
// Unknown codes are a no-op.
func (s *Store) RemoveAccount(code string) []Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.cfg.Accounts[:0]
	for _, a := range s.cfg.Accounts {
		if a.Code != code {
			kept = append(kept, a)
		}
	}
	s.cfg.Accounts = kept
	s.persist()
	return append([]Account(nil), s.cfg.Accounts...)
}

// UpdateAccount applies a partial update to the account with the given code
// and persists. Unknown codes are a no-op.
func (s *Store) UpdateAccount(code string, p AccountPatch) []Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cfg.Accounts {
		if s.cfg.Accounts[i].Code != code {
			continue
		}
		a := &s.cfg.Accounts[i]
		if p.Platform != nil {
			a.Platform = *p.Platform
		}
		if p.Name != nil {
			a.Name = *p.Name
		}
		if p.GID != nil {
			a.GID = *p.GID
		}
		if p.Level != nil {
			a.Level = *p.Level
		}
		if p.LastUsed != nil {
			a.LastUsed = *p.LastUsed
		}
		s.persist()
		break
	}
	return append([]Account(nil), s.cfg.Accounts...)
}

// ///////////////////////////////////////////////
// Daily Stats
// ///////////////////////////////////////////////

// dateKey formats a time as the calendar-date key stored in DailyStats.
func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// DailyStats returns a copy of the current day's counters.
func (s *Store) DailyStats() DailyStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.DailyStats
}

// UpdateDailyStats applies mutate to the current day's counters and
// persists. If the stored date is stale, all counters reset and the start
// time is stamped before mutate runs; the rollover and the update are one
// atomic step under the store lock.
func (s *Store) UpdateDailyStats(mutate func(*DailyStats)) DailyStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := dateKey(s.now())
	if s.cfg.DailyStats.Date != today {
		s.cfg.DailyStats = DailyStats{
			Date:      today,
			StartTime: s.now().UnixMilli(),
		}
	}
	mutate(&s.cfg.DailyStats)
	s.persist()
	return s.cfg.DailyStats
}

// ///////////////////////////////////////////////
// Friend Ignore Patterns
// ///////////////////////////////////////////////

// IsFriendIgnored reports whether a friend name matches any configured
// ignore glob. Invalid patterns are skipped with a warning.
func (s *Store) IsFriendIgnored(name string) bool {
	s.mu.Lock()
	patterns := append([]string(nil), s.cfg.FriendIgnore...)
	s.mu.Unlock()

	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, name)
		if err != nil {
			slog.Warn("invalid friend ignore pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// ///////////////////////////////////////////////
// Reload
// ///////////////////////////////////////////////

// Reload re-reads the file and reports whether the document changed. Writes
// performed by this process rewrite identical content, so watcher events
// they trigger resolve to no change.
func (s *Store) Reload() bool {
	fresh := s.readFile()

	s.mu.Lock()
	defer s.mu.Unlock()
	before, _ := json.Marshal(s.cfg)
	after, _ := json.Marshal(fresh)
	if bytes.Equal(before, after) {
		return false
	}
	s.cfg = fresh
	return true
}

// ///////////////////////////////////////////////
// Copy Helpers
// ///////////////////////////////////////////////

func cloneFlags(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneConfig(c Config) Config {
	out := c
	out.Features = cloneFlags(c.Features)
	out.Accounts = append([]Account(nil), c.Accounts...)
	out.FriendIgnore = append([]string(nil), c.FriendIgnore...)
	return out
}
