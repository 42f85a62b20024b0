// Package stats accumulates the day-scoped activity counters: harvests,
// steals, help actions, gold from sales, and experience gained.
//
// The primary ingestion path is [Accumulator.Record]. A secondary best-effort
// path scans free-text game log lines for fixed patterns and feeds matches
// into the same sink; both mechanisms are kept deliberately, matching the
// upstream behavior, even though a subsystem that records an event and also
// logs matching text would count it twice.
package stats

import (
	"regexp"
	"strconv"

	"github.com/505260991/qq-farm-bot/internal/bus"
	"github.com/505260991/qq-farm-bot/internal/store"
)

// ///////////////////////////////////////////////
// Stat Kinds
// ///////////////////////////////////////////////

// Kind names one of the seven daily counters.
type Kind string

const (
	KindHarvest   Kind = "harvest"
	KindSteal     Kind = "steal"
	KindWaterHelp Kind = "waterHelp"
	KindWeedHelp  Kind = "weedHelp"
	KindBugHelp   Kind = "bugHelp"
	KindGoldSold  Kind = "goldSold"
	KindExpGained Kind = "expGained"
)

// ///////////////////////////////////////////////
// Accumulator
// ///////////////////////////////////////////////

// Accumulator records daily statistics through the config store (which owns
// the day rollover) and republishes each change on the event bus.
type Accumulator struct {
	store *store.Store
	bus   *bus.Bus
}

// New creates an Accumulator writing through st and publishing on b.
func New(st *store.Store, b *bus.Bus) *Accumulator {
	return &Accumulator{store: st, bus: b}
}

// Record adds amount onto the counter for kind. The store resets stale
// counters before the addition applies, so after a day rollover the
// incremented field equals exactly amount. Unknown kinds are ignored.
func (a *Accumulator) Record(kind Kind, amount int64) {
	if amount == 0 {
		return
	}
	updated := a.store.UpdateDailyStats(func(d *store.DailyStats) {
		switch kind {
		case KindHarvest:
			d.HarvestCount += amount
		case KindSteal:
			d.StealCount += amount
		case KindWaterHelp:
			d.WaterHelpCount += amount
		case KindWeedHelp:
			d.WeedHelpCount += amount
		case KindBugHelp:
			d.BugHelpCount += amount
		case KindGoldSold:
			d.GoldSold += amount
		case KindExpGained:
			d.ExpGained += amount
		}
	})
	a.bus.Publish(bus.Event{Type: bus.EventStatsUpdate, Payload: updated})
}

// Current returns the current day's counters.
func (a *Accumulator) Current() store.DailyStats {
	return a.store.DailyStats()
}

// ///////////////////////////////////////////////
// Log Scraping Fallback
// ///////////////////////////////////////////////

// logPatterns maps each fixed log phrase to the counter it feeds. The
// capture group is the amount.
var logPatterns = []struct {
	re   *regexp.Regexp
	kind Kind
}{
	{regexp.MustCompile(`收获\s*(\d+)`), KindHarvest},
	{regexp.MustCompile(`偷取\s*(\d+)`), KindSteal},
	{regexp.MustCompile(`浇水\s*(\d+)`), KindWaterHelp},
	{regexp.MustCompile(`除草\s*(\d+)`), KindWeedHelp},
	{regexp.MustCompile(`除虫\s*(\d+)`), KindBugHelp},
	{regexp.MustCompile(`出售\s*(\d+)\s*金币`), KindGoldSold},
	{regexp.MustCompile(`\+(\d+)\s*经验`), KindExpGained},
}

// ParseLogMessage scans a free-text log line for the known stat phrases and
// records every match. Returns true when at least one counter changed.
// Text matching no pattern is silently ignored.
func (a *Accumulator) ParseLogMessage(message string) bool {
	updated := false
	for _, p := range logPatterns {
		m := p.re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || n == 0 {
			continue
		}
		a.Record(p.kind, n)
		updated = true
	}
	return updated
}
