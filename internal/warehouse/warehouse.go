// Package warehouse runs the periodic fruit sell loop: on each cycle it
// reads the warehouse inventory, filters it down to fruit items, and sells
// them as one batch.
package warehouse

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/505260991/qq-farm-bot/internal/game"
	"github.com/505260991/qq-farm-bot/internal/stats"
)

// Fruit item IDs occupy a fixed range of the item ID space.
const (
	fruitIDMin = 40001
	fruitIDMax = 49999
)

// startDelay is the grace period before the first sell pass, so a loop
// started right after connect does not race the initial inventory sync.
const startDelay = 10 * time.Second

// IsFruit reports whether an item ID falls in the fruit range.
func IsFruit(itemID int64) bool {
	return itemID >= fruitIDMin && itemID <= fruitIDMax
}

// SellLoop periodically sells all fruits in the warehouse. Start and Stop
// are idempotent; the delay timer and the recurring ticker form one unit
// and Stop cancels whichever is pending.
type SellLoop struct {
	wh    game.Warehouse
	stats *stats.Accumulator
	log   *slog.Logger
	// logf records a categorized game log line. May be nil.
	logf func(category, message string)

	mu      sync.Mutex
	done    chan struct{}
	running bool
}

// NewSellLoop creates a stopped sell loop.
func NewSellLoop(wh game.Warehouse, acc *stats.Accumulator, log *slog.Logger) *SellLoop {
	return &SellLoop{wh: wh, stats: acc, log: log}
}

// SetLogFunc installs the game log sink.
func (l *SellLoop) SetLogFunc(fn func(category, message string)) {
	l.logf = fn
}

// Running reports whether the loop is active.
func (l *SellLoop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Start launches the loop with the given cycle interval. A second Start
// while running is a no-op; to change the interval, Stop then Start.
func (l *SellLoop) Start(interval time.Duration) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	l.gameLog("仓库", fmt.Sprintf("自动出售已启动，间隔 %d 秒", int(interval/time.Second)))

	go l.run(interval, done)
}

// Stop cancels the loop. Safe to call when already stopped.
func (l *SellLoop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.done)
	l.mu.Unlock()

	l.gameLog("仓库", "自动出售已停止")
}

func (l *SellLoop) run(interval time.Duration, done chan struct{}) {
	delay := time.NewTimer(startDelay)
	defer delay.Stop()

	select {
	case <-done:
		return
	case <-delay.C:
	}

	l.sellPass()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			l.sellPass()
		}
	}
}

// sellPass sells every fruit currently in the warehouse as one batch. An
// empty fruit inventory is skipped silently.
func (l *SellLoop) sellPass() {
	items, err := l.wh.Inventory()
	if err != nil {
		l.log.Warn("warehouse inventory fetch failed", "error", err)
		return
	}

	fruits := items[:0:0]
	for _, it := range items {
		if IsFruit(it.ID) && it.Count > 0 {
			fruits = append(fruits, it)
		}
	}
	if len(fruits) == 0 {
		return
	}

	res, err := l.wh.SellBatch(fruits)
	if err != nil {
		l.log.Warn("fruit sell failed", "error", err, "kinds", len(fruits))
		l.gameLog("仓库", fmt.Sprintf("出售失败: %v", err))
		return
	}

	var total int64
	for _, it := range fruits {
		total += it.Count
	}
	l.gameLog("仓库", fmt.Sprintf("出售 %d 种果实共 %d 个，获得 %d 金币", len(fruits), total, res.Gold))
	if l.stats != nil {
		l.stats.Record(stats.KindGoldSold, res.Gold)
	}
}

func (l *SellLoop) gameLog(category, message string) {
	if l.logf != nil {
		l.logf(category, message)
	}
}
