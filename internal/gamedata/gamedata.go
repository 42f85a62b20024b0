// Package gamedata exposes the static game tables embedded with the binary:
// the experience curve and the crop catalog. It also provides the canonical
// level computation used to reconcile the raw server-reported level against
// accumulated experience.
package gamedata

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/BurntSushi/toml"
)

//go:embed data.toml
var rawTables []byte

// ///////////////////////////////////////////////
// Tables
// ///////////////////////////////////////////////

// LevelStep is one entry of the experience curve.
type LevelStep struct {
	Level    int   `toml:"level"`
	TotalExp int64 `toml:"total_exp"`
}

// Plant is one crop catalog entry.
type Plant struct {
	ID            int64  `toml:"id"`
	Name          string `toml:"name"`
	SeedID        int64  `toml:"seed_id"`
	SeedPrice     int64  `toml:"seed_price"`
	FruitID       int64  `toml:"fruit_id"`
	FruitCount    int64  `toml:"fruit_count"`
	FruitPrice    int64  `toml:"fruit_price"`
	GrowTime      int64  `toml:"grow_time"` // seconds
	HarvestExp    int64  `toml:"harvest_exp"`
	UnlockLevel   int    `toml:"unlock_level"`
	LandLevelNeed int    `toml:"land_level_need"`
}

// tables is the parsed form of data.toml.
type tables struct {
	Levels []LevelStep `toml:"levels"`
	Plants []Plant     `toml:"plants"`
}

var (
	loadOnce sync.Once
	loaded   tables
	loadErr  error

	byFruitID map[int64]*Plant
	bySeedID  map[int64]*Plant
	byPlantID map[int64]*Plant
)

// load parses the embedded tables once. A parse failure here is a build
// defect, so it panics rather than propagating an error to every caller.
func load() {
	loadOnce.Do(func() {
		if loadErr = toml.Unmarshal(rawTables, &loaded); loadErr != nil {
			panic(fmt.Sprintf("gamedata: embedded tables invalid: %v", loadErr))
		}
		byFruitID = make(map[int64]*Plant, len(loaded.Plants))
		bySeedID = make(map[int64]*Plant, len(loaded.Plants))
		byPlantID = make(map[int64]*Plant, len(loaded.Plants))
		for i := range loaded.Plants {
			p := &loaded.Plants[i]
			byFruitID[p.FruitID] = p
			bySeedID[p.SeedID] = p
			byPlantID[p.ID] = p
		}
	})
}

// AllPlants returns the full crop catalog.
func AllPlants() []Plant {
	load()
	return loaded.Plants
}

// PlantByID returns the catalog entry for a plant ID, or nil.
func PlantByID(id int64) *Plant {
	load()
	return byPlantID[id]
}

// PlantName returns the crop name for a plant ID, or "" when unknown.
func PlantName(id int64) string {
	if p := PlantByID(id); p != nil {
		return p.Name
	}
	return ""
}

// FruitName returns the crop name for a fruit item ID, or "" when unknown.
func FruitName(fruitID int64) string {
	load()
	if p := byFruitID[fruitID]; p != nil {
		return p.Name
	}
	return ""
}

// SeedPrice returns the shop price for a seed ID, or 0 when unknown.
func SeedPrice(seedID int64) int64 {
	load()
	if p := bySeedID[seedID]; p != nil {
		return p.SeedPrice
	}
	return 0
}

// FruitPrice returns the sell price for a fruit ID, or 0 when unknown.
func FruitPrice(fruitID int64) int64 {
	load()
	if p := byFruitID[fruitID]; p != nil {
		return p.FruitPrice
	}
	return 0
}

// ItemName returns a display name for an item ID. Currency and experience
// use fixed IDs; fruit IDs resolve through the catalog.
func ItemName(itemID int64) string {
	switch itemID {
	case 1:
		return "金币"
	case 2:
		return "经验"
	}
	if name := FruitName(itemID); name != "" {
		return name
	}
	return fmt.Sprintf("物品 #%d", itemID)
}

// ///////////////////////////////////////////////
// Experience Curve
// ///////////////////////////////////////////////

// ExpProgress describes the player's position on the experience curve.
type ExpProgress struct {
	// Level is the level derived from total experience. This is the
	// authoritative value; the raw server field can lag behind it.
	Level int `json:"level"`
	// Current is the experience accumulated within the current level.
	Current int64 `json:"current"`
	// Needed is the experience required to advance to the next level.
	// Zero once the curve table is exhausted.
	Needed int64 `json:"needed"`
}

// LevelExpProgress computes the authoritative level and progress for a total
// experience value. The raw server-reported level is provisional and used
// only as a floor, so a delayed level push never shows a regression.
func LevelExpProgress(rawLevel int, totalExp int64) ExpProgress {
	load()
	steps := loaded.Levels
	if len(steps) == 0 {
		return ExpProgress{Level: rawLevel}
	}

	level := steps[0].Level
	var base int64
	var needed int64
	for i, s := range steps {
		if totalExp < s.TotalExp {
			break
		}
		level = s.Level
		base = s.TotalExp
		if i+1 < len(steps) {
			needed = steps[i+1].TotalExp - s.TotalExp
		} else {
			needed = 0
		}
	}
	if rawLevel > level {
		level = rawLevel
	}
	return ExpProgress{
		Level:   level,
		Current: totalExp - base,
		Needed:  needed,
	}
}
