// Package planner ranks crops by leveling efficiency and recommends what
// to plant, under the same timing assumptions the farm loop operates with.
package planner

import (
	"sort"

	"github.com/505260991/qq-farm-bot/internal/game"
	"github.com/505260991/qq-farm-bot/internal/gamedata"
)

// Efficiency model parameters. The bot fertilizes every crop, which cuts
// the grow time by a fixed share but never by less than the floor, and
// each harvest/replant round trip costs a fixed amount of operation time.
const (
	fertilizerRatio        = 0.2
	fertilizerMinReduction = 30.0 // seconds
	operationTime          = 15.0 // seconds
	removalExp             = 1    // shoveling the spent plant
)

// Strategy selects the ranking order.
const (
	// StrategyFast ranks by experience per hour.
	StrategyFast = "fast"
	// StrategyAdvanced ranks by experience per harvest, then per hour.
	StrategyAdvanced = "advanced"
)

// Option is one rankable crop with its efficiency figures.
type Option struct {
	SeedID           int64   `json:"seedId"`
	Name             string  `json:"name"`
	GrowTime         int64   `json:"growTime"`
	GrowTimeWithFert float64 `json:"growTimeWithFert"`
	ExpPerHarvest    int64   `json:"expPerHarvest"`
	ExpPerHour       float64 `json:"expPerHour"`
	Rank             int     `json:"rank"`
}

// Plan is a full ranked recommendation.
type Plan struct {
	CurrentLevel int      `json:"currentLevel"`
	Recommended  *Option  `json:"recommended"`
	Options      []Option `json:"options"`
	Strategy     string   `json:"strategy"`
}

// effectiveGrowTime applies the fertilizer reduction to a base grow time.
func effectiveGrowTime(growTime float64) float64 {
	reduction := growTime * fertilizerRatio
	if reduction < fertilizerMinReduction {
		reduction = fertilizerMinReduction
	}
	if reduction > growTime {
		reduction = growTime
	}
	return growTime - reduction
}

// Calculate builds the ranked plant plan for a player at the given level.
//
// When shopGoods is non-empty it is authoritative: only crops whose seed is
// currently listed are considered. Without shop data the static unlock
// levels filter instead. An unknown strategy falls back to [StrategyFast].
func Calculate(level int, shopGoods []game.ShopGood, strategy string) Plan {
	if strategy != StrategyAdvanced {
		strategy = StrategyFast
	}

	listed := make(map[int64]bool, len(shopGoods))
	for _, g := range shopGoods {
		listed[g.SeedID] = true
	}

	var options []Option
	for _, p := range gamedata.AllPlants() {
		if p.GrowTime <= 0 {
			continue
		}
		if len(shopGoods) > 0 {
			if !listed[p.SeedID] {
				continue
			}
		} else if p.UnlockLevel > level || p.LandLevelNeed > level {
			continue
		}

		withFert := effectiveGrowTime(float64(p.GrowTime))
		totalTime := withFert + operationTime
		totalExp := p.HarvestExp + removalExp

		var perHour float64
		if totalTime > 0 {
			perHour = float64(totalExp) / totalTime * 3600
		}

		options = append(options, Option{
			SeedID:           p.SeedID,
			Name:             p.Name,
			GrowTime:         p.GrowTime,
			GrowTimeWithFert: withFert,
			ExpPerHarvest:    totalExp,
			ExpPerHour:       perHour,
		})
	}

	if strategy == StrategyAdvanced {
		sort.SliceStable(options, func(i, j int) bool {
			if options[i].ExpPerHarvest != options[j].ExpPerHarvest {
				return options[i].ExpPerHarvest > options[j].ExpPerHarvest
			}
			return options[i].ExpPerHour > options[j].ExpPerHour
		})
	} else {
		sort.SliceStable(options, func(i, j int) bool {
			return options[i].ExpPerHour > options[j].ExpPerHour
		})
	}

	for i := range options {
		options[i].Rank = i + 1
	}

	plan := Plan{
		CurrentLevel: level,
		Options:      options,
		Strategy:     strategy,
	}
	if len(options) > 0 {
		plan.Recommended = &options[0]
	}
	return plan
}
