package main

import (
	"math"
	"time"
)

// --- Production Engine ---

func storageCap(storageLevel int) float64 {
	if storageLevel < 1 {
		storageLevel = 1
	}
	return StoragePerLevel * float64(storageLevel)
}

// sectorBonus sums the production contribution of every controlled sector:
// multiplier x (garrisoned miners x yield + base) x (1 + haulers x support).
func sectorBonus(st *GameState) float64 {
	total := 0.0
	for i := range st.Sectors {
		s := &st.Sectors[i]
		if !s.Controlled {
			continue
		}
		miners := float64(s.DeployedShips["miner"])
		haulers := float64(s.DeployedShips["hauler"])
		total += s.ResourceMultiplier * (miners*SectorGarrisonYield + SectorBaseYield) * (1 + haulers*SectorSupportFactor)
	}
	return total
}

// productionRates returns per-second yields for each stock given the current
// upgrades, mobile fleet and controlled sectors.
func productionRates(st *GameState) map[string]float64 {
	miners := float64(st.Fleet["miner"])
	bonus := sectorBonus(st)
	return map[string]float64{
		"iron":      float64(st.Upgrades.AutoMiners)*AutoMinerIronYield + miners*MinerIronYield + bonus,
		"plasma":    float64(st.Upgrades.PlasmaExtractors)*ExtractorPlasmaYield + miners*MinerPlasmaYield + bonus*0.05,
		"crystal":   float64(st.Upgrades.CrystalRefineries)*RefineryCrystalYield + bonus*0.02,
		"data_bits": float64(st.Upgrades.ResearchHubs) * ResearchDataYield,
	}
}

// applyProduction advances every stock by rate x elapsed seconds, capped at
// the storage limit. Always succeeds; mutates only the owning state.
func applyProduction(st *GameState, elapsed float64) {
	if elapsed <= 0 {
		return
	}
	cap := storageCap(st.Upgrades.StorageLevel)
	for res, rate := range productionRates(st) {
		stock := st.Resources.Get(res)
		next := math.Min(cap, stock+rate*elapsed)
		if next > stock {
			st.Resources.Add(res, next-stock)
		}
	}
}

// productionTick is one discrete tick: elapsed time comes from the state's
// own lastUpdate stamp, so offline time is produced on next login too.
func productionTick(st *GameState, now time.Time) {
	ms := now.UnixMilli()
	if st.LastUpdate <= 0 || st.LastUpdate > ms {
		st.LastUpdate = ms
		return
	}
	applyProduction(st, float64(ms-st.LastUpdate)/1000.0)
	st.LastUpdate = ms
}

// --- Progression Ledger ---

// xpThreshold is the XP needed to advance from level to level+1. Base and
// growth are constrained so the threshold strictly increases; otherwise the
// award loop below would never terminate.
func xpThreshold(level int) float64 {
	if level < 1 {
		level = 1
	}
	return XPBase * float64(level) * math.Pow(XPGrowth, float64(level-1))
}

// awardXP adds experience and consumes whole thresholds, supporting
// multi-level jumps in one award. Level only ever increases.
func awardXP(st *GameState, amount float64) {
	if amount <= 0 {
		return
	}
	st.XP += amount
	for st.XP >= xpThreshold(st.Level) {
		st.XP -= xpThreshold(st.Level)
		st.Level++
	}
}
