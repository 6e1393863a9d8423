package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// CurrentSchemaVersion stamps every saved GameState. Older blobs are
// migrated forward over the canonical default state; newer blobs are refused.
const CurrentSchemaVersion = 2

func defaultSectors() []Sector {
	out := make([]Sector, len(SectorCatalog))
	copy(out, SectorCatalog)
	for i := range out {
		out[i].DeployedShips = make(map[string]int)
	}
	return out
}

func defaultMarket() map[string]*PriceEntry {
	m := make(map[string]*PriceEntry, len(BasePrices))
	for res, base := range BasePrices {
		m[res] = &PriceEntry{Price: base, PrevPrice: base, Trend: "stable", Demand: 50}
	}
	return m
}

func newGameState(now time.Time) *GameState {
	return &GameState{
		SchemaVersion: CurrentSchemaVersion,
		Credits:       5000,
		Level:         1,
		WarPoints:     100,
		Resources:     Resources{Iron: 1000, Plasma: 200, Crystal: 50},
		Upgrades:      Upgrades{StorageLevel: 1},
		Fleet:         make(map[string]int),
		Sectors:       defaultSectors(),
		Market:        defaultMarket(),
		LastUpdate:    now.UnixMilli(),
		Profile: Profile{
			Callsign:   "Unknown Admiral",
			Motto:      "Let the stars guide us.",
			JoinedDate: now.UnixMilli(),
			// Fresh commanders get a day of protection.
			ShieldUntil: now.Add(24 * time.Hour).UnixMilli(),
		},
	}
}

// migrateState reconciles whatever was stored into the current canonical
// shape. Missing pieces are merged over defaults; an unknown future schema
// is a typed error rather than a silent patch.
func migrateState(raw []byte, now time.Time) (*GameState, error) {
	var st GameState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("unreadable state blob: %v", err)}
	}
	if st.SchemaVersion > CurrentSchemaVersion {
		return nil, validationf("state schema v%d is newer than supported v%d", st.SchemaVersion, CurrentSchemaVersion)
	}

	// v0/v1 blobs predate war points.
	if st.SchemaVersion < 2 && st.WarPoints == 0 {
		st.WarPoints = 100
	}

	if st.Level < 1 {
		st.Level = 1
	}
	if st.Upgrades.StorageLevel < 1 {
		st.Upgrades.StorageLevel = 1
	}
	if st.Fleet == nil {
		st.Fleet = make(map[string]int)
	}
	if st.LastUpdate <= 0 {
		st.LastUpdate = now.UnixMilli()
	}
	if st.Profile.Callsign == "" {
		st.Profile.Callsign = "Unknown Admiral"
	}
	if st.Profile.JoinedDate == 0 {
		st.Profile.JoinedDate = now.UnixMilli()
	}

	// The sector list follows the static catalog; capture state and
	// garrisons survive the merge by id.
	merged := defaultSectors()
	for i := range merged {
		if old := st.sector(merged[i].ID); old != nil {
			merged[i].Controlled = merged[i].Controlled || old.Controlled
			if old.DeployedShips != nil {
				merged[i].DeployedShips = old.DeployedShips
			}
		}
	}
	st.Sectors = merged

	if st.Market == nil {
		st.Market = defaultMarket()
	} else {
		for res, base := range BasePrices {
			if st.Market[res] == nil {
				st.Market[res] = &PriceEntry{Price: base, PrevPrice: base, Trend: "stable", Demand: 50}
			}
		}
	}

	// Stocks and counts are non-negative invariants; a corrupt blob must not
	// smuggle debt into the simulation.
	for _, res := range []string{"iron", "plasma", "crystal", "data_bits"} {
		if v := st.Resources.Get(res); v < 0 {
			st.Resources.Add(res, -v)
		}
	}
	if st.Credits < 0 {
		st.Credits = 0
	}
	for id, n := range st.Fleet {
		if n < 0 {
			st.Fleet[id] = 0
		}
	}
	if len(st.BattleHistory) > BattleHistoryMax {
		st.BattleHistory = st.BattleHistory[:BattleHistoryMax]
	}

	st.SchemaVersion = CurrentSchemaVersion
	return &st, nil
}
