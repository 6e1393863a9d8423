package main

// --- Domain Models ---

// Resources is the per-player stockpile. Stocks never go negative and never
// exceed the current storage cap.
type Resources struct {
	Iron     float64 `json:"iron"`
	Plasma   float64 `json:"plasma"`
	Crystal  float64 `json:"crystal"`
	DataBits float64 `json:"data_bits"`
}

func (r *Resources) Get(name string) float64 {
	switch name {
	case "iron":
		return r.Iron
	case "plasma":
		return r.Plasma
	case "crystal":
		return r.Crystal
	case "data_bits":
		return r.DataBits
	}
	return 0
}

func (r *Resources) Add(name string, amount float64) {
	switch name {
	case "iron":
		r.Iron += amount
	case "plasma":
		r.Plasma += amount
	case "crystal":
		r.Crystal += amount
	case "data_bits":
		r.DataBits += amount
	}
}

type Upgrades struct {
	AutoMiners        int `json:"auto_miners"`
	PlasmaExtractors  int `json:"plasma_extractors"`
	CrystalRefineries int `json:"crystal_refineries"`
	ResearchHubs      int `json:"research_hubs"`
	StorageLevel      int `json:"storage_level"`
	TradeLicense      int `json:"trade_license"`
}

// Sector is one capturable region of the star map. Controlled flips
// false->true through capture only, never back. DeployedShips is disjoint
// from the owner's mobile fleet.
type Sector struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Type               string         `json:"type"` // core, nebula, frontier, void
	ResourceMultiplier float64        `json:"resource_multiplier"`
	Risk               int            `json:"risk"`
	MinLevel           int            `json:"min_level"`
	Controlled         bool           `json:"controlled"`
	DeployedShips      map[string]int `json:"deployed_ships"`
}

type PriceEntry struct {
	Price     float64 `json:"price"`
	PrevPrice float64 `json:"prev_price"`
	Trend     string  `json:"trend"` // up, down, stable
	Demand    float64 `json:"demand"`
}

type Loot struct {
	Iron    float64 `json:"iron"`
	Plasma  float64 `json:"plasma"`
	Credits float64 `json:"credits"`
}

// BattleReport is the immutable record of one resolved combat. The attacker
// keeps a bounded history, newest first.
type BattleReport struct {
	ID               string         `json:"id"`
	Timestamp        int64          `json:"timestamp"`
	AttackerID       string         `json:"attacker_id"`
	DefenderID       string         `json:"defender_id"`
	AttackerCallsign string         `json:"attacker_callsign"`
	DefenderCallsign string         `json:"defender_callsign"`
	Won              bool           `json:"won"`
	Loot             Loot           `json:"loot"`
	AttackerLosses   map[string]int `json:"attacker_losses"`
	DefenderLosses   map[string]int `json:"defender_losses"`
	Narrative        string         `json:"narrative,omitempty"`
}

type Profile struct {
	Callsign    string `json:"callsign"`
	Motto       string `json:"motto"`
	JoinedDate  int64  `json:"joined_date"`
	ShieldUntil int64  `json:"shield_until,omitempty"`
}

type CareerStats struct {
	TotalCreditsEarned float64 `json:"total_credits_earned"`
	TotalShipsBuilt    int     `json:"total_ships_built"`
	SectorsLiberated   int     `json:"sectors_liberated"`
	BattlesWon         int     `json:"battles_won"`
	BattlesLost        int     `json:"battles_lost"`
}

// GameState is owned exclusively by one player id. One logical actor mutates
// it per session; cross-player effects go through the store's versioned path.
type GameState struct {
	SchemaVersion int                    `json:"schema_version"`
	Credits       float64                `json:"credits"`
	XP            float64                `json:"xp"`
	Level         int                    `json:"level"`
	WarPoints     int                    `json:"war_points"`
	Resources     Resources              `json:"resources"`
	Upgrades      Upgrades               `json:"upgrades"`
	Fleet         map[string]int         `json:"fleet"`
	Sectors       []Sector               `json:"sectors"`
	Market        map[string]*PriceEntry `json:"market"`
	LastUpdate    int64                  `json:"last_update"` // unix millis of last production tick
	Profile       Profile                `json:"profile"`
	Stats         CareerStats            `json:"stats"`
	BattleHistory []BattleReport         `json:"battle_history"`
}

func (st *GameState) sector(id string) *Sector {
	for i := range st.Sectors {
		if st.Sectors[i].ID == id {
			return &st.Sectors[i]
		}
	}
	return nil
}

func (st *GameState) shieldActive(now int64) bool {
	return st.Profile.ShieldUntil > now
}

// --- Trade Models ---

// TradeProposal escrows the sender's offer from creation until a terminal
// transition. Terminal exactly once: pending -> accepted | rejected.
type TradeProposal struct {
	ID         string             `json:"id"`
	SenderID   string             `json:"sender_id"`
	ReceiverID string             `json:"receiver_id"`
	Offer      map[string]float64 `json:"offer"`
	Request    map[string]float64 `json:"request"`
	Status     string             `json:"status"` // pending, accepted, rejected
	Created    int64              `json:"created"`
}

// Listing is a fire-and-forget marketplace entry; the amount is escrowed
// from the seller while listed.
type Listing struct {
	ID       string  `json:"id"`
	SellerID string  `json:"seller_id"`
	Resource string  `json:"resource"`
	Amount   float64 `json:"amount"`
	Price    float64 `json:"price"` // credits for the whole lot
	Created  int64   `json:"created"`
}

// --- Static Catalog ---

type ShipCost struct {
	Credits float64 `json:"credits"`
	Iron    float64 `json:"iron"`
	Plasma  float64 `json:"plasma"`
	Crystal float64 `json:"crystal"`
}

type ShipClass struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category"` // producer, defender, transport, attacker, capital
	Cost     ShipCost `json:"cost"`
	Power    int      `json:"power"`
}

type LeaderboardRow struct {
	ID        string `json:"id"`
	Callsign  string `json:"callsign"`
	WarPoints int    `json:"war_points"`
	Level     int    `json:"level"`
}
