package main

import (
	"bytes"
	"log"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// --- Configuration ---

const (
	DefaultDBPath = "./data/nebula.db"

	// Simulation cadence
	ProductionInterval = 1 * time.Second
	MarketInterval     = 20 * time.Second
	FlushInterval      = 3 * time.Second
	SessionIdleAfter   = 15 * time.Minute

	// Progression
	XPBase   = 1000.0
	XPGrowth = 1.5

	// Production yields (per second)
	AutoMinerIronYield   = 2.5
	MinerIronYield       = 3.0
	MinerPlasmaYield     = 0.3
	ExtractorPlasmaYield = 0.8
	RefineryCrystalYield = 0.5
	ResearchDataYield    = 0.2
	SectorGarrisonYield  = 5.0 // per garrisoned miner
	SectorBaseYield      = 2.0
	SectorSupportFactor  = 0.2 // per garrisoned hauler

	StoragePerLevel = 5000.0

	// Market
	MarketNoiseLow   = 0.8
	MarketNoiseHigh  = 1.2
	MarketDemandMin  = 10.0
	MarketDemandMax  = 100.0
	MarketDemandStep = 8.0
	MarketFloorRatio = 0.2
	MarketBuyLot     = 100.0
	BaseTaxRate      = 0.10
	TaxPerLicense    = 0.01
	MinTaxRate       = 0.02

	// Combat
	MinAttackPower     = 50
	WinProbFloor       = 0.1
	WinProbCeil        = 0.9
	AttackerWinLoss    = 0.10
	AttackerLoseLoss   = 0.40
	DefenderWinLoss    = 0.05
	DefenderLoseLoss   = 0.30
	LootIronFraction   = 0.30
	LootPlasmaFract    = 0.20
	LootCreditsFract   = 0.10
	WinCreditBonus     = 1000.0
	WinWarPoints       = 25
	LossWarPoints      = 15
	ShieldDuration     = 6 * time.Hour
	BattleHistoryMax   = 10
	ResearchPowerBoost = 0.02 // attacker power per research hub level

	// Sectors
	CaptureConstant  = 10
	CaptureLossMax   = 0.30
	CaptureLossMin   = 0.05
	CaptureXPPerRisk = 50.0
)

var (
	// Infrastructure
	store    *Store
	InfoLog  *log.Logger
	ErrorLog *log.Logger

	Config struct {
		Addr         string
		DBPath       string
		NarrationURL string
		NarrationKey string
	}

	// One logical actor per player session; this lock serializes timers and
	// command handlers over the sessions map and every in-memory GameState.
	stateLock sync.Mutex
	sessions  = make(map[string]*Session)

	market    = &MarketSimulator{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	combat    = &CombatResolver{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	narration *NarrationClient

	// Rate Limiting
	ipLimiters = make(map[string]*rate.Limiter)
	ipLock     sync.Mutex

	bufferPool = sync.Pool{
		New: func() interface{} {
			return new(bytes.Buffer)
		},
	}
)

// --- Game Constants ---

var ShipCatalog = []ShipClass{
	{ID: "scout", Name: "Recon Drone", Category: "attacker", Cost: ShipCost{Credits: 500, Iron: 200}, Power: 2},
	{ID: "miner", Name: "Mining Frigate", Category: "producer", Cost: ShipCost{Credits: 1500, Iron: 800, Plasma: 200, Crystal: 50}, Power: 8},
	{ID: "defender", Name: "Shield Destroyer", Category: "defender", Cost: ShipCost{Credits: 3000, Iron: 1500, Plasma: 500, Crystal: 150}, Power: 25},
	{ID: "hauler", Name: "Heavy Hauler", Category: "transport", Cost: ShipCost{Credits: 2500, Iron: 1000, Plasma: 150, Crystal: 200}, Power: 5},
	{ID: "cruiser", Name: "Heavy Cruiser", Category: "attacker", Cost: ShipCost{Credits: 8000, Iron: 4000, Plasma: 2000, Crystal: 800}, Power: 120},
	{ID: "mothership", Name: "Mothership", Category: "capital", Cost: ShipCost{Credits: 35000, Iron: 15000, Plasma: 8000, Crystal: 3000}, Power: 650},
}

func shipClass(id string) *ShipClass {
	for i := range ShipCatalog {
		if ShipCatalog[i].ID == id {
			return &ShipCatalog[i]
		}
	}
	return nil
}

var SectorCatalog = []Sector{
	{ID: "s1", Name: "Alpha Core", Type: "core", ResourceMultiplier: 1.0, Risk: 5, MinLevel: 1, Controlled: true},
	{ID: "s2", Name: "Asteroid Belt", Type: "nebula", ResourceMultiplier: 1.8, Risk: 15, MinLevel: 3},
	{ID: "s3", Name: "Delta Frontier", Type: "frontier", ResourceMultiplier: 3.2, Risk: 30, MinLevel: 7},
	{ID: "s4", Name: "Pulsar Region", Type: "nebula", ResourceMultiplier: 5.5, Risk: 50, MinLevel: 12},
	{ID: "s5", Name: "Omega Void", Type: "void", ResourceMultiplier: 10.0, Risk: 80, MinLevel: 20},
}

var BasePrices = map[string]float64{
	"iron":    2.5,
	"plasma":  18,
	"crystal": 55,
}

// Resources the market and escrow will move. DataBits are research-only.
var TradableResources = []string{"iron", "plasma", "crystal"}

func tradable(resource string) bool {
	for _, r := range TradableResources {
		if r == resource {
			return true
		}
	}
	return false
}

var UpgradeBaseCosts = map[string]float64{
	"auto_miners":        500,
	"plasma_extractors":  1200,
	"crystal_refineries": 4000,
	"research_hubs":      6000,
	"storage_level":      2500,
	"trade_license":      3000,
}

var UpgradeCostGrowth = map[string]float64{
	"auto_miners":        1.5,
	"plasma_extractors":  1.6,
	"crystal_refineries": 1.7,
	"research_hubs":      1.8,
	"storage_level":      1.8,
	"trade_license":      1.6,
}
