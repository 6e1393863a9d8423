package main

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

func TestMarketInvariants(t *testing.T) {
	st := newGameState(time.Now())
	sim := &MarketSimulator{rng: rand.New(rand.NewSource(99))}

	for i := 0; i < 500; i++ {
		sim.Tick(st)
		for _, res := range TradableResources {
			e := st.Market[res]
			floor := BasePrices[res] * MarketFloorRatio
			if e.Price < floor-1e-9 {
				t.Fatalf("tick %d: %s price %.4f below floor %.4f", i, res, e.Price, floor)
			}
			if e.Demand < MarketDemandMin || e.Demand > MarketDemandMax {
				t.Fatalf("tick %d: %s demand %.2f out of bounds", i, res, e.Demand)
			}
			switch {
			case e.Price > e.PrevPrice && e.Trend != "up":
				t.Fatalf("tick %d: %s trend %q with rising price", i, res, e.Trend)
			case e.Price < e.PrevPrice && e.Trend != "down":
				t.Fatalf("tick %d: %s trend %q with falling price", i, res, e.Trend)
			}
		}
	}
}

func TestMarketDeterministicUnderSeed(t *testing.T) {
	a := newGameState(time.Now())
	b := newGameState(time.Now())
	simA := &MarketSimulator{rng: rand.New(rand.NewSource(5))}
	simB := &MarketSimulator{rng: rand.New(rand.NewSource(5))}

	for i := 0; i < 50; i++ {
		simA.Tick(a)
		simB.Tick(b)
	}
	for _, res := range TradableResources {
		if a.Market[res].Price != b.Market[res].Price {
			t.Errorf("Same seed diverged on %s: %.6f vs %.6f", res, a.Market[res].Price, b.Market[res].Price)
		}
	}
}

func TestTaxRate(t *testing.T) {
	st := newGameState(time.Now())
	if got := taxRate(st); math.Abs(got-0.10) > 1e-9 {
		t.Errorf("Unlicensed tax wrong: %.4f", got)
	}
	st.Upgrades.TradeLicense = 3
	if got := taxRate(st); math.Abs(got-0.07) > 1e-9 {
		t.Errorf("License 3 tax wrong: %.4f", got)
	}
	st.Upgrades.TradeLicense = 20
	if got := taxRate(st); math.Abs(got-MinTaxRate) > 1e-9 {
		t.Errorf("Tax dropped below the minimum: %.4f", got)
	}
}

func TestSellAll(t *testing.T) {
	st := newGameState(time.Now())
	st.Resources.Iron = 100
	st.Market["iron"].Price = 10
	st.Credits = 0

	proceeds, err := sellAll(st, "iron")
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	// 100 x 10 less the 10% exchange cut
	if math.Abs(proceeds-900) > 1e-9 || math.Abs(st.Credits-900) > 1e-9 {
		t.Errorf("Sale proceeds wrong: %.2f, credits %.2f", proceeds, st.Credits)
	}
	if st.Resources.Iron != 0 {
		t.Errorf("Stock not zeroed after sale: %.2f", st.Resources.Iron)
	}
	if math.Abs(st.Stats.TotalCreditsEarned-900) > 1e-9 {
		t.Errorf("Earnings stat wrong: %.2f", st.Stats.TotalCreditsEarned)
	}

	if _, err := sellAll(st, "iron"); err == nil {
		t.Errorf("Selling an empty stock succeeded")
	}
	if _, err := sellAll(st, "data_bits"); err == nil {
		t.Errorf("Selling a non-tradable resource succeeded")
	}
}

func TestBuyLot(t *testing.T) {
	st := newGameState(time.Now())
	st.Market["iron"].Price = 2
	st.Credits = 10000
	st.Resources.Iron = 0

	bought, err := buyLot(st, "iron")
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if bought != MarketBuyLot || st.Resources.Iron != MarketBuyLot {
		t.Errorf("Lot size wrong: bought=%.0f stock=%.0f", bought, st.Resources.Iron)
	}
	if math.Abs(st.Credits-(10000-MarketBuyLot*2)) > 1e-9 {
		t.Errorf("Credits wrong after buy: %.2f", st.Credits)
	}

	// Storage admits only the remaining room
	st.Resources.Iron = storageCap(st.Upgrades.StorageLevel) - 30
	bought, err = buyLot(st, "iron")
	if err != nil {
		t.Fatalf("Partial buy failed: %v", err)
	}
	if bought != 30 {
		t.Errorf("Partial lot wrong: %.0f", bought)
	}

	// Full storage refuses outright
	if _, err := buyLot(st, "iron"); err == nil {
		t.Errorf("Buy into full storage succeeded")
	}

	// Empty wallet refuses before mutating
	st.Resources.Iron = 0
	st.Credits = 1
	before := st.Resources.Iron
	if _, err := buyLot(st, "iron"); err == nil {
		t.Errorf("Buy without credits succeeded")
	}
	if st.Resources.Iron != before {
		t.Errorf("Rejected buy mutated stock")
	}
}
