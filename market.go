package main

import (
	"math"
	"math/rand"
)

// MarketSimulator evolves per-resource price, trend and demand on a fixed
// interval, independent of production ticks. The random source is injected
// so runs are reproducible under test.
type MarketSimulator struct {
	rng *rand.Rand
}

// Tick advances one market interval for every tradable resource. The demand
// gauge random-walks inside its bounds; the price follows demand with
// bounded noise and never drops through the floor.
func (m *MarketSimulator) Tick(st *GameState) {
	for _, res := range TradableResources {
		entry := st.Market[res]
		if entry == nil {
			continue
		}
		base := BasePrices[res]

		entry.Demand += (m.rng.Float64()*2 - 1) * MarketDemandStep
		entry.Demand = clampF(entry.Demand, MarketDemandMin, MarketDemandMax)

		demandFactor := entry.Demand / 50.0
		noise := MarketNoiseLow + m.rng.Float64()*(MarketNoiseHigh-MarketNoiseLow)

		entry.PrevPrice = entry.Price
		entry.Price = math.Max(base*MarketFloorRatio, base*demandFactor*noise)

		switch {
		case entry.Price > entry.PrevPrice:
			entry.Trend = "up"
		case entry.Price < entry.PrevPrice:
			entry.Trend = "down"
		default:
			entry.Trend = "stable"
		}
	}
}

// taxRate is the cut the exchange takes on a sale, reduced by the trade
// license upgrade but never below the minimum.
func taxRate(st *GameState) float64 {
	return math.Max(MinTaxRate, BaseTaxRate-float64(st.Upgrades.TradeLicense)*TaxPerLicense)
}

// sellAll converts the full held stock of one resource to credits at the
// current price less tax, and zeroes the stock.
func sellAll(st *GameState, resource string) (float64, error) {
	if !tradable(resource) {
		return 0, validationf("resource %q is not traded on the exchange", resource)
	}
	stock := st.Resources.Get(resource)
	if stock <= 0 {
		return 0, validationf("no %s to sell", resource)
	}
	entry := st.Market[resource]
	proceeds := stock * entry.Price * (1 - taxRate(st))
	st.Resources.Add(resource, -stock)
	st.Credits += proceeds
	st.Stats.TotalCreditsEarned += proceeds
	return proceeds, nil
}

// buyLot purchases a fixed lot at the current price, bounded by credits and
// by what the storage cap still admits.
func buyLot(st *GameState, resource string) (float64, error) {
	if !tradable(resource) {
		return 0, validationf("resource %q is not traded on the exchange", resource)
	}
	entry := st.Market[resource]
	amount := MarketBuyLot
	if room := storageCap(st.Upgrades.StorageLevel) - st.Resources.Get(resource); room < amount {
		amount = room
	}
	if amount <= 0 {
		return 0, validationf("%s storage is full", resource)
	}
	cost := amount * entry.Price
	if st.Credits < cost {
		return 0, validationf("need %.0f credits, have %.0f", cost, st.Credits)
	}
	st.Credits -= cost
	st.Resources.Add(resource, amount)
	return amount, nil
}
