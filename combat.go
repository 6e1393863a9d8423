package main

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// CombatResolver turns two fleet snapshots and one random draw into a
// battle outcome. The random source is injected for reproducible tests.
type CombatResolver struct {
	rng *rand.Rand
}

// fleetPower is the sum of unit counts weighted by static power.
func fleetPower(fleet map[string]int) int {
	total := 0
	for _, sc := range ShipCatalog {
		total += fleet[sc.ID] * sc.Power
	}
	return total
}

func winProbability(attackerPower, defenderPower float64) float64 {
	if attackerPower+defenderPower <= 0 {
		return WinProbFloor
	}
	return clampF(attackerPower/(attackerPower+defenderPower), WinProbFloor, WinProbCeil)
}

type battleOutcome struct {
	won            bool
	attackerPower  int
	defenderPower  int
	winProb        float64
	attackerLosses map[string]int
	defenderLosses map[string]int
	loot           Loot
}

func attrition(fleet map[string]int, rate float64) map[string]int {
	losses := make(map[string]int)
	for _, sc := range ShipCatalog {
		if n := fleet[sc.ID]; n > 0 {
			losses[sc.ID] = int(math.Floor(float64(n) * rate))
		}
	}
	return losses
}

// resolve is pure over the two snapshots: no state is touched. Attacker
// power gets the research-hub perk scaling; the shield and the minimum
// power gate reject the attack before any math is applied downstream.
func (c *CombatResolver) resolve(att, def *GameState, now time.Time) (*battleOutcome, error) {
	if def.shieldActive(now.UnixMilli()) {
		return nil, validationf("defender is under shield protection")
	}
	rawPower := fleetPower(att.Fleet)
	if rawPower < MinAttackPower {
		return nil, validationf("attack requires at least %d fleet power, have %d", MinAttackPower, rawPower)
	}
	attPower := int(float64(rawPower) * (1 + float64(att.Upgrades.ResearchHubs)*ResearchPowerBoost))
	defPower := fleetPower(def.Fleet)

	prob := winProbability(float64(attPower), float64(defPower))
	won := c.rng.Float64() < prob

	o := &battleOutcome{
		won:           won,
		attackerPower: attPower,
		defenderPower: defPower,
		winProb:       prob,
	}
	if won {
		o.attackerLosses = attrition(att.Fleet, AttackerWinLoss)
		o.defenderLosses = attrition(def.Fleet, DefenderLoseLoss)
		o.loot = Loot{
			Iron:    math.Floor(def.Resources.Iron * LootIronFraction),
			Plasma:  math.Floor(def.Resources.Plasma * LootPlasmaFract),
			Credits: math.Floor(def.Credits * LootCreditsFract),
		}
	} else {
		o.attackerLosses = attrition(att.Fleet, AttackerLoseLoss)
		o.defenderLosses = attrition(def.Fleet, DefenderWinLoss)
	}
	return o, nil
}

// applyDefenderOutcome is the command side of combat: it runs against a
// fresh copy of the defender's record inside the store's conditional-write
// path. Loot is re-capped against the current balances so nothing ever goes
// negative, and a shield raised by an earlier racing attack aborts here.
func applyDefenderOutcome(def *GameState, o *battleOutcome, now time.Time) error {
	if def.shieldActive(now.UnixMilli()) {
		return validationf("defender is under shield protection")
	}
	for id, n := range o.defenderLosses {
		def.Fleet[id] -= n
		if def.Fleet[id] < 0 {
			def.Fleet[id] = 0
		}
	}
	if o.won {
		o.loot.Iron = math.Min(o.loot.Iron, def.Resources.Iron)
		o.loot.Plasma = math.Min(o.loot.Plasma, def.Resources.Plasma)
		o.loot.Credits = math.Min(o.loot.Credits, def.Credits)
		def.Resources.Iron -= o.loot.Iron
		def.Resources.Plasma -= o.loot.Plasma
		def.Credits -= o.loot.Credits
		def.Stats.BattlesLost++
		// Losing a raid grants a protective window against pile-ons.
		def.Profile.ShieldUntil = now.Add(ShieldDuration).UnixMilli()
	} else {
		def.Stats.BattlesWon++
	}
	return nil
}

// applyAttackerOutcome mutates the attacker's own session state once the
// defender-side command has committed.
func applyAttackerOutcome(att *GameState, o *battleOutcome) {
	for id, n := range o.attackerLosses {
		att.Fleet[id] -= n
		if att.Fleet[id] < 0 {
			att.Fleet[id] = 0
		}
	}
	if o.won {
		att.Credits += o.loot.Credits + WinCreditBonus
		att.Resources.Iron = math.Min(storageCap(att.Upgrades.StorageLevel), att.Resources.Iron+o.loot.Iron)
		att.Resources.Plasma = math.Min(storageCap(att.Upgrades.StorageLevel), att.Resources.Plasma+o.loot.Plasma)
		att.Stats.TotalCreditsEarned += o.loot.Credits + WinCreditBonus
		att.Stats.BattlesWon++
		att.WarPoints += WinWarPoints
		awardXP(att, 2000)
	} else {
		att.Stats.BattlesLost++
		att.WarPoints -= LossWarPoints
		if att.WarPoints < 0 {
			att.WarPoints = 0
		}
		awardXP(att, 500)
	}
}

func newBattleReport(attackerID, defenderID string, att, def *GameState, o *battleOutcome, now time.Time) *BattleReport {
	id := hashBLAKE3([]byte(fmt.Sprintf("%s-%s-%d", attackerID, defenderID, now.UnixNano())))[:12]
	return &BattleReport{
		ID:               id,
		Timestamp:        now.UnixMilli(),
		AttackerID:       attackerID,
		DefenderID:       defenderID,
		AttackerCallsign: att.Profile.Callsign,
		DefenderCallsign: def.Profile.Callsign,
		Won:              o.won,
		Loot:             o.loot,
		AttackerLosses:   o.attackerLosses,
		DefenderLosses:   o.defenderLosses,
		Narrative:        narrationFallback,
	}
}

// recordReport prepends to the bounded history, newest first.
func recordReport(st *GameState, rep *BattleReport) {
	st.BattleHistory = append([]BattleReport{*rep}, st.BattleHistory...)
	if len(st.BattleHistory) > BattleHistoryMax {
		st.BattleHistory = st.BattleHistory[:BattleHistoryMax]
	}
}
