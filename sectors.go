package main

import "math"

// --- Sector Controller ---

// captureSector evaluates eligibility against the mobile fleet and flips the
// sector to controlled. Rejections happen before any mutation; the power
// shortfall is surfaced to the caller.
func captureSector(st *GameState, sectorID string) (*Sector, error) {
	s := st.sector(sectorID)
	if s == nil {
		return nil, &NotFoundError{What: "sector " + sectorID}
	}
	if s.Controlled {
		return nil, validationf("sector %s is already under your control", s.Name)
	}
	if st.Level < s.MinLevel {
		return nil, validationf("sector %s requires level %d", s.Name, s.MinLevel)
	}
	power := fleetPower(st.Fleet)
	required := s.Risk * CaptureConstant
	if power < required {
		return nil, validationf("capturing %s requires %d fleet power, have %d (short %d)",
			s.Name, required, power, required-power)
	}

	// A tighter fight costs more of the assault fleet, floored at a minimum.
	lossFraction := clampF(CaptureLossMax*float64(required)/float64(power), CaptureLossMin, CaptureLossMax)
	for _, sc := range ShipCatalog {
		if sc.Category == "producer" || sc.Category == "transport" {
			continue
		}
		if n := st.Fleet[sc.ID]; n > 0 {
			st.Fleet[sc.ID] = n - int(math.Floor(float64(n)*lossFraction))
		}
	}

	s.Controlled = true
	st.Stats.SectorsLiberated++
	awardXP(st, float64(s.Risk)*CaptureXPPerRisk)
	return s, nil
}

// deployShips moves units from the mobile fleet into a controlled sector's
// garrison, capped at what the fleet actually holds. Garrisoned units stop
// counting toward mobile power but feed the sector's production bonus.
func deployShips(st *GameState, sectorID, shipType string, n int) (int, error) {
	if n <= 0 {
		return 0, validationf("deployment count must be positive")
	}
	if shipClass(shipType) == nil {
		return 0, &NotFoundError{What: "ship class " + shipType}
	}
	s := st.sector(sectorID)
	if s == nil {
		return 0, &NotFoundError{What: "sector " + sectorID}
	}
	if !s.Controlled {
		return 0, validationf("sector %s is not under your control", s.Name)
	}
	available := st.Fleet[shipType]
	if available == 0 {
		return 0, validationf("no %s available in the mobile fleet", shipType)
	}
	if n > available {
		n = available
	}
	st.Fleet[shipType] = available - n
	if s.DeployedShips == nil {
		s.DeployedShips = make(map[string]int)
	}
	s.DeployedShips[shipType] += n
	return n, nil
}

// recallShips is the exact inverse of deployShips.
func recallShips(st *GameState, sectorID, shipType string, n int) (int, error) {
	if n <= 0 {
		return 0, validationf("recall count must be positive")
	}
	s := st.sector(sectorID)
	if s == nil {
		return 0, &NotFoundError{What: "sector " + sectorID}
	}
	garrisoned := s.DeployedShips[shipType]
	if garrisoned == 0 {
		return 0, validationf("no %s garrisoned in %s", shipType, s.Name)
	}
	if n > garrisoned {
		n = garrisoned
	}
	s.DeployedShips[shipType] = garrisoned - n
	st.Fleet[shipType] += n
	return n, nil
}
