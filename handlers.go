package main

import (
	"encoding/json"
	"net/http"
	"time"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), httpStatus(err))
}

// requirePlayer resolves the calling player's session. Caller holds
// stateLock.
func requirePlayer(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	pid := r.Header.Get("X-Player-ID")
	if pid == "" {
		http.Error(w, "Missing X-Player-ID", 401)
		return nil, false
	}
	s, err := openSession(pid)
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	return s, true
}

// --- Auth ---

func handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct{ PlayerID, Password, Callsign string }
	json.NewDecoder(r.Body).Decode(&req)
	if req.PlayerID == "" || req.Password == "" {
		http.Error(w, "PlayerID and Password required", 400)
		return
	}
	st := newGameState(time.Now())
	if req.Callsign != "" {
		st.Profile.Callsign = req.Callsign
	}
	if err := store.CreatePlayer(req.PlayerID, hashBLAKE3([]byte(req.Password)), st); err != nil {
		writeErr(w, err)
		return
	}
	InfoLog.Printf("New commander: %s", req.PlayerID)
	writeJSON(w, map[string]string{"status": "registered", "player_id": req.PlayerID})
}

func handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct{ PlayerID, Password string }
	json.NewDecoder(r.Body).Decode(&req)
	hash, err := store.Credentials(req.PlayerID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if hash != hashBLAKE3([]byte(req.Password)) {
		http.Error(w, "Bad credentials", 401)
		return
	}
	stateLock.Lock()
	defer stateLock.Unlock()
	s, err := openSession(req.PlayerID)
	if err != nil {
		writeErr(w, err)
		return
	}
	// Catch up production accrued while logged out.
	productionTick(s.State, time.Now())
	s.Dirty = true
	writeJSON(w, map[string]interface{}{"status": "ok", "player_id": req.PlayerID, "level": s.State.Level})
}

// --- State & Build ---

func handleState(w http.ResponseWriter, r *http.Request) {
	stateLock.Lock()
	defer stateLock.Unlock()
	s, ok := requirePlayer(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]interface{}{
		"state":       s.State,
		"storage_cap": storageCap(s.State.Upgrades.StorageLevel),
		"power":       fleetPower(s.State.Fleet),
		"xp_to_next":  xpThreshold(s.State.Level),
		"catalog":     ShipCatalog,
	})
}

func handleBuildShip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShipType string `json:"ship_type"`
		Amount   int    `json:"amount"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	if req.Amount < 1 {
		req.Amount = 1
	}
	sc := shipClass(req.ShipType)
	if sc == nil {
		http.Error(w, "Unknown ship class", 400)
		return
	}
	stateLock.Lock()
	defer stateLock.Unlock()
	s, ok := requirePlayer(w, r)
	if !ok {
		return
	}
	st := s.State
	n := float64(req.Amount)
	if st.Credits < sc.Cost.Credits*n || st.Resources.Iron < sc.Cost.Iron*n ||
		st.Resources.Plasma < sc.Cost.Plasma*n || st.Resources.Crystal < sc.Cost.Crystal*n {
		writeErr(w, validationf("insufficient resources for %d x %s", req.Amount, sc.Name))
		return
	}
	st.Credits -= sc.Cost.Credits * n
	st.Resources.Iron -= sc.Cost.Iron * n
	st.Resources.Plasma -= sc.Cost.Plasma * n
	st.Resources.Crystal -= sc.Cost.Crystal * n
	st.Fleet[sc.ID] += req.Amount
	st.Stats.TotalShipsBuilt += req.Amount
	awardXP(st, float64(sc.Power*5*req.Amount))
	s.Dirty = true
	writeJSON(w, map[string]interface{}{"fleet": st.Fleet, "level": st.Level})
}

func upgradeLevel(u *Upgrades, name string) *int {
	switch name {
	case "auto_miners":
		return &u.AutoMiners
	case "plasma_extractors":
		return &u.PlasmaExtractors
	case "crystal_refineries":
		return &u.CrystalRefineries
	case "research_hubs":
		return &u.ResearchHubs
	case "storage_level":
		return &u.StorageLevel
	case "trade_license":
		return &u.TradeLicense
	}
	return nil
}

func upgradeCost(name string, level int) float64 {
	base := UpgradeBaseCosts[name]
	growth := UpgradeCostGrowth[name]
	cost := base
	for i := 0; i < level; i++ {
		cost *= growth
	}
	return float64(int(cost))
}

func handleUpgrade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Upgrade string `json:"upgrade"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	stateLock.Lock()
	defer stateLock.Unlock()
	s, ok := requirePlayer(w, r)
	if !ok {
		return
	}
	level := upgradeLevel(&s.State.Upgrades, req.Upgrade)
	if level == nil {
		http.Error(w, "Unknown upgrade", 400)
		return
	}
	cost := upgradeCost(req.Upgrade, *level)
	if s.State.Credits < cost {
		writeErr(w, validationf("upgrade costs %.0f credits, have %.0f", cost, s.State.Credits))
		return
	}
	s.State.Credits -= cost
	*level++
	awardXP(s.State, 100)
	s.Dirty = true
	writeJSON(w, map[string]interface{}{"upgrade": req.Upgrade, "new_level": *level, "spent": cost})
}

// --- Market ---

func handleMarketSell(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Resource string `json:"resource"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	stateLock.Lock()
	defer stateLock.Unlock()
	s, ok := requirePlayer(w, r)
	if !ok {
		return
	}
	proceeds, err := sellAll(s.State, req.Resource)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.Dirty = true
	writeJSON(w, map[string]interface{}{"credits": s.State.Credits, "proceeds": proceeds, "tax_rate": taxRate(s.State)})
}

func handleMarketBuy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Resource string `json:"resource"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	stateLock.Lock()
	defer stateLock.Unlock()
	s, ok := requirePlayer(w, r)
	if !ok {
		return
	}
	bought, err := buyLot(s.State, req.Resource)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.Dirty = true
	writeJSON(w, map[string]interface{}{"bought": bought, "credits": s.State.Credits})
}

// --- Sectors ---

func handleSectorCapture(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SectorID string `json:"sector_id"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	stateLock.Lock()
	defer stateLock.Unlock()
	s, ok := requirePlayer(w, r)
	if !ok {
		return
	}
	sector, err := captureSector(s.State, req.SectorID)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.Dirty = true
	InfoLog.Printf("%s captured %s", s.PlayerID, sector.Name)
	writeJSON(w, map[string]interface{}{"sector": sector, "fleet": s.State.Fleet, "level": s.State.Level})
}

func handleSectorDeploy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SectorID string `json:"sector_id"`
		ShipType string `json:"ship_type"`
		Amount   int    `json:"amount"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	stateLock.Lock()
	defer stateLock.Unlock()
	s, ok := requirePlayer(w, r)
	if !ok {
		return
	}
	moved, err := deployShips(s.State, req.SectorID, req.ShipType, req.Amount)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.Dirty = true
	writeJSON(w, map[string]interface{}{"moved": moved, "fleet": s.State.Fleet})
}

func handleSectorRecall(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SectorID string `json:"sector_id"`
		ShipType string `json:"ship_type"`
		Amount   int    `json:"amount"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	stateLock.Lock()
	defer stateLock.Unlock()
	s, ok := requirePlayer(w, r)
	if !ok {
		return
	}
	moved, err := recallShips(s.State, req.SectorID, req.ShipType, req.Amount)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.Dirty = true
	writeJSON(w, map[string]interface{}{"moved": moved, "fleet": s.State.Fleet})
}

// --- War ---

// opponentSnapshot reads the freshest view of a player: the live session
// when online, the durable record otherwise.
func opponentSnapshot(playerID string) (*GameState, error) {
	if ds, ok := sessions[playerID]; ok {
		return ds.State, nil
	}
	st, _, err := store.GetState(playerID)
	return st, err
}

func handleSpy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetID string `json:"target_id"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	stateLock.Lock()
	defer stateLock.Unlock()
	s, ok := requirePlayer(w, r)
	if !ok {
		return
	}
	if req.TargetID == "" || req.TargetID == s.PlayerID {
		writeErr(w, validationf("invalid spy target"))
		return
	}
	if s.State.Fleet["scout"] < 1 {
		writeErr(w, validationf("a recon drone is required for intel sweeps"))
		return
	}
	target, err := opponentSnapshot(req.TargetID)
	if err != nil {
		writeErr(w, err)
		return
	}
	awardXP(s.State, 200)
	s.Dirty = true
	writeJSON(w, map[string]interface{}{
		"target_id":  req.TargetID,
		"callsign":   target.Profile.Callsign,
		"level":      target.Level,
		"credits":    target.Credits,
		"resources":  target.Resources,
		"fleet":      target.Fleet,
		"power":      fleetPower(target.Fleet),
		"has_shield": target.shieldActive(time.Now().UnixMilli()),
	})
}

func handleAttack(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetID string `json:"target_id"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	stateLock.Lock()
	defer stateLock.Unlock()
	s, ok := requirePlayer(w, r)
	if !ok {
		return
	}
	if req.TargetID == "" || req.TargetID == s.PlayerID {
		writeErr(w, validationf("invalid attack target"))
		return
	}
	now := time.Now()
	def, err := opponentSnapshot(req.TargetID)
	if err != nil {
		writeErr(w, err)
		return
	}

	o, err := combat.resolve(s.State, def, now)
	if err != nil {
		writeErr(w, err)
		return
	}

	// Defender side first, through the atomic path. If a racing attacker got
	// there before us this returns a conflict and our state stays untouched.
	if err := applyToPlayer(req.TargetID, func(d *GameState) error {
		return applyDefenderOutcome(d, o, now)
	}); err != nil {
		writeErr(w, err)
		return
	}

	applyAttackerOutcome(s.State, o)
	rep := newBattleReport(s.PlayerID, req.TargetID, s.State, def, o, now)
	recordReport(s.State, rep)
	s.Dirty = true

	go narrateBattle(s.PlayerID, rep, o)

	InfoLog.Printf("battle %s: %s -> %s won=%v p=%.2f", rep.ID, s.PlayerID, req.TargetID, o.won, o.winProb)
	writeJSON(w, rep)
}

func handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := store.TopN(10)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, rows)
}

// --- Trade ---

func handleTradeCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReceiverID string             `json:"receiver_id"`
		Offer      map[string]float64 `json:"offer"`
		Request    map[string]float64 `json:"request"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	stateLock.Lock()
	defer stateLock.Unlock()
	s, ok := requirePlayer(w, r)
	if !ok {
		return
	}
	p, err := createTrade(s, req.ReceiverID, req.Offer, req.Request)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, p)
}

func handleTradeAccept(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TradeID string `json:"trade_id"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	stateLock.Lock()
	defer stateLock.Unlock()
	s, ok := requirePlayer(w, r)
	if !ok {
		return
	}
	p, err := acceptTrade(s, req.TradeID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, p)
}

func handleTradeReject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TradeID string `json:"trade_id"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	stateLock.Lock()
	defer stateLock.Unlock()
	s, ok := requirePlayer(w, r)
	if !ok {
		return
	}
	p, err := rejectTrade(s, req.TradeID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, p)
}

func handleTradeList(w http.ResponseWriter, r *http.Request) {
	stateLock.Lock()
	defer stateLock.Unlock()
	s, ok := requirePlayer(w, r)
	if !ok {
		return
	}
	trades, err := store.TradesFor(s.PlayerID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, trades)
}

// --- Marketplace ---

func handleListingCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Resource string  `json:"resource"`
		Amount   float64 `json:"amount"`
		Price    float64 `json:"price"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	stateLock.Lock()
	defer stateLock.Unlock()
	s, ok := requirePlayer(w, r)
	if !ok {
		return
	}
	l, err := createListing(s, req.Resource, req.Amount, req.Price)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, l)
}

func handleListingPurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ListingID string `json:"listing_id"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	stateLock.Lock()
	defer stateLock.Unlock()
	s, ok := requirePlayer(w, r)
	if !ok {
		return
	}
	l, err := purchaseListing(s, req.ListingID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"purchased": l, "credits": s.State.Credits})
}

func handleListingCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ListingID string `json:"listing_id"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	stateLock.Lock()
	defer stateLock.Unlock()
	s, ok := requirePlayer(w, r)
	if !ok {
		return
	}
	l, err := cancelListing(s, req.ListingID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"cancelled": l})
}

func handleListings(w http.ResponseWriter, r *http.Request) {
	listings, err := store.Listings()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, listings)
}
