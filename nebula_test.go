package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// setupTestEnv initializes an in-memory store and fresh globals for
// isolated testing.
func setupTestEnv(t *testing.T) {
	t.Helper()
	var err error
	// Use :memory: to avoid touching the real database on disk
	store, err = openStore("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	// One connection so every statement sees the same in-memory database
	store.db.SetMaxOpenConns(1)

	sessions = make(map[string]*Session)
	market = &MarketSimulator{rng: rand.New(rand.NewSource(7))}
	combat = &CombatResolver{rng: rand.New(rand.NewSource(7))}
	narration = nil
	InfoLog = log.New(io.Discard, "", 0)
	ErrorLog = log.New(io.Discard, "", 0)
}

// seedPlayer registers a commander and brings them online. The starting
// shield is cleared so combat tests do not have to wait a day.
func seedPlayer(t *testing.T, id string, mut func(*GameState)) *Session {
	t.Helper()
	st := newGameState(time.Now())
	st.Profile.ShieldUntil = 0
	if mut != nil {
		mut(st)
	}
	if err := store.CreatePlayer(id, hashBLAKE3([]byte("pw")), st); err != nil {
		t.Fatalf("Failed to seed %s: %v", id, err)
	}
	stateLock.Lock()
	defer stateLock.Unlock()
	s, err := openSession(id)
	if err != nil {
		t.Fatalf("Failed to open session for %s: %v", id, err)
	}
	return s
}

// seedOffline registers a commander without opening a session.
func seedOffline(t *testing.T, id string, mut func(*GameState)) {
	t.Helper()
	st := newGameState(time.Now())
	st.Profile.ShieldUntil = 0
	if mut != nil {
		mut(st)
	}
	if err := store.CreatePlayer(id, hashBLAKE3([]byte("pw")), st); err != nil {
		t.Fatalf("Failed to seed %s: %v", id, err)
	}
}

// Helper to make JSON requests
func executeRequest(handler http.HandlerFunc, method, path, playerID string, payload interface{}) *httptest.ResponseRecorder {
	var body []byte
	if payload != nil {
		body, _ = json.Marshal(payload)
	}
	req, _ := http.NewRequest(method, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	if playerID != "" {
		req.Header.Set("X-Player-ID", playerID)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// Test 1: Enlistment (Registration + Login)
func TestEnlistment(t *testing.T) {
	setupTestEnv(t)

	payload := map[string]string{
		"PlayerID": "shepard",
		"Password": "securepassword123",
		"Callsign": "Commander Shepard",
	}

	rr := executeRequest(handleRegister, "POST", "/api/register", "", payload)
	if rr.Code != 200 {
		t.Fatalf("Registration failed. Code: %d, Body: %s", rr.Code, rr.Body.String())
	}

	// Duplicate ids are a conflict, not an overwrite
	rr = executeRequest(handleRegister, "POST", "/api/register", "", payload)
	if rr.Code != 409 {
		t.Errorf("Duplicate registration not rejected. Code: %d", rr.Code)
	}

	// Wrong password
	bad := map[string]string{"PlayerID": "shepard", "Password": "nope"}
	rr = executeRequest(handleLogin, "POST", "/api/login", "", bad)
	if rr.Code != 401 {
		t.Errorf("Bad credentials accepted. Code: %d", rr.Code)
	}

	rr = executeRequest(handleLogin, "POST", "/api/login", "", payload)
	if rr.Code != 200 {
		t.Fatalf("Login failed. Code: %d, Body: %s", rr.Code, rr.Body.String())
	}

	// Verify the durable record carries the starting loadout
	st, _, err := store.GetState("shepard")
	if err != nil {
		t.Fatalf("Stored state missing: %v", err)
	}
	if st.Credits != 5000 || st.Resources.Iron != 1000 || st.Level != 1 {
		t.Errorf("Wrong starting loadout: credits=%.0f iron=%.0f level=%d", st.Credits, st.Resources.Iron, st.Level)
	}
	if st.Profile.Callsign != "Commander Shepard" {
		t.Errorf("Callsign not applied: %q", st.Profile.Callsign)
	}
	if !st.sector("s1").Controlled {
		t.Errorf("Home sector not controlled at start")
	}
}

// Test 2: Shipyard (Build costs, fleet and XP)
func TestBuildShip(t *testing.T) {
	setupTestEnv(t)
	seedPlayer(t, "builder", nil)

	rr := executeRequest(handleBuildShip, "POST", "/api/build", "builder",
		map[string]interface{}{"ship_type": "scout", "amount": 2})
	if rr.Code != 200 {
		t.Fatalf("Build failed. Code: %d, Body: %s", rr.Code, rr.Body.String())
	}

	s := sessions["builder"]
	if s.State.Fleet["scout"] != 2 {
		t.Errorf("Fleet not updated: %v", s.State.Fleet)
	}
	// 2 x (500 credits, 200 iron)
	if s.State.Credits != 4000 {
		t.Errorf("Credits wrong after build: %.0f", s.State.Credits)
	}
	if s.State.Resources.Iron != 600 {
		t.Errorf("Iron wrong after build: %.0f", s.State.Resources.Iron)
	}
	if s.State.Stats.TotalShipsBuilt != 2 {
		t.Errorf("Build stats wrong: %d", s.State.Stats.TotalShipsBuilt)
	}
	// 2 x power 2 x 5 XP
	if s.State.XP != 20 {
		t.Errorf("Build XP wrong: %.0f", s.State.XP)
	}

	// A mothership is far out of reach; nothing may change on rejection
	rr = executeRequest(handleBuildShip, "POST", "/api/build", "builder",
		map[string]interface{}{"ship_type": "mothership", "amount": 1})
	if rr.Code != 400 {
		t.Errorf("Unaffordable build accepted. Code: %d", rr.Code)
	}
	if s.State.Credits != 4000 || s.State.Fleet["mothership"] != 0 {
		t.Errorf("Rejected build mutated state")
	}
}

// Test 3: Upgrade pricing grows geometrically
func TestUpgradePricing(t *testing.T) {
	setupTestEnv(t)
	seedPlayer(t, "tinkerer", nil)

	rr := executeRequest(handleUpgrade, "POST", "/api/upgrade", "tinkerer",
		map[string]interface{}{"upgrade": "auto_miners"})
	if rr.Code != 200 {
		t.Fatalf("Upgrade failed. Code: %d, Body: %s", rr.Code, rr.Body.String())
	}
	s := sessions["tinkerer"]
	if s.State.Credits != 4500 {
		t.Errorf("First auto_miners should cost 500, credits=%.0f", s.State.Credits)
	}

	rr = executeRequest(handleUpgrade, "POST", "/api/upgrade", "tinkerer",
		map[string]interface{}{"upgrade": "auto_miners"})
	if rr.Code != 200 {
		t.Fatalf("Second upgrade failed. Code: %d", rr.Code)
	}
	if s.State.Credits != 3750 {
		t.Errorf("Second auto_miners should cost 750, credits=%.0f", s.State.Credits)
	}
	if s.State.Upgrades.AutoMiners != 2 {
		t.Errorf("Upgrade level wrong: %d", s.State.Upgrades.AutoMiners)
	}

	rr = executeRequest(handleUpgrade, "POST", "/api/upgrade", "tinkerer",
		map[string]interface{}{"upgrade": "warp_drive"})
	if rr.Code != 400 {
		t.Errorf("Unknown upgrade accepted. Code: %d", rr.Code)
	}
}

// Test 4: Full raid round trip against an offline defender
func TestAttackEndToEnd(t *testing.T) {
	setupTestEnv(t)
	seedPlayer(t, "raider", func(st *GameState) {
		st.Fleet["cruiser"] = 2
	})
	seedOffline(t, "victim", func(st *GameState) {
		st.Fleet["defender"] = 1
		st.Resources.Iron = 300
		st.Credits = 2000
	})

	rr := executeRequest(handleAttack, "POST", "/api/attack", "raider",
		map[string]interface{}{"target_id": "victim"})
	if rr.Code != 200 {
		t.Fatalf("Attack failed. Code: %d, Body: %s", rr.Code, rr.Body.String())
	}

	var rep BattleReport
	if err := json.Unmarshal(rr.Body.Bytes(), &rep); err != nil {
		t.Fatalf("Bad report payload: %v", err)
	}
	if rep.AttackerID != "raider" || rep.DefenderID != "victim" {
		t.Errorf("Report parties wrong: %+v", rep)
	}
	if rep.Narrative == "" {
		t.Errorf("Report missing fallback narrative")
	}

	att := sessions["raider"].State
	if len(att.BattleHistory) != 1 || att.BattleHistory[0].ID != rep.ID {
		t.Errorf("Report not recorded in attacker history")
	}

	def, _, err := store.GetState("victim")
	if err != nil {
		t.Fatalf("Defender record missing: %v", err)
	}
	if def.Stats.BattlesWon+def.Stats.BattlesLost != 1 {
		t.Errorf("Defender stats not updated: %+v", def.Stats)
	}
	now := time.Now().UnixMilli()
	if rep.Won {
		if !def.shieldActive(now) {
			t.Errorf("Raided defender did not receive a shield")
		}
		if def.Resources.Iron < 0 || def.Credits < 0 {
			t.Errorf("Loot drove defender negative: iron=%.0f credits=%.0f", def.Resources.Iron, def.Credits)
		}
		if att.WarPoints != 100+WinWarPoints {
			t.Errorf("Attacker war points wrong after win: %d", att.WarPoints)
		}
	} else {
		if def.shieldActive(now) {
			t.Errorf("Defender shielded after winning the defense")
		}
		if att.WarPoints != 100-LossWarPoints {
			t.Errorf("Attacker war points wrong after loss: %d", att.WarPoints)
		}
	}
}

// Test 5: Shielded targets cannot be raided, and nothing mutates
func TestAttackShieldRejected(t *testing.T) {
	setupTestEnv(t)
	seedPlayer(t, "raider", func(st *GameState) {
		st.Fleet["cruiser"] = 2
	})
	seedOffline(t, "newbie", func(st *GameState) {
		st.Profile.ShieldUntil = time.Now().Add(time.Hour).UnixMilli()
	})

	rr := executeRequest(handleAttack, "POST", "/api/attack", "raider",
		map[string]interface{}{"target_id": "newbie"})
	if rr.Code != 400 {
		t.Errorf("Shielded target attacked. Code: %d", rr.Code)
	}

	att := sessions["raider"].State
	if att.Fleet["cruiser"] != 2 || len(att.BattleHistory) != 0 || att.WarPoints != 100 {
		t.Errorf("Rejected attack mutated attacker state")
	}
}

// Test 6: Intel sweeps require a recon drone
func TestSpyRequiresScout(t *testing.T) {
	setupTestEnv(t)
	seedPlayer(t, "watcher", nil)
	seedOffline(t, "target", func(st *GameState) {
		st.Fleet["defender"] = 3
	})

	rr := executeRequest(handleSpy, "POST", "/api/spy", "watcher",
		map[string]interface{}{"target_id": "target"})
	if rr.Code != 400 {
		t.Errorf("Spy without scout accepted. Code: %d", rr.Code)
	}

	sessions["watcher"].State.Fleet["scout"] = 1
	rr = executeRequest(handleSpy, "POST", "/api/spy", "watcher",
		map[string]interface{}{"target_id": "target"})
	if rr.Code != 200 {
		t.Fatalf("Spy failed. Code: %d, Body: %s", rr.Code, rr.Body.String())
	}

	var intel struct {
		Power int            `json:"power"`
		Fleet map[string]int `json:"fleet"`
	}
	json.Unmarshal(rr.Body.Bytes(), &intel)
	if intel.Power != 75 {
		t.Errorf("Intel power wrong: %d", intel.Power)
	}
	if sessions["watcher"].State.XP != 200 {
		t.Errorf("Spy XP not awarded: %.0f", sessions["watcher"].State.XP)
	}
}

// Test 7: Leaderboard ranks by war points
func TestLeaderboard(t *testing.T) {
	setupTestEnv(t)
	seedOffline(t, "alpha", func(st *GameState) { st.WarPoints = 300 })
	seedOffline(t, "bravo", func(st *GameState) { st.WarPoints = 900 })
	seedOffline(t, "charlie", func(st *GameState) { st.WarPoints = 50 })

	rr := executeRequest(handleLeaderboard, "GET", "/api/leaderboard", "", nil)
	if rr.Code != 200 {
		t.Fatalf("Leaderboard failed. Code: %d", rr.Code)
	}
	var rows []LeaderboardRow
	json.Unmarshal(rr.Body.Bytes(), &rows)
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	if rows[0].ID != "bravo" || rows[2].ID != "charlie" {
		t.Errorf("Leaderboard misordered: %+v", rows)
	}
}

// Test 8: Identity header is required on player routes
func TestMissingIdentity(t *testing.T) {
	setupTestEnv(t)
	rr := executeRequest(handleState, "POST", "/api/state", "", nil)
	if rr.Code != 401 {
		t.Errorf("Anonymous state request accepted. Code: %d", rr.Code)
	}
	rr = executeRequest(handleState, "POST", "/api/state", "ghost", nil)
	if rr.Code != 404 {
		t.Errorf("Unknown commander got state. Code: %d", rr.Code)
	}
}
