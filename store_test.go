package main

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStoreRoundTrip(t *testing.T) {
	setupTestEnv(t)
	now := time.Now()
	st := newGameState(now)
	st.Credits = 12345
	st.Fleet["cruiser"] = 3

	if err := store.CreatePlayer("pilot", "hash", st); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, version, err := store.GetState("pilot")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if version != 1 {
		t.Errorf("Fresh row version wrong: %d", version)
	}
	if got.Credits != 12345 || got.Fleet["cruiser"] != 3 {
		t.Errorf("State mangled through the blob: %+v", got)
	}

	if _, _, err := store.GetState("nobody"); err == nil {
		t.Errorf("Missing player returned state")
	}
}

func TestStoreConditionalWrite(t *testing.T) {
	setupTestEnv(t)
	st := newGameState(time.Now())
	store.CreatePlayer("pilot", "hash", st)

	st.Credits = 7777
	if err := store.UpdateState("pilot", st, 1); err != nil {
		t.Fatalf("Update at current version failed: %v", err)
	}

	// The version moved; a writer holding the old one must lose
	st.Credits = 1
	err := store.UpdateState("pilot", st, 1)
	if _, ok := err.(*ConflictError); !ok {
		t.Errorf("Stale write got %v, want conflict", err)
	}

	got, version, _ := store.GetState("pilot")
	if got.Credits != 7777 || version != 2 {
		t.Errorf("Stale write landed: credits=%.0f v%d", got.Credits, version)
	}
}

func TestStoreApplyRetries(t *testing.T) {
	setupTestEnv(t)
	store.CreatePlayer("pilot", "hash", newGameState(time.Now()))

	// Two sequential appliers both land despite touching the same row
	for i := 0; i < 2; i++ {
		err := store.Apply("pilot", func(st *GameState) error {
			st.Credits += 100
			return nil
		})
		if err != nil {
			t.Fatalf("Apply %d failed: %v", i, err)
		}
	}
	got, _, _ := store.GetState("pilot")
	if got.Credits != 5200 {
		t.Errorf("Apply effects wrong: %.0f", got.Credits)
	}
}

func TestFlushConflictAdoptsStored(t *testing.T) {
	setupTestEnv(t)
	s := seedPlayer(t, "pilot", nil)
	s.State.Credits = 9000
	s.Dirty = true

	// A foreign effect lands between the session's reads and its flush
	if err := store.Apply("pilot", func(st *GameState) error {
		st.Credits = 42
		return nil
	}); err != nil {
		t.Fatalf("Foreign apply failed: %v", err)
	}

	flushSessions()

	// The stored record won; the session adopted it
	if s.State.Credits != 42 {
		t.Errorf("Session kept the losing copy: %.0f", s.State.Credits)
	}
	if s.Dirty {
		t.Errorf("Session still dirty after adoption")
	}
}

func TestIdleSessionEviction(t *testing.T) {
	setupTestEnv(t)
	idle := seedPlayer(t, "sleeper", nil)
	active := seedPlayer(t, "awake", nil)

	idle.State.Credits = 777
	idle.Dirty = true
	idle.LastSeen = time.Now().Add(-2 * SessionIdleAfter)
	active.Dirty = true

	flushSessions()

	if _, ok := sessions["sleeper"]; ok {
		t.Errorf("Idle session not evicted")
	}
	if _, ok := sessions["awake"]; !ok {
		t.Errorf("Active session evicted")
	}
	// The dirty state went down before the eviction
	st, _, err := store.GetState("sleeper")
	if err != nil {
		t.Fatalf("Evicted record missing: %v", err)
	}
	if st.Credits != 777 {
		t.Errorf("Eviction lost the last flush: %.0f", st.Credits)
	}

	// A clean idle session goes on the next sweep too
	stateLock.Lock()
	s, err := openSession("sleeper")
	stateLock.Unlock()
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	s.LastSeen = time.Now().Add(-2 * SessionIdleAfter)
	flushSessions()
	if _, ok := sessions["sleeper"]; ok {
		t.Errorf("Clean idle session not evicted")
	}
}

func TestGameLoopsFlushOnStop(t *testing.T) {
	setupTestEnv(t)
	s := seedPlayer(t, "pilot", nil)
	s.State.Credits = 4242
	s.Dirty = true

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		runGameLoops(stop)
		close(done)
	}()
	close(stop)
	<-done

	// The final flush ran before the loop returned
	st, _, err := store.GetState("pilot")
	if err != nil {
		t.Fatalf("Record missing: %v", err)
	}
	if st.Credits != 4242 {
		t.Errorf("Dirty state lost on shutdown: %.0f", st.Credits)
	}
}

func TestDuplicatePlayer(t *testing.T) {
	setupTestEnv(t)
	st := newGameState(time.Now())
	if err := store.CreatePlayer("pilot", "hash", st); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	err := store.CreatePlayer("pilot", "otherhash", st)
	if _, ok := err.(*ConflictError); !ok {
		t.Errorf("Duplicate create got %v, want conflict", err)
	}
}

// --- Blob migration ---

func TestMigrateLegacyBlob(t *testing.T) {
	now := time.Now()
	// A v1-era blob: no war points, no market, sparse sectors
	legacy := map[string]interface{}{
		"schema_version": 1,
		"credits":        800,
		"level":          4,
		"resources":      map[string]float64{"iron": 50},
		"sectors": []map[string]interface{}{
			{"id": "s2", "controlled": true, "deployed_ships": map[string]int{"miner": 2}},
		},
	}
	raw, _ := json.Marshal(legacy)

	st, err := migrateState(raw, now)
	if err != nil {
		t.Fatalf("Migration failed: %v", err)
	}
	if st.WarPoints != 100 {
		t.Errorf("Legacy war points not defaulted: %d", st.WarPoints)
	}
	if len(st.Sectors) != len(SectorCatalog) {
		t.Errorf("Sector list not merged to the catalog: %d", len(st.Sectors))
	}
	s2 := st.sector("s2")
	if !s2.Controlled || s2.DeployedShips["miner"] != 2 {
		t.Errorf("Capture state lost in the merge: %+v", s2)
	}
	if s2.Name != "Asteroid Belt" {
		t.Errorf("Catalog fields not restored: %q", s2.Name)
	}
	if st.Market["iron"] == nil || st.Market["iron"].Price != BasePrices["iron"] {
		t.Errorf("Market not defaulted")
	}
	if st.Credits != 800 || st.Level != 4 {
		t.Errorf("Player progress lost: credits=%.0f level=%d", st.Credits, st.Level)
	}
}

func TestMigrateRefusesFutureSchema(t *testing.T) {
	raw, _ := json.Marshal(map[string]interface{}{"schema_version": CurrentSchemaVersion + 1})
	if _, err := migrateState(raw, time.Now()); err == nil {
		t.Errorf("Future schema accepted")
	}
}

func TestMigrateGarbage(t *testing.T) {
	if _, err := migrateState([]byte("not json"), time.Now()); err == nil {
		t.Errorf("Garbage blob accepted")
	}
}

// --- Codec ---

func TestCompressionRoundTrip(t *testing.T) {
	payload := []byte(`{"credits": 5000, "fleet": {"scout": 3}}`)
	packed := compressLZ4(payload)
	if string(decompressLZ4(packed)) != string(payload) {
		t.Errorf("lz4 round trip mangled the payload")
	}
}

func TestHashStability(t *testing.T) {
	a := hashBLAKE3([]byte("password"))
	b := hashBLAKE3([]byte("password"))
	c := hashBLAKE3([]byte("Password"))
	if a != b {
		t.Errorf("Hash not deterministic")
	}
	if a == c {
		t.Errorf("Distinct inputs collided")
	}
	if len(a) != 64 {
		t.Errorf("Unexpected digest length: %d", len(a))
	}
}
