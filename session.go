package main

import (
	"time"
)

// Session is the single in-memory owner of one player's GameState while that
// player is logged in. All mutation happens under stateLock; the durable row
// is flushed on a debounce and written with a version check.
type Session struct {
	PlayerID string
	State    *GameState
	Version  int64
	Dirty    bool
	LastSeen time.Time
}

// openSession loads the durable record into memory, creating the session if
// needed. Caller holds stateLock.
func openSession(playerID string) (*Session, error) {
	if s, ok := sessions[playerID]; ok {
		s.LastSeen = time.Now()
		return s, nil
	}
	st, version, err := store.GetState(playerID)
	if err != nil {
		return nil, err
	}
	s := &Session{PlayerID: playerID, State: st, Version: version, LastSeen: time.Now()}
	sessions[playerID] = s
	return s, nil
}

// applyToPlayer routes a cross-player command to its target: straight onto
// the live session when the target is online (same lock, no race), through
// the store's conditional-write path when not.
func applyToPlayer(playerID string, fn func(*GameState) error) error {
	if s, ok := sessions[playerID]; ok {
		if err := fn(s.State); err != nil {
			return err
		}
		s.Dirty = true
		return nil
	}
	return store.Apply(playerID, fn)
}

// --- Timers ---

// tickProduction applies one production tick to every live session.
func tickProduction(now time.Time) {
	stateLock.Lock()
	defer stateLock.Unlock()
	for _, s := range sessions {
		productionTick(s.State, now)
		s.Dirty = true
	}
}

// tickMarket advances prices for every live session on the market interval.
func tickMarket() {
	stateLock.Lock()
	defer stateLock.Unlock()
	for _, s := range sessions {
		market.Tick(s.State)
		s.Dirty = true
	}
}

// flushSessions writes dirty sessions back with a version check. If the row
// moved underneath us a foreign effect (combat or trade against an offline
// window) landed first; the stored record wins and replaces the session
// copy, losing at most one debounce window of idle production.
func flushSessions() {
	stateLock.Lock()
	defer stateLock.Unlock()
	now := time.Now()
	for id, s := range sessions {
		if !s.Dirty {
			if now.Sub(s.LastSeen) > SessionIdleAfter {
				delete(sessions, id)
			}
			continue
		}
		err := store.UpdateState(id, s.State, s.Version)
		switch err.(type) {
		case nil:
			s.Version++
			s.Dirty = false
			// Evict once the record is safely down; production resumes
			// from LastUpdate on the next login.
			if now.Sub(s.LastSeen) > SessionIdleAfter {
				delete(sessions, id)
			}
		case *ConflictError:
			st, version, loadErr := store.GetState(id)
			if loadErr != nil {
				ErrorLog.Printf("flush reload %s: %v", id, loadErr)
				continue
			}
			InfoLog.Printf("flush conflict on %s: adopting stored v%d", id, version)
			s.State = st
			s.Version = version
			s.Dirty = false
		default:
			// Persistence hiccups are logged and retried on the next
			// debounce; gameplay continues against the in-memory state.
			ErrorLog.Printf("flush %s: %v", id, err)
		}
	}
}

// drainCreditOutbox retries queued cross-player credits until each lands or
// its recipient no longer exists.
func drainCreditOutbox() {
	queued, err := store.QueuedCredits()
	if err != nil {
		ErrorLog.Printf("outbox read: %v", err)
		return
	}
	for _, q := range queued {
		stateLock.Lock()
		err := applyToPlayer(q.PlayerID, func(st *GameState) error {
			if q.Credits > 0 {
				st.Credits += q.Credits
				st.Stats.TotalCreditsEarned += q.Credits
			}
			creditBasket(st, q.Resources)
			return nil
		})
		stateLock.Unlock()
		if _, gone := err.(*NotFoundError); err == nil || gone {
			if err != nil {
				InfoLog.Printf("outbox: dropping credit for deleted player %s", q.PlayerID)
			}
			if delErr := store.DeleteQueuedCredit(q.RowID); delErr != nil {
				ErrorLog.Printf("outbox delete %d: %v", q.RowID, delErr)
			}
		}
	}
}

func runGameLoops(stop <-chan struct{}) {
	production := time.NewTicker(ProductionInterval)
	marketTicker := time.NewTicker(MarketInterval)
	flush := time.NewTicker(FlushInterval)
	defer production.Stop()
	defer marketTicker.Stop()
	defer flush.Stop()
	for {
		select {
		case now := <-production.C:
			tickProduction(now)
		case <-marketTicker.C:
			tickMarket()
		case <-flush.C:
			flushSessions()
			drainCreditOutbox()
		case <-stop:
			flushSessions()
			drainCreditOutbox()
			return
		}
	}
}
