package main

import (
	"database/sql"
	"encoding/json"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the durable gateway for player records, trade proposals and
// marketplace listings. Player state rows carry a version stamp; every write
// is a compare-and-swap so concurrent cross-player effects cannot silently
// clobber each other.
type Store struct {
	db *sql.DB
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS players (
	id TEXT PRIMARY KEY,
	password_hash TEXT,
	callsign TEXT,
	war_points INTEGER DEFAULT 0,
	level INTEGER DEFAULT 1,
	state_blob BLOB,
	state_hash TEXT,
	version INTEGER DEFAULT 1,
	created INTEGER
);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	sender_id TEXT,
	receiver_id TEXT,
	offer_json TEXT,
	request_json TEXT,
	status TEXT,
	created INTEGER
);

CREATE TABLE IF NOT EXISTS listings (
	id TEXT PRIMARY KEY,
	seller_id TEXT,
	resource TEXT,
	amount REAL,
	price REAL,
	created INTEGER
);

CREATE TABLE IF NOT EXISTS credit_outbox (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	player_id TEXT,
	payload TEXT,
	created INTEGER
);
`

func openStore(driver, dsn string) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, &ExternalServiceError{Service: "sqlite", Err: err}
	}
	if _, err := db.Exec(storeSchema); err != nil {
		return nil, &ExternalServiceError{Service: "sqlite", Err: err}
	}
	return &Store{db: db}, nil
}

func initStore() {
	os.MkdirAll("./data", 0755)
	var err error
	store, err = openStore("sqlite3", Config.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		panic(err)
	}
	store.db.Exec("PRAGMA journal_mode=WAL;")
}

// encodeState serializes to lz4-compressed JSON plus a blake3 checksum.
func encodeState(st *GameState) ([]byte, string, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, "", err
	}
	return compressLZ4(raw), hashBLAKE3(raw), nil
}

// --- Player Records ---

func (s *Store) CreatePlayer(id, passwordHash string, st *GameState) error {
	blob, sum, err := encodeState(st)
	if err != nil {
		return &ExternalServiceError{Service: "store", Err: err}
	}
	res, err := s.db.Exec(`INSERT OR IGNORE INTO players (id, password_hash, callsign, war_points, level, state_blob, state_hash, version, created)
		VALUES (?,?,?,?,?,?,?,1,?)`,
		id, passwordHash, st.Profile.Callsign, st.WarPoints, st.Level, blob, sum, time.Now().UnixMilli())
	if err != nil {
		return &ExternalServiceError{Service: "store", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ConflictError{What: "player id taken"}
	}
	return nil
}

func (s *Store) Credentials(id string) (string, error) {
	var hash string
	err := s.db.QueryRow("SELECT password_hash FROM players WHERE id=?", id).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", &NotFoundError{What: "player " + id}
	}
	if err != nil {
		return "", &ExternalServiceError{Service: "store", Err: err}
	}
	return hash, nil
}

// GetState loads and migrates a player's record, returning the version stamp
// needed for a later conditional update.
func (s *Store) GetState(id string) (*GameState, int64, error) {
	var blob []byte
	var version int64
	err := s.db.QueryRow("SELECT state_blob, version FROM players WHERE id=?", id).Scan(&blob, &version)
	if err == sql.ErrNoRows {
		return nil, 0, &NotFoundError{What: "player " + id}
	}
	if err != nil {
		return nil, 0, &ExternalServiceError{Service: "store", Err: err}
	}
	st, err := migrateState(decompressLZ4(blob), time.Now())
	if err != nil {
		return nil, 0, err
	}
	return st, version, nil
}

// UpdateState is the conditional write: it succeeds only if nobody has
// touched the row since expect was read.
func (s *Store) UpdateState(id string, st *GameState, expect int64) error {
	blob, sum, err := encodeState(st)
	if err != nil {
		return &ExternalServiceError{Service: "store", Err: err}
	}
	res, err := s.db.Exec(`UPDATE players SET state_blob=?, state_hash=?, callsign=?, war_points=?, level=?, version=version+1
		WHERE id=? AND version=?`,
		blob, sum, st.Profile.Callsign, st.WarPoints, st.Level, id, expect)
	if err != nil {
		return &ExternalServiceError{Service: "store", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		s.db.QueryRow("SELECT count(*) FROM players WHERE id=?", id).Scan(&exists)
		if exists == 0 {
			return &NotFoundError{What: "player " + id}
		}
		return &ConflictError{What: "player " + id + " changed underneath us"}
	}
	return nil
}

// Apply runs fn against a fresh copy of the record and writes it back
// conditionally, retrying a bounded number of times. This is the atomic path
// for every effect that touches a second player's record.
func (s *Store) Apply(id string, fn func(*GameState) error) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		st, version, err := s.GetState(id)
		if err != nil {
			return err
		}
		if err := fn(st); err != nil {
			return err
		}
		lastErr = s.UpdateState(id, st, version)
		if lastErr == nil {
			return nil
		}
		if _, ok := lastErr.(*ConflictError); !ok {
			return lastErr
		}
	}
	return lastErr
}

func (s *Store) TopN(n int) ([]LeaderboardRow, error) {
	rows, err := s.db.Query("SELECT id, callsign, war_points, level FROM players ORDER BY war_points DESC LIMIT ?", n)
	if err != nil {
		return nil, &ExternalServiceError{Service: "store", Err: err}
	}
	defer rows.Close()
	var out []LeaderboardRow
	for rows.Next() {
		var r LeaderboardRow
		rows.Scan(&r.ID, &r.Callsign, &r.WarPoints, &r.Level)
		out = append(out, r)
	}
	return out, nil
}

// --- Trade Proposals ---

func (s *Store) InsertTrade(p *TradeProposal) error {
	offer, _ := json.Marshal(p.Offer)
	request, _ := json.Marshal(p.Request)
	_, err := s.db.Exec(`INSERT INTO trades (id, sender_id, receiver_id, offer_json, request_json, status, created)
		VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.SenderID, p.ReceiverID, string(offer), string(request), p.Status, p.Created)
	if err != nil {
		return &ExternalServiceError{Service: "store", Err: err}
	}
	return nil
}

func (s *Store) GetTrade(id string) (*TradeProposal, error) {
	var p TradeProposal
	var offer, request string
	err := s.db.QueryRow("SELECT id, sender_id, receiver_id, offer_json, request_json, status, created FROM trades WHERE id=?", id).
		Scan(&p.ID, &p.SenderID, &p.ReceiverID, &offer, &request, &p.Status, &p.Created)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{What: "trade " + id}
	}
	if err != nil {
		return nil, &ExternalServiceError{Service: "store", Err: err}
	}
	json.Unmarshal([]byte(offer), &p.Offer)
	json.Unmarshal([]byte(request), &p.Request)
	return &p, nil
}

// CloseTrade moves a proposal out of pending exactly once. A second caller
// loses the race and gets a ConflictError.
func (s *Store) CloseTrade(id, status string) error {
	res, err := s.db.Exec("UPDATE trades SET status=? WHERE id=? AND status='pending'", status, id)
	if err != nil {
		return &ExternalServiceError{Service: "store", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		s.db.QueryRow("SELECT count(*) FROM trades WHERE id=?", id).Scan(&exists)
		if exists == 0 {
			return &NotFoundError{What: "trade " + id}
		}
		return &ConflictError{What: "trade " + id + " already closed"}
	}
	return nil
}

func (s *Store) TradesFor(playerID string) ([]*TradeProposal, error) {
	rows, err := s.db.Query(`SELECT id, sender_id, receiver_id, offer_json, request_json, status, created
		FROM trades WHERE sender_id=? OR receiver_id=? ORDER BY created DESC LIMIT 50`, playerID, playerID)
	if err != nil {
		return nil, &ExternalServiceError{Service: "store", Err: err}
	}
	defer rows.Close()
	var out []*TradeProposal
	for rows.Next() {
		var p TradeProposal
		var offer, request string
		rows.Scan(&p.ID, &p.SenderID, &p.ReceiverID, &offer, &request, &p.Status, &p.Created)
		json.Unmarshal([]byte(offer), &p.Offer)
		json.Unmarshal([]byte(request), &p.Request)
		out = append(out, &p)
	}
	return out, nil
}

// --- Marketplace Listings ---

func (s *Store) InsertListing(l *Listing) error {
	_, err := s.db.Exec("INSERT INTO listings (id, seller_id, resource, amount, price, created) VALUES (?,?,?,?,?,?)",
		l.ID, l.SellerID, l.Resource, l.Amount, l.Price, l.Created)
	if err != nil {
		return &ExternalServiceError{Service: "store", Err: err}
	}
	return nil
}

func (s *Store) GetListing(id string) (*Listing, error) {
	var l Listing
	err := s.db.QueryRow("SELECT id, seller_id, resource, amount, price, created FROM listings WHERE id=?", id).
		Scan(&l.ID, &l.SellerID, &l.Resource, &l.Amount, &l.Price, &l.Created)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{What: "listing " + id}
	}
	if err != nil {
		return nil, &ExternalServiceError{Service: "store", Err: err}
	}
	return &l, nil
}

// RemoveListing deletes exactly once; the loser of a purchase race gets a
// NotFoundError.
func (s *Store) RemoveListing(id string) error {
	res, err := s.db.Exec("DELETE FROM listings WHERE id=?", id)
	if err != nil {
		return &ExternalServiceError{Service: "store", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{What: "listing " + id}
	}
	return nil
}

func (s *Store) Listings() ([]*Listing, error) {
	rows, err := s.db.Query("SELECT id, seller_id, resource, amount, price, created FROM listings ORDER BY created DESC LIMIT 100")
	if err != nil {
		return nil, &ExternalServiceError{Service: "store", Err: err}
	}
	defer rows.Close()
	var out []*Listing
	for rows.Next() {
		var l Listing
		rows.Scan(&l.ID, &l.SellerID, &l.Resource, &l.Amount, &l.Price, &l.Created)
		out = append(out, &l)
	}
	return out, nil
}

// --- Credit Outbox ---

// QueuedCredit is value owed to a player whose immediate credit failed. The
// row survives restarts and is retried until it lands or the player is gone.
type QueuedCredit struct {
	RowID     int64              `json:"-"`
	PlayerID  string             `json:"-"`
	Credits   float64            `json:"credits,omitempty"`
	Resources map[string]float64 `json:"resources,omitempty"`
}

func (s *Store) EnqueueCredit(playerID string, credits float64, resources map[string]float64) error {
	payload, err := json.Marshal(QueuedCredit{Credits: credits, Resources: resources})
	if err != nil {
		return &ExternalServiceError{Service: "store", Err: err}
	}
	if _, err := s.db.Exec("INSERT INTO credit_outbox (player_id, payload, created) VALUES (?,?,?)",
		playerID, string(payload), time.Now().UnixMilli()); err != nil {
		return &ExternalServiceError{Service: "store", Err: err}
	}
	return nil
}

func (s *Store) QueuedCredits() ([]QueuedCredit, error) {
	rows, err := s.db.Query("SELECT id, player_id, payload FROM credit_outbox ORDER BY id LIMIT 100")
	if err != nil {
		return nil, &ExternalServiceError{Service: "store", Err: err}
	}
	defer rows.Close()
	var out []QueuedCredit
	for rows.Next() {
		var rowID int64
		var playerID, payload string
		if err := rows.Scan(&rowID, &playerID, &payload); err != nil {
			return nil, &ExternalServiceError{Service: "store", Err: err}
		}
		var q QueuedCredit
		if err := json.Unmarshal([]byte(payload), &q); err != nil {
			return nil, &ExternalServiceError{Service: "store", Err: err}
		}
		q.RowID = rowID
		q.PlayerID = playerID
		out = append(out, q)
	}
	return out, nil
}

func (s *Store) DeleteQueuedCredit(rowID int64) error {
	if _, err := s.db.Exec("DELETE FROM credit_outbox WHERE id=?", rowID); err != nil {
		return &ExternalServiceError{Service: "store", Err: err}
	}
	return nil
}
