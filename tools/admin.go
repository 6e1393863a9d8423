package main

import (
	"bufio"
	"bytes"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pierrec/lz4/v4"
	"lukechampine.com/blake3"
	_ "modernc.org/sqlite"
)

// Operator console. Talks to the sqlite file directly, so the server should
// be stopped (or the player offline) before mutating a record.

var adminDBPath = "./data/nebula.db"

func runAdmin(args []string) {
	if path := os.Getenv("NEBULA_DB"); path != "" {
		adminDBPath = path
	}

	db, err := sql.Open("sqlite", adminDBPath)
	if err != nil {
		fmt.Printf("Cannot open %s: %v\n", adminDBPath, err)
		os.Exit(1)
	}
	defer db.Close()
	os.Chmod(adminDBPath, 0600)

	// CLI Argument Mode (Non-Interactive)
	if len(args) > 0 {
		handleAdminCLI(db, args)
		return
	}

	// Main Menu Loop (Interactive)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Println("\n========================================")
		fmt.Println("   NEBULA COMMAND OPERATOR CONSOLE")
		fmt.Println("========================================")
		fmt.Println("1. List Players")
		fmt.Println("2. Inspect Player State")
		fmt.Println("3. Clear Shield")
		fmt.Println("4. Delete Player")
		fmt.Println("5. Exit")
		fmt.Println("========================================")
		fmt.Print("Select Option: ")

		if !scanner.Scan() {
			break
		}
		choice := strings.TrimSpace(scanner.Text())

		switch choice {
		case "1":
			adminListPlayers(db)
		case "2":
			if id := promptID(scanner); id != "" {
				adminInspect(db, id)
			}
		case "3":
			if id := promptID(scanner); id != "" {
				adminClearShield(db, id)
			}
		case "4":
			if id := promptID(scanner); id != "" {
				fmt.Printf("Really delete %s? (yes/no): ", id)
				if scanner.Scan() && strings.TrimSpace(scanner.Text()) == "yes" {
					adminDeletePlayer(db, id)
				}
			}
		case "5":
			fmt.Println("Exiting.")
			return
		default:
			fmt.Println("Invalid option.")
		}
	}
}

func promptID(scanner *bufio.Scanner) string {
	fmt.Print("Player ID: ")
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

func handleAdminCLI(db *sql.DB, args []string) {
	switch args[0] {
	case "list":
		adminListPlayers(db)
	case "inspect":
		if len(args) < 2 {
			fmt.Println("Usage: admin inspect <player_id>")
			return
		}
		adminInspect(db, args[1])
	case "clear-shield":
		if len(args) < 2 {
			fmt.Println("Usage: admin clear-shield <player_id>")
			return
		}
		adminClearShield(db, args[1])
	case "delete":
		if len(args) < 2 {
			fmt.Println("Usage: admin delete <player_id>")
			return
		}
		adminDeletePlayer(db, args[1])
	default:
		fmt.Println("Commands: admin list | admin inspect <id> | admin clear-shield <id> | admin delete <id>")
	}
}

func adminListPlayers(db *sql.DB) {
	rows, err := db.Query("SELECT id, callsign, level, war_points, version, created FROM players ORDER BY war_points DESC")
	if err != nil {
		fmt.Printf("Query failed: %v\n", err)
		return
	}
	defer rows.Close()

	fmt.Printf("%-20s %-24s %6s %10s %4s\n", "ID", "CALLSIGN", "LEVEL", "WAR PTS", "VER")
	count := 0
	for rows.Next() {
		var id, callsign string
		var level, warPoints, version, created int64
		if err := rows.Scan(&id, &callsign, &level, &warPoints, &version, &created); err != nil {
			fmt.Printf("Scan failed: %v\n", err)
			return
		}
		fmt.Printf("%-20s %-24s %6d %10d %4d\n", id, callsign, level, warPoints, version)
		count++
	}
	fmt.Printf("Total: %d\n", count)
}

// adminInspect pretty-prints the decoded state blob.
func adminInspect(db *sql.DB, id string) {
	raw, err := loadBlob(db, id)
	if err != nil {
		fmt.Printf("Inspect failed: %v\n", err)
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		fmt.Printf("State blob is not valid JSON: %v\n", err)
		return
	}
	fmt.Println(pretty.String())
}

// adminClearShield zeroes profile.shield_until inside the blob and bumps the
// row version so a live session's stale write loses.
func adminClearShield(db *sql.DB, id string) {
	raw, err := loadBlob(db, id)
	if err != nil {
		fmt.Printf("Clear shield failed: %v\n", err)
		return
	}
	var state map[string]json.RawMessage
	if err := json.Unmarshal(raw, &state); err != nil {
		fmt.Printf("State blob is not valid JSON: %v\n", err)
		return
	}
	var profile map[string]interface{}
	if err := json.Unmarshal(state["profile"], &profile); err != nil {
		fmt.Printf("Profile unreadable: %v\n", err)
		return
	}
	delete(profile, "shield_until")
	patched, _ := json.Marshal(profile)
	state["profile"] = patched
	next, _ := json.Marshal(state)

	if err := storeBlob(db, id, next); err != nil {
		fmt.Printf("Write failed: %v\n", err)
		return
	}
	fmt.Printf("Shield cleared for %s.\n", id)
}

func adminDeletePlayer(db *sql.DB, id string) {
	res, err := db.Exec("DELETE FROM players WHERE id=?", id)
	if err != nil {
		fmt.Printf("Delete failed: %v\n", err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		fmt.Printf("No such player: %s\n", id)
		return
	}
	db.Exec("DELETE FROM trades WHERE sender_id=? OR receiver_id=?", id, id)
	db.Exec("DELETE FROM listings WHERE seller_id=?", id)
	db.Exec("DELETE FROM credit_outbox WHERE player_id=?", id)
	fmt.Printf("Player %s and their trades/listings removed.\n", id)
}

// --- Blob codec (mirrors the server's lz4+blake3 encoding) ---

func loadBlob(db *sql.DB, id string) ([]byte, error) {
	var blob []byte
	if err := db.QueryRow("SELECT state_blob FROM players WHERE id=?", id).Scan(&blob); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, lz4.NewReader(bytes.NewReader(blob))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func storeBlob(db *sql.DB, id string, raw []byte) error {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	zw.Write(raw)
	zw.Close()
	sum := blake3.Sum256(raw)

	res, err := db.Exec("UPDATE players SET state_blob=?, state_hash=?, version=version+1 WHERE id=?",
		buf.Bytes(), hex.EncodeToString(sum[:]), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no such player: %s", id)
	}
	return nil
}
