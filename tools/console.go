package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
)

var ServerURL = "http://localhost:8080"
var CurrentPlayer string

type LoginResponse struct {
	Status   string `json:"status"`
	PlayerID string `json:"player_id"`
	Level    int    `json:"level"`
}

type StatusResponse struct {
	Status    string `json:"status"`
	UptimeS   int    `json:"uptime_s"`
	Online    int    `json:"online"`
	Narration bool   `json:"narration"`
}

func main() {
	// Operator mode works straight against the database file
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		runAdmin(os.Args[2:])
		return
	}

	if url := os.Getenv("NEBULA_SERVER"); url != "" {
		ServerURL = url
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Println("Nebula Command Console v1.0")
	fmt.Printf("Target Server: %s\n", ServerURL)

	// --- Login Loop ---
	// We stay in this loop until we get a successful auth
	for {
		if !loginLoop(reader) {
			// User chose to exit during login
			return
		}

		// --- Main Command Loop ---
		fmt.Println("\n--- COMMAND LINK ESTABLISHED ---")
		fmt.Printf("Welcome, Commander %s.\n", CurrentPlayer)
		fmt.Println("Commands: status, state, build, upgrade, sell, buy, capture, deploy, recall, spy, attack, top, help, logout, quit")

		logout := false
		for !logout {
			fmt.Printf("[%s]> ", CurrentPlayer)
			text, _ := reader.ReadString('\n')
			text = strings.TrimSpace(text)
			parts := strings.Fields(text)

			if len(parts) == 0 {
				continue
			}

			cmd := parts[0]

			switch cmd {
			case "status":
				doStatus()
			case "state":
				doPost("/api/state", map[string]interface{}{})
			case "build":
				if len(parts) < 2 {
					fmt.Println("Usage: build <ship_type> [amount]")
					continue
				}
				amt := 1
				if len(parts) > 2 {
					amt, _ = strconv.Atoi(parts[2])
				}
				doPost("/api/build", map[string]interface{}{"ship_type": parts[1], "amount": amt})
			case "upgrade":
				if len(parts) < 2 {
					fmt.Println("Usage: upgrade <auto_miners|plasma_extractors|crystal_refineries|research_hubs|storage_level|trade_license>")
					continue
				}
				doPost("/api/upgrade", map[string]interface{}{"upgrade": parts[1]})
			case "sell":
				if len(parts) < 2 {
					fmt.Println("Usage: sell <iron|plasma|crystal>")
					continue
				}
				doPost("/api/market/sell", map[string]interface{}{"resource": parts[1]})
			case "buy":
				if len(parts) < 2 {
					fmt.Println("Usage: buy <iron|plasma|crystal>")
					continue
				}
				doPost("/api/market/buy", map[string]interface{}{"resource": parts[1]})
			case "capture":
				if len(parts) < 2 {
					fmt.Println("Usage: capture <sector_id>")
					continue
				}
				doPost("/api/sector/capture", map[string]interface{}{"sector_id": parts[1]})
			case "deploy":
				if len(parts) < 4 {
					fmt.Println("Usage: deploy <sector_id> <ship_type> <amount>")
					continue
				}
				amt, _ := strconv.Atoi(parts[3])
				doPost("/api/sector/deploy", map[string]interface{}{"sector_id": parts[1], "ship_type": parts[2], "amount": amt})
			case "recall":
				if len(parts) < 4 {
					fmt.Println("Usage: recall <sector_id> <ship_type> <amount>")
					continue
				}
				amt, _ := strconv.Atoi(parts[3])
				doPost("/api/sector/recall", map[string]interface{}{"sector_id": parts[1], "ship_type": parts[2], "amount": amt})
			case "spy":
				if len(parts) < 2 {
					fmt.Println("Usage: spy <target_id>")
					continue
				}
				doPost("/api/spy", map[string]interface{}{"target_id": parts[1]})
			case "attack":
				if len(parts) < 2 {
					fmt.Println("Usage: attack <target_id>")
					continue
				}
				doPost("/api/attack", map[string]interface{}{"target_id": parts[1]})
			case "top":
				doGet("/api/leaderboard")
			case "help":
				fmt.Println("Commands: status, state, build, upgrade, sell, buy, capture, deploy, recall, spy, attack, top, logout, quit")
			case "logout":
				CurrentPlayer = ""
				logout = true
			case "quit", "exit":
				return
			default:
				fmt.Println("Unknown command. Type 'help'.")
			}
		}
	}
}

func loginLoop(reader *bufio.Reader) bool {
	for {
		fmt.Println("\n--- AUTHENTICATION REQUIRED ---")
		fmt.Print("Player ID: ")
		id, _ := reader.ReadString('\n')
		id = strings.TrimSpace(id)

		if id == "quit" || id == "exit" {
			return false
		}

		fmt.Print("Password: ")
		pass, _ := reader.ReadString('\n')
		pass = strings.TrimSpace(pass)

		if id == "" || pass == "" {
			continue
		}

		fmt.Print("Connecting... ")
		if doLogin(id, pass) {
			CurrentPlayer = id
			return true
		} else {
			fmt.Println("Login Failed: Invalid credentials.")
			fmt.Println("Try again or type 'quit' to exit.")
		}
	}
}

func doStatus() {
	resp, err := http.Get(ServerURL + "/api/status")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var s StatusResponse
	json.Unmarshal(body, &s)

	fmt.Printf("Status: %s | Uptime: %ds | Online: %d | Narration: %v\n", s.Status, s.UptimeS, s.Online, s.Narration)
}

func doLogin(id, pass string) bool {
	payload := map[string]string{"PlayerID": id, "Password": pass}
	data, _ := json.Marshal(payload)

	resp, err := http.Post(ServerURL+"/api/login", "application/json", bytes.NewBuffer(data))
	if err != nil {
		fmt.Printf("Connection Error: %v\n", err)
		return false
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == 404 {
		// No such commander yet, enlist them
		fmt.Print("unknown commander, registering... ")
		reg, err := http.Post(ServerURL+"/api/register", "application/json", bytes.NewBuffer(data))
		if err != nil {
			fmt.Printf("Connection Error: %v\n", err)
			return false
		}
		defer reg.Body.Close()
		if reg.StatusCode != 200 {
			return false
		}
		return doLogin(id, pass)
	}
	if resp.StatusCode != 200 {
		return false
	}

	var r LoginResponse
	if err := json.Unmarshal(body, &r); err != nil {
		fmt.Printf("Protocol Error: %v\n", err)
		return false
	}

	fmt.Printf("Success! Commander %s, Level %d\n", r.PlayerID, r.Level)
	return true
}

func doPost(path string, payload map[string]interface{}) {
	data, _ := json.Marshal(payload)

	req, err := http.NewRequest("POST", ServerURL+path, bytes.NewBuffer(data))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Player-ID", CurrentPlayer)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("Response: %s\n", string(body))
}

func doGet(path string) {
	resp, err := http.Get(ServerURL + path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("Response: %s\n", string(body))
}
