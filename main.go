package main

import (
	"net/http"
	"os"
	"time"
)

var serverStart = time.Now()

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func initConfig() {
	Config.Addr = envOr("NEBULA_ADDR", ":8080")
	Config.DBPath = envOr("NEBULA_DB", DefaultDBPath)
	Config.NarrationURL = os.Getenv("NEBULA_NARRATION_URL")
	Config.NarrationKey = os.Getenv("NEBULA_NARRATION_KEY")
}

func handleStatus(w http.ResponseWriter, r *http.Request) {
	stateLock.Lock()
	online := len(sessions)
	stateLock.Unlock()
	writeJSON(w, map[string]interface{}{
		"status":    "operational",
		"uptime_s":  int(time.Since(serverStart).Seconds()),
		"online":    online,
		"narration": narration != nil,
	})
}

func setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/register", handleRegister)
	mux.HandleFunc("/api/login", handleLogin)
	mux.HandleFunc("/api/state", handleState)
	mux.HandleFunc("/api/build", handleBuildShip)
	mux.HandleFunc("/api/upgrade", handleUpgrade)
	mux.HandleFunc("/api/market/sell", handleMarketSell)
	mux.HandleFunc("/api/market/buy", handleMarketBuy)
	mux.HandleFunc("/api/sector/capture", handleSectorCapture)
	mux.HandleFunc("/api/sector/deploy", handleSectorDeploy)
	mux.HandleFunc("/api/sector/recall", handleSectorRecall)
	mux.HandleFunc("/api/spy", handleSpy)
	mux.HandleFunc("/api/attack", handleAttack)
	mux.HandleFunc("/api/trade/create", handleTradeCreate)
	mux.HandleFunc("/api/trade/accept", handleTradeAccept)
	mux.HandleFunc("/api/trade/reject", handleTradeReject)
	mux.HandleFunc("/api/trades", handleTradeList)
	mux.HandleFunc("/api/market/list", handleListingCreate)
	mux.HandleFunc("/api/market/purchase", handleListingPurchase)
	mux.HandleFunc("/api/market/unlist", handleListingCancel)
	mux.HandleFunc("/api/market/listings", handleListings)
	mux.HandleFunc("/api/leaderboard", handleLeaderboard)
	mux.HandleFunc("/api/status", handleStatus)
}

func main() {
	setupLogging()
	initConfig()

	initStore()
	narration = newNarrationClient(Config.NarrationURL, Config.NarrationKey)
	if narration == nil {
		InfoLog.Println("Narration service not configured, using canned dispatches")
	}

	stop := make(chan struct{})
	loopDone := make(chan struct{})
	go func() {
		runGameLoops(stop)
		close(loopDone)
	}()

	mux := http.NewServeMux()
	setupRoutes(mux)

	srv := &http.Server{
		Addr:         Config.Addr,
		Handler:      middlewareSecurity(middlewareCORS(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	InfoLog.Printf("Nebula Command server listening on %s", Config.Addr)
	if err := srv.ListenAndServe(); err != nil {
		// Stop the loops and wait for their final flush before exiting
		close(stop)
		<-loopDone
		ErrorLog.Fatalf("server: %v", err)
	}
}
