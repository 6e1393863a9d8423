package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const narrationFallback = "The fleets disengaged. Battle telemetry was lost in subspace static."

// NarrationClient generates flavor text for battle reports via an external
// endpoint. Strictly best-effort: a short timeout bounds the call and every
// failure degrades to the fixed fallback line.
type NarrationClient struct {
	url    string
	key    string
	client *http.Client
}

func newNarrationClient(url, key string) *NarrationClient {
	if url == "" {
		return nil
	}
	return &NarrationClient{
		url:    url,
		key:    key,
		client: &http.Client{Timeout: 3 * time.Second},
	}
}

func (n *NarrationClient) Generate(prompt string) (string, error) {
	body, _ := json.Marshal(map[string]string{"prompt": prompt})
	req, err := http.NewRequest("POST", n.url, bytes.NewBuffer(body))
	if err != nil {
		return "", &ExternalServiceError{Service: "narration", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if n.key != "" {
		req.Header.Set("Authorization", "Bearer "+n.key)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return "", &ExternalServiceError{Service: "narration", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return "", &ExternalServiceError{Service: "narration", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Text == "" {
		return "", &ExternalServiceError{Service: "narration", Err: fmt.Errorf("empty response")}
	}
	return out.Text, nil
}

// narrateBattle runs fire-and-forget after combat has resolved: it fetches a
// narrative and patches the already-recorded report under the state lock.
// The report keeps its fallback text if anything goes wrong.
func narrateBattle(attackerID string, rep *BattleReport, o *battleOutcome) {
	if narration == nil {
		return
	}
	outcome := "DEFEAT"
	if rep.Won {
		outcome = "VICTORY"
	}
	prompt := fmt.Sprintf("%s vs %s. Fleet power %d against %d. Outcome: %s. Write a short military dispatch.",
		rep.AttackerCallsign, rep.DefenderCallsign, o.attackerPower, o.defenderPower, outcome)

	text, err := narration.Generate(prompt)
	if err != nil {
		ErrorLog.Printf("narration for report %s: %v", rep.ID, err)
		return
	}

	stateLock.Lock()
	defer stateLock.Unlock()
	s, ok := sessions[attackerID]
	if !ok {
		return
	}
	for i := range s.State.BattleHistory {
		if s.State.BattleHistory[i].ID == rep.ID {
			s.State.BattleHistory[i].Narrative = text
			s.Dirty = true
			return
		}
	}
}
