package main

import (
	"time"

	"github.com/google/uuid"
)

// --- Trade Escrow ---
//
// Proposals escrow the sender's offer at creation. The proposal row in the
// store is the escrow ledger; a terminal transition happens exactly once via
// CloseTrade, and the resources move exactly once with it.

func validateBasket(basket map[string]float64) error {
	if len(basket) == 0 {
		return validationf("empty resource basket")
	}
	for res, amount := range basket {
		if !tradable(res) {
			return validationf("resource %q cannot be traded", res)
		}
		if amount <= 0 {
			return validationf("amount for %s must be positive", res)
		}
	}
	return nil
}

func holdsBasket(st *GameState, basket map[string]float64) bool {
	for res, amount := range basket {
		if st.Resources.Get(res) < amount {
			return false
		}
	}
	return true
}

func debitBasket(st *GameState, basket map[string]float64) {
	for res, amount := range basket {
		st.Resources.Add(res, -amount)
	}
}

func creditBasket(st *GameState, basket map[string]float64) {
	cap := storageCap(st.Upgrades.StorageLevel)
	for res, amount := range basket {
		room := cap - st.Resources.Get(res)
		if amount > room {
			amount = room
		}
		if amount > 0 {
			st.Resources.Add(res, amount)
		}
	}
}

// creditOrQueue pushes settled value to another player. If the immediate
// path fails the value goes to the durable outbox and is retried on the
// flush timer, so a settlement can never silently drop it.
func creditOrQueue(source, playerID string, credits float64, resources map[string]float64) {
	err := applyToPlayer(playerID, func(st *GameState) error {
		if credits > 0 {
			st.Credits += credits
			st.Stats.TotalCreditsEarned += credits
		}
		creditBasket(st, resources)
		return nil
	})
	if err == nil {
		return
	}
	ErrorLog.Printf("%s: crediting %s failed, queuing: %v", source, playerID, err)
	if qErr := store.EnqueueCredit(playerID, credits, resources); qErr != nil {
		ErrorLog.Printf("%s: outbox enqueue for %s failed: %v", source, playerID, qErr)
	}
}

// createTrade debits the sender and records the proposal. The debit and the
// insert happen under the state lock; if the insert fails the debit is
// rolled back, so no partial escrow is ever observable.
func createTrade(sender *Session, receiverID string, offer, request map[string]float64) (*TradeProposal, error) {
	if receiverID == "" || receiverID == sender.PlayerID {
		return nil, validationf("invalid trade partner")
	}
	if err := validateBasket(offer); err != nil {
		return nil, err
	}
	if err := validateBasket(request); err != nil {
		return nil, err
	}
	if !holdsBasket(sender.State, offer) {
		return nil, validationf("insufficient resources to escrow the offer")
	}
	if _, err := store.Credentials(receiverID); err != nil {
		return nil, err
	}

	p := &TradeProposal{
		ID:         uuid.NewString(),
		SenderID:   sender.PlayerID,
		ReceiverID: receiverID,
		Offer:      offer,
		Request:    request,
		Status:     "pending",
		Created:    time.Now().UnixMilli(),
	}
	debitBasket(sender.State, offer)
	if err := store.InsertTrade(p); err != nil {
		creditBasket(sender.State, offer)
		return nil, err
	}
	sender.Dirty = true
	return p, nil
}

// acceptTrade: receiver pays the request, receives the escrowed offer, and
// the sender is credited the request through the atomic cross-player path.
func acceptTrade(receiver *Session, tradeID string) (*TradeProposal, error) {
	p, err := store.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if p.ReceiverID != receiver.PlayerID {
		return nil, validationf("only the receiver may accept a trade")
	}
	if p.Status != "pending" {
		return nil, validationf("trade is already %s", p.Status)
	}
	if !holdsBasket(receiver.State, p.Request) {
		return nil, validationf("insufficient resources to meet the request")
	}

	// Winning this transition is what licenses moving the goods.
	if err := store.CloseTrade(tradeID, "accepted"); err != nil {
		return nil, err
	}
	debitBasket(receiver.State, p.Request)
	creditBasket(receiver.State, p.Offer)
	receiver.Dirty = true

	creditOrQueue("trade "+tradeID, p.SenderID, 0, p.Request)
	p.Status = "accepted"
	return p, nil
}

// rejectTrade refunds the escrowed offer to the sender. The receiver
// rejects; the sender cancels. Either way the refund happens exactly once,
// gated by the same terminal transition.
func rejectTrade(actor *Session, tradeID string) (*TradeProposal, error) {
	p, err := store.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if actor.PlayerID != p.ReceiverID && actor.PlayerID != p.SenderID {
		return nil, validationf("trade %s does not involve you", tradeID)
	}
	if p.Status != "pending" {
		return nil, validationf("trade is already %s", p.Status)
	}
	if err := store.CloseTrade(tradeID, "rejected"); err != nil {
		return nil, err
	}
	creditOrQueue("trade "+tradeID, p.SenderID, 0, p.Offer)
	p.Status = "rejected"
	return p, nil
}

// --- Open Marketplace ---
//
// Fire-and-forget listings: the amount is escrowed at listing time and the
// row's deletion is the exactly-once settlement gate.

func createListing(seller *Session, resource string, amount, price float64) (*Listing, error) {
	if !tradable(resource) {
		return nil, validationf("resource %q cannot be listed", resource)
	}
	if amount <= 0 || price <= 0 {
		return nil, validationf("listing amount and price must be positive")
	}
	if seller.State.Resources.Get(resource) < amount {
		return nil, validationf("insufficient %s to list", resource)
	}
	l := &Listing{
		ID:       uuid.NewString(),
		SellerID: seller.PlayerID,
		Resource: resource,
		Amount:   amount,
		Price:    price,
		Created:  time.Now().UnixMilli(),
	}
	seller.State.Resources.Add(resource, -amount)
	if err := store.InsertListing(l); err != nil {
		seller.State.Resources.Add(resource, amount)
		return nil, err
	}
	seller.Dirty = true
	return l, nil
}

func purchaseListing(buyer *Session, listingID string) (*Listing, error) {
	l, err := store.GetListing(listingID)
	if err != nil {
		return nil, err
	}
	if l.SellerID == buyer.PlayerID {
		return nil, validationf("cannot purchase your own listing")
	}
	if buyer.State.Credits < l.Price {
		return nil, validationf("need %.0f credits, have %.0f", l.Price, buyer.State.Credits)
	}
	// Deleting the row settles the listing; a racing buyer loses here.
	if err := store.RemoveListing(listingID); err != nil {
		return nil, err
	}
	buyer.State.Credits -= l.Price
	creditBasket(buyer.State, map[string]float64{l.Resource: l.Amount})
	buyer.Dirty = true

	creditOrQueue("listing "+listingID, l.SellerID, l.Price, nil)
	return l, nil
}

func cancelListing(seller *Session, listingID string) (*Listing, error) {
	l, err := store.GetListing(listingID)
	if err != nil {
		return nil, err
	}
	if l.SellerID != seller.PlayerID {
		return nil, validationf("listing %s is not yours", listingID)
	}
	if err := store.RemoveListing(listingID); err != nil {
		return nil, err
	}
	creditBasket(seller.State, map[string]float64{l.Resource: l.Amount})
	seller.Dirty = true
	return l, nil
}
