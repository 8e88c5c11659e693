package models

import "time"

// Module identifies the storefront vertical a negotiation belongs to.
type Module string

const (
	ModuleFlights     Module = "flights"
	ModuleHotels      Module = "hotels"
	ModuleSightseeing Module = "sightseeing"
	ModuleTransfers   Module = "transfers"
)

// Valid reports whether m is one of the known storefront modules.
func (m Module) Valid() bool {
	switch m {
	case ModuleFlights, ModuleHotels, ModuleSightseeing, ModuleTransfers:
		return true
	}
	return false
}

// SessionState is the lifecycle state of a negotiation session.
type SessionState string

const (
	StateNegotiating SessionState = "negotiating"
	StateDecision    SessionState = "decision"
	StateHolding     SessionState = "holding"
	StateExpired     SessionState = "expired"
	StateBooked      SessionState = "booked"
)

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	return s == StateExpired || s == StateBooked
}

// MaxAttempts caps how many offers a user may place within one session.
const MaxAttempts = 3

// NegotiationSession holds the full context of one price negotiation between
// a user and the automated counterparty. It is mutated by the session state
// machine only; everything else sees read-only snapshots.
type NegotiationSession struct {
	SessionID  string       `json:"sessionId"`
	UserID     string       `json:"userId,omitempty"`
	Module     Module       `json:"module"`
	ProductRef string       `json:"productRef"`
	BasePrice  float64      `json:"basePrice"`
	UserOffer  float64      `json:"userOffer"`
	// CounterOffer stays nil until the counter-offer generator has produced a
	// price for the current attempt.
	CounterOffer *float64     `json:"counterOffer,omitempty"`
	Attempt      int          `json:"attempt"`
	State        SessionState `json:"state"`

	DecisionExpiresAt *time.Time `json:"decisionExpiresAt,omitempty"`
	HoldExpiresAt     *time.Time `json:"holdExpiresAt,omitempty"`
	HoldID            string     `json:"holdId,omitempty"`
	OrderRef          string     `json:"orderRef,omitempty"`

	// Resets counts decision windows that lapsed without an accept. The
	// discarded counter is not otherwise observable, so analytics reads this.
	Resets int `json:"resets,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CountdownSeconds derives a display countdown from a wall-clock deadline.
// Countdowns are always recomputed from the deadline, never decremented, so
// they stay correct across suspended or delayed ticks.
func CountdownSeconds(deadline time.Time, now time.Time) int {
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Second)
}

// Speaker attributes a chat beat to a side of the negotiation.
type Speaker string

const (
	SpeakerAgent    Speaker = "agent"
	SpeakerSupplier Speaker = "supplier"
	SpeakerSystem   Speaker = "system"
)

// ChatBeat is one scripted turn of the negotiation chat. Beats are ephemeral:
// built per session run and discarded on reset or close.
type ChatBeat struct {
	ID       string  `json:"id"`
	Speaker  Speaker `json:"speaker"`
	TypingMs int     `json:"typingMs"`
	RevealMs int     `json:"revealMs"`
	Text     string  `json:"text"`
}
