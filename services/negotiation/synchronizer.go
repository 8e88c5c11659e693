package negotiation

import (
	"context"
	"time"

	"tripdeal/models"
	"tripdeal/utils"

	"go.uber.org/zap"
)

// SyncCallbacks receive session transitions observed by a Synchronizer. Each
// callback fires at most once per observed transition.
type SyncCallbacks struct {
	// OnTransition fires once per observed state change.
	OnTransition func(from, to models.SessionState, snap models.NegotiationSession)
	// OnReset fires when a decision window lapsed and the session fell back
	// to input; the computed counter was discarded.
	OnReset func(snap models.NegotiationSession)
	// OnExpired fires once when the session reaches its expired terminal.
	OnExpired func(snap models.NegotiationSession)
	// OnBooked fires once with the minted order reference and final price.
	OnBooked func(orderRef string, finalPrice float64)
}

// SnapshotFunc fetches the current session snapshot.
type SnapshotFunc func(ctx context.Context, sessionID string) (*models.NegotiationSession, error)

// Synchronizer polls a session and dispatches transition callbacks, stopping
// automatically once the session reaches a terminal state. Transitions are
// tracked via the last seen state, not by diffing snapshots.
type Synchronizer struct {
	Snapshot  SnapshotFunc
	Interval  time.Duration
	Callbacks SyncCallbacks
}

// Poll observes the session until terminal state, cancellation, or a lookup
// failure. It blocks; run it on its own goroutine when needed.
func (s *Synchronizer) Poll(ctx context.Context, sessionID string) error {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastState models.SessionState
	var lastResets int
	first := true

	for {
		snap, err := s.Snapshot(ctx, sessionID)
		if err != nil {
			return err
		}

		if first {
			lastState = snap.State
			lastResets = snap.Resets
			first = false
		} else {
			if snap.State != lastState {
				if s.Callbacks.OnTransition != nil {
					s.Callbacks.OnTransition(lastState, snap.State, *snap)
				}
				lastState = snap.State
			}
			if snap.Resets > lastResets {
				if s.Callbacks.OnReset != nil {
					s.Callbacks.OnReset(*snap)
				}
				lastResets = snap.Resets
			}
		}

		if snap.State.Terminal() {
			switch snap.State {
			case models.StateExpired:
				if s.Callbacks.OnExpired != nil {
					s.Callbacks.OnExpired(*snap)
				}
			case models.StateBooked:
				if s.Callbacks.OnBooked != nil {
					s.Callbacks.OnBooked(snap.OrderRef, finalPriceOf(snap))
				}
			}
			utils.GetLogger().Debug("status poll stopped on terminal state",
				zap.String("sessionId", sessionID), zap.String("state", string(snap.State)))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// finalPriceOf is the price the booking settles at: the counter when one was
// computed, otherwise the user's accepted offer.
func finalPriceOf(snap *models.NegotiationSession) float64 {
	if snap.CounterOffer != nil {
		return *snap.CounterOffer
	}
	return snap.UserOffer
}
