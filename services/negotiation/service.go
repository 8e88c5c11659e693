package negotiation

import (
	"context"
	"fmt"
	"time"

	"tripdeal/models"
	"tripdeal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StartSession validates the offer, resolves guardrails, creates the session,
// and launches the first negotiation run. Invalid offers are rejected before
// any state is created.
func (svc *DefaultSessionService) StartSession(ctx context.Context, input StartInput) (*SessionView, error) {
	if err := validateOffer(input.BasePrice, input.UserOffer); err != nil {
		return nil, err
	}
	if !input.Module.Valid() {
		return nil, fmt.Errorf("unknown module %q", input.Module)
	}

	ttlBucket := models.TTLBucketFor(input.EventDate, time.Now())
	routeBucket := input.RouteBucket
	if routeBucket == "" {
		routeBucket = models.RouteBucketAny
	}
	profile := svc.Guardrails.Resolve(input.Module, input.SupplierID, routeBucket, ttlBucket)

	now := time.Now()
	s := &liveSession{
		svc: svc,
		snap: models.NegotiationSession{
			SessionID:  uuid.New().String(),
			UserID:     input.UserID,
			Module:     input.Module,
			ProductRef: input.ProductRef,
			BasePrice:  input.BasePrice,
			UserOffer:  input.UserOffer,
			Attempt:    1,
			State:      models.StateNegotiating,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		profile:     profile,
		rng:         svc.newRand(),
		usedKeys:    make(map[string]struct{}),
		userRecent:  svc.loadRecentKeys(ctx, input.UserID),
		supplierID:  input.SupplierID,
		routeBucket: routeBucket,
		routeInfo:   input.RouteInfo,
		eventDate:   input.EventDate,
	}

	svc.mu.Lock()
	if svc.live == nil {
		svc.live = make(map[string]*liveSession)
	}
	svc.live[s.snap.SessionID] = s
	svc.mu.Unlock()

	s.mu.Lock()
	s.beginRun()
	view := s.viewLocked()
	s.mu.Unlock()

	svc.mirror(view.Session)
	utils.GetLogger().Info("negotiation session started",
		zap.String("sessionId", view.Session.SessionID),
		zap.String("module", string(input.Module)),
		zap.Float64("basePrice", input.BasePrice),
		zap.Float64("userOffer", input.UserOffer))
	return view, nil
}

// PlaceOffer restarts negotiation within an existing session with a fresh
// offer. The attempt counter increments; exceeding the cap disables retry.
func (svc *DefaultSessionService) PlaceOffer(ctx context.Context, sessionID string, userOffer float64) (*SessionView, error) {
	s, err := svc.liveSessionByID(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.snap.State.Terminal() {
		return nil, &IllegalTransitionError{Op: "offer", State: string(s.snap.State)}
	}
	if s.snap.State != models.StateNegotiating && s.snap.State != models.StateDecision {
		return nil, &IllegalTransitionError{Op: "offer", State: string(s.snap.State)}
	}
	if s.snap.Attempt >= models.MaxAttempts {
		return nil, &IllegalTransitionError{Op: "offer", State: "attempt cap reached"}
	}
	if err := validateOffer(s.snap.BasePrice, userOffer); err != nil {
		return nil, err
	}

	s.stopTimersLocked()
	if s.runCancel != nil {
		s.runCancel()
	}
	s.snap.Attempt++
	s.snap.UserOffer = userOffer
	s.snap.State = models.StateNegotiating
	s.snap.CounterOffer = nil
	s.snap.DecisionExpiresAt = nil
	s.snap.UpdatedAt = time.Now()

	s.beginRun()
	view := s.viewLocked()
	svc.mirror(view.Session)

	utils.GetLogger().Info("negotiation retry",
		zap.String("sessionId", sessionID),
		zap.Int("attempt", view.Session.Attempt),
		zap.Float64("userOffer", userOffer))
	return view, nil
}

// Accept locks in the counter-offer. Valid only inside the decision window;
// it transitions the session to holding and arms the hold timer. A failed
// remote accept degrades to a locally minted hold.
func (svc *DefaultSessionService) Accept(ctx context.Context, sessionID string) (*SessionView, error) {
	s, err := svc.liveSessionByID(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed || s.snap.State != models.StateDecision {
		state := string(s.snap.State)
		s.mu.Unlock()
		return nil, &IllegalTransitionError{Op: "accept", State: state}
	}
	// The window is a wall-clock deadline; a late timer never extends it.
	if s.snap.DecisionExpiresAt != nil && !time.Now().Before(*s.snap.DecisionExpiresAt) {
		s.mu.Unlock()
		return nil, &IllegalTransitionError{Op: "accept", State: "decision window elapsed"}
	}

	// Claim the transition before the remote call so the expiry timer sees a
	// settled state. Until the hold returns, live reads may observe holding
	// with the hold fields still empty; the snapshot mirror only runs after
	// they are set.
	s.stopTimersLocked()
	s.snap.State = models.StateHolding
	s.snap.DecisionExpiresAt = nil
	price := *s.snap.CounterOffer
	s.mu.Unlock()

	hold := svc.Supplier.RequestAccept(ctx, sessionID, price, svc.holdWindow())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, &IllegalTransitionError{Op: "accept", State: "closed"}
	}
	s.snap.HoldID = hold.HoldID
	s.snap.HoldExpiresAt = &hold.ExpiresAt
	s.snap.UpdatedAt = time.Now()
	s.armHoldTimer(hold.ExpiresAt)
	view := s.viewLocked()
	s.mu.Unlock()

	svc.mirror(view.Session)
	utils.GetLogger().Info("counter-offer accepted, hold placed",
		zap.String("sessionId", sessionID),
		zap.String("holdId", hold.HoldID),
		zap.Bool("fallbackHold", hold.Fallback))
	return view, nil
}

// Confirm finalizes the booking ahead of hold expiry.
func (svc *DefaultSessionService) Confirm(ctx context.Context, sessionID string) (*SessionView, error) {
	s, err := svc.liveSessionByID(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.snap.State != models.StateHolding {
		return nil, &IllegalTransitionError{Op: "confirm", State: string(s.snap.State)}
	}
	s.bookLocked()
	return s.viewLocked(), nil
}

// CloseSession tears a session down from any non-terminal state: timers
// cleared, choreography cancelled, no persisted records mutated. Idempotent;
// closing an unknown or already-closed session is a no-op.
func (svc *DefaultSessionService) CloseSession(ctx context.Context, sessionID string) error {
	svc.mu.Lock()
	s, ok := svc.live[sessionID]
	if ok {
		delete(svc.live, sessionID)
	}
	svc.mu.Unlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.stopTimersLocked()
	if s.runCancel != nil {
		s.runCancel()
	}
	s.closed = true

	utils.GetLogger().Info("negotiation session closed",
		zap.String("sessionId", sessionID),
		zap.String("state", string(s.snap.State)))
	return nil
}

// GetSession returns the live view, falling back to the mirrored snapshot
// for recently terminal sessions.
func (svc *DefaultSessionService) GetSession(ctx context.Context, sessionID string) (*SessionView, error) {
	svc.mu.RLock()
	s, ok := svc.live[sessionID]
	svc.mu.RUnlock()
	if ok {
		s.mu.Lock()
		view := s.viewLocked()
		s.mu.Unlock()
		return view, nil
	}

	if svc.Snapshots != nil {
		snap, err := svc.Snapshots.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			return &SessionView{Session: *snap}, nil
		}
	}
	return nil, &SessionNotFoundError{SessionID: sessionID}
}

// Watch polls the session and dispatches transition callbacks until it goes
// terminal or ctx is cancelled.
func (svc *DefaultSessionService) Watch(ctx context.Context, sessionID string, interval time.Duration, callbacks SyncCallbacks) error {
	watcher := &Synchronizer{
		Snapshot: func(ctx context.Context, id string) (*models.NegotiationSession, error) {
			view, err := svc.GetSession(ctx, id)
			if err != nil {
				return nil, err
			}
			return &view.Session, nil
		},
		Interval:  interval,
		Callbacks: callbacks,
	}
	return watcher.Poll(ctx, sessionID)
}

func (svc *DefaultSessionService) liveSessionByID(sessionID string) (*liveSession, error) {
	svc.mu.RLock()
	s, ok := svc.live[sessionID]
	svc.mu.RUnlock()
	if !ok {
		return nil, &SessionNotFoundError{SessionID: sessionID}
	}
	return s, nil
}

func (svc *DefaultSessionService) dropLive(sessionID string) {
	svc.mu.Lock()
	delete(svc.live, sessionID)
	svc.mu.Unlock()
}

// mirror writes the snapshot out for status reads. Mirroring is best effort;
// a failed write never blocks a transition.
func (svc *DefaultSessionService) mirror(snap models.NegotiationSession) {
	if svc.Snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Snapshots.Save(ctx, snap); err != nil {
		utils.GetLogger().Warn("failed to mirror session snapshot",
			zap.String("sessionId", snap.SessionID), zap.Error(err))
	}
}

// loadRecentKeys reads the user's cross-session dialogue memory. Best effort:
// a miss or error just means no recency preference.
func (svc *DefaultSessionService) loadRecentKeys(ctx context.Context, userID string) map[string]struct{} {
	if svc.Memory == nil || userID == "" {
		return map[string]struct{}{}
	}
	recent, err := svc.Memory.RecentKeys(ctx, userID)
	if err != nil {
		utils.GetLogger().Warn("failed to load dialogue memory",
			zap.String("userId", userID), zap.Error(err))
		return map[string]struct{}{}
	}
	return recent
}

// rememberDialogue writes a finished session's used keys back to the user's
// dialogue memory.
func (svc *DefaultSessionService) rememberDialogue(userID string, usedKeys map[string]struct{}) {
	if svc.Memory == nil || userID == "" || len(usedKeys) == 0 {
		return
	}
	keys := make([]string, 0, len(usedKeys))
	for k := range usedKeys {
		keys = append(keys, k)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Memory.Remember(ctx, userID, keys); err != nil {
		utils.GetLogger().Warn("failed to store dialogue memory",
			zap.String("userId", userID), zap.Error(err))
	}
}

// archive enqueues a terminal session for background archival.
func (svc *DefaultSessionService) archive(snap models.NegotiationSession) {
	if svc.Archiver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Archiver.EnqueueArchive(ctx, snap); err != nil {
		utils.GetLogger().Warn("failed to enqueue session archive",
			zap.String("sessionId", snap.SessionID), zap.Error(err))
	}
}

func validateOffer(basePrice, userOffer float64) error {
	if basePrice <= 0 {
		return &InvalidOfferError{Reason: "base price must be positive"}
	}
	if userOffer <= 0 {
		return &InvalidOfferError{Reason: "offer must be positive"}
	}
	if userOffer >= basePrice {
		return &InvalidOfferError{Reason: "offer must be below the listed price"}
	}
	return nil
}
