package negotiation

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"tripdeal/models"
	"tripdeal/services/dialogue"
)

type stubResolver struct {
	profile models.GuardrailProfile
}

func (r stubResolver) Resolve(module models.Module, supplierID, routeBucket, ttlBucket string) models.GuardrailProfile {
	return r.profile
}
func (r stubResolver) Reload(ctx context.Context) error { return nil }

type fakeSupplier struct {
	mu      sync.Mutex
	quotes  int
	accepts int
}

func (f *fakeSupplier) RequestQuote(ctx context.Context, req QuoteRequest, basePrice float64, profile models.GuardrailProfile, rng *rand.Rand) QuoteResult {
	f.mu.Lock()
	f.quotes++
	f.mu.Unlock()
	return QuoteResult{Price: ComputeCounter(basePrice, req.UserOffer, profile, rng), NegotiatedInMs: 5}
}

func (f *fakeSupplier) RequestAccept(ctx context.Context, sessionID string, price float64, holdWindow time.Duration) AcceptResult {
	f.mu.Lock()
	f.accepts++
	f.mu.Unlock()
	return AcceptResult{HoldID: "hold-" + sessionID[:8], ExpiresAt: time.Now().Add(holdWindow)}
}

func (f *fakeSupplier) FetchStatus(ctx context.Context, sessionID string) (*models.NegotiationSession, error) {
	return nil, errors.New("not implemented")
}

type memSnapshots struct {
	mu    sync.Mutex
	snaps map[string]models.NegotiationSession
}

func (m *memSnapshots) Save(ctx context.Context, snap models.NegotiationSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snaps == nil {
		m.snaps = make(map[string]models.NegotiationSession)
	}
	m.snaps[snap.SessionID] = snap
	return nil
}

func (m *memSnapshots) Get(ctx context.Context, sessionID string) (*models.NegotiationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[sessionID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

type captureArchiver struct {
	mu    sync.Mutex
	snaps []models.NegotiationSession
}

func (a *captureArchiver) EnqueueArchive(ctx context.Context, snap models.NegotiationSession) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snaps = append(a.snaps, snap)
	return nil
}

func testDialoguePack() *dialogue.Pack {
	one := func(key, text string) []models.DialogueVariant {
		return []models.DialogueVariant{{Key: key, Text: text, Weight: 1}}
	}
	return &dialogue.Pack{
		Version: 1,
		Modules: map[models.Module]map[string]map[string][]models.DialogueVariant{
			models.ModuleFlights: {
				dialogue.BeatGreeting: {dialogue.AttemptAny: one("t-greet", "Offer {userOffer} noted.")},
				dialogue.BeatRelay:    {dialogue.AttemptAny: one("t-relay", "Checking with the airline...")},
				dialogue.BeatCounter:  {dialogue.AttemptAny: one("t-counter", "Best is {counterOffer}.")},
				dialogue.BeatPrompt:   {dialogue.AttemptAny: one("t-prompt", "Lock it in?")},
			},
		},
	}
}

// newTestService wires the service with fast beats and short windows so a full
// negotiation round finishes in well under a second.
func newTestService(supplier SupplierClient, snaps SnapshotStore, decision, hold time.Duration) *DefaultSessionService {
	return &DefaultSessionService{
		Guardrails: stubResolver{profile: models.GuardrailProfile{
			Module:           models.ModuleFlights,
			RouteBucket:      models.RouteBucketAny,
			TTLBucket:        models.TTLBucketAny,
			MinMarginPct:     -0.0824,
			MaxConcessionPct: 0.25,
		}},
		Pack:           testDialoguePack(),
		Supplier:       supplier,
		Snapshots:      snaps,
		DecisionWindow: decision,
		HoldWindow:     hold,
		Watchdog:       2 * time.Second,
		Tempo:          0.01,
		NewRand:        func() *rand.Rand { return rand.New(rand.NewSource(11)) },
	}
}

func startFlight(t *testing.T, svc *DefaultSessionService) *SessionView {
	t.Helper()
	view, err := svc.StartSession(context.Background(), StartInput{
		UserID:     "u-1",
		Module:     models.ModuleFlights,
		ProductRef: "NBO-DXB-2026-09-12",
		BasePrice:  8500,
		UserOffer:  7500,
		EventDate:  time.Now().Add(14 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return view
}

func waitFor(t *testing.T, svc *DefaultSessionService, sessionID string, timeout time.Duration, cond func(*SessionView) bool) *SessionView {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last *SessionView
	for time.Now().Before(deadline) {
		view, err := svc.GetSession(context.Background(), sessionID)
		if err == nil {
			last = view
			if cond(view) {
				return view
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	if last != nil {
		t.Fatalf("condition never met; last state %s", last.Session.State)
	}
	t.Fatalf("condition never met; session unreadable")
	return nil
}

func inState(state models.SessionState) func(*SessionView) bool {
	return func(v *SessionView) bool { return v.Session.State == state }
}

func TestStartSessionRejectsInvalidOffers(t *testing.T) {
	svc := newTestService(&fakeSupplier{}, &memSnapshots{}, time.Second, time.Second)

	tests := []struct {
		name      string
		basePrice float64
		userOffer float64
	}{
		{"zero offer", 8500, 0},
		{"negative offer", 8500, -100},
		{"offer equals base", 8500, 8500},
		{"offer above base", 8500, 9000},
		{"zero base", 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StartSession(context.Background(), StartInput{
				UserID:    "u-1",
				Module:    models.ModuleFlights,
				BasePrice: tt.basePrice,
				UserOffer: tt.userOffer,
			})
			var invalid *InvalidOfferError
			if !errors.As(err, &invalid) {
				t.Fatalf("want InvalidOfferError, got %v", err)
			}
		})
	}

	_, err := svc.StartSession(context.Background(), StartInput{
		Module: "cruises", BasePrice: 8500, UserOffer: 7500,
	})
	if err == nil {
		t.Fatalf("unknown module accepted")
	}
}

func TestSessionReachesDecisionWithGuardedCounter(t *testing.T) {
	svc := newTestService(&fakeSupplier{}, &memSnapshots{}, 5*time.Second, time.Second)
	view := startFlight(t, svc)

	if view.Session.State != models.StateNegotiating || view.Session.Attempt != 1 {
		t.Fatalf("fresh session in %s attempt %d", view.Session.State, view.Session.Attempt)
	}

	got := waitFor(t, svc, view.Session.SessionID, 2*time.Second, inState(models.StateDecision))

	if got.Session.CounterOffer == nil {
		t.Fatalf("decision state with no counter-offer")
	}
	counter := *got.Session.CounterOffer
	if counter < 7500 {
		t.Fatalf("counter %.2f undercuts the user's own offer", counter)
	}
	if floor := 8500 * (1 - 0.0824); counter < floor {
		t.Fatalf("counter %.2f below floor %.2f", counter, floor)
	}
	if got.Session.DecisionExpiresAt == nil || !got.Session.DecisionExpiresAt.After(time.Now()) {
		t.Fatalf("decision deadline missing or already past")
	}

	if len(got.Beats) != 4 {
		t.Fatalf("revealed %d beats, want 4", len(got.Beats))
	}
	counterBeat := got.Beats[2]
	if counterBeat.ID != dialogue.BeatCounter {
		t.Fatalf("third beat is %q, want the supplier counter", counterBeat.ID)
	}
	if strings.Contains(counterBeat.Text, "{") {
		t.Fatalf("counter beat has unfilled placeholder: %q", counterBeat.Text)
	}
	if !strings.Contains(counterBeat.Text, formatPrice(counter)) {
		t.Fatalf("counter beat %q does not carry the price %s", counterBeat.Text, formatPrice(counter))
	}
}

func TestAcceptOutsideDecisionWindowRejected(t *testing.T) {
	svc := newTestService(&fakeSupplier{}, &memSnapshots{}, 5*time.Second, time.Second)
	view := startFlight(t, svc)

	// Still negotiating: nothing to accept yet.
	_, err := svc.Accept(context.Background(), view.Session.SessionID)
	var illegal *IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("want IllegalTransitionError, got %v", err)
	}
}

func TestDecisionExpiryResetsSession(t *testing.T) {
	svc := newTestService(&fakeSupplier{}, &memSnapshots{}, 80*time.Millisecond, time.Second)
	view := startFlight(t, svc)

	waitFor(t, svc, view.Session.SessionID, 2*time.Second, inState(models.StateDecision))
	got := waitFor(t, svc, view.Session.SessionID, 2*time.Second, func(v *SessionView) bool {
		return v.Session.State == models.StateNegotiating && v.Session.Resets == 1
	})

	if got.Session.CounterOffer != nil {
		t.Fatalf("reset kept the discarded counter-offer")
	}
	if got.Session.DecisionExpiresAt != nil {
		t.Fatalf("reset kept the lapsed deadline")
	}
	if got.Session.Attempt != 1 {
		t.Fatalf("reset changed the attempt counter to %d", got.Session.Attempt)
	}
}

func TestAttemptCapExpiresSession(t *testing.T) {
	archiver := &captureArchiver{}
	svc := newTestService(&fakeSupplier{}, &memSnapshots{}, 150*time.Millisecond, time.Second)
	svc.Archiver = archiver
	view := startFlight(t, svc)
	id := view.Session.SessionID

	for attempt := 2; attempt <= models.MaxAttempts; attempt++ {
		waitFor(t, svc, id, 2*time.Second, inState(models.StateDecision))
		retried, err := svc.PlaceOffer(context.Background(), id, 7500+float64(attempt)*50)
		if err != nil {
			t.Fatalf("retry %d failed: %v", attempt, err)
		}
		if retried.Session.Attempt != attempt {
			t.Fatalf("attempt %d recorded as %d", attempt, retried.Session.Attempt)
		}
	}

	// At the cap: a further offer is refused even inside the decision window.
	waitFor(t, svc, id, 2*time.Second, inState(models.StateDecision))
	_, err := svc.PlaceOffer(context.Background(), id, 8000)
	var illegal *IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("want IllegalTransitionError at attempt cap, got %v", err)
	}

	// Letting the final window lapse expires the session instead of resetting.
	got := waitFor(t, svc, id, 2*time.Second, inState(models.StateExpired))
	if got.Session.CounterOffer != nil {
		t.Fatalf("expired session kept a counter-offer")
	}

	if _, err := svc.PlaceOffer(context.Background(), id, 8000); err == nil {
		t.Fatalf("offer accepted on an expired session")
	}

	archiver.mu.Lock()
	defer archiver.mu.Unlock()
	if len(archiver.snaps) != 1 || archiver.snaps[0].State != models.StateExpired {
		t.Fatalf("want exactly one expired archive entry, got %+v", archiver.snaps)
	}
}

func TestAcceptHoldsThenAutoBooks(t *testing.T) {
	supplier := &fakeSupplier{}
	svc := newTestService(supplier, &memSnapshots{}, 5*time.Second, 80*time.Millisecond)
	view := startFlight(t, svc)
	id := view.Session.SessionID

	waitFor(t, svc, id, 2*time.Second, inState(models.StateDecision))

	held, err := svc.Accept(context.Background(), id)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if held.Session.State != models.StateHolding {
		t.Fatalf("accept left session in %s", held.Session.State)
	}
	if held.Session.HoldID == "" || held.Session.HoldExpiresAt == nil {
		t.Fatalf("hold placed without id or expiry")
	}

	// The hold window lapses with no explicit confirm: the booking finalizes
	// on its own.
	got := waitFor(t, svc, id, 2*time.Second, inState(models.StateBooked))
	if got.Session.OrderRef == "" {
		t.Fatalf("booked session has no order reference")
	}

	supplier.mu.Lock()
	defer supplier.mu.Unlock()
	if supplier.accepts != 1 {
		t.Fatalf("supplier accept called %d times, want 1", supplier.accepts)
	}
}

func TestConfirmBooksBeforeHoldExpiry(t *testing.T) {
	svc := newTestService(&fakeSupplier{}, &memSnapshots{}, 5*time.Second, 5*time.Second)
	view := startFlight(t, svc)
	id := view.Session.SessionID

	waitFor(t, svc, id, 2*time.Second, inState(models.StateDecision))
	if _, err := svc.Accept(context.Background(), id); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	got, err := svc.Confirm(context.Background(), id)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if got.Session.State != models.StateBooked || got.Session.OrderRef == "" {
		t.Fatalf("confirm produced %s orderRef=%q", got.Session.State, got.Session.OrderRef)
	}

	// Confirm on an already-booked session finds nothing live.
	if _, err := svc.Confirm(context.Background(), id); err == nil {
		t.Fatalf("double confirm accepted")
	}
}

func TestCloseSessionIsIdempotent(t *testing.T) {
	svc := newTestService(&fakeSupplier{}, &memSnapshots{}, 5*time.Second, time.Second)
	view := startFlight(t, svc)
	id := view.Session.SessionID

	if err := svc.CloseSession(context.Background(), id); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := svc.CloseSession(context.Background(), id); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	// The live entry is gone; only the mirrored snapshot remains readable.
	got, err := svc.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("snapshot read failed: %v", err)
	}
	if got.Session.SessionID != id {
		t.Fatalf("snapshot carries wrong session %q", got.Session.SessionID)
	}

	var notFound *SessionNotFoundError
	if _, err := svc.Accept(context.Background(), id); !errors.As(err, &notFound) {
		t.Fatalf("accept after close: want SessionNotFoundError, got %v", err)
	}
}

// slowQuoteSupplier delays the quote so the watchdog fires first.
type slowQuoteSupplier struct {
	fakeSupplier
	delay time.Duration
}

func (f *slowQuoteSupplier) RequestQuote(ctx context.Context, req QuoteRequest, basePrice float64, profile models.GuardrailProfile, rng *rand.Rand) QuoteResult {
	time.Sleep(f.delay)
	return f.fakeSupplier.RequestQuote(ctx, req, basePrice, profile, rng)
}

func TestForcedCompletionRevealsEachBeatOnce(t *testing.T) {
	svc := newTestService(&slowQuoteSupplier{delay: 300 * time.Millisecond}, &memSnapshots{}, 5*time.Second, time.Second)
	svc.Watchdog = 100 * time.Millisecond
	view := startFlight(t, svc)
	id := view.Session.SessionID

	got := waitFor(t, svc, id, 2*time.Second, inState(models.StateDecision))
	assertBeatsOnce(t, got.Beats)

	// The stalled schedule wakes after the forced completion; it must not
	// append its beats a second time.
	time.Sleep(300 * time.Millisecond)
	got, err := svc.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("re-read failed: %v", err)
	}
	assertBeatsOnce(t, got.Beats)
}

func assertBeatsOnce(t *testing.T, beats []models.ChatBeat) {
	t.Helper()
	if len(beats) != 4 {
		t.Fatalf("revealed %d beats, want 4", len(beats))
	}
	seen := map[string]int{}
	for _, b := range beats {
		seen[b.ID]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("beat %q revealed %d times: %v", id, n, seen)
		}
	}
}

func TestAcceptRejectedAfterDeadlineBeforeTimerFires(t *testing.T) {
	svc := newTestService(&fakeSupplier{}, &memSnapshots{}, 5*time.Second, time.Second)
	view := startFlight(t, svc)
	id := view.Session.SessionID

	waitFor(t, svc, id, 2*time.Second, inState(models.StateDecision))

	// Backdate the deadline while the expiry timer is still pending: the
	// accept guard must reject on the wall clock alone.
	s, err := svc.liveSessionByID(id)
	if err != nil {
		t.Fatalf("live lookup failed: %v", err)
	}
	s.mu.Lock()
	past := time.Now().Add(-time.Second)
	s.snap.DecisionExpiresAt = &past
	s.mu.Unlock()

	_, err = svc.Accept(context.Background(), id)
	var illegal *IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("want IllegalTransitionError after the deadline, got %v", err)
	}
}

// slowAcceptSupplier delays the hold placement so readers can race it.
type slowAcceptSupplier struct {
	fakeSupplier
	delay time.Duration
}

func (f *slowAcceptSupplier) RequestAccept(ctx context.Context, sessionID string, price float64, holdWindow time.Duration) AcceptResult {
	time.Sleep(f.delay)
	return f.fakeSupplier.RequestAccept(ctx, sessionID, price, holdWindow)
}

func TestMirrorNeverShowsHoldingWithoutHold(t *testing.T) {
	snaps := &memSnapshots{}
	svc := newTestService(&slowAcceptSupplier{delay: 120 * time.Millisecond}, snaps, 5*time.Second, 5*time.Second)
	view := startFlight(t, svc)
	id := view.Session.SessionID

	waitFor(t, svc, id, 2*time.Second, inState(models.StateDecision))

	done := make(chan error, 1)
	go func() {
		_, err := svc.Accept(context.Background(), id)
		done <- err
	}()

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		snap, err := snaps.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("snapshot read failed: %v", err)
		}
		if snap != nil && snap.State == models.StateHolding && snap.HoldID == "" {
			t.Fatalf("mirror shows holding with no hold placed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := <-done; err != nil {
		t.Fatalf("accept failed: %v", err)
	}
}

func TestGetSessionUnknownID(t *testing.T) {
	svc := newTestService(&fakeSupplier{}, &memSnapshots{}, time.Second, time.Second)

	var notFound *SessionNotFoundError
	if _, err := svc.GetSession(context.Background(), "nope"); !errors.As(err, &notFound) {
		t.Fatalf("want SessionNotFoundError, got %v", err)
	}
}
