package negotiation

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"tripdeal/models"
	"tripdeal/services/dialogue"
	"tripdeal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// liveSession is the in-memory owner of one negotiation: snapshot, resolved
// guardrail profile, dialogue memory, timers, and the running choreography.
// All mutable state is guarded by mu; timers and goroutines re-check state
// under mu before acting, so late fires are harmless no-ops.
type liveSession struct {
	svc *DefaultSessionService

	mu   sync.Mutex
	snap models.NegotiationSession

	profile models.GuardrailProfile
	rng     *rand.Rand

	// usedKeys is owned exclusively by this session; userRecent is a
	// read-only set loaded once at session start.
	usedKeys   map[string]struct{}
	userRecent map[string]struct{}

	supplierID  string
	routeBucket string
	routeInfo   map[string]any
	eventDate   time.Time

	// Per-run state, rebuilt on every attempt.
	runCancel    context.CancelFunc
	scripted     []models.ChatBeat
	templates    []string
	revealed     []models.ChatBeat
	tokens       map[string]string
	counterReady chan struct{}
	counterPrice float64

	decisionTimer *time.Timer
	holdTimer     *time.Timer

	closed bool
}

// beginRun scripts the beat sequence for the current attempt and launches the
// counter-offer computation and the choreography. Caller holds s.mu.
func (s *liveSession) beginRun() {
	runCtx, cancel := context.WithCancel(context.Background())
	s.runCancel = cancel

	s.tokens = map[string]string{
		"module":     string(s.snap.Module),
		"productRef": s.snap.ProductRef,
		"basePrice":  formatPrice(s.snap.BasePrice),
		"userOffer":  formatPrice(s.snap.UserOffer),
	}
	s.revealed = nil
	s.counterReady = make(chan struct{})
	s.scriptBeats()

	// The quote runs concurrently with the early beats; its own rand source
	// keeps the session source single-goroutine.
	quoteRng := rand.New(rand.NewSource(s.rng.Int63()))
	req := QuoteRequest{
		UserOffer:            s.snap.UserOffer,
		Module:               string(s.snap.Module),
		ProductRef:           s.snap.ProductRef,
		SessionID:            s.snap.SessionID,
		RouteInfo:            s.routeInfo,
		DepartureOrEventDate: s.eventDate.Format(time.RFC3339),
	}
	ready := s.counterReady
	basePrice := s.snap.BasePrice
	go func() {
		res := s.svc.Supplier.RequestQuote(runCtx, req, basePrice, s.profile, quoteRng)
		s.mu.Lock()
		// A reset may have started a fresh run; only that run's channel owns
		// the price slot.
		if s.counterReady == ready {
			s.counterPrice = res.Price
		}
		s.mu.Unlock()
		close(ready)
	}()

	choreo := &Choreographer{
		Beats:      s.scripted,
		Fill:       s.fillBeat,
		OnReveal:   s.revealBeat,
		OnComplete: func(forced bool) { s.onChoreoComplete(runCtx, forced) },
		Watchdog:   s.svc.Watchdog,
	}
	go choreo.Run(runCtx)
}

// scriptBeats draws a dialogue variant per beat. Texts are filled now except
// the supplier counter, whose price token only exists at reveal time. Caller
// holds s.mu.
func (s *liveSession) scriptBeats() {
	attempt := s.snap.Attempt
	tone := models.ToneForAttempt(attempt)

	script := []struct {
		beat     string
		speaker  models.Speaker
		typingMs int
		revealMs int
	}{
		{dialogue.BeatGreeting, models.SpeakerAgent, 900, 500},
		{dialogue.BeatRelay, models.SpeakerAgent, 1100, 700},
		{dialogue.BeatCounter, models.SpeakerSupplier, 1400, 600},
		{dialogue.BeatPrompt, models.SpeakerSystem, 800, 400},
	}

	s.scripted = make([]models.ChatBeat, 0, len(script))
	s.templates = make([]string, 0, len(script))
	for _, b := range script {
		sel := dialogue.Choose(s.svc.Pack, s.snap.Module, b.beat, attempt, tone,
			s.rng, s.usedKeys, s.userRecent, s.tokens)
		s.scripted = append(s.scripted, models.ChatBeat{
			ID:       b.beat,
			Speaker:  b.speaker,
			TypingMs: s.svc.scaleMs(b.typingMs),
			RevealMs: s.svc.scaleMs(b.revealMs),
			Text:     sel.Text,
		})
		s.templates = append(s.templates, sel.Raw)
	}
}

// fillBeat is the choreographer's just-in-time hook. The supplier counter
// beat blocks here until the quote resolves, so its reveal never runs ahead
// of the computed price.
func (s *liveSession) fillBeat(i int, beat *models.ChatBeat) {
	if beat.ID != dialogue.BeatCounter {
		return
	}
	s.mu.Lock()
	ready := s.counterReady
	s.mu.Unlock()
	<-ready

	s.mu.Lock()
	s.tokens["counterOffer"] = formatPrice(s.counterPrice)
	beat.Text = dialogue.FillTemplate(s.templates[i], s.tokens)
	s.mu.Unlock()
}

func (s *liveSession) revealBeat(beat models.ChatBeat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A forced completion reveals the remainder itself; a stalled schedule
	// waking up afterwards must not append the same beats again.
	if s.closed || s.snap.State != models.StateNegotiating {
		return
	}
	s.revealed = append(s.revealed, beat)
}

// onChoreoComplete drives negotiating → decision. Even a watchdog-forced
// completion waits for the counter price: decision is never entered before
// the counter is computed and substituted into its beat.
func (s *liveSession) onChoreoComplete(runCtx context.Context, forced bool) {
	s.mu.Lock()
	ready := s.counterReady
	s.mu.Unlock()

	select {
	case <-ready:
	case <-runCtx.Done():
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.snap.State != models.StateNegotiating || runCtx.Err() != nil {
		return
	}

	// Forced completion reveals whatever the schedule had not reached yet and
	// stops the stalled schedule so no beat is revealed twice.
	if forced {
		if s.runCancel != nil {
			s.runCancel()
		}
		s.tokens["counterOffer"] = formatPrice(s.counterPrice)
		for i := len(s.revealed); i < len(s.scripted); i++ {
			b := s.scripted[i]
			b.Text = dialogue.FillTemplate(s.templates[i], s.tokens)
			s.revealed = append(s.revealed, b)
		}
	}

	now := time.Now()
	price := s.counterPrice
	deadline := now.Add(s.svc.decisionWindow())
	s.snap.CounterOffer = &price
	s.snap.State = models.StateDecision
	s.snap.DecisionExpiresAt = &deadline
	s.snap.UpdatedAt = now
	s.armDecisionTimer(deadline)

	s.svc.mirror(s.snap)
	utils.GetLogger().Debug("session entered decision window",
		zap.String("sessionId", s.snap.SessionID),
		zap.Float64("counterOffer", price),
		zap.Bool("forced", forced))
}

// armDecisionTimer schedules expiry at the wall-clock deadline. Caller holds
// s.mu. A timer that cannot fire later degrades to immediate execution via
// the non-positive duration path of time.AfterFunc.
func (s *liveSession) armDecisionTimer(deadline time.Time) {
	if s.decisionTimer != nil {
		s.decisionTimer.Stop()
	}
	s.decisionTimer = time.AfterFunc(time.Until(deadline), s.onDecisionExpiry)
}

// onDecisionExpiry handles a decision window lapsing with no accept: the
// computed counter is discarded. While attempts remain the session falls back
// to input; once the attempt cap is reached it expires terminally.
func (s *liveSession) onDecisionExpiry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.snap.State != models.StateDecision {
		return
	}
	// Deadlines are wall-clock; a timer that fired early re-arms.
	if s.snap.DecisionExpiresAt != nil && time.Now().Before(*s.snap.DecisionExpiresAt) {
		s.armDecisionTimer(*s.snap.DecisionExpiresAt)
		return
	}

	if s.snap.Attempt >= models.MaxAttempts {
		s.expireLocked()
		return
	}

	if s.runCancel != nil {
		s.runCancel()
	}
	s.snap.State = models.StateNegotiating
	s.snap.CounterOffer = nil
	s.snap.DecisionExpiresAt = nil
	s.snap.Resets++
	s.snap.UpdatedAt = time.Now()
	s.revealed = nil
	s.scripted = nil

	s.svc.mirror(s.snap)
	utils.GetLogger().Info("decision window lapsed, session reset to input",
		zap.String("sessionId", s.snap.SessionID),
		zap.Int("attempt", s.snap.Attempt))
}

// onHoldExpiry books the session when the hold window runs out with no
// explicit confirmation.
func (s *liveSession) onHoldExpiry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.snap.State != models.StateHolding {
		return
	}
	if s.snap.HoldExpiresAt != nil && time.Now().Before(*s.snap.HoldExpiresAt) {
		s.armHoldTimer(*s.snap.HoldExpiresAt)
		return
	}
	s.bookLocked()
}

func (s *liveSession) armHoldTimer(deadline time.Time) {
	if s.holdTimer != nil {
		s.holdTimer.Stop()
	}
	s.holdTimer = time.AfterFunc(time.Until(deadline), s.onHoldExpiry)
}

// bookLocked transitions to the booked terminal with a freshly minted order
// reference. Caller holds s.mu.
func (s *liveSession) bookLocked() {
	s.snap.State = models.StateBooked
	s.snap.OrderRef = uuid.New().String()
	s.snap.UpdatedAt = time.Now()
	s.finalizeLocked()

	utils.GetLogger().Info("session booked",
		zap.String("sessionId", s.snap.SessionID),
		zap.String("orderRef", s.snap.OrderRef))
}

// expireLocked transitions to the expired terminal. Caller holds s.mu.
func (s *liveSession) expireLocked() {
	s.snap.State = models.StateExpired
	s.snap.CounterOffer = nil
	s.snap.DecisionExpiresAt = nil
	s.snap.UpdatedAt = time.Now()
	s.finalizeLocked()

	utils.GetLogger().Info("session expired",
		zap.String("sessionId", s.snap.SessionID),
		zap.Int("attempt", s.snap.Attempt))
}

// finalizeLocked tears down a session entering a terminal state: timers
// stopped, run cancelled, snapshot mirrored, dialogue memory written back,
// archive enqueued, live entry dropped. Caller holds s.mu.
func (s *liveSession) finalizeLocked() {
	s.stopTimersLocked()
	if s.runCancel != nil {
		s.runCancel()
	}
	s.closed = true

	s.svc.mirror(s.snap)
	s.svc.rememberDialogue(s.snap.UserID, s.usedKeys)
	s.svc.archive(s.snap)
	s.svc.dropLive(s.snap.SessionID)
}

func (s *liveSession) stopTimersLocked() {
	if s.decisionTimer != nil {
		s.decisionTimer.Stop()
		s.decisionTimer = nil
	}
	if s.holdTimer != nil {
		s.holdTimer.Stop()
		s.holdTimer = nil
	}
}

// view snapshots the session for callers. Caller holds s.mu.
func (s *liveSession) viewLocked() *SessionView {
	beats := make([]models.ChatBeat, len(s.revealed))
	copy(beats, s.revealed)
	return &SessionView{Session: s.snap, Beats: beats}
}

func formatPrice(v float64) string {
	return fmt.Sprintf("%.0f", v)
}
