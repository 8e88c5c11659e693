package negotiation

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"tripdeal/models"
	"tripdeal/services/dialogue"
	"tripdeal/services/guardrail"
)

// StartInput carries everything needed to open a negotiation session.
type StartInput struct {
	UserID      string         `json:"userId"`
	Module      models.Module  `json:"module"`
	ProductRef  string         `json:"productRef"`
	SupplierID  string         `json:"supplierId"`
	RouteBucket string         `json:"routeBucket"`
	RouteInfo   map[string]any `json:"routeInfo"`
	BasePrice   float64        `json:"basePrice"`
	UserOffer   float64        `json:"userOffer"`
	// EventDate is the departure or event date; it buckets the guardrail
	// lookup by time to event.
	EventDate time.Time `json:"departureOrEventDate"`
}

// SessionView is what callers see of a session: the snapshot plus the chat
// beats revealed so far.
type SessionView struct {
	Session models.NegotiationSession `json:"session"`
	Beats   []models.ChatBeat         `json:"beats,omitempty"`
}

// SessionService defines the interface for driving negotiation sessions.
type SessionService interface {
	StartSession(ctx context.Context, input StartInput) (*SessionView, error)
	PlaceOffer(ctx context.Context, sessionID string, userOffer float64) (*SessionView, error)
	Accept(ctx context.Context, sessionID string) (*SessionView, error)
	Confirm(ctx context.Context, sessionID string) (*SessionView, error)
	CloseSession(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (*SessionView, error)
	Watch(ctx context.Context, sessionID string, interval time.Duration, callbacks SyncCallbacks) error
}

// SnapshotStore mirrors session snapshots so status reads survive the live
// session, including recently terminal ones.
type SnapshotStore interface {
	Save(ctx context.Context, snap models.NegotiationSession) error
	// Get returns (nil, nil) on a miss.
	Get(ctx context.Context, sessionID string) (*models.NegotiationSession, error)
}

// Archiver hands terminal sessions off for background archival. Enqueue
// failures are logged and swallowed; archival is best effort.
type Archiver interface {
	EnqueueArchive(ctx context.Context, snap models.NegotiationSession) error
}

// DefaultSessionService implements SessionService. Live sessions are held in
// memory; every transition mirrors a snapshot into the SnapshotStore.
type DefaultSessionService struct {
	Guardrails guardrail.Resolver
	Pack       *dialogue.Pack
	Memory     dialogue.MemoryStore
	Supplier   SupplierClient
	Snapshots  SnapshotStore
	Archiver   Archiver

	// Negotiation windows. Zero values fall back to the defaults below.
	DecisionWindow time.Duration
	HoldWindow     time.Duration
	Watchdog       time.Duration

	// Tempo scales the scripted typing/reveal delays; values below 1 speed
	// the chat up. Zero means natural pace.
	Tempo float64

	// NewRand supplies the per-session random source; tests inject seeded
	// sources here.
	NewRand func() *rand.Rand

	mu   sync.RWMutex
	live map[string]*liveSession
}

const (
	defaultDecisionWindow = 30 * time.Second
	defaultHoldWindow     = 30 * time.Second
)

func (svc *DefaultSessionService) decisionWindow() time.Duration {
	if svc.DecisionWindow > 0 {
		return svc.DecisionWindow
	}
	return defaultDecisionWindow
}

func (svc *DefaultSessionService) holdWindow() time.Duration {
	if svc.HoldWindow > 0 {
		return svc.HoldWindow
	}
	return defaultHoldWindow
}

func (svc *DefaultSessionService) scaleMs(ms int) int {
	if svc.Tempo <= 0 || svc.Tempo == 1 {
		return ms
	}
	return int(float64(ms) * svc.Tempo)
}

func (svc *DefaultSessionService) newRand() *rand.Rand {
	if svc.NewRand != nil {
		return svc.NewRand()
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
