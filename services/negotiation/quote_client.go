package negotiation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"tripdeal/models"
	"tripdeal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Fallback jitter range: a failed remote quote is answered locally after a
// delay drawn from this range, so failure-fallback and slow success are
// indistinguishable by latency.
const (
	fallbackJitterMin = 800 * time.Millisecond
	fallbackJitterMax = 2200 * time.Millisecond
)

// QuoteRequest is the payload for the upstream supplier quote call.
type QuoteRequest struct {
	UserOffer            float64        `json:"userOffer"`
	Module               string         `json:"module"`
	ProductRef           string         `json:"productRef"`
	SessionID            string         `json:"sessionId"`
	RouteInfo            map[string]any `json:"routeInfo"`
	DepartureOrEventDate string         `json:"departureOrEventDate"`
}

type quoteResponse struct {
	FinalPrice     *float64 `json:"finalPrice,omitempty"`
	Counter        *float64 `json:"counter,omitempty"`
	NegotiatedInMs int      `json:"negotiatedInMs,omitempty"`
}

// QuoteResult is a computed counter-offer plus its measured elapsed time.
type QuoteResult struct {
	Price          float64
	NegotiatedInMs int
	Fallback       bool
}

// AcceptResult is the hold placed on an accepted price.
type AcceptResult struct {
	HoldID    string
	ExpiresAt time.Time
	Fallback  bool
}

// SupplierClient is the request/response boundary to the upstream supplier
// negotiation API. Remote failures are never surfaced as errors from quote or
// accept; both degrade to deterministic-shape local fallbacks.
type SupplierClient interface {
	RequestQuote(ctx context.Context, req QuoteRequest, basePrice float64, profile models.GuardrailProfile, rng *rand.Rand) QuoteResult
	RequestAccept(ctx context.Context, sessionID string, price float64, holdWindow time.Duration) AcceptResult
	FetchStatus(ctx context.Context, sessionID string) (*models.NegotiationSession, error)
}

// HTTPSupplierClient talks to the supplier API over HTTP with bounded
// timeouts and falls back to the local counter-offer algorithm.
type HTTPSupplierClient struct {
	BaseURL string
	Client  *http.Client

	// sleep is swappable so tests do not wait out the fallback jitter.
	sleep func(time.Duration)
}

// NewHTTPSupplierClient builds a client with a bounded per-request timeout.
func NewHTTPSupplierClient(baseURL string, timeout time.Duration) *HTTPSupplierClient {
	return &HTTPSupplierClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
		sleep:   time.Sleep,
	}
}

// RequestQuote asks the supplier API for a counter-offer. On timeout,
// non-success status, or malformed body it computes the counter locally with
// an added processing-time jitter; the caller cannot tell the difference.
func (c *HTTPSupplierClient) RequestQuote(ctx context.Context, req QuoteRequest, basePrice float64, profile models.GuardrailProfile, rng *rand.Rand) QuoteResult {
	started := time.Now()

	resp, err := c.postJSON(ctx, "/negotiation/quote", req)
	if err != nil {
		return c.localQuote(basePrice, req.UserOffer, profile, rng, started, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.localQuote(basePrice, req.UserOffer, profile, rng, started,
			fmt.Errorf("quote returned status %d", resp.StatusCode))
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return c.localQuote(basePrice, req.UserOffer, profile, rng, started, err)
	}

	var price float64
	switch {
	case body.FinalPrice != nil && *body.FinalPrice > 0:
		price = *body.FinalPrice
	case body.Counter != nil && *body.Counter > 0:
		price = *body.Counter
	default:
		return c.localQuote(basePrice, req.UserOffer, profile, rng, started,
			fmt.Errorf("quote body carried no price"))
	}

	// The never-loss clamp applies to remote prices too.
	price = clampCounter(price, basePrice, req.UserOffer, profile)

	elapsed := body.NegotiatedInMs
	if elapsed <= 0 {
		elapsed = int(time.Since(started) / time.Millisecond)
	}
	return QuoteResult{Price: price, NegotiatedInMs: elapsed}
}

// localQuote runs the local algorithm after a jittered delay.
func (c *HTTPSupplierClient) localQuote(basePrice, userOffer float64, profile models.GuardrailProfile, rng *rand.Rand, started time.Time, cause error) QuoteResult {
	utils.GetLogger().Warn("supplier quote degraded to local fallback", zap.Error(cause))

	jitter := fallbackJitterMin + time.Duration(rng.Int63n(int64(fallbackJitterMax-fallbackJitterMin)))
	c.sleep(jitter)

	return QuoteResult{
		Price:          ComputeCounter(basePrice, userOffer, profile, rng),
		NegotiatedInMs: int(time.Since(started)/time.Millisecond) + int(jitter/time.Millisecond),
		Fallback:       true,
	}
}

// RequestAccept places a hold on the negotiated price. On failure the hold is
// minted locally with expiry one hold window out.
func (c *HTTPSupplierClient) RequestAccept(ctx context.Context, sessionID string, price float64, holdWindow time.Duration) AcceptResult {
	payload := map[string]any{"sessionId": sessionID, "price": price}

	resp, err := c.postJSON(ctx, "/negotiation/accept", payload)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			var body struct {
				HoldID    string `json:"holdId"`
				ExpiresAt string `json:"expiresAt"`
			}
			if decodeErr := json.NewDecoder(resp.Body).Decode(&body); decodeErr == nil && body.HoldID != "" {
				if expiresAt, parseErr := time.Parse(time.RFC3339, body.ExpiresAt); parseErr == nil && expiresAt.After(time.Now()) {
					return AcceptResult{HoldID: body.HoldID, ExpiresAt: expiresAt}
				}
			}
		}
		err = fmt.Errorf("accept returned status %d", resp.StatusCode)
	}

	utils.GetLogger().Warn("supplier accept degraded to local hold", zap.Error(err))
	return AcceptResult{
		HoldID:    uuid.New().String(),
		ExpiresAt: time.Now().Add(holdWindow),
		Fallback:  true,
	}
}

// FetchStatus retrieves the supplier-side session snapshot. A 404 maps to
// SessionNotFoundError; other failures are returned as-is.
func (c *HTTPSupplierClient) FetchStatus(ctx context.Context, sessionID string) (*models.NegotiationSession, error) {
	url := fmt.Sprintf("%s/negotiation/status?sessionId=%s", c.BaseURL, sessionID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &SessionNotFoundError{SessionID: sessionID}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status returned %d", resp.StatusCode)
	}

	var snap models.NegotiationSession
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *HTTPSupplierClient) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.Client.Do(httpReq)
}
