package negotiation

import (
	"context"
	"sync"
	"time"

	"tripdeal/models"
	"tripdeal/utils"

	"go.uber.org/zap"
)

// WatchdogCeiling bounds how long the beat sequence may run before a forced
// completion. Forcing is soft degradation, not a failure.
const WatchdogCeiling = 10 * time.Second

// Choreographer reveals an ordered beat sequence on a wall-clock schedule,
// independent of network latency. Beats reveal strictly in order: typingMs of
// simulated typing, the reveal, then revealMs before the cursor advances.
//
// Fill runs just before a beat is revealed and may block; the supplier
// counter beat uses it to wait for the computed price, so the reveal never
// runs ahead of the counter-offer result.
type Choreographer struct {
	Beats    []models.ChatBeat
	Fill     func(i int, beat *models.ChatBeat)
	OnReveal func(beat models.ChatBeat)
	// OnComplete fires exactly once, with forced=true when the watchdog cut
	// the sequence short.
	OnComplete func(forced bool)
	Watchdog   time.Duration
}

// Run executes the beat schedule until completion, watchdog expiry, or
// context cancellation. A cancelled run signals nothing.
func (c *Choreographer) Run(ctx context.Context) {
	watchdog := c.Watchdog
	if watchdog <= 0 {
		watchdog = WatchdogCeiling
	}

	var once sync.Once
	complete := func(forced bool) {
		once.Do(func() {
			if forced {
				utils.GetLogger().Warn("beat choreography forced to completion",
					zap.Duration("ceiling", watchdog))
			}
			if c.OnComplete != nil {
				c.OnComplete(forced)
			}
		})
	}

	guard := time.AfterFunc(watchdog, func() { complete(true) })
	defer guard.Stop()

	for i := range c.Beats {
		if !sleepCtx(ctx, time.Duration(c.Beats[i].TypingMs)*time.Millisecond) {
			return
		}
		if c.Fill != nil {
			c.Fill(i, &c.Beats[i])
		}
		if ctx.Err() != nil {
			return
		}
		if c.OnReveal != nil {
			c.OnReveal(c.Beats[i])
		}
		if !sleepCtx(ctx, time.Duration(c.Beats[i].RevealMs)*time.Millisecond) {
			return
		}
	}

	complete(false)
}

// sleepCtx waits d, returning false if the context is cancelled first.
// Non-positive delays execute immediately; a delay that cannot be scheduled
// never stalls the sequence.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
