package dialogue

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"tripdeal/models"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Selection is the outcome of a variant draw.
type Selection struct {
	Text string
	// Raw is the unfilled template, for beats whose placeholder values only
	// become known at reveal time.
	Raw string
	Key string
	// Fallback marks the hardcoded line used when the pack has no candidates
	// for the beat. Fallback selections are not recorded as used keys.
	Fallback bool
}

// Choose picks one dialogue line for a beat. The draw is weighted-random over
// the tone-filtered pool, preferring variants the session and the user have
// not heard recently; recency is a soft preference and never empties the pool.
// The chosen key is recorded into sessionUsed before returning, exactly once
// per non-fallback selection. sessionUsed is owned by a single session;
// userRecent is a read-only set supplied by the caller.
func Choose(
	pack *Pack,
	module models.Module,
	beat string,
	attempt int,
	tone models.Tone,
	rng *rand.Rand,
	sessionUsed map[string]struct{},
	userRecent map[string]struct{},
	tokens map[string]string,
) Selection {
	candidates := pack.Bucket(module, beat, attempt)
	if len(candidates) == 0 {
		raw := fallbackTemplate(beat)
		return Selection{
			Text:     FillTemplate(raw, tokens),
			Raw:      raw,
			Key:      fmt.Sprintf("fallback|%s|%s|%d", module, beat, attempt),
			Fallback: true,
		}
	}

	if tone == "" {
		tone = models.ToneForAttempt(attempt)
	}

	// Variants with no tone match any tone.
	toneFiltered := candidates[:0:0]
	for _, v := range candidates {
		if v.Tone == "" || v.Tone == tone {
			toneFiltered = append(toneFiltered, v)
		}
	}
	if len(toneFiltered) == 0 {
		toneFiltered = candidates
	}

	pool := toneFiltered[:0:0]
	for _, v := range toneFiltered {
		if _, used := sessionUsed[v.Key]; used {
			continue
		}
		if _, recent := userRecent[v.Key]; recent {
			continue
		}
		pool = append(pool, v)
	}
	if len(pool) == 0 {
		pool = toneFiltered
	}

	chosen := weightedDraw(pool, rng)
	sessionUsed[chosen.Key] = struct{}{}

	return Selection{
		Text: FillTemplate(chosen.Text, tokens),
		Raw:  chosen.Text,
		Key:  chosen.Key,
	}
}

// weightedDraw treats each variant's weight as its share of the total and
// draws a uniform cursor over [0, totalWeight).
func weightedDraw(pool []models.DialogueVariant, rng *rand.Rand) models.DialogueVariant {
	total := 0
	for _, v := range pool {
		w := v.Weight
		if w <= 0 {
			w = 1
		}
		total += w
	}

	cursor := rng.Intn(total)
	for _, v := range pool {
		w := v.Weight
		if w <= 0 {
			w = 1
		}
		if cursor < w {
			return v
		}
		cursor -= w
	}
	return pool[len(pool)-1]
}

// FillTemplate substitutes {tokenName} placeholders by exact-match lookup.
// Unresolved tokens render as empty string, never as a literal placeholder.
func FillTemplate(text string, tokens map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		name := strings.Trim(match, "{}")
		return tokens[name]
	})
}

// fallbackTemplate returns a serviceable generic line per beat when the pack
// has nothing to offer.
func fallbackTemplate(beat string) string {
	switch beat {
	case BeatGreeting:
		return "Let me see what I can do for you."
	case BeatRelay:
		return "One moment, checking with the supplier..."
	case BeatCounter:
		return "Best I can offer is {counterOffer}."
	case BeatPrompt:
		return "This price is live for a short while. Shall we lock it in?"
	default:
		return "One moment please..."
	}
}
