package models

// Tone is the register a dialogue line is written in. Tone escalates with the
// user's persistence: attempt 1 is informational, 3 is urgent.
type Tone string

const (
	ToneInfo   Tone = "info"
	ToneFirm   Tone = "firm"
	ToneUrgent Tone = "urgent"
)

// ToneForAttempt maps an attempt number to its default tone.
func ToneForAttempt(attempt int) Tone {
	switch {
	case attempt <= 1:
		return ToneInfo
	case attempt == 2:
		return ToneFirm
	default:
		return ToneUrgent
	}
}

// DialogueVariant is one templated chat line. Variants are loaded from the
// static dialogue pack at process start and are read-only afterwards.
type DialogueVariant struct {
	// Key is the stable identity used for repetition tracking across a
	// session and, best effort, across a user's recent sessions.
	Key    string `yaml:"key" json:"key"`
	Text   string `yaml:"text" json:"text"`
	Weight int    `yaml:"weight" json:"weight"`
	Tone   Tone   `yaml:"tone,omitempty" json:"tone,omitempty"`
}
