package dialogue

import (
	"fmt"
	"os"

	"tripdeal/models"

	"gopkg.in/yaml.v3"
)

// AttemptAny is the bucket matching any attempt number.
const AttemptAny = "any"

// Pack is the static dialogue document: modules[module][beat][attemptOrAny]
// holds the candidate variants for one negotiation beat. Loaded once at
// process start, never mutated at runtime.
type Pack struct {
	Version int                                                        `yaml:"version"`
	Modules map[models.Module]map[string]map[string][]models.DialogueVariant `yaml:"modules"`
}

// LoadPack reads and validates a dialogue pack from a YAML file.
func LoadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dialogue pack: %w", err)
	}

	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse dialogue pack: %w", err)
	}
	if err := pack.validate(); err != nil {
		return nil, err
	}
	return &pack, nil
}

func (p *Pack) validate() error {
	if len(p.Modules) == 0 {
		return fmt.Errorf("dialogue pack has no modules")
	}
	seen := make(map[string]struct{})
	for module, beats := range p.Modules {
		for beat, buckets := range beats {
			for bucket, variants := range buckets {
				for i := range variants {
					v := &variants[i]
					if v.Key == "" {
						return fmt.Errorf("dialogue pack: empty key at %s/%s/%s[%d]", module, beat, bucket, i)
					}
					if _, dup := seen[v.Key]; dup {
						return fmt.Errorf("dialogue pack: duplicate key %q", v.Key)
					}
					seen[v.Key] = struct{}{}
					if v.Text == "" {
						return fmt.Errorf("dialogue pack: variant %q has no text", v.Key)
					}
					if v.Weight <= 0 {
						v.Weight = 1
					}
				}
			}
		}
	}
	return nil
}

// Bucket returns the candidate variants for a beat: the attempt-specific
// bucket when present, otherwise the "any" bucket. A nil return means the
// selector must fall back to a hardcoded line.
func (p *Pack) Bucket(module models.Module, beat string, attempt int) []models.DialogueVariant {
	beats, ok := p.Modules[module]
	if !ok {
		return nil
	}
	buckets, ok := beats[beat]
	if !ok {
		return nil
	}
	if variants, ok := buckets[fmt.Sprintf("%d", attempt)]; ok && len(variants) > 0 {
		return variants
	}
	return buckets[AttemptAny]
}
