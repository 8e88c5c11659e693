package guardrail

import (
	"fmt"

	"tripdeal/models"
)

// ConfigurationError signals a module without a default guardrail profile.
// This is fatal at load time; it is never surfaced per request.
type ConfigurationError struct {
	Module models.Module
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configurationError: no default guardrail profile for module %q", e.Module)
}
