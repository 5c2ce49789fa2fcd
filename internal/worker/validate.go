package worker

import (
	"fmt"
	"strings"

	"github.com/your-org/decision-pipeline/internal/retry"
	"github.com/your-org/decision-pipeline/pkg/decision"
)

// RequireFields returns the default compliance gate: id, type, priority and
// customerId must be set, and every listed marker must be true.
func RequireFields(markers []string) decision.ValidateFunc {
	required := append([]string(nil), markers...)
	return func(d decision.Decision) error {
		var missing []string
		if strings.TrimSpace(d.ID) == "" {
			missing = append(missing, "id")
		}
		if strings.TrimSpace(d.Type) == "" {
			missing = append(missing, "type")
		}
		if strings.TrimSpace(string(d.Priority)) == "" {
			missing = append(missing, "priority")
		}
		if strings.TrimSpace(d.CustomerID) == "" {
			missing = append(missing, "customerId")
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: missing required fields: %s", retry.ErrValidation, strings.Join(missing, ", "))
		}

		for _, m := range required {
			if !d.Compliance[m] {
				return fmt.Errorf("%w: compliance marker %q not satisfied", retry.ErrValidation, m)
			}
		}
		return nil
	}
}

// Chain runs validators in order and stops at the first failure.
func Chain(fns ...decision.ValidateFunc) decision.ValidateFunc {
	return func(d decision.Decision) error {
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if err := fn(d); err != nil {
				return err
			}
		}
		return nil
	}
}
