package lifecycle

import (
	"fmt"
	"strings"
)

// InvalidTransitionError reports an attempted status change that is not in
// the transition matrix, including every target that would have been legal.
type InvalidTransitionError struct {
	Entity   string
	EntityID string
	From     string
	To       string
	Allowed  []string
}

func (e *InvalidTransitionError) Error() string {
	allowed := "none"
	if len(e.Allowed) > 0 {
		allowed = strings.Join(e.Allowed, ", ")
	}
	id := ""
	if e.EntityID != "" {
		id = fmt.Sprintf(" (id %s)", e.EntityID)
	}
	return fmt.Sprintf("invalid %s transition%s: %s -> %s (allowed from %s: %s)",
		e.Entity, id, e.From, e.To, e.From, allowed)
}
