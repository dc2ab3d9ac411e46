package loop

import (
	"time"

	"objwatch/internal/models"
)

// presenceTracker turns per-cycle person sightings into a debounced
// present/absent state. A person stays present until no sighting has
// happened for longer than grace.
type presenceTracker struct {
	grace time.Duration
	state models.Presence
}

// observe updates the state for a cycle at t and reports whether IsPresent
// flipped.
func (p *presenceTracker) observe(t time.Time, personSeen bool) (models.Presence, bool) {
	was := p.state.IsPresent

	switch {
	case personSeen:
		p.state.IsPresent = true
		p.state.LastSeenAt = t
	case p.state.IsPresent && t.Sub(p.state.LastSeenAt) > p.grace:
		p.state.IsPresent = false
	}

	return p.state, was != p.state.IsPresent
}

func (p *presenceTracker) current() models.Presence {
	return p.state
}
