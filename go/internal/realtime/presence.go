package realtime

import (
	"context"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/mcdev12/planningroom/go/internal/events"
)

// Presence is the set of participant ids believed online right now.
// A sync replaces the set, join and leave adjust it. Not safe for concurrent use.
type Presence struct {
	ids map[string]struct{}
}

// NewPresence creates an empty presence set
func NewPresence() *Presence {
	return &Presence{ids: make(map[string]struct{})}
}

// Apply folds a presence event into the set. It reports whether ev was a presence event.
func (p *Presence) Apply(ev events.Envelope) bool {
	switch ev.Type {
	case events.KindPresenceSync:
		p.Sync(ev.ParticipantIDs)
	case events.KindPresenceJoin:
		p.Join(ev.ParticipantID)
	case events.KindPresenceLeave:
		p.Leave(ev.ParticipantID)
	default:
		return false
	}
	return true
}

func (p *Presence) Sync(ids []string) {
	p.ids = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			p.ids[id] = struct{}{}
		}
	}
}

func (p *Presence) Join(id string) {
	if id != "" {
		p.ids[id] = struct{}{}
	}
}

func (p *Presence) Leave(id string) {
	delete(p.ids, id)
}

func (p *Presence) Has(id string) bool {
	_, ok := p.ids[id]
	return ok
}

// IDs returns the set sorted.
func (p *Presence) IDs() []string {
	out := make([]string, 0, len(p.ids))
	for id := range p.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// runHeartbeat calls beat every interval until ctx is done. Failures are logged and skipped.
func runHeartbeat(ctx context.Context, clock clockwork.Clock, interval time.Duration, logger zerolog.Logger, beat func(context.Context) error) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := beat(ctx); err != nil && ctx.Err() == nil {
				logger.Warn().Err(err).Msg("heartbeat failed")
			}
		}
	}
}
