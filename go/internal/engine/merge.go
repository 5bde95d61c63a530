package engine

import "github.com/mcdev12/planningroom/go/internal/models"

// Merge combines an authoritative snapshot with the ids currently online.
// The local participant is always online. The inputs are never modified.
func Merge(room *models.Room, online []string, selfID string) *models.Room {
	if room == nil {
		return nil
	}
	set := make(map[string]struct{}, len(online))
	for _, id := range online {
		set[id] = struct{}{}
	}

	out := room.Clone()
	for _, p := range out.Participants {
		_, ok := set[p.ID]
		p.IsOnline = ok || (selfID != "" && p.ID == selfID)
	}
	return out
}
