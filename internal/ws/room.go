package ws

import (
	"hitch/internal/models"
)

// room is the set of live connections interested in one ride or delivery,
// plus a small ring buffer of recent events replayed to late joiners.
// Rooms carry no durable state; they die when the last subscriber leaves.
type room struct {
	id          string
	subscribers map[string]bool

	recent     []models.ServerEvent
	lastIndex  int
	maxRecords int
}

func newRoom(id string, maxRecords int) *room {
	return &room{
		id:          id,
		subscribers: make(map[string]bool),
		lastIndex:   -1,
		maxRecords:  maxRecords,
	}
}

// remember adds an event to the ring buffer, overwriting the oldest entry
// once the buffer is full.
func (r *room) remember(ev models.ServerEvent) {
	if r.maxRecords <= 0 {
		return
	}
	if len(r.recent) < r.maxRecords {
		r.recent = append(r.recent, ev)
		r.lastIndex++
		return
	}
	i := (r.lastIndex + 1) % r.maxRecords
	r.recent[i] = ev
	r.lastIndex = i
}

// replay returns the remembered events, oldest first.
func (r *room) replay() []models.ServerEvent {
	if len(r.recent) == 0 {
		return nil
	}

	result := make([]models.ServerEvent, 0, len(r.recent))
	head := 0
	if len(r.recent) == r.maxRecords {
		head = (r.lastIndex + 1) % r.maxRecords
	}
	for i := 0; i < len(r.recent); i++ {
		result = append(result, r.recent[(head+i)%len(r.recent)])
	}
	return result
}
