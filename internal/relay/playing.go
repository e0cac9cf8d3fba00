package relay

import (
	"sort"
	"time"

	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
)

// Session is a title currently running on one console.
type Session struct {
	Serial          string    `json:"serial"`
	TitleID         string    `json:"title_id"`
	TitleName       string    `json:"title_name"`
	Image           string    `json:"image,omitempty"`
	ControllerCount int       `json:"controller_count"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds int64     `json:"duration_seconds"`
}

// NowPlaying replays retained history to find, per console, a Launch that has
// not been followed by an Exit. Consoles that report no serial share one slot.
// Results are ordered by most recent launch first.
func (s *Service) NowPlaying() []Session {
	open := make(map[string]event.ConsoleEvent)
	for _, ev := range s.store.Chronological() {
		switch ev.Action {
		case event.ActionLaunch:
			open[ev.Serial] = ev
		case event.ActionExit:
			cur, ok := open[ev.Serial]
			if ok && (ev.TitleID == "" || cur.TitleID == "" || cur.TitleID == ev.TitleID) {
				delete(open, ev.Serial)
			}
		}
	}

	now := s.now()
	out := make([]Session, 0, len(open))
	for _, ev := range open {
		view := s.View(ev)
		out = append(out, Session{
			Serial:          view.Serial,
			TitleID:         ev.TitleID,
			TitleName:       ev.TitleName,
			Image:           s.Image(ev.TitleID, ev.TitleName),
			ControllerCount: ev.ControllerCount,
			StartedAt:       ev.ReceivedAt,
			DurationSeconds: int64(now.Sub(ev.ReceivedAt) / time.Second),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}
