package event

import "time"

// NotificationType tags every pushed message so dashboards can share a stream.
const NotificationType = "switch_game"

// Notification is the projection pushed to live clients.
type Notification struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Action    string     `json:"action"` // "started" | "finished"
	Game      GameInfo   `json:"game"`
	Player    PlayerInfo `json:"player"`
	Timestamp time.Time  `json:"timestamp"`
}

type GameInfo struct {
	Name    string `json:"name"`
	TitleID string `json:"titleId"`
	Image   string `json:"image,omitempty"`
}

type PlayerInfo struct {
	Serial          string `json:"serial"`
	ControllerCount int    `json:"controllerCount"`
}

// NewNotification projects ev for push delivery. image may be empty.
func NewNotification(ev ConsoleEvent, image string, maskSerial bool) Notification {
	serial := ev.Serial
	if maskSerial {
		serial = MaskSerial(serial)
	}
	return Notification{
		ID:     ev.ID,
		Type:   NotificationType,
		Action: verb(ev.Action),
		Game: GameInfo{
			Name:    ev.TitleName,
			TitleID: ev.TitleID,
			Image:   image,
		},
		Player: PlayerInfo{
			Serial:          serial,
			ControllerCount: ev.ControllerCount,
		},
		Timestamp: ev.ReceivedAt,
	}
}

func verb(a Action) string {
	if a == ActionLaunch {
		return "started"
	}
	return "finished"
}

// MaskSerial keeps the first three characters of a console serial.
func MaskSerial(serial string) string {
	if serial == "" {
		return ""
	}
	r := []rune(serial)
	if len(r) > 3 {
		r = r[:3]
	}
	return string(r) + "***"
}

// Masked returns a copy of ev with the serial masked.
func (e ConsoleEvent) Masked() ConsoleEvent {
	e.Serial = MaskSerial(e.Serial)
	return e
}
