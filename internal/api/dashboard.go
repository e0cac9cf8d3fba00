package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/xeonx/timeago"

	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
)

//go:embed templates/dashboard.html
var dashboardSource string

var dashboardTemplate = pongo2.Must(pongo2.FromString(dashboardSource))

type dashboardRow struct {
	Class       string
	Time        string
	Ago         string
	Action      string
	TitleName   string
	TitleID     string
	Controllers int
	Serial      string
	Image       string
}

func newDashboardRow(ev event.ConsoleEvent, image string, now time.Time) dashboardRow {
	class := "launch"
	if ev.Action == event.ActionExit {
		class = "exit"
	}
	return dashboardRow{
		Class:       class,
		Time:        ev.ReceivedAt.Local().Format(time.TimeOnly),
		Ago:         timeago.English.FormatReference(ev.ReceivedAt, now),
		Action:      string(ev.Action),
		TitleName:   ev.TitleName,
		TitleID:     ev.TitleID,
		Controllers: ev.ControllerCount,
		Serial:      ev.Serial,
		Image:       image,
	}
}

// GET / renders the live dashboard. New events arrive over /events.
func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	history := h.svc.History(h.relayConf().StatusLimit)
	now := h.svc.Now()
	rows := make([]dashboardRow, 0, len(history))
	for _, ev := range history {
		rows = append(rows, newDashboardRow(ev, h.svc.Image(ev.TitleID, ev.TitleName), now))
	}
	stats := h.svc.Stats()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := dashboardTemplate.ExecuteWriter(pongo2.Context{
		"events":      rows,
		"clients":     stats.Clients,
		"total":       stats.Stored,
		"capacity":    stats.Capacity,
		"webhook_url": "http://" + r.Host + "/webhook",
	}, w)
	if err != nil {
		slog.Error("render dashboard", "err", err)
	}
}
