package sender

import (
	"context"
	"time"

	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
)

// Game is one title in the canned play sequence.
type Game struct {
	TitleID     string
	TitleName   string
	Controllers int
}

// DefaultSequence mirrors a typical evening on a cafe console.
var DefaultSequence = []Game{
	{TitleID: "0100152000022000", TitleName: "Mario Kart 8 Deluxe", Controllers: 4},
	{TitleID: "01007EF00011E000", TitleName: "The Legend of Zelda: Breath of the Wild", Controllers: 1},
	{TitleID: "01006A800016E000", TitleName: "Super Smash Bros. Ultimate", Controllers: 8},
	{TitleID: "01006F8002326000", TitleName: "Animal Crossing: New Horizons", Controllers: 1},
	{TitleID: "0100ABF008968000", TitleName: "Pokemon Sword", Controllers: 1},
}

// Step is reported after every send.
type Step struct {
	Game     Game
	Action   event.Action
	Response *Response
	Err      error
}

// Payload builds the body a console would send for g.
func (g Game) Payload(action event.Action, serial string) event.Payload {
	n := float64(g.Controllers)
	return event.Payload{
		Serial:          serial,
		HOSVersion:      "20.4.0",
		AMSVersion:      "1.9.4",
		Action:          string(action),
		TitleID:         g.TitleID,
		TitleVersion:    "1.0.0",
		TitleName:       g.TitleName,
		ControllerCount: &n,
	}
}

// Simulate plays each game: Launch, wait delay, Exit, wait delay again.
// Send failures are reported and do not stop the run; ctx cancellation does.
func (c *Client) Simulate(ctx context.Context, url, serial string, games []Game, delay time.Duration, report func(Step)) error {
	for i, g := range games {
		for _, a := range []event.Action{event.ActionLaunch, event.ActionExit} {
			resp, err := c.Send(ctx, url, g.Payload(a, serial))
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if report != nil {
				report(Step{Game: g, Action: a, Response: resp, Err: err})
			}
			if a == event.ActionExit && i == len(games)-1 {
				break
			}
			if err := wait(ctx, delay); err != nil {
				return err
			}
		}
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
