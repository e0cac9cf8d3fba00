// Package discord posts game session notifications to a Discord channel webhook.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/gyaneshwarpardhi/switchrelay/internal/action"
	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
)

const (
	Type = "discord"

	colorLaunch = 0x2ecc71
	colorExit   = 0x95a5a6
)

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type Thumbnail struct {
	URL string `json:"url"`
}

type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Thumbnail   *Thumbnail   `json:"thumbnail,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type Message struct {
	Content   string  `json:"content,omitempty"`
	Embeds    []Embed `json:"embeds,omitempty"`
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
}

// ImageFunc resolves box art for a title; it may return "".
type ImageFunc func(titleID, titleName string) string

type Action struct {
	client *resty.Client
	images ImageFunc
}

// New creates the executor. images may be nil.
func New(client *resty.Client, images ImageFunc) *Action {
	if client == nil {
		client = resty.New()
	}
	return &Action{client: client, images: images}
}

func (a *Action) Type() string { return Type }

func (a *Action) Validate(params map[string]interface{}) error {
	if _, err := action.URLParam(params, "url"); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

func (a *Action) Execute(ctx context.Context, actionID string, params map[string]interface{}, ev event.ConsoleEvent) (*action.Result, error) {
	target, err := action.URLParam(params, "url")
	if err != nil {
		return action.Failed(actionID, Type, err), err
	}
	timeout, _ := action.DurationMsParam(params, "timeout_ms", 10*time.Second)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg := a.Build(ev, params)
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		Post(target)
	if err != nil {
		err = fmt.Errorf("discord webhook: %w", err)
		return action.Failed(actionID, Type, err), err
	}
	if resp.IsError() {
		err := fmt.Errorf("discord API error: %d - %s", resp.StatusCode(), resp.String())
		res := action.Failed(actionID, Type, err)
		res.StatusCode = resp.StatusCode()
		return res, err
	}
	return &action.Result{
		ActionID:   actionID,
		Type:       Type,
		Success:    true,
		StatusCode: resp.StatusCode(),
		Message:    "discord notification sent",
	}, nil
}

// Build renders the webhook message for ev. Optional params: username, avatar_url.
func (a *Action) Build(ev event.ConsoleEvent, params map[string]interface{}) Message {
	title := "Now playing: " + ev.TitleName
	color := colorLaunch
	if ev.Action == event.ActionExit {
		title = "Finished playing: " + ev.TitleName
		color = colorExit
	}

	embed := Embed{
		Title: title,
		Color: color,
		Fields: []EmbedField{
			{Name: "Controllers", Value: fmt.Sprint(ev.ControllerCount), Inline: true},
			{Name: "Console", Value: orDash(event.MaskSerial(ev.Serial)), Inline: true},
		},
		Timestamp: ev.ReceivedAt.UTC().Format(time.RFC3339),
	}
	if ev.TitleID != "" {
		embed.Fields = append(embed.Fields, EmbedField{Name: "Title ID", Value: "`" + ev.TitleID + "`", Inline: true})
	}
	if a.images != nil {
		if img := a.images(ev.TitleID, ev.TitleName); img != "" {
			embed.Thumbnail = &Thumbnail{URL: img}
		}
	}

	msg := Message{Embeds: []Embed{embed}}
	msg.Username, _ = action.StringParam(params, "username")
	msg.AvatarURL, _ = action.StringParam(params, "avatar_url")
	return msg
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
