package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
	"github.com/gyaneshwarpardhi/switchrelay/internal/sender"
)

var sendFlags struct {
	url         string
	action      string
	serial      string
	titleID     string
	titleName   string
	controllers int
	exitAfter   time.Duration
	timeout     time.Duration
	insecure    bool
	userAgent   string
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Post a single Launch (or Exit) event to a relay",
	Example: `  relay send --url http://localhost:8080/webhook --title-name "Mario Kart 8 Deluxe" --controllers 4
  relay send --title-name Tetris --exit-after 5s`,
	RunE: runSend,
}

var simFlags struct {
	url      string
	serial   string
	delay    time.Duration
	timeout  time.Duration
	insecure bool
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Play a canned sequence of games against a relay",
	RunE:  runSimulate,
}

func init() {
	f := sendCmd.Flags()
	f.StringVar(&sendFlags.url, "url", "http://localhost:8080/webhook", "Relay webhook URL")
	f.StringVar(&sendFlags.action, "action", string(event.ActionLaunch), "Launch or Exit")
	f.StringVar(&sendFlags.serial, "serial", "XKK10006076602", "Console serial")
	f.StringVar(&sendFlags.titleID, "title-id", "0100152000022000", "Title ID")
	f.StringVar(&sendFlags.titleName, "title-name", "Mario Kart 8 Deluxe", "Title name")
	f.IntVar(&sendFlags.controllers, "controllers", 1, "Connected controller count")
	f.DurationVar(&sendFlags.exitAfter, "exit-after", 0, "If set, send the matching Exit after this long")
	f.DurationVar(&sendFlags.timeout, "timeout", sender.DefaultTimeout, "Request timeout")
	f.BoolVar(&sendFlags.insecure, "insecure", false, "Skip TLS certificate verification")
	f.StringVar(&sendFlags.userAgent, "user-agent", "", "Override the User-Agent header (some tunnels filter on it)")

	f = simulateCmd.Flags()
	f.StringVar(&simFlags.url, "url", "http://localhost:8080/webhook", "Relay webhook URL")
	f.StringVar(&simFlags.serial, "serial", "XKK10006076602", "Console serial")
	f.DurationVar(&simFlags.delay, "delay", 2*time.Second, "Pause between Launch and Exit, and between games")
	f.DurationVar(&simFlags.timeout, "timeout", sender.DefaultTimeout, "Request timeout")
	f.BoolVar(&simFlags.insecure, "insecure", false, "Skip TLS certificate verification")
}

func newClient(timeout time.Duration, insecure bool, userAgent string) *sender.Client {
	opts := []sender.Option{sender.WithTimeout(timeout)}
	if insecure {
		opts = append(opts, sender.WithInsecureTLS())
	}
	if userAgent != "" {
		opts = append(opts, sender.WithUserAgent(userAgent))
	}
	return sender.New(opts...)
}

func runSend(cmd *cobra.Command, args []string) error {
	action := event.Action(sendFlags.action)
	if !action.Valid() {
		return fmt.Errorf("--action must be %s or %s", event.ActionLaunch, event.ActionExit)
	}
	game := sender.Game{TitleID: sendFlags.titleID, TitleName: sendFlags.titleName, Controllers: sendFlags.controllers}
	client := newClient(sendFlags.timeout, sendFlags.insecure, sendFlags.userAgent)
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Sending %s for %q to %s\n", action, game.TitleName, sendFlags.url)
	resp, err := client.Send(cmd.Context(), sendFlags.url, game.Payload(action, sendFlags.serial))
	printStep(out, resp, err)
	if err != nil {
		return errSendFailed
	}

	if sendFlags.exitAfter > 0 && action == event.ActionLaunch {
		fmt.Fprintf(out, "Waiting %s before Exit...\n", sendFlags.exitAfter)
		select {
		case <-time.After(sendFlags.exitAfter):
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}
		resp, err = client.Send(cmd.Context(), sendFlags.url, game.Payload(event.ActionExit, sendFlags.serial))
		printStep(out, resp, err)
		if err != nil {
			return errSendFailed
		}
	}
	return nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	client := newClient(simFlags.timeout, simFlags.insecure, "")
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Simulating %d games against %s\n", len(sender.DefaultSequence), simFlags.url)

	failed := 0
	err := client.Simulate(cmd.Context(), simFlags.url, simFlags.serial, sender.DefaultSequence, simFlags.delay, func(s sender.Step) {
		fmt.Fprintf(out, "\n[%s] %s\n", s.Action, s.Game.TitleName)
		printStep(out, s.Response, s.Err)
		if s.Err != nil {
			failed++
		}
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nDone: %d sent, %d failed\n", len(sender.DefaultSequence)*2, failed)
	if failed > 0 {
		return errSendFailed
	}
	return nil
}

var errSendFailed = errors.New("one or more events were not accepted")

func printStep(out io.Writer, resp *sender.Response, err error) {
	if resp != nil && resp.StatusCode != 0 {
		fmt.Fprintf(out, "[STATUS] %d\n", resp.StatusCode)
	}
	var se *sender.Error
	switch {
	case errors.As(err, &se):
		fmt.Fprintf(out, "[ERROR] %v\n", se)
		if hint := se.Hint(); hint != "" {
			fmt.Fprintf(out, "[HINT] %s\n", hint)
		}
	case err != nil:
		fmt.Fprintf(out, "[ERROR] %v\n", err)
	default:
		fmt.Fprintf(out, "[SUCCESS] %s\n", resp.Message)
		fmt.Fprintf(out, "[CLIENTS] %d of %d clients notified\n", resp.ClientsNotified, resp.Clients)
	}
}
