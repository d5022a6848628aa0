package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/RezaEskandarii/recurfire/app"
	"github.com/RezaEskandarii/recurfire/types"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print lifecycle events from the message broker",
	Long: `Consume the configured event queue and print one line per event
until interrupted. Requires RECURFIRE_EVENTS_ENABLED=true.`,
	RunE: runEvents,
}

func runEvents(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	c, err := app.NewContainer(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if c.MessageBroker == nil {
		return errors.New("event publishing is disabled, set RECURFIRE_EVENTS_ENABLED=true")
	}

	msgs, err := c.MessageBroker.Consume(ctx, cfg.RabbitMQConfig.Queue)
	if err != nil {
		return err
	}
	for msg := range msgs {
		var event types.RecurringJobEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			c.Logger.Warnw("undecodable event", "message_id", msg.ID, "error", err)
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatEvent(event))
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func formatEvent(e types.RecurringJobEvent) string {
	line := fmt.Sprintf("%s %-10s job=%d", e.At.Format("2006-01-02T15:04:05.000Z07:00"), e.Type, e.JobID)
	if e.JobName != "" {
		line += fmt.Sprintf(" name=%s", e.JobName)
	}
	if e.TaskID != 0 {
		line += fmt.Sprintf(" task=%d", e.TaskID)
	}
	if e.Reason != "" {
		line += fmt.Sprintf(" reason=%q", e.Reason)
	}
	return line + " instance=" + e.Instance
}
