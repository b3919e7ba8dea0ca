package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/agentflow/internal/mq"
)

// ErrNoBroker — брокер событий не настроен.
var ErrNoBroker = errors.New("event broker is not configured (set amqp.url)")

// NewEventsCmd создаёт команду чтения событий жизненного цикла из RabbitMQ.
func NewEventsCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "events [PATTERN...]",
		Short: "Tail workflow lifecycle events",
		Long: `Tail workflow lifecycle events published to the agentflow.events exchange.

Patterns are AMQP topic routing keys, for example "task.*" or "workflow.finished".
Without patterns all events are shown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			a, err := openApp(cmd.Context(), appFn)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Events == nil {
				return ErrNoBroker
			}

			sub := mq.NewSubscriber(a.Events, a.Logger, args, printEvent(out))
			if err := sub.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func printEvent(out *Output) mq.Handler {
	return func(_ context.Context, msg *mq.Message) error {
		if out.JSONMode() {
			out.JSON(msg)
			return nil
		}
		_, err := fmt.Fprintf(out.Writer(), "%s  %-18s %s\n",
			msg.Timestamp.Local().Format(time.RFC3339), msg.Type, msg.Payload)
		return err
	}
}
