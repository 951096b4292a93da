package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/rpc"
)

// newSendCmd создаёт команду send.
func newSendCmd(s *settings) *cobra.Command {
	var headers map[string]string

	cmd := &cobra.Command{
		Use:   "send BODY|-",
		Short: "Publish one message (\"-\" reads the body from stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := []byte(args[0])
			if args[0] == "-" {
				var err error
				body, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}

			pub, err := s.publisher(s.cfg.AMQP.DeclareMode())
			if err != nil {
				return err
			}
			defer pub.Close()

			table := make(amqp.Table, len(headers))
			for k, v := range headers {
				table[k] = v
			}

			err = pub.Send(cmd.Context(), body, mq.SendOptions{
				ContentType: s.cfg.Publisher.ContentType,
				Headers:     table,
			})
			if err != nil {
				return err
			}

			s.output().Note("Sent %d bytes to %s", len(body), target(s))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&s.flags.Publisher.Exchange, "exchange", "", `exchange to publish to ("" is the default exchange)`)
	f.StringVar(&s.flags.Publisher.RoutingKey, "routing-key", "", "routing key (default: queue name)")
	f.IntVar(&s.flags.Publisher.Priority, "priority", s.flags.Publisher.Priority, "message priority, 0..3")
	f.StringVar(&s.flags.Publisher.ContentType, "content-type", s.flags.Publisher.ContentType, "message content type")
	f.BoolVar(&s.flags.Publisher.DisableResend, "no-resend", false, "do not reconnect and re-send after a connection error")
	f.StringToStringVar(&headers, "header", nil, "message header key=value (repeatable)")

	return cmd
}

// newCallCmd создаёт команду call.
func newCallCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call METHOD [ARGS_JSON [KWARGS_JSON]]",
		Short: "Publish a method call [method, args, kwargs]",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := args[0]

			var callArgs []any
			if len(args) > 1 {
				if err := decodeJSON(args[1], &callArgs); err != nil {
					return fmt.Errorf("args must be a JSON array: %w", err)
				}
			}

			var kwargs map[string]any
			if len(args) > 2 {
				if err := decodeJSON(args[2], &kwargs); err != nil {
					return fmt.Errorf("kwargs must be a JSON object: %w", err)
				}
			}

			pub, err := s.publisher(s.cfg.AMQP.DeclareMode())
			if err != nil {
				return err
			}
			defer pub.Close()

			client, err := rpc.NewClient(pub, rpc.Method{Name: method})
			if err != nil {
				return err
			}
			if err := client.Call(cmd.Context(), method, callArgs, kwargs); err != nil {
				return err
			}

			s.output().Note("Called %s on %s", method, target(s))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&s.flags.Publisher.Exchange, "exchange", "", `exchange to publish to ("" is the default exchange)`)
	f.StringVar(&s.flags.Publisher.RoutingKey, "routing-key", "", "routing key (default: queue name)")
	f.IntVar(&s.flags.Publisher.Priority, "priority", s.flags.Publisher.Priority, "message priority, 0..3")

	return cmd
}

// planRow — строка вывода plan.
type planRow struct {
	Kind      string     `json:"kind"`
	Name      string     `json:"name"`
	Arguments amqp.Table `json:"arguments,omitempty"`
}

// newPlanCmd создаёт команду plan: показать топологию без подключения.
func newPlanCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the queue topology conveyor declares",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			plan := mq.Plan(s.cfg.AMQP.Queue, s.cfg.AMQP.DeadsDisabled)

			var items []planRow
			if plan.DeadsEnabled() {
				items = append(items,
					planRow{Kind: "exchange (" + amqp.ExchangeDirect + ")", Name: plan.DeadExchange},
					planRow{Kind: "queue", Name: plan.DeadQueue, Arguments: plan.DeadQueueArgs},
					planRow{Kind: "binding", Name: plan.DeadQueue + " <- " + plan.DeadExchange + " [" + plan.DeadQueue + "]"},
				)
			}
			items = append(items, planRow{Kind: "queue", Name: plan.MainQueue, Arguments: plan.QueueArgs})

			rows := make([][]string, len(items))
			for i, it := range items {
				rows[i] = []string{it.Kind, it.Name, formatArgs(it.Arguments)}
			}

			return s.output().Rows([]string{"KIND", "NAME", "ARGUMENTS"}, rows, items)
		},
	}
}

func target(s *settings) string {
	key := s.cfg.Publisher.RoutingKey
	if key == "" {
		key = s.cfg.AMQP.Queue
	}
	if s.cfg.Publisher.Exchange == "" {
		return key
	}
	return s.cfg.Publisher.Exchange + "/" + key
}

func decodeJSON(s string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	return dec.Decode(v)
}
