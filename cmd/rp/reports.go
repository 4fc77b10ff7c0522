package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/alfredjeanlab/reg2progress/internal/events"
	"github.com/alfredjeanlab/reg2progress/internal/ui"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Download the meeting report for a date range as XLSX",
	GroupID: "reports",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start, _ := cmd.Flags().GetString("start")
		end, _ := cmd.Flags().GetString("end")
		outDir, _ := cmd.Flags().GetString("out")

		file, err := clinicClient.Export(context.Background(), start, end)
		if err != nil {
			return err
		}
		name := file.Name
		if name == "" {
			name = fmt.Sprintf("meetings_%s_to_%s.xlsx", start, end)
		}
		path := filepath.Join(outDir, filepath.Base(name))
		if err := os.WriteFile(path, file.Data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"path":     path,
				"meetings": file.Meetings,
				"bytes":    len(file.Data),
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d meetings)\n", path, file.Meetings)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show unresolved issue counts and the monthly trend",
	GroupID: "reports",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := clinicClient.Stats(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), d)
		}
		printDashboard(cmd.OutOrStdout(), d)
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:     "events",
	Short:   "Inspect recorded events",
	GroupID: "reports",
}

var eventsListCmd = &cobra.Command{
	Use:   "list <subject-id>",
	Short: "List the events recorded for an issue or meeting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		evts, err := clinicClient.GetEvents(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), evts)
		}
		printEvents(cmd.OutOrStdout(), evts)
		return nil
	},
}

var eventsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print events from the NATS bus as they are published",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats-url")
		if natsURL == "" {
			natsURL = os.Getenv("RP_NATS_URL")
		}
		if natsURL == "" {
			natsURL = activeProfile().NATSURL
		}
		if natsURL == "" {
			return fmt.Errorf("no NATS URL: pass --nats-url, set RP_NATS_URL, or add one to the profile")
		}
		topic, _ := cmd.Flags().GetString("topic")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		stderr := cmd.ErrOrStderr()
		sub, err := events.NewNATSSubscriber(natsURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					fmt.Fprintf(stderr, "NATS disconnected: %v\n", err)
				}
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				fmt.Fprintln(stderr, "NATS reconnected")
			}),
		)
		if err != nil {
			return err
		}
		defer sub.Close()
		return watchEvents(ctx, cmd, sub, topic)
	},
}

// watchEvents prints each event received on topic until ctx is done or
// the subscription closes.
func watchEvents(ctx context.Context, cmd *cobra.Command, sub events.Subscriber, topic string) error {
	ch, cancel, err := sub.Subscribe(topic)
	if err != nil {
		return err
	}
	defer cancel()

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl-C to stop)\n", topic)
	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if jsonOutput {
				fmt.Fprintf(out, "{\"topic\":%q,\"event\":%s}\n", msg.Topic, msg.Data)
				continue
			}
			fmt.Fprintf(out, "%s  %s  %s\n",
				ui.RenderMuted(time.Now().Format(time.TimeOnly)),
				ui.RenderAccent(msg.Topic),
				msg.Data)
		}
	}
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the clinic tracker service",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := clinicClient.Health(context.Background())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := printJSON(out, h); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(out, "Health:   %s\n", h.Status)
			fmt.Fprintf(out, "Meeting:  %s\n", h.Meeting)
			if h.Snapshot != nil {
				fmt.Fprintf(out, "Snapshot: %s (%d bytes)\n", h.Snapshot.At.Local().Format(dateTimeFormat), h.Snapshot.Bytes)
				for dest, msg := range h.Snapshot.Failed {
					fmt.Fprintf(out, "  %s failed: %s\n", dest, msg)
				}
			}
		}

		if h.Status != "ok" {
			return fmt.Errorf("unhealthy: %s", h.Status)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("start", "", "first day of the range (YYYY-MM-DD)")
	exportCmd.Flags().String("end", "", "last day of the range (YYYY-MM-DD)")
	exportCmd.Flags().StringP("out", "o", ".", "directory to write the report to")
	_ = exportCmd.MarkFlagRequired("start")
	_ = exportCmd.MarkFlagRequired("end")

	eventsWatchCmd.Flags().String("nats-url", "", "NATS server URL (RP_NATS_URL or the profile's nats_url)")
	eventsWatchCmd.Flags().String("topic", events.TopicAll, "topic to watch (NATS wildcards allowed)")

	eventsCmd.AddCommand(eventsListCmd, eventsWatchCmd)
}
