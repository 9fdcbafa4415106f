package cmds

import (
	"context"
	"fmt"
	"io"

	"github.com/go-go-golems/houser/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func formatSnapshotMessage(m redisstream.SnapshotMessage) string {
	line := fmt.Sprintf("%s %s #%d", m.ConvID, m.RequestID, m.Seq)
	if m.Outcome != "" {
		line += " [" + m.Outcome + "]"
	}
	if status, _ := m.Snapshot["status"].(string); status != "" {
		line += " " + status
	}
	if text, _ := m.Snapshot["text_content"].(string); text != "" {
		if len(text) > 80 {
			text = text[:77] + "..."
		}
		line += fmt.Sprintf(" %q", text)
	}
	if items, _ := m.Snapshot["result_items"].([]any); len(items) > 0 {
		line += fmt.Sprintf(" results=%d", len(items))
	}
	return line
}

func watchSnapshots(ctx context.Context, bus *redisstream.Bus, out io.Writer, asJSON bool) error {
	return redisstream.Consume(ctx, bus.Subscriber, bus.Topic, func(m redisstream.SnapshotMessage) {
		if asJSON {
			_ = writeJSON(out, m)
			return
		}
		_, _ = fmt.Fprintln(out, formatSnapshotMessage(m))
	})
}

func NewWatchCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow snapshots published by other houser sessions",
		Long: `Follow answer snapshots that chat sessions publish to Redis Streams.
Requires redis.enabled in the config (or HOUSER_REDIS_ENABLED=true).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := LoadSettings()
			if err != nil {
				return err
			}
			if !s.Redis.Enabled {
				return errors.New("redis is disabled; set redis.enabled to watch snapshots")
			}
			if err := redisstream.EnsureGroupAtTail(cmd.Context(), s.Redis.Addr, s.Redis.Topic, s.Redis.Group); err != nil {
				return errors.Wrap(err, "create consumer group")
			}
			bus, err := redisstream.BuildBus(s.Redis)
			if err != nil {
				return err
			}
			defer func() { _ = bus.Close() }()
			return watchSnapshots(cmd.Context(), bus, cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print messages as JSON")
	return cmd
}
