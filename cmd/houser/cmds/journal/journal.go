package journal

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/go-go-golems/houser/pkg/config"
	persist "github.com/go-go-golems/houser/pkg/persistence/journal"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Opener opens the journal store; the root command injects it.
type Opener func(path string) (persist.Store, error)

func journalPath(flagPath string) (string, error) {
	path := flagPath
	if path == "" {
		s, err := config.Load(viper.GetViper())
		if err != nil {
			return "", err
		}
		path = s.JournalPath
	}
	if path == "" {
		return "", errors.New("no journal configured; pass --journal or set journal in the config")
	}
	return path, nil
}

func NewJournalCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect recorded answer snapshots",
	}
	cmd.AddCommand(newListCommand(open))
	cmd.AddCommand(newBrowseCommand(open))
	return cmd
}

func formatMs(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

func printConversations(w io.Writer, convs []persist.ConversationSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CONVERSATION\tREQUESTS\tSNAPSHOTS\tFAILED\tLAST OUTCOME\tLAST SEEN")
	for _, c := range convs {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%s\n",
			c.ConvID, c.Requests, c.Snapshots, c.FailedOutcome, c.LastOutcome, formatMs(c.LastSeenMs))
	}
	return tw.Flush()
}

func printEntries(w io.Writer, entries []persist.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "REQUEST\tSEQ\tTRIGGER\tOUTCOME\tCREATED\tHASH")
	for _, e := range entries {
		hash := e.ContentHash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			e.RequestID, e.Seq, e.Trigger, e.Outcome, formatMs(e.CreatedAtMs), hash)
	}
	return tw.Flush()
}

type listOptions struct {
	path         string
	convID       string
	requestID    string
	terminalOnly bool
	limit        int
	payload      bool
}

func runList(ctx context.Context, store persist.Store, w io.Writer, opts listOptions) error {
	if opts.convID == "" && opts.requestID == "" {
		convs, err := store.Conversations(ctx, opts.limit)
		if err != nil {
			return err
		}
		return printConversations(w, convs)
	}
	entries, err := store.List(ctx, persist.Query{
		ConvID:       opts.convID,
		RequestID:    opts.requestID,
		TerminalOnly: opts.terminalOnly,
		Limit:        opts.limit,
	})
	if err != nil {
		return err
	}
	if !opts.payload {
		return printEntries(w, entries)
	}
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "--- # %s #%d %s\n%s", e.RequestID, e.Seq, e.Trigger, e.Payload)
	}
	return nil
}

func newListCommand(open Opener) *cobra.Command {
	var opts listOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, or the snapshots of one conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := journalPath(opts.path)
			if err != nil {
				return err
			}
			store, err := open(path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			return runList(cmd.Context(), store, cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.path, "file", "", "Journal file (defaults to the journal setting)")
	cmd.Flags().StringVar(&opts.convID, "conv", "", "Conversation id")
	cmd.Flags().StringVar(&opts.requestID, "request", "", "Request id")
	cmd.Flags().BoolVar(&opts.terminalOnly, "terminal-only", false, "Only show terminal snapshots")
	cmd.Flags().IntVar(&opts.limit, "limit", 50, "Maximum number of rows")
	cmd.Flags().BoolVar(&opts.payload, "payload", false, "Print snapshot payloads")
	return cmd
}
