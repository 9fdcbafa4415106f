package cmds

import (
	"context"
	"strings"

	"github.com/go-go-golems/houser/pkg/conversation"
	"github.com/spf13/cobra"
)

func NewAskCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask <message...>",
		Short: "Ask one question and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := LoadSettings()
			if err != nil {
				return err
			}
			rt, err := NewRuntime(s)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			message := strings.Join(args, " ")
			if asJSON {
				o, err := rt.Conversation.Ask(cmd.Context(), message, nil)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), o.Snapshot); err != nil {
					return err
				}
				return outcomeError(o)
			}

			renderer, err := newRenderer(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			p := newAnswerPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), renderer)
			return askAndPrint(cmd.Context(), rt.Conversation, message, p)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the final snapshot as JSON")
	return cmd
}

func askAndPrint(ctx context.Context, conv *conversation.Conversation, message string, p *answerPrinter) error {
	p.Reset()
	o, err := conv.Ask(ctx, message, p.OnSnapshot)
	if err != nil {
		return err
	}
	if err := p.Finish(o); err != nil {
		return err
	}
	return outcomeError(o)
}
