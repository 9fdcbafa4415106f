package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/houser/pkg/client"
	"github.com/go-go-golems/houser/pkg/conversation"
	"github.com/go-go-golems/houser/pkg/render"
	"github.com/go-go-golems/houser/pkg/ui"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func NewChatCommand() *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: `Start an interactive conversation with the search assistant.

On a terminal this opens a full-screen chat; otherwise lines are read from
stdin. Commands: /new starts over, /copy copies the last answer, /quit exits.`,
		Args: cobra.NoArgs,
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

			if !plain && isTerminal(os.Stdin) && isTerminal(os.Stdout) {
				return runChatTUI(cmd.Context(), rt.Conversation)
			}
			renderer, err := newRenderer(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			r := &repl{
				conv:    rt.Conversation,
				in:      cmd.InOrStdin(),
				out:     cmd.OutOrStdout(),
				printer: newAnswerPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), renderer),
				copyFn:  clipboard.WriteAll,
			}
			return r.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Use the line-based chat even on a terminal")
	return cmd
}

func runChatTUI(ctx context.Context, conv *conversation.Conversation) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	renderer, err := render.NewRenderer(render.WithStyle(render.StyleDark))
	if err != nil {
		return err
	}
	p := tea.NewProgram(ui.NewChatModel(ctx, conv, renderer), tea.WithAltScreen())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		_, err := p.Run()
		return errors.Wrap(err, "chat ui")
	})
	g.Go(func() error {
		<-gctx.Done()
		conv.Cancel()
		p.Quit()
		return nil
	})
	return g.Wait()
}

// repl is the line-based chat used when stdin or stdout is not a terminal.
type repl struct {
	conv    *conversation.Conversation
	in      io.Reader
	out     io.Writer
	printer *answerPrinter
	copyFn  func(string) error

	lastAnswer string
}

func (r *repl) Run(ctx context.Context) error {
	_, _ = fmt.Fprintln(r.out, ui.Greeting)
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		_, _ = fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(r.out)
			return errors.Wrap(scanner.Err(), "read input")
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case ui.CommandQuit:
			return nil
		case ui.CommandNew:
			if err := r.conv.NewChat(ctx); err != nil {
				return err
			}
			r.lastAnswer = ""
			_, _ = fmt.Fprintln(r.out, ui.Greeting)
			continue
		case ui.CommandCopy:
			if r.lastAnswer == "" {
				_, _ = fmt.Fprintln(r.out, "Nothing to copy yet.")
			} else if err := r.copyFn(r.lastAnswer); err != nil {
				_, _ = fmt.Fprintf(r.out, "Copy failed: %v\n", err)
			} else {
				_, _ = fmt.Fprintln(r.out, "Copied last answer.")
			}
			continue
		}

		r.printer.Reset()
		o, err := r.conv.Ask(ctx, line, r.printer.OnSnapshot)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, client.ErrEmptyMessage):
			continue
		case err != nil:
			log.Warn().Err(err).Msg("chat request failed")
			_, _ = fmt.Fprintf(r.out, "Error: %v\n", err)
			continue
		}
		if err := r.printer.Finish(o); err != nil {
			return err
		}
		if md := strings.TrimSpace(render.Markdown(o.Snapshot)); md != "" {
			r.lastAnswer = md
		}
	}
}
