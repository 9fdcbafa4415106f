package cmds

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-go-golems/houser/pkg/assembler"
	"github.com/go-go-golems/houser/pkg/frame"
	"github.com/go-go-golems/houser/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type replayOptions struct {
	chunkSize int
	verbose   bool
	asJSON    bool
}

// replay feeds a captured event stream through the decoder and assembler.
func replay(ctx context.Context, r io.Reader, out io.Writer, printer *answerPrinter, opts replayOptions, decOpts ...frame.Option) (assembler.Outcome, frame.Stats, error) {
	decOpts = append(decOpts, frame.WithDecodeErrorHandler(func(e *frame.DecodeError) {
		if opts.verbose {
			_, _ = fmt.Fprintf(out, "# line %d dropped: %v\n", e.Line, e.Err)
		}
	}))
	dec := frame.NewDecoder(frame.NewReaderSource(r, opts.chunkSize), decOpts...)
	stream := assembler.New(dec, session.New(), assembler.WithRequestID("replay"))
	defer func() { _ = stream.Close() }()

	o, err := stream.Drain(ctx, func(s assembler.Snapshot) {
		switch {
		case opts.asJSON:
			if err := writeJSON(out, s); err != nil {
				log.Warn().Err(err).Msg("failed to write snapshot")
			}
		case opts.verbose:
			_, _ = fmt.Fprintf(out, "# seq=%d trigger=%s status=%q text=%d results=%d\n",
				s.Seq, s.Trigger, s.Status, len(s.TextContent), len(s.ResultItems))
		default:
			printer.OnSnapshot(s)
		}
	})
	return o, dec.Stats(), err
}

func NewReplayCommand() *cobra.Command {
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Replay a captured event stream offline",
		Long: `Replay a captured text/event-stream body through the decoder and the
answer assembler, without contacting the backend. --chunk-size splits the
input into fixed-size reads to reproduce fragmentation issues.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := LoadSettings()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, "open transcript")
			}
			defer func() { _ = f.Close() }()

			renderer, err := newRenderer(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			printer := newAnswerPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), renderer)
			o, stats, err := replay(cmd.Context(), f, cmd.OutOrStdout(), printer, opts, s.DecoderOptions()...)
			if err != nil {
				return err
			}
			if !opts.asJSON {
				if err := printer.Finish(o); err != nil {
					return err
				}
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "outcome=%s bytes=%d lines=%d events=%d dropped=%d ignored=%d\n",
				o.Kind, stats.Bytes, stats.Lines, stats.Events, stats.Dropped, stats.Ignored)
			return outcomeError(o)
		},
	}
	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", 0, "Read the file in chunks of this many bytes (0 uses the default)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print one line per snapshot and dropped lines")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print every snapshot as JSON")
	return cmd
}
