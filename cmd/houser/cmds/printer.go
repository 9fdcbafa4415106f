package cmds

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/houser/pkg/assembler"
	"github.com/go-go-golems/houser/pkg/render"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
)

// answerPrinter writes a streamed answer to a terminal or pipe: text as it
// arrives, status changes on the error stream, and the structured part of
// the answer once the stream ends.
type answerPrinter struct {
	out      io.Writer
	status   io.Writer
	renderer *render.Renderer

	printed    string
	lastStatus string
}

func newAnswerPrinter(out, status io.Writer, renderer *render.Renderer) *answerPrinter {
	return &answerPrinter{out: out, status: status, renderer: renderer}
}

func (p *answerPrinter) OnSnapshot(s assembler.Snapshot) {
	if s.Status != "" && s.Status != p.lastStatus && !s.IsTerminal && p.status != nil {
		_, _ = fmt.Fprintln(p.status, render.DimStyle.Render(s.Status))
		p.lastStatus = s.Status
	}
	text := s.TextContent
	switch {
	case text == p.printed:
	case strings.HasPrefix(text, p.printed):
		_, _ = io.WriteString(p.out, text[len(p.printed):])
	default:
		// the answer text was replaced wholesale
		if p.printed != "" {
			_, _ = io.WriteString(p.out, "\n")
		}
		_, _ = io.WriteString(p.out, text)
	}
	p.printed = text
}

// Finish prints everything but the already streamed text.
func (p *answerPrinter) Finish(o assembler.Outcome) error {
	if p.printed != "" && !strings.HasSuffix(p.printed, "\n") {
		_, _ = io.WriteString(p.out, "\n")
	}
	rest := o.Snapshot
	rest.TextContent = ""
	md := render.Markdown(rest)
	if strings.TrimSpace(md) == "" {
		return nil
	}
	out, err := p.renderer.Markdown(md)
	if err != nil {
		return err
	}
	if p.printed != "" {
		_, _ = io.WriteString(p.out, "\n")
	}
	_, err = io.WriteString(p.out, out)
	return err
}

// Reset prepares the printer for the next answer.
func (p *answerPrinter) Reset() {
	p.printed = ""
	p.lastStatus = ""
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal json")
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// newRenderer styles markdown for terminals and leaves it plain for pipes.
func newRenderer(w io.Writer) (*render.Renderer, error) {
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		return render.NewRenderer(render.WithStyle(render.StyleDark))
	}
	return render.NewRenderer(render.WithStyle(render.StylePlain))
}

// outcomeError turns a failed outcome into the command's error.
func outcomeError(o assembler.Outcome) error {
	switch o.Kind {
	case assembler.OutcomeServerError, assembler.OutcomeTransportError:
		return errors.Errorf("request failed: %s", o.Snapshot.FailureMessage())
	}
	return nil
}
