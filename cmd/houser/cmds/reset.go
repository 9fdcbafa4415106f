package cmds

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
)

func NewResetCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the server-side search cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				if !isTerminal(os.Stdin) {
					return errors.New("refusing to clear the cache without --yes on a non-interactive input")
				}
				ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Clear the server cache? [y/N]")
				if err != nil {
					return err
				}
				if !ok {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			s, err := LoadSettings()
			if err != nil {
				return err
			}
			c, err := NewClient(s)
			if err != nil {
				return err
			}
			msg, err := c.ClearCache(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), firstNonEmpty(msg, "Cache cleared."))
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

// confirm asks a yes/no question, defaulting to no.
func confirm(r io.Reader, w io.Writer, query string) (bool, error) {
	ui := &input.UI{Writer: w, Reader: r}
	answer, err := ui.Ask(query, &input.Options{
		Default:     "n",
		HideDefault: true,
		Loop:        true,
		ValidateFunc: func(answer string) error {
			switch strings.ToLower(answer) {
			case "y", "yes", "n", "no", "":
				return nil
			default:
				return errors.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to get user input")
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
