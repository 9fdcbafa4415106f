package cmds

import (
	"fmt"

	"github.com/go-go-golems/houser/pkg/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// commands for the config file
//
// - show: the resolved settings, after env vars and flags
// - list/get/set/delete: keys of the config file itself

func NewConfigGroupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the configuration",
	}
	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigListCommand())
	cmd.AddCommand(newConfigGetCommand())
	cmd.AddCommand(newConfigSetCommand())
	cmd.AddCommand(newConfigDeleteCommand())
	return cmd
}

func getEditor() (*config.Editor, error) {
	path, err := config.ConfigPath(AppName, viper.GetViper())
	if err != nil {
		return nil, err
	}
	log.Debug().Str("config_path", path).Msg("using config file")
	editor, err := config.NewEditor(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not create config editor")
	}
	return editor, nil
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved settings as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := LoadSettings()
			if err != nil {
				return err
			}
			if used := viper.ConfigFileUsed(); used != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", used)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(s); err != nil {
				return errors.Wrap(err, "encode settings")
			}
			return enc.Close()
		},
	}
}

func newConfigListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the keys set in the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			editor, err := getEditor()
			if err != nil {
				return err
			}
			values := editor.List()
			for pair := values.Oldest(); pair != nil; pair = pair.Next() {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", pair.Key, pair.Value)
			}
			return nil
		},
	}
}

func newConfigGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one key of the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			editor, err := getEditor()
			if err != nil {
				return err
			}
			v, ok, err := editor.Get(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return errors.Errorf("%s is not set in %s", args[0], editor.Path())
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
			return err
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a key in the config file, e.g. set redis.enabled true",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			editor, err := getEditor()
			if err != nil {
				return err
			}
			if err := editor.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := editor.Save(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", args[0], editor.Path())
			return nil
		},
	}
}

func newConfigDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a key from the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			editor, err := getEditor()
			if err != nil {
				return err
			}
			if err := editor.Delete(args[0]); err != nil {
				return err
			}
			return editor.Save()
		},
	}
}
