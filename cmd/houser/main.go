package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	houser_cmds "github.com/go-go-golems/houser/cmd/houser/cmds"
	journal_cmds "github.com/go-go-golems/houser/cmd/houser/cmds/journal"
	"github.com/go-go-golems/houser/pkg/config"
	"github.com/go-go-golems/houser/pkg/logging"
	"github.com/go-go-golems/houser/pkg/persistence/journal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:          "houser",
	Short:        "houser is a conversational real-estate search client",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ReadConfig(houser_cmds.AppName, viper.GetViper()); err != nil {
			return err
		}
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flags and the config file
		s, err := houser_cmds.LoadSettings()
		if err != nil {
			return err
		}
		return logging.InitLogger(s.Log)
	},
}

func initRootCmd() error {
	if err := config.InitViper(houser_cmds.AppName, rootCmd); err != nil {
		return err
	}
	if err := logging.InitLogger(logging.DefaultSettings()); err != nil {
		return err
	}

	rootCmd.AddCommand(houser_cmds.NewAskCommand())
	rootCmd.AddCommand(houser_cmds.NewChatCommand())
	rootCmd.AddCommand(houser_cmds.NewSearchCommand())
	rootCmd.AddCommand(houser_cmds.NewStatsCommand())
	rootCmd.AddCommand(houser_cmds.NewHelloCommand())
	rootCmd.AddCommand(houser_cmds.NewClassifyCommand())
	rootCmd.AddCommand(houser_cmds.NewResetCommand())
	rootCmd.AddCommand(houser_cmds.NewReplayCommand())
	rootCmd.AddCommand(houser_cmds.NewWatchCommand())
	rootCmd.AddCommand(houser_cmds.NewConfigGroupCommand())
	rootCmd.AddCommand(journal_cmds.NewJournalCommand(func(path string) (journal.Store, error) {
		return houser_cmds.OpenJournal(path)
	}))
	return nil
}

func main() {
	err := initRootCmd()
	cobra.CheckErr(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
