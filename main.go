package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mchat/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var configFile string

	rootCmd := &cobra.Command{
		Use:          "mchat",
		Short:        "mchat is a terminal chat client with a development relay",
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd, v, chatFlags)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), v, configFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./mchat.yaml or ~/.config/mchat/mchat.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "write logs to this file")
	addChatFlags(rootCmd)

	rootCmd.AddCommand(newChatCmd(v, &configFile), newRelayCmd(v, &configFile))
	return rootCmd
}

var logFlags = map[string]string{
	"log-level": "log.level",
	"log-file":  "log.file",
}

// bindFlags binds the named flags of cmd to viper keys. Binding happens when
// a command runs, since root and chat share keys and only one may hold them.
func bindFlags(cmd *cobra.Command, v *viper.Viper, flags map[string]string) error {
	for _, set := range []map[string]string{logFlags, flags} {
		for name, key := range set {
			f := cmd.Flags().Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return errors.Wrapf(err, "bind flag --%s", name)
			}
		}
	}
	return nil
}
