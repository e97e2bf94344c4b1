package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"mchat/config"
	"mchat/logger"
	"mchat/relay"
)

var relayFlags = map[string]string{
	"addr":    "relay.addr",
	"control": "relay.control",
}

func newRelayCmd(v *viper.Viper, configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the development relay that forwards events between clients",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd, v, relayFlags)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(cmd.Context(), v, *configFile)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :3001)")
	cmd.Flags().String("control", "", "unix socket for stats/shutdown commands")
	return cmd
}

func runRelay(ctx context.Context, v *viper.Viper, configFile string) error {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return err
	}

	log, closer, err := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer closer.Close()
	logger.Init(log)

	srv := relay.New(relay.Config{
		Addr:           cfg.Relay.Addr,
		PingInterval:   cfg.Transport.PingInterval,
		PongWait:       cfg.Transport.PongWait,
		WriteWait:      cfg.Transport.WriteWait,
		MaxMessageSize: cfg.Transport.MaxMessageSize,
	}, log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if cfg.Relay.Control != "" {
		ctl := relay.NewControl(cfg.Relay.Control, srv, cancel, log)
		g.Go(func() error {
			return ctl.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Relay failed")
		return err
	}
	return nil
}
