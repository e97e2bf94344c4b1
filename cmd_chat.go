package main

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mchat/chat"
	"mchat/config"
	"mchat/logger"
	"mchat/store"
	"mchat/transport"
	"mchat/ui"
)

var chatFlags = map[string]string{
	"user":      "user.id",
	"server":    "server.url",
	"transport": "transport.mode",
	"fixture":   "fixture.path",
}

func newChatCmd(v *viper.Viper, configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the chat client (default command)",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd, v, chatFlags)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), v, *configFile)
		},
	}
	addChatFlags(cmd)
	return cmd
}

func addChatFlags(cmd *cobra.Command) {
	cmd.Flags().String("user", "", "user id to chat as")
	cmd.Flags().String("server", "", "relay WebSocket URL")
	cmd.Flags().String("transport", "", "transport: websocket or loopback")
	cmd.Flags().String("fixture", "", "YAML fixture with users and conversations")
}

func runChat(ctx context.Context, v *viper.Viper, configFile string) error {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return err
	}

	// The terminal belongs to the UI, so logs always go to a file.
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(os.TempDir(), "mchat-"+cfg.User.ID+".log")
	}
	log, closer, err := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer closer.Close()
	logger.Init(log)

	fx, err := store.LoadFixture(cfg.Fixture.Path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load fixture")
		return err
	}
	state, err := fx.State(cfg.User.ID, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("Invalid fixture")
		return err
	}

	ch, label, err := newChannel(cfg, log)
	if err != nil {
		return err
	}

	client, err := chat.New(store.New(state, store.WithLogger(log)), ch, chat.WithLogger(log))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create chat client")
		return err
	}
	defer client.Close()

	log.Info().
		Str(logger.FieldUserID, cfg.User.ID).
		Str("transport", cfg.Transport.Mode).
		Msg("Starting chat")

	app := ui.NewApp(client, ui.Options{
		ServerLabel:   label,
		TypingTimeout: cfg.Typing.Timeout,
		DialTimeout:   cfg.Transport.DialTimeout,
		Logger:        log,
	})
	return app.Run(ctx)
}

// newChannel builds the configured transport and a label for the UI.
func newChannel(cfg *config.Config, log zerolog.Logger) (transport.Channel, string, error) {
	switch cfg.Transport.Mode {
	case config.ModeLoopback:
		return transport.NewLoopback(transport.LoopbackConfig{
			SentDelay:      cfg.Loopback.SentDelay,
			DeliveredDelay: cfg.Loopback.DeliveredDelay,
		}, log), "loopback", nil
	case config.ModeWebSocket:
		u, err := websocketURL(cfg.Server.URL, cfg.User.ID)
		if err != nil {
			return nil, "", err
		}
		return transport.NewWebSocket(transport.WebSocketConfig{
			URL:            u,
			DialTimeout:    cfg.Transport.DialTimeout,
			PingInterval:   cfg.Transport.PingInterval,
			PongWait:       cfg.Transport.PongWait,
			WriteWait:      cfg.Transport.WriteWait,
			MaxMessageSize: cfg.Transport.MaxMessageSize,
		}, log), cfg.Server.URL, nil
	}
	return nil, "", errors.Errorf("unknown transport %q", cfg.Transport.Mode)
}

// websocketURL adds the user query parameter the relay identifies clients by.
func websocketURL(raw, userID string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrap(err, "parse server url")
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("server url %q: unsupported scheme %q", raw, u.Scheme)
	}
	q := u.Query()
	q.Set("user", userID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
