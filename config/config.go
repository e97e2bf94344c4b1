package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	ModeWebSocket = "websocket"
	ModeLoopback  = "loopback"

	EnvPrefix = "MCHAT"
)

type Config struct {
	User      UserConfig
	Server    ServerConfig
	Transport TransportConfig
	Loopback  LoopbackConfig
	Typing    TypingConfig
	Fixture   FixtureConfig
	Relay     RelayConfig
	Log       LogConfig
}

type UserConfig struct {
	ID string
}

type ServerConfig struct {
	URL string
}

type TransportConfig struct {
	Mode           string
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type LoopbackConfig struct {
	SentDelay      time.Duration `mapstructure:"sent_delay"`
	DeliveredDelay time.Duration `mapstructure:"delivered_delay"`
}

type TypingConfig struct {
	Timeout time.Duration
}

type FixtureConfig struct {
	Path string
}

type RelayConfig struct {
	Addr    string
	Control string
}

type LogConfig struct {
	Level  string
	Pretty bool
	File   string
}

// New returns a viper instance with defaults and MCHAT_ environment
// overrides in place. Flags may be bound to it before Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("user.id", "current-user")
	v.SetDefault("server.url", "ws://localhost:3001/ws")
	v.SetDefault("transport.mode", ModeWebSocket)
	v.SetDefault("transport.dial_timeout", "10s")
	v.SetDefault("transport.ping_interval", "30s")
	v.SetDefault("transport.pong_wait", "60s")
	v.SetDefault("transport.write_wait", "10s")
	v.SetDefault("transport.max_message_size", 64*1024)
	v.SetDefault("loopback.sent_delay", "0s")
	v.SetDefault("loopback.delivered_delay", "0s")
	v.SetDefault("typing.timeout", "2s")
	v.SetDefault("fixture.path", "")
	v.SetDefault("relay.addr", ":3001")
	v.SetDefault("relay.control", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.file", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads file into v (or searches ./mchat.yaml and
// ~/.config/mchat/mchat.yaml when file is empty) and decodes the result.
// A missing optional file is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("mchat")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/mchat")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.User.ID) == "" {
		return errors.New("config: user.id is empty")
	}
	switch c.Transport.Mode {
	case ModeWebSocket:
		if c.Server.URL == "" {
			return errors.New("config: server.url is required for websocket transport")
		}
	case ModeLoopback:
	default:
		return errors.Errorf("config: unknown transport.mode %q", c.Transport.Mode)
	}
	if c.Typing.Timeout <= 0 {
		return errors.Errorf("config: typing.timeout must be positive, got %s", c.Typing.Timeout)
	}
	if c.Loopback.SentDelay < 0 || c.Loopback.DeliveredDelay < 0 {
		return errors.New("config: loopback delays must not be negative")
	}
	return nil
}
