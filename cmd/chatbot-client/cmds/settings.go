// Package cmds holds the cobra commands of the chatbot-client binary.
package cmds

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/chatbot-client/pkg/chatbot"
	"github.com/go-go-golems/chatbot-client/pkg/events"
	"github.com/go-go-golems/chatbot-client/pkg/kvstore"
	"github.com/go-go-golems/chatbot-client/pkg/logging"
)

// AppSettings is everything the commands read from flags, env and the config file.
type AppSettings struct {
	Client  chatbot.Settings `mapstructure:",squash"`
	Store   string           `mapstructure:"store"`
	Events  events.Settings  `mapstructure:",squash"`
	Logging logging.Settings `mapstructure:",squash"`
}

func AddGlobalFlags(cmd *cobra.Command) {
	defaults := chatbot.DefaultSettings()
	logDefaults := logging.DefaultSettings()

	f := cmd.PersistentFlags()
	f.String("source-url", "", "Base URL of the chatbot backend (http or https)")
	f.String("chatbot-slug", "", "Tenant slug")
	f.Bool("hidden-chat", defaults.HiddenChat, "Open the chat in hidden mode")
	f.Bool("restore-chat", defaults.RestoreChat, "Ask the backend to restore the previous conversation")
	f.String("user-id", "", "Identity token to use instead of the stored one")
	f.Bool("log-enabled", defaults.LogEnabled, "Enable client logging and ask the backend to log the conversation")
	f.String("store", "memory", "Identity store: memory, sqlite:<path> or redis:<addr>")
	f.Bool("redis-events-enabled", false, "Publish lifecycle events to Redis Streams")
	f.String("redis-events-addr", "localhost:6379", "Redis address for lifecycle events")
	f.String("redis-events-topic", events.DefaultTopic, "Stream name for lifecycle events")
	f.String("redis-events-group", events.DefaultGroup, "Redis consumer group used by --show-events")
	f.String("redis-events-consumer", events.DefaultConsumer, "Redis consumer name used by --show-events")
	f.String("log-level", logDefaults.Level, "Log level (trace, debug, info, warn, error)")
	f.String("log-format", logDefaults.Format, "Log format (auto, console, json)")
	f.Bool("with-caller", false, "Include caller in log lines")
	f.String("config", "", "Path to a YAML config file")
}

func LoadSettings() (AppSettings, error) {
	s := AppSettings{
		Client:  chatbot.DefaultSettings(),
		Store:   "memory",
		Logging: logging.DefaultSettings(),
	}
	if err := viper.Unmarshal(&s); err != nil {
		return AppSettings{}, errors.Wrap(err, "decode settings")
	}
	if s.Events.Topic == "" {
		s.Events.Topic = events.DefaultTopic
	}
	return s, nil
}

type clientSession struct {
	client *chatbot.Client
	pubsub *events.PubSub
	topic  string
	close  func()
}

// openClient wires the identity store and the event transport into a client. When
// withEvents is set, events are published even without Redis so that the command can
// follow them in process.
func openClient(ctx context.Context, s AppSettings, withEvents bool, opts ...chatbot.Option) (*clientSession, error) {
	store, closeStore, err := kvstore.Open(ctx, s.Store)
	if err != nil {
		return nil, err
	}

	var ps *events.PubSub
	if withEvents || s.Events.Enabled {
		ps, err = events.Build(s.Events)
		if err != nil {
			_ = closeStore()
			return nil, err
		}
		opts = append(opts, chatbot.WithEventPublisher(ps.Publisher, s.Events.Topic))
	}

	opts = append([]chatbot.Option{
		chatbot.WithStore(store),
		chatbot.WithLogger(log.Logger),
	}, opts...)
	client, err := chatbot.NewClient(ctx, s.Client, opts...)
	if err != nil {
		_ = ps.Close()
		_ = closeStore()
		return nil, err
	}

	return &clientSession{
		client: client,
		pubsub: ps,
		topic:  s.Events.Topic,
		close: func() {
			if err := client.Close(); err != nil {
				log.Debug().Err(err).Msg("closing client")
			}
			if err := ps.Close(); err != nil {
				log.Debug().Err(err).Msg("closing event transport")
			}
			if err := closeStore(); err != nil {
				log.Debug().Err(err).Msg("closing identity store")
			}
		},
	}, nil
}
