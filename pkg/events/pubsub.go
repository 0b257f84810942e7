package events

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultGroup    = "chatbot-client"
	DefaultConsumer = "client-1"
)

// Settings selects the transport for lifecycle events.
type Settings struct {
	Enabled  bool   `mapstructure:"redis-events-enabled"`
	Addr     string `mapstructure:"redis-events-addr"`
	Topic    string `mapstructure:"redis-events-topic"`
	Group    string `mapstructure:"redis-events-group"`
	Consumer string `mapstructure:"redis-events-consumer"`
}

// PubSub bundles a publisher with a matching subscriber.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	close      func() error

	// set for the Redis Streams backend
	redis redis.UniversalClient
	group string
}

// Subscribe follows topic. On Redis Streams the consumer group is first created at the stream
// tail, so a new follower only sees events published from now on.
func (p *PubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if p.redis != nil {
		if err := EnsureGroupAtTail(ctx, p.redis, topic, p.group); err != nil {
			return nil, err
		}
	}
	msgs, err := p.Subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe to %s", topic)
	}
	return msgs, nil
}

func (p *PubSub) Close() error {
	if p == nil || p.close == nil {
		return nil
	}
	return p.close()
}

// NewInMemory returns a process local pub/sub.
func NewInMemory(logger zerolog.Logger) *PubSub {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, NewWatermillLogger(logger))
	return &PubSub{Publisher: ch, Subscriber: ch, close: ch.Close}
}

// Build returns a Redis Streams pub/sub when s.Enabled, otherwise an in-memory one.
func Build(s Settings) (*PubSub, error) {
	if !s.Enabled {
		return NewInMemory(log.Logger), nil
	}
	if strings.TrimSpace(s.Addr) == "" {
		return nil, errors.New("redis events: empty address")
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	logger := NewWatermillLogger(log.Logger)

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis events publisher")
	}

	group := s.Group
	if group == "" {
		group = DefaultGroup
	}
	consumer := s.Consumer
	if consumer == "" {
		consumer = DefaultConsumer
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: group,
		Consumer:      consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "redis events subscriber")
	}

	return &PubSub{
		Publisher:  pub,
		Subscriber: sub,
		close: func() error {
			_ = sub.Close()
			_ = pub.Close()
			return client.Close()
		},
		redis: client,
		group: group,
	}, nil
}

// EnsureGroupAtTail creates group on stream starting at "$". An existing group is left alone.
func EnsureGroupAtTail(ctx context.Context, client redis.UniversalClient, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	switch {
	case err == nil:
		log.Debug().Str("stream", stream).Str("group", group).Msg("created consumer group at stream tail")
		return nil
	case strings.HasPrefix(err.Error(), "BUSYGROUP"):
		return nil
	default:
		return errors.Wrapf(err, "create consumer group %s on %s", group, stream)
	}
}
