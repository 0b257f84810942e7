package chatbot

import (
	"context"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-go-golems/chatbot-client/pkg/chatconfig"
	"github.com/go-go-golems/chatbot-client/pkg/kvstore"
	"github.com/go-go-golems/chatbot-client/pkg/locale"
	"github.com/go-go-golems/chatbot-client/pkg/session"
	"github.com/go-go-golems/chatbot-client/pkg/transport"
)

// Hooks let the embedding UI follow a conversation. All fields are optional.
type Hooks struct {
	OnCheckingAvailability     func(ctx context.Context) error
	OnDoneCheckingAvailability func(ctx context.Context) error
	// OnError is called once for every failed operation, before the error is returned.
	OnError func(ctx context.Context, err error)
}

type options struct {
	store             kvstore.Store
	locale            locale.Provider
	dialer            transport.Dialer
	httpClient        *http.Client
	fetcherOpts       []chatconfig.FetcherOption
	hooks             Hooks
	logger            *zerolog.Logger
	policy            session.ReconnectPolicy
	newChatTimeout    time.Duration
	firstChunkTimeout time.Duration
	publisher         message.Publisher
	topic             string
	tracerProvider    trace.TracerProvider
}

type Option func(*options)

// WithStore sets where the identity token is persisted. Defaults to an in-memory store.
func WithStore(s kvstore.Store) Option {
	return func(o *options) { o.store = s }
}

func WithLocale(p locale.Provider) Option {
	return func(o *options) { o.locale = p }
}

func WithDialer(d transport.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithFetcherOptions passes options through to the config fetcher.
func WithFetcherOptions(opts ...chatconfig.FetcherOption) Option {
	return func(o *options) { o.fetcherOpts = append(o.fetcherOpts, opts...) }
}

func WithHooks(h Hooks) Option {
	return func(o *options) { o.hooks = h }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

func WithReconnectPolicy(p session.ReconnectPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithTimeouts overrides the new chat acknowledgement and first chunk windows. Zero keeps the default.
func WithTimeouts(newChat, firstChunk time.Duration) Option {
	return func(o *options) {
		o.newChatTimeout = newChat
		o.firstChunkTimeout = firstChunk
	}
}

// WithEventPublisher publishes lifecycle events on topic (events.DefaultTopic when empty).
func WithEventPublisher(p message.Publisher, topic string) Option {
	return func(o *options) {
		o.publisher = p
		o.topic = topic
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}
