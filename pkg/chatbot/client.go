// Package chatbot is the embedding surface of the chatbot client: it ties the config fetcher,
// the session manager and the persisted identity of one tenant together.
package chatbot

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-go-golems/chatbot-client/pkg/chatconfig"
	"github.com/go-go-golems/chatbot-client/pkg/events"
	"github.com/go-go-golems/chatbot-client/pkg/identity"
	"github.com/go-go-golems/chatbot-client/pkg/kvstore"
	"github.com/go-go-golems/chatbot-client/pkg/locale"
	"github.com/go-go-golems/chatbot-client/pkg/session"
	"github.com/go-go-golems/chatbot-client/pkg/transport"
)

const tracerName = "github.com/go-go-golems/chatbot-client/pkg/chatbot"

// ChatRequest is one user message and the sinks for its reply.
type ChatRequest struct {
	NewMessage string
	OnNewChunk func(ctx context.Context, chunk string) error
	OnDone     func(ctx context.Context) error
}

type Client struct {
	settings Settings
	hooks    Hooks
	logger   zerolog.Logger
	locale   locale.Provider
	identity *identity.Tracker
	fetcher  *chatconfig.Fetcher
	manager  *session.Manager
	events   *events.Emitter
	tracer   trace.Tracer

	closeOnce sync.Once
	closeErr  error
}

// NewClient validates s and loads the persisted identity. No connection is opened until the
// first operation needs one. s is used as given: build it from DefaultSettings() or
// SettingsFromMap to get RestoreChat and LogEnabled enabled by default.
func NewClient(ctx context.Context, s Settings, opts ...Option) (*Client, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := log.Logger
	if o.logger != nil {
		logger = *o.logger
	}
	if !s.LogEnabled {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("chatbot_slug", s.ChatbotSlug).Logger()

	if o.store == nil {
		o.store = kvstore.NewMemoryStore()
	}
	if o.locale == nil {
		o.locale = locale.Env{}
	}
	if o.dialer == nil {
		o.dialer = transport.NewWebsocketDialer()
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}

	ids := identity.NewTracker(s.ChatbotSlug, o.store, logger)
	if err := ids.Load(ctx, s.UserID); err != nil {
		return nil, errors.Wrap(err, "load identity")
	}

	fetcherOpts := []chatconfig.FetcherOption{chatconfig.WithLogger(logger.With().Str("component", "chatconfig").Logger())}
	if o.httpClient != nil {
		fetcherOpts = append(fetcherOpts, chatconfig.WithHTTPClient(o.httpClient))
	}
	fetcherOpts = append(fetcherOpts, o.fetcherOpts...)
	fetcher, err := chatconfig.NewFetcher(s.SourceURL, fetcherOpts...)
	if err != nil {
		return nil, &ConfigurationError{Field: "sourceUrl", Reason: err.Error(), Err: err}
	}

	manager, err := session.NewManager(session.Config{
		Endpoint: session.Endpoint{
			SourceURL:   s.SourceURL,
			ChatbotSlug: s.ChatbotSlug,
			HiddenChat:  s.HiddenChat,
			RestoreChat: s.RestoreChat,
			LogEnabled:  s.LogEnabled,
		},
		Dialer:            o.dialer,
		Identity:          ids,
		Locale:            o.locale,
		Policy:            o.policy,
		NewChatTimeout:    o.newChatTimeout,
		FirstChunkTimeout: o.firstChunkTimeout,
		Logger:            &logger,
	})
	if err != nil {
		return nil, &ConfigurationError{Reason: err.Error(), Err: err}
	}

	var emitter *events.Emitter
	if o.publisher != nil {
		emitter = events.NewEmitter(o.publisher, o.topic, s.ChatbotSlug, logger)
	}

	logger.Debug().
		Bool("hidden_chat", s.HiddenChat).
		Bool("restore_chat", s.RestoreChat).
		Bool("has_identity", ids.Current() != "").
		Msg("chatbot client created")

	return &Client{
		settings: s,
		hooks:    o.hooks,
		logger:   logger.With().Str("component", "chatbot").Logger(),
		locale:   o.locale,
		identity: ids,
		fetcher:  fetcher,
		manager:  manager,
		events:   emitter,
		tracer:   o.tracerProvider.Tracer(tracerName),
	}, nil
}

// UserID returns the current identity token, or "" when none is known.
func (c *Client) UserID() string {
	return c.identity.Current()
}

func (c *Client) Settings() Settings {
	return c.settings
}

func (c *Client) State() session.State {
	return c.manager.State()
}

// EnsureConnected opens the connection unless it is already open.
func (c *Client) EnsureConnected(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "chatbot.EnsureConnected")
	defer span.End()
	if err := c.manager.EnsureConnected(ctx); err != nil {
		return c.fail(ctx, span, err)
	}
	return nil
}

// NewChat starts a new conversation and waits for the server's acknowledgement.
func (c *Client) NewChat(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "chatbot.NewChat")
	defer span.End()

	if err := c.manager.NewChat(ctx); err != nil {
		return c.fail(ctx, span, err)
	}
	c.events.Emit(ctx, events.TypeChatCreated, c.UserID(), "")
	return nil
}

// GetChatConfig fetches the tenant configuration for the current locale. The identity the
// server reports replaces the local one, and a non-empty history gets the localized intro
// message in front.
func (c *Client) GetChatConfig(ctx context.Context) (*chatconfig.ChatbotData, error) {
	ctx, span := c.startSpan(ctx, "chatbot.GetChatConfig")
	defer span.End()

	language := locale.Primary(c.locale)
	span.SetAttributes(attribute.String("chatbot.language", language))

	data, err := c.fetcher.Fetch(ctx, chatconfig.Request{
		Language:    language,
		HiddenChat:  c.settings.HiddenChat,
		RestoreChat: c.settings.RestoreChat,
		ChatbotSlug: c.settings.ChatbotSlug,
		UserID:      c.identity.Current(),
	})
	if err != nil {
		return nil, c.fail(ctx, span, err)
	}

	if data.UserID != "" {
		changed, err := c.identity.Confirm(ctx, data.UserID)
		if err != nil {
			return nil, c.fail(ctx, span, err)
		}
		if changed {
			c.events.Emit(ctx, events.TypeIdentityChanged, data.UserID, "")
		}
	}

	if err := chatconfig.PrependIntro(data, language); err != nil {
		return nil, c.fail(ctx, span, err)
	}

	c.events.Emit(ctx, events.TypeConfigLoaded, c.UserID(), "")
	c.logger.Debug().Str("language", language).Int("history", len(data.History)).Msg("chat config loaded")
	return data, nil
}

// FetchChatResponse sends req.NewMessage and streams the reply into req.OnNewChunk until the
// server signals completion. A failed send is not retried.
func (c *Client) FetchChatResponse(ctx context.Context, req ChatRequest) error {
	ctx, span := c.startSpan(ctx, "chatbot.FetchChatResponse")
	defer span.End()

	chunks := 0
	cb := session.Callbacks{
		OnChunk: func(ctx context.Context, chunk string) error {
			chunks++
			c.events.Emit(ctx, events.TypeChatChunk, c.UserID(), chunk)
			if req.OnNewChunk == nil {
				return nil
			}
			return req.OnNewChunk(ctx, chunk)
		},
		OnDone: func(ctx context.Context) error {
			c.events.Emit(ctx, events.TypeChatDone, c.UserID(), "")
			if req.OnDone == nil {
				return nil
			}
			return req.OnDone(ctx)
		},
		OnCheckingAvailability: func(ctx context.Context) error {
			c.events.Emit(ctx, events.TypeAvailabilityChecking, c.UserID(), "")
			if c.hooks.OnCheckingAvailability == nil {
				return nil
			}
			return c.hooks.OnCheckingAvailability(ctx)
		},
		OnDoneCheckingAvailability: func(ctx context.Context) error {
			c.events.Emit(ctx, events.TypeAvailabilityDone, c.UserID(), "")
			if c.hooks.OnDoneCheckingAvailability == nil {
				return nil
			}
			return c.hooks.OnDoneCheckingAvailability(ctx)
		},
	}

	err := c.manager.Stream(ctx, req.NewMessage, cb)
	span.SetAttributes(attribute.Int("chatbot.chunks", chunks))
	if err != nil {
		return c.fail(ctx, span, err)
	}
	return nil
}

// Close drops the connection. The client cannot be used afterwards.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.manager.Close()
	})
	return c.closeErr
}

func (c *Client) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("chatbot.slug", c.settings.ChatbotSlug),
	))
}

// fail reports err to the span, the event stream and the error hook, then returns it.
func (c *Client) fail(ctx context.Context, span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.Warn().Err(err).Msg("chatbot operation failed")
	c.events.Emit(ctx, events.TypeChatError, c.UserID(), err.Error())
	if c.hooks.OnError != nil {
		c.hooks.OnError(ctx, err)
	}
	return err
}
