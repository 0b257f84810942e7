package chatconfig

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	configPath      = "/api/get_config"
	maxConfigBytes  = 4 << 20
	defaultRetryMax = 2
)

// Request carries the query parameters of a configuration fetch.
type Request struct {
	Language    string
	HiddenChat  bool
	RestoreChat bool
	ChatbotSlug string
	UserID      string
}

// Fetcher retrieves configuration from <sourceUrl>/api/get_config. It holds no session state.
type Fetcher struct {
	endpoint *url.URL
	client   *retryablehttp.Client
	logger   zerolog.Logger
}

type FetcherOption func(*Fetcher)

// WithHTTPClient sets the underlying HTTP client (timeouts, transport, proxies).
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if c != nil {
			f.client.HTTPClient = c
		}
	}
}

func WithLogger(l zerolog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = l.With().Str("component", "chatconfig").Logger()
		f.client.Logger = leveledLogger{l: f.logger}
	}
}

// WithRetry configures how often transient failures (network errors, 5xx, 429) are retried.
func WithRetry(retryMax int, waitMin, waitMax time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.client.RetryMax = retryMax
		f.client.RetryWaitMin = waitMin
		f.client.RetryWaitMax = waitMax
	}
}

func NewFetcher(sourceURL string, opts ...FetcherOption) (*Fetcher, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse source url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("source url must be http or https, got %q", sourceURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + configPath
	u.RawQuery = ""

	client := retryablehttp.NewClient()
	client.RetryMax = defaultRetryMax
	client.HTTPClient = &http.Client{Timeout: 30 * time.Second}

	f := &Fetcher{
		endpoint: u,
		client:   client,
		logger:   log.With().Str("component", "chatconfig").Logger(),
	}
	client.Logger = leveledLogger{l: f.logger}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// URL returns the request URL for req.
func (f *Fetcher) URL(req Request) string {
	u := *f.endpoint
	q := url.Values{}
	q.Set("language", req.Language)
	q.Set("hiddenChat", strconv.FormatBool(req.HiddenChat))
	q.Set("restoreChat", strconv.FormatBool(req.RestoreChat))
	if req.ChatbotSlug != "" {
		q.Set("chatbotSlug", req.ChatbotSlug)
	}
	if req.UserID != "" {
		q.Set("userId", req.UserID)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Fetch performs the request and returns the validated payload. A payload that does not
// conform yields a *ValidationError.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*ChatbotData, error) {
	target := f.URL(req)
	f.logger.Debug().Str("url", target).Msg("fetching chat config")

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build config request")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "fetch chat config")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxConfigBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "read chat config")
	}
	if len(body) > maxConfigBytes {
		return nil, errors.Errorf("chat config payload too large: more than %d bytes", maxConfigBytes)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("fetch chat config: unexpected status %d: %s", resp.StatusCode, snippet(body))
	}

	data, err := Decode(body)
	if err != nil {
		f.logger.Warn().Err(err).Msg("chat config failed validation")
		return nil, err
	}
	f.logger.Debug().
		Int("history", len(data.History)).
		Int("suggested_question_locales", len(data.SuggestedQuestions)).
		Msg("chat config received")
	return data, nil
}

// PrependIntro puts the introductory assistant message for language in front of a
// non-empty history. An empty history is left untouched.
func PrependIntro(data *ChatbotData, language string) error {
	if data == nil || len(data.History) == 0 {
		return nil
	}
	intro, ok := data.IntroMessage[language]
	if !ok {
		return &ValidationError{Violations: []Violation{{
			Field:  "introMessage." + language,
			Reason: "no intro message for the resolved language",
		}}}
	}
	history := make([]ChatMessage, 0, len(data.History)+1)
	history = append(history, ChatMessage{Role: RoleAssistant, Content: intro})
	data.History = append(history, data.History...)
	return nil
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// leveledLogger routes retryablehttp's logging into zerolog.
type leveledLogger struct {
	l zerolog.Logger
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.l.Error().Fields(kv).Msg(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.l.Warn().Fields(kv).Msg(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.l.Debug().Fields(kv).Msg(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.l.Trace().Fields(kv).Msg(msg) }

