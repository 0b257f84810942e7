package cmds

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/chatbot-client/pkg/chatbot"
	"github.com/go-go-golems/chatbot-client/pkg/chatconfig"
	"github.com/go-go-golems/chatbot-client/pkg/locale"
	"github.com/go-go-golems/chatbot-client/pkg/session"
	"github.com/go-go-golems/chatbot-client/pkg/transport/transporttest"
)

func TestLoadSettingsFromViper(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("source-url", "https://bot.example.com")
	viper.Set("chatbot-slug", "acme")
	viper.Set("hidden-chat", true)
	viper.Set("store", "sqlite:/tmp/ids.db")
	viper.Set("log-level", "debug")

	s, err := LoadSettings()
	require.NoError(t, err)
	require.Equal(t, "https://bot.example.com", s.Client.SourceURL)
	require.Equal(t, "acme", s.Client.ChatbotSlug)
	require.True(t, s.Client.HiddenChat)
	require.True(t, s.Client.RestoreChat)
	require.Equal(t, "sqlite:/tmp/ids.db", s.Store)
	require.Equal(t, "debug", s.Logging.Level)
	require.Equal(t, "chatbot.lifecycle", s.Events.Topic)
}

func TestRunConfigPrintsYAML(t *testing.T) {
	body, err := os.ReadFile("../../../pkg/chatconfig/testdata/config.json")
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("LANG", "de_CH.UTF-8")
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	s := AppSettings{Client: chatbot.DefaultSettings(), Store: "memory"}
	s.Client.SourceURL = srv.URL
	s.Client.ChatbotSlug = "acme"
	s.Client.LogEnabled = false

	var out bytes.Buffer
	require.NoError(t, runConfig(context.Background(), s, &out, "yaml"))

	var data chatconfig.ChatbotData
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &data))
	require.Equal(t, "acme", data.Slug)
	require.Len(t, data.History, 3)
	require.Equal(t, "Willkommen bei Acme!", data.History[0].Content)
}

func TestWriteConfigFormats(t *testing.T) {
	data := &chatconfig.ChatbotData{Slug: "acme", History: []chatconfig.ChatMessage{{Role: chatconfig.RoleUser, Content: "hi"}}}

	var buf bytes.Buffer
	require.NoError(t, writeConfig(&buf, data, "json"))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "acme", decoded["slug"])

	require.Error(t, writeConfig(&buf, data, "xml"))
}

func TestSendAndPrintStreamsReply(t *testing.T) {
	dialer := &transporttest.Dialer{OnDial: func(c *transporttest.Conn) {
		c.OnSend = func(c *transporttest.Conn, data []byte) {
			c.Push(session.Frame{Type: session.TypeServerSentMessageChunk, Message: "**Hel"})
			c.Push(session.Frame{Type: session.TypeServerSentMessageChunk, Message: "lo**"})
			c.Push(session.Frame{Type: session.TypeStreamingDone})
		}
	}}
	client, err := chatbot.NewClient(context.Background(), chatbot.Settings{
		SourceURL:   "https://bot.example.com",
		ChatbotSlug: "acme",
		RestoreChat: true,
	}, chatbot.WithDialer(dialer), chatbot.WithLocale(locale.Static("en")), chatbot.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	var out bytes.Buffer
	require.NoError(t, sendAndPrint(context.Background(), client, "hi", chatOptions{}, &out))
	require.Equal(t, "**Hello**\n", out.String())

	out.Reset()
	require.NoError(t, sendAndPrint(context.Background(), client, "again", chatOptions{markdown: true}, &out))
	require.True(t, strings.HasPrefix(out.String(), "**Hello**\n"))
	require.Contains(t, out.String(), "Hello")
}

func TestReplQuits(t *testing.T) {
	dialer := &transporttest.Dialer{}
	client, err := chatbot.NewClient(context.Background(), chatbot.Settings{
		SourceURL:   "https://bot.example.com",
		ChatbotSlug: "acme",
	}, chatbot.WithDialer(dialer), chatbot.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	var out bytes.Buffer
	require.NoError(t, repl(context.Background(), client, chatOptions{}, strings.NewReader("\n/quit\n"), &out))
	require.Zero(t, dialer.Dials())
}
