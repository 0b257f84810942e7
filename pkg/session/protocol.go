package session

import (
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

// Frame is the JSON envelope exchanged over the connection.
type Frame struct {
	Type         string `json:"type"`
	Message      string `json:"message,omitempty"`
	FunctionName string `json:"functionName,omitempty"`
}

const (
	TypeClientCreatedNewChat   = "clientCreatedNewChat"
	TypeClientSentMessage      = "clientSentMessage"
	TypeNewChatCreated         = "newChatCreated"
	TypeFunctionCallBegin      = "functionCallBegin"
	TypeFunctionCallEnd        = "functionCallEnd"
	TypeServerSentMessageChunk = "serverSentMessageChunk"
	TypeStreamingDone          = "streamingDone"
	TypeError                  = "error"
)

// FunctionFetchRoomAvailability is the backend tool call surfaced through the availability hooks.
const FunctionFetchRoomAvailability = "fetch_room_availability"

// Endpoint describes where and as whom the connection is opened.
type Endpoint struct {
	SourceURL   string
	ChatbotSlug string
	HiddenChat  bool
	RestoreChat bool
	LogEnabled  bool
}

// URL builds the websocket URL. The source URL's path and query are kept; http becomes ws
// and https becomes wss.
func (e Endpoint) URL(userID string, language string) (string, error) {
	u, err := url.Parse(e.SourceURL)
	if err != nil {
		return "", errors.Wrap(err, "parse source url")
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", errors.Errorf("unsupported source url scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Add("userId", userID)
	q.Add("chatbotSlug", e.ChatbotSlug)
	q.Add("language", language)
	q.Add("hiddenChat", strconv.FormatBool(e.HiddenChat))
	q.Add("restoreChat", strconv.FormatBool(e.RestoreChat))
	q.Add("logEnabled", strconv.FormatBool(e.LogEnabled))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
