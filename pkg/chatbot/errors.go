package chatbot

import (
	"fmt"

	"github.com/go-go-golems/chatbot-client/pkg/chatconfig"
	"github.com/go-go-golems/chatbot-client/pkg/session"
)

// ConfigurationError reports invalid construction parameters.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid chatbot client configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid chatbot client configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

type (
	ConnectionError = session.ConnectionError
	TimeoutError    = session.TimeoutError
	ServerError     = session.ServerError
	ValidationError = chatconfig.ValidationError
)
