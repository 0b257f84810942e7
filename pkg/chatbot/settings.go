package chatbot

import (
	"net/url"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Settings are the construction parameters of a Client.
//
// RestoreChat and LogEnabled default to true, but only through DefaultSettings and
// SettingsFromMap. A bare Settings{} literal leaves both false; start from DefaultSettings().
type Settings struct {
	SourceURL   string `mapstructure:"source-url" yaml:"sourceUrl"`
	ChatbotSlug string `mapstructure:"chatbot-slug" yaml:"chatbotSlug"`
	HiddenChat  bool   `mapstructure:"hidden-chat" yaml:"hiddenChat"`
	RestoreChat bool   `mapstructure:"restore-chat" yaml:"restoreChat"`
	UserID      string `mapstructure:"user-id" yaml:"userId"`
	LogEnabled  bool   `mapstructure:"log-enabled" yaml:"logEnabled"`
}

func DefaultSettings() Settings {
	return Settings{RestoreChat: true, LogEnabled: true}
}

// camelCase names accepted from embedding code, mapped to the flag names.
var settingAliases = map[string]string{
	"sourceUrl":   "source-url",
	"chatbotSlug": "chatbot-slug",
	"hiddenChat":  "hidden-chat",
	"restoreChat": "restore-chat",
	"userId":      "user-id",
	"logEnabled":  "log-enabled",
}

// SettingsFromMap decodes loosely typed construction parameters without type coercion.
// Keys may be camelCase or flag style. A value of the wrong type, for instance a string for a
// boolean flag, yields a *ConfigurationError. Unset flags keep their defaults.
func SettingsFromMap(in map[string]any) (Settings, error) {
	s := DefaultSettings()
	normalized := make(map[string]any, len(in))
	for k, v := range in {
		if alias, ok := settingAliases[k]; ok {
			k = alias
		}
		if v == nil {
			continue
		}
		normalized[k] = v
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: false,
		Result:           &s,
	})
	if err != nil {
		return Settings{}, errors.Wrap(err, "settings decoder")
	}
	if err := dec.Decode(normalized); err != nil {
		return Settings{}, &ConfigurationError{Reason: decodeReason(err), Err: err}
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func decodeReason(err error) string {
	var merr *mapstructure.Error
	if errors.As(err, &merr) && len(merr.Errors) > 0 {
		return strings.Join(merr.Errors, "; ")
	}
	return err.Error()
}

// Validate checks the source URL. An empty tenant slug is allowed and simply not sent.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.SourceURL) == "" {
		return &ConfigurationError{Field: "sourceUrl", Reason: "must not be empty"}
	}
	u, err := url.Parse(s.SourceURL)
	if err != nil {
		return &ConfigurationError{Field: "sourceUrl", Reason: "malformed url", Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ConfigurationError{Field: "sourceUrl", Reason: "scheme must be http or https"}
	}
	if u.Host == "" {
		return &ConfigurationError{Field: "sourceUrl", Reason: "missing host"}
	}
	return nil
}
