package chatconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Violation is one schema failure, Field being a JSON path like "history[2].role".
type Violation struct {
	Field  string
	Reason string
}

// ValidationError reports a configuration payload that does not conform to the schema.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Reason)
	}
	return "invalid chatbot configuration: " + strings.Join(parts, "; ")
}

type fieldRule struct {
	name     string
	optional bool
	nullable bool
}

var chatbotDataRules = []fieldRule{
	{name: "popupMessageTitle"},
	{name: "popupMessage"},
	{name: "avatarUrl"},
	{name: "logoUrl"},
	{name: "primaryColor"},
	{name: "secondaryColor"},
	{name: "borderRadius", nullable: true},
	{name: "borderColorChat", nullable: true},
	{name: "borderColorAvatar", nullable: true},
	{name: "rightDesktop"},
	{name: "avatarUrl2", optional: true, nullable: true},
	{name: "bottomDesktop"},
	{name: "bottomMobile"},
	{name: "linearTransitionColor", nullable: true},
	{name: "logoMaxWidthPercentage", nullable: true},
	{name: "chatAvatarUrl", nullable: true},
	{name: "exitPopupEnabled"},
	{name: "bookingIframeEnabled"},
	{name: "slug"},
	{name: "userId"},
	{name: "introMessage"},
	{name: "history"},
	{name: "suggestedQuestions"},
}

var chatMessageRules = []fieldRule{
	{name: "content"},
	{name: "role"},
	{name: "widgetId", optional: true},
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var jsonNull = []byte("null")

func checkPresence(prefix string, raw map[string]json.RawMessage, rules []fieldRule) []Violation {
	var out []Violation
	for _, r := range rules {
		v, ok := raw[r.name]
		switch {
		case !ok && !r.optional:
			out = append(out, Violation{Field: prefix + r.name, Reason: "required"})
		case ok && !r.nullable && bytes.Equal(bytes.TrimSpace(v), jsonNull):
			out = append(out, Violation{Field: prefix + r.name, Reason: "must not be null"})
		}
	}
	return out
}

// Decode parses and validates a configuration payload. Unknown keys are ignored.
func Decode(data []byte) (*ChatbotData, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil, &ValidationError{Violations: []Violation{{Field: "$", Reason: "expected a JSON object"}}}
	}

	violations := checkPresence("", raw, chatbotDataRules)
	if h, ok := raw["history"]; ok && !bytes.Equal(bytes.TrimSpace(h), jsonNull) {
		var items []map[string]json.RawMessage
		if err := json.Unmarshal(h, &items); err != nil {
			violations = append(violations, Violation{Field: "history", Reason: "expected an array of objects"})
		}
		for i, item := range items {
			violations = append(violations, checkPresence(fmt.Sprintf("history[%d].", i), item, chatMessageRules)...)
		}
	}
	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	var out ChatbotData
	if err := json.Unmarshal(data, &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &ValidationError{Violations: []Violation{{
				Field:  typeErr.Field,
				Reason: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
			}}}
		}
		return nil, &ValidationError{Violations: []Violation{{Field: "$", Reason: err.Error()}}}
	}

	if err := validate.Struct(&out); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, errors.Wrap(err, "validate chatbot configuration")
		}
		for _, fe := range fieldErrs {
			_, field, _ := strings.Cut(fe.Namespace(), ".")
			violations = append(violations, Violation{
				Field:  field,
				Reason: fmt.Sprintf("failed %q (%s), got %v", fe.Tag(), fe.Param(), fe.Value()),
			})
		}
		return nil, &ValidationError{Violations: violations}
	}
	return &out, nil
}
