// Package chatconfig fetches and validates the per-tenant chat configuration.
package chatconfig

// Role of a chat message author.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
	RoleError     Role = "error"
)

// ChatMessage is one entry of the conversation history.
type ChatMessage struct {
	Content  string  `json:"content" yaml:"content"`
	Role     Role    `json:"role" yaml:"role" validate:"oneof=assistant user error" jsonschema:"enum=assistant,enum=user,enum=error"`
	WidgetID *string `json:"widgetId,omitempty" yaml:"widgetId,omitempty"`
}

// ChatbotData is the configuration payload returned by the get_config endpoint.
// Pointer fields are nullable.
type ChatbotData struct {
	PopupMessageTitle      map[string]string   `json:"popupMessageTitle" yaml:"popupMessageTitle"`
	PopupMessage           map[string]string   `json:"popupMessage" yaml:"popupMessage"`
	AvatarURL              string              `json:"avatarUrl" yaml:"avatarUrl"`
	LogoURL                string              `json:"logoUrl" yaml:"logoUrl"`
	PrimaryColor           string              `json:"primaryColor" yaml:"primaryColor"`
	SecondaryColor         string              `json:"secondaryColor" yaml:"secondaryColor"`
	BorderRadius           *float64            `json:"borderRadius" yaml:"borderRadius" jsonschema:"nullable"`
	BorderColorChat        *string             `json:"borderColorChat" yaml:"borderColorChat" jsonschema:"nullable"`
	BorderColorAvatar      *string             `json:"borderColorAvatar" yaml:"borderColorAvatar" jsonschema:"nullable"`
	RightDesktop           float64             `json:"rightDesktop" yaml:"rightDesktop"`
	AvatarURL2             *string             `json:"avatarUrl2,omitempty" yaml:"avatarUrl2,omitempty" jsonschema:"nullable"`
	BottomDesktop          float64             `json:"bottomDesktop" yaml:"bottomDesktop"`
	BottomMobile           float64             `json:"bottomMobile" yaml:"bottomMobile"`
	LinearTransitionColor  *string             `json:"linearTransitionColor" yaml:"linearTransitionColor" jsonschema:"nullable"`
	LogoMaxWidthPercentage *float64            `json:"logoMaxWidthPercentage" yaml:"logoMaxWidthPercentage" jsonschema:"nullable"`
	ChatAvatarURL          *string             `json:"chatAvatarUrl" yaml:"chatAvatarUrl" jsonschema:"nullable"`
	ExitPopupEnabled       bool                `json:"exitPopupEnabled" yaml:"exitPopupEnabled"`
	BookingIframeEnabled   bool                `json:"bookingIframeEnabled" yaml:"bookingIframeEnabled"`
	Slug                   string              `json:"slug" yaml:"slug"`
	UserID                 string              `json:"userId" yaml:"userId"`
	IntroMessage           map[string]string   `json:"introMessage" yaml:"introMessage"`
	History                []ChatMessage       `json:"history" yaml:"history" validate:"dive"`
	SuggestedQuestions     map[string][]string `json:"suggestedQuestions" yaml:"suggestedQuestions"`
}
