package chatconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T) map[string]any {
	t.Helper()
	b, err := os.ReadFile("testdata/config.json")
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func encode(t *testing.T, m map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(m)
	require.NoError(t, err)
	return b
}

func requireViolation(t *testing.T, err error, field string) {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	for _, v := range verr.Violations {
		if v.Field == field {
			return
		}
	}
	t.Fatalf("no violation for %q in %v", field, verr.Violations)
}

func TestDecodeValidPayload(t *testing.T) {
	data, err := Decode(encode(t, loadFixture(t)))
	require.NoError(t, err)
	require.Equal(t, "acme", data.Slug)
	require.Equal(t, "7c9e6679-7425-40de-944b-e07fc1f90ae7", data.UserID)
	require.Nil(t, data.BorderColorChat)
	require.NotNil(t, data.BorderRadius)
	require.Equal(t, 12.0, *data.BorderRadius)
	require.Nil(t, data.AvatarURL2)
	require.Len(t, data.History, 2)
	require.Equal(t, RoleUser, data.History[0].Role)
	require.NotNil(t, data.History[1].WidgetID)
	require.Equal(t, "parking-card", *data.History[1].WidgetID)
	require.Equal(t, []string{"Check-in time?", "Breakfast?"}, data.SuggestedQuestions["en"])
}

func TestDecodeRejectsMissingRequiredField(t *testing.T) {
	m := loadFixture(t)
	delete(m, "userId")
	_, err := Decode(encode(t, m))
	requireViolation(t, err, "userId")
}

func TestDecodeRequiresNullableKeysToBePresent(t *testing.T) {
	m := loadFixture(t)
	delete(m, "chatAvatarUrl")
	_, err := Decode(encode(t, m))
	requireViolation(t, err, "chatAvatarUrl")
}

func TestDecodeRejectsNullForNonNullable(t *testing.T) {
	m := loadFixture(t)
	m["primaryColor"] = nil
	_, err := Decode(encode(t, m))
	requireViolation(t, err, "primaryColor")
}

func TestDecodeRejectsWrongType(t *testing.T) {
	m := loadFixture(t)
	m["exitPopupEnabled"] = "yes"
	_, err := Decode(encode(t, m))
	requireViolation(t, err, "exitPopupEnabled")
}

func TestDecodeRejectsUnknownRole(t *testing.T) {
	m := loadFixture(t)
	m["history"] = []any{map[string]any{"role": "system", "content": "x"}}
	_, err := Decode(encode(t, m))
	requireViolation(t, err, "history[0].role")
}

func TestDecodeRejectsHistoryItemWithoutContent(t *testing.T) {
	m := loadFixture(t)
	m["history"] = []any{map[string]any{"role": "user"}}
	_, err := Decode(encode(t, m))
	requireViolation(t, err, "history[0].content")
}

func TestDecodeRejectsNonObject(t *testing.T) {
	_, err := Decode([]byte(`[1,2]`))
	requireViolation(t, err, "$")
	_, err = Decode([]byte(`null`))
	requireViolation(t, err, "$")
}

func TestPrependIntro(t *testing.T) {
	data, err := Decode(encode(t, loadFixture(t)))
	require.NoError(t, err)
	before := len(data.History)

	require.NoError(t, PrependIntro(data, "de"))
	require.Len(t, data.History, before+1)
	require.Equal(t, ChatMessage{Role: RoleAssistant, Content: "Willkommen bei Acme!"}, data.History[0])
	require.Equal(t, "Do you have parking?", data.History[1].Content)
}

func TestPrependIntroLeavesEmptyHistory(t *testing.T) {
	data := &ChatbotData{IntroMessage: map[string]string{"en": "hi"}}
	require.NoError(t, PrependIntro(data, "en"))
	require.Empty(t, data.History)
}

func TestPrependIntroMissingLanguage(t *testing.T) {
	data := &ChatbotData{
		IntroMessage: map[string]string{"en": "hi"},
		History:      []ChatMessage{{Role: RoleUser, Content: "q"}},
	}
	err := PrependIntro(data, "fr")
	requireViolation(t, err, "introMessage.fr")
	require.Len(t, data.History, 1)
}

func TestFetcherSendsQueryAndDecodes(t *testing.T) {
	body := encode(t, loadFixture(t))
	var gotPath string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f, err := NewFetcher(srv.URL+"/", WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	data, err := f.Fetch(context.Background(), Request{
		Language:    "de",
		HiddenChat:  true,
		RestoreChat: false,
		ChatbotSlug: "acme",
	})
	require.NoError(t, err)
	require.Equal(t, "acme", data.Slug)

	require.Equal(t, "/api/get_config", gotPath)
	require.Equal(t, []string{"de"}, gotQuery["language"])
	require.Equal(t, []string{"true"}, gotQuery["hiddenChat"])
	require.Equal(t, []string{"false"}, gotQuery["restoreChat"])
	require.Equal(t, []string{"acme"}, gotQuery["chatbotSlug"])
	_, hasUser := gotQuery["userId"]
	require.False(t, hasUser)
}

func TestFetcherURLIncludesKnownIdentity(t *testing.T) {
	f, err := NewFetcher("https://bot.example.com/base")
	require.NoError(t, err)
	u := f.URL(Request{Language: "en", UserID: "7c9e6679-7425-40de-944b-e07fc1f90ae7"})
	require.Contains(t, u, "https://bot.example.com/base/api/get_config?")
	require.Contains(t, u, "userId=7c9e6679-7425-40de-944b-e07fc1f90ae7")
	require.NotContains(t, u, "chatbotSlug")
}

func TestFetcherRetriesTransientFailures(t *testing.T) {
	body := encode(t, loadFixture(t))
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f, err := NewFetcher(srv.URL, WithLogger(zerolog.Nop()), WithRetry(2, time.Millisecond, 5*time.Millisecond))
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), Request{Language: "en"})
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestFetcherNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown chatbot", http.StatusNotFound)
	}))
	defer srv.Close()

	f, err := NewFetcher(srv.URL, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), Request{Language: "en"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}

func TestFetcherRejectsOversizedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"slug":"`))
		_, _ = w.Write(bytes.Repeat([]byte("a"), maxConfigBytes))
		_, _ = w.Write([]byte(`"}`))
	}))
	defer srv.Close()

	f, err := NewFetcher(srv.URL, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), Request{Language: "en"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "too large")
	var verr *ValidationError
	require.False(t, errors.As(err, &verr))
}

func TestFetcherValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"slug":"acme"}`))
	}))
	defer srv.Close()

	f, err := NewFetcher(srv.URL, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), Request{Language: "en"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.NotEmpty(t, verr.Violations)
}

func TestNewFetcherRejectsBadURL(t *testing.T) {
	_, err := NewFetcher("ftp://example.com")
	require.Error(t, err)
	_, err = NewFetcher("://")
	require.Error(t, err)
}

func TestSchema(t *testing.T) {
	b, err := Schema()
	require.NoError(t, err)
	var s map[string]any
	require.NoError(t, json.Unmarshal(b, &s))
	props, ok := s["properties"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, props, "history")
	require.Contains(t, props, "suggestedQuestions")
	require.Contains(t, s["required"], "userId")
	require.NotContains(t, s["required"], "avatarUrl2")
}
