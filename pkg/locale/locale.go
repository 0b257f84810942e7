// Package locale resolves the language the client announces to the backend.
package locale

import (
	"os"
	"strings"

	"golang.org/x/text/language"
)

// DefaultTag is used when the environment has no usable language preference.
const DefaultTag = "en-US"

// Provider returns the preferred language tag, e.g. "de-CH" or "en_US.UTF-8".
type Provider interface {
	Current() string
}

// Static always returns the same tag.
type Static string

func (s Static) Current() string { return string(s) }

// Env reads the POSIX locale variables in their usual precedence order.
type Env struct {
	Lookup func(string) (string, bool)
}

var envKeys = []string{"LC_ALL", "LC_MESSAGES", "LANG", "LANGUAGE"}

func (e Env) Current() string {
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, k := range envKeys {
		v, ok := lookup(k)
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		// LANGUAGE is a colon separated priority list
		if i := strings.IndexByte(v, ':'); i >= 0 {
			v = v[:i]
		}
		if isNeutral(v) {
			continue
		}
		return v
	}
	return DefaultTag
}

// Primary returns the primary language subtag of the provider's tag, e.g. "en" for
// "en-US". It never returns an empty string.
func Primary(p Provider) string {
	tag := DefaultTag
	if p != nil {
		if t := strings.TrimSpace(p.Current()); t != "" {
			tag = t
		}
	}
	return PrimarySubtag(tag)
}

// PrimarySubtag extracts the primary language subtag from a BCP 47 or POSIX locale string.
func PrimarySubtag(tag string) string {
	// strip POSIX codeset and modifier: en_US.UTF-8@euro
	if i := strings.IndexAny(tag, ".@"); i >= 0 {
		tag = tag[:i]
	}
	tag = strings.ReplaceAll(tag, "_", "-")
	if isNeutral(tag) {
		return defaultPrimary
	}
	if t, err := language.Parse(tag); err == nil {
		if base, conf := t.Base(); conf != language.No {
			return base.String()
		}
	}
	return defaultPrimary
}

const defaultPrimary = "en"

// isNeutral reports whether v names no language, e.g. "", "C", "POSIX" or "C.UTF-8".
func isNeutral(v string) bool {
	if i := strings.IndexAny(v, ".@"); i >= 0 {
		v = v[:i]
	}
	switch v {
	case "", "C", "POSIX":
		return true
	}
	return false
}
