// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package i18n matches request language preferences against the set of
// available locales and resolves user facing messages from a catalog.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
)

// DefaultLocale is used whenever no locale can be determined for a request.
const DefaultLocale = "en_US"

// Catalog holds the available locales and their message translations.
// The zero value is not usable; construct one with NewCatalog.
type Catalog struct {
	locales  []string
	matcher  language.Matcher
	messages map[string]map[string]string
}

// NewCatalog returns a Catalog for the given locales. messages maps
// locale name to message key to translated text. DefaultLocale is always
// included as an available locale.
func NewCatalog(locales []string, messages map[string]map[string]string) *Catalog {
	all := make([]string, 0, len(locales)+1)
	all = append(all, DefaultLocale)
	for _, l := range locales {
		if l == DefaultLocale {
			continue
		}
		all = append(all, l)
	}

	tags := make([]language.Tag, len(all))
	for i, l := range all {
		tags[i] = language.Make(strings.ReplaceAll(l, "_", "-"))
	}

	if messages == nil {
		messages = make(map[string]map[string]string)
	}

	return &Catalog{
		locales:  all,
		matcher:  language.NewMatcher(tags),
		messages: messages,
	}
}

// Locales returns the available locale names, default first.
func (c *Catalog) Locales() []string {
	return c.locales
}

// BestMatch determines the locale for a response given the value of an
// Accept-Language header. It falls back to DefaultLocale when the header
// is empty, malformed or matches none of the available locales.
func (c *Catalog) BestMatch(acceptLanguage string) string {
	if acceptLanguage == "" {
		return DefaultLocale
	}

	wanted, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil {
		return DefaultLocale
	}

	_, idx, conf := c.matcher.Match(wanted...)
	if conf == language.No {
		return DefaultLocale
	}
	return c.locales[idx]
}

// Localize returns the translation of msg for the given locale. It falls
// back to the default locale's translation and finally to msg itself.
func (c *Catalog) Localize(locale, msg string) string {
	if m, ok := c.messages[locale]; ok {
		if t, ok := m[msg]; ok {
			return t
		}
	}
	if locale != DefaultLocale {
		if m, ok := c.messages[DefaultLocale]; ok {
			if t, ok := m[msg]; ok {
				return t
			}
		}
	}
	return msg
}

// HasMessage reports whether msg is a known catalog message in any locale.
func (c *Catalog) HasMessage(msg string) bool {
	for _, m := range c.messages {
		if _, ok := m[msg]; ok {
			return true
		}
	}
	return false
}
