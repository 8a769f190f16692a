// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package httperr

import (
	"errors"

	"github.com/meterflow/meterflow/i18n"
)

// Translate localizes all translatable elements of the given error
// for the given locale. The receiver is never mutated; a translated
// copy is returned.
//
// If the explanation is not itself a catalog message then it is the
// generic per status default, which is not translatable. Since the
// explanation is what ends up shown to the user, the localized message
// is swapped in its place and any detail is cleared. Otherwise the
// explanation and detail are localized independently.
func Translate(e *Error, locale string, cat *i18n.Catalog) *Error {
	out := *e
	out.Locale = locale
	out.Message = cat.Localize(locale, e.Message)

	if e.Explanation == "" || !cat.HasMessage(e.Explanation) {
		out.Explanation = out.Message
		out.Detail = ""
		return &out
	}

	out.Explanation = cat.Localize(locale, e.Explanation)
	out.Detail = cat.Localize(locale, e.Detail)
	return &out
}

// Disguised wraps a translated *Error so that middleware between the
// dispatch pipeline and the boundary writer forwards it untouched
// instead of intercepting it as ordinary error control flow. It is
// unwrapped only at the boundary and emitted as the literal response.
type Disguised struct {
	Err *Error
}

// Error implements the [builtin.error] interface.
func (d Disguised) Error() string {
	return d.Err.Error()
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (d Disguised) Unwrap() error {
	return d.Err
}

// Disguise wraps e in a Disguised marker.
func Disguise(e *Error) error {
	return Disguised{Err: e}
}

// AsDisguised reports whether err is a disguised error and, if so,
// returns the wrapped *Error.
func AsDisguised(err error) (*Error, bool) {
	var d Disguised
	if !errors.As(err, &d) {
		return nil, false
	}
	return d.Err, true
}
