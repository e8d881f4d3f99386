// SPDX-License-Identifier: GPL-3.0-or-later

package unboundctl

import "log/slog"

// SLogger is the structured logger used by this package.
//
// It is typically a [*slog.Logger]. Logging is disabled by default.
type SLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var _ SLogger = &slog.Logger{}

// discardLogger is the default [SLogger].
var discardLogger SLogger = slog.New(slog.DiscardHandler)

// errString returns the error string or the empty string for a nil error.
func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
