package settings

import (
	"html"
	"strings"

	"github.com/spf13/cast"

	"github.com/Proton-105/himera-settings/internal/domain"
	apperrors "github.com/Proton-105/himera-settings/internal/errors"
)

var falsy = map[string]struct{}{
	"":      {},
	"0":     {},
	"false": {},
	"off":   {},
	"no":    {},
}

// Coerce converts a raw form value to the storage type declared for key.
func Coerce(key domain.SettingKey, kind domain.ValueKind, raw string) (any, error) {
	switch kind {
	case domain.KindBool:
		return coerceBool(raw), nil
	case domain.KindInt:
		return coerceInt(raw), nil
	case domain.KindTheme:
		theme := domain.Theme(strings.TrimSpace(raw))
		if !theme.Valid() {
			return nil, apperrors.NewValidationError("Invalid theme")
		}
		return string(theme), nil
	case domain.KindString:
		return html.EscapeString(strings.TrimSpace(raw)), nil
	default:
		return nil, apperrors.NewInvalidKeyError(string(key))
	}
}

func coerceBool(raw string) int {
	if _, ok := falsy[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return 0
	}
	return 1
}

// coerceInt parses a base-10 integer; anything unparseable becomes 0.
func coerceInt(raw string) int {
	digits := strings.TrimSpace(raw)
	if !isDecimal(digits) {
		return 0
	}

	n, err := cast.ToIntE(trimLeadingZeros(digits))
	if err != nil {
		return 0
	}
	return n
}

// trimLeadingZeros keeps "010" from being read as octal.
func trimLeadingZeros(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		sign, s = s[:1], s[1:]
	}

	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" && s != "" {
		trimmed = "0"
	}
	return sign + trimmed
}

// isDecimal reports whether s is an optionally signed run of ASCII digits.
// cast parses with base 0, which would also accept prefixes and underscores.
func isDecimal(s string) bool {
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
