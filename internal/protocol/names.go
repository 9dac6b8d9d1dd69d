package protocol

import (
	"regexp"
	"strings"

	"github.com/Iron-Ham/teamwork/internal/errors"
)

// disallowedNameChars matches every run of characters outside the on-disk name charset.
var disallowedNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName maps a team or teammate name onto [A-Za-z0-9._-].
// Runs of other characters become a single "-", and leading or trailing
// "-" and "." are trimmed so the result is a safe path element.
// A name that sanitizes to nothing is rejected.
func SanitizeName(name string) (string, error) {
	cleaned := disallowedNameChars.ReplaceAllString(strings.TrimSpace(name), "-")
	cleaned = strings.Trim(cleaned, "-.")
	if cleaned == "" {
		return "", errors.NewValidationErrorf("name %q has no usable characters", name).
			WithField("name").WithValue(name)
	}
	return cleaned, nil
}

// RequireText fails with INVALID_PARAM when value is blank.
func RequireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewValidationErrorf("%s is required", field).WithField(field)
	}
	return nil
}
