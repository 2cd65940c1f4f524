package sqlbuild

import (
	"fmt"
	"strings"
	"unicode"
)

// maxIdentifierLen bounds column names; catalog names are short, anything longer
// is not something the analyzer produced.
const maxIdentifierLen = 256

// ValidateIdentifier enforces the trust boundary for column names. Identifiers are
// interpolated inside double quotes without escaping, so a name must not contain a
// double quote or a control character. Spaces and punctuation are fine.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidIdentifier)
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidIdentifier, len(name), maxIdentifierLen)
	}
	for _, r := range name {
		if r == '"' || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidIdentifier, name, r)
		}
	}
	return nil
}

// QuoteIdentifier validates name and wraps it in double quotes.
func QuoteIdentifier(name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", err
	}
	return `"` + name + `"`, nil
}

// QuoteString renders s as a single-quoted SQL literal, doubling embedded quotes.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
