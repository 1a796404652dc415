package bridge

import "unicode/utf16"

// DefaultMaxLength is the longest accepted message, in UTF-16 code units.
const DefaultMaxLength = 140

// Validator accepts message bodies of 1..MaxLength UTF-16 code units.
type Validator struct {
	MaxLength int
}

// DefaultValidator uses DefaultMaxLength.
var DefaultValidator = Validator{MaxLength: DefaultMaxLength}

// IsValid reports whether message is 1..MaxLength UTF-16 code units long.
// A non-positive MaxLength means DefaultMaxLength.
func (v Validator) IsValid(message string) bool {
	limit := v.MaxLength
	if limit <= 0 {
		limit = DefaultMaxLength
	}
	n := utf16Len(message)
	return n >= 1 && n <= limit
}

// IsValid applies DefaultValidator.
func IsValid(message string) bool {
	return DefaultValidator.IsValid(message)
}

// utf16Len counts code units without allocating. Invalid bytes decode to
// U+FFFD and count as one unit.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
